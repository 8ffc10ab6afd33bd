package cluster

import (
	"math"
	"time"

	"github.com/luxfinance/insight-engine/internal/domain"
)

// featureRow is one expense transaction with the derived columns used for
// clustering. Rebuilt per call.
type featureRow struct {
	ID       string
	Amount   float64
	Category string
	Code     int
	Time     time.Time
	Hour     int
	Day      int

	LogAmount     float64
	Weekend       bool
	Morning       bool
	Afternoon     bool
	Evening       bool
	EarlyMonth    bool
	MidMonth      bool
	LateMonth     bool
	Essential     bool
	Entertainment bool
	Investment    bool
	LateNight     bool
}

// buildFeatures keeps expense rows only: a negative amount, or a positive
// amount whose category is not in the income set.
func buildFeatures(txs []domain.Transaction) []featureRow {
	rows := make([]featureRow, 0, len(txs))
	for _, t := range txs {
		if !t.IsExpense() {
			continue
		}
		hour := t.Timestamp.Hour()
		day := t.Timestamp.Day()
		wd := t.Timestamp.Weekday()
		group := domain.GroupFor(t.CategoryCode, t.CategoryName)
		rows = append(rows, featureRow{
			ID:            t.ID,
			Amount:        t.AbsAmount(),
			Category:      domain.CategoryDisplayName(t.CategoryCode, t.CategoryName),
			Code:          t.CategoryCode,
			Time:          t.Timestamp,
			Hour:          hour,
			Day:           day,
			LogAmount:     math.Log1p(t.AbsAmount()),
			Weekend:       wd == time.Saturday || wd == time.Sunday,
			Morning:       hour >= 6 && hour <= 11,
			Afternoon:     hour >= 12 && hour <= 17,
			Evening:       hour >= 18 && hour <= 23,
			EarlyMonth:    day <= 10,
			MidMonth:      day >= 11 && day <= 20,
			LateMonth:     day > 20,
			Essential:     group == domain.GroupEssential,
			Entertainment: group == domain.GroupEntertainment,
			Investment:    group == domain.GroupInvestment,
			LateNight:     hour < 6 || hour >= 23,
		})
	}
	return rows
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// featureMatrix assembles and standardizes the model input, fit on this
// table only.
func featureMatrix(rows []featureRow) [][]float64 {
	matrix := make([][]float64, len(rows))
	for i, r := range rows {
		matrix[i] = []float64{
			r.LogAmount,
			b2f(r.Weekend),
			b2f(r.Morning), b2f(r.Afternoon), b2f(r.Evening),
			b2f(r.EarlyMonth), b2f(r.MidMonth), b2f(r.LateMonth),
			b2f(r.Essential), b2f(r.Entertainment), b2f(r.Investment),
		}
	}
	standardize(matrix)
	return matrix
}

func standardize(matrix [][]float64) {
	if len(matrix) == 0 {
		return
	}
	cols := len(matrix[0])
	n := float64(len(matrix))
	for c := 0; c < cols; c++ {
		mean := 0.0
		for i := range matrix {
			mean += matrix[i][c]
		}
		mean /= n
		variance := 0.0
		for i := range matrix {
			d := matrix[i][c] - mean
			variance += d * d
		}
		std := 0.0
		if len(matrix) > 1 {
			std = math.Sqrt(variance / (n - 1))
		}
		for i := range matrix {
			if std > 0 {
				matrix[i][c] = (matrix[i][c] - mean) / std
			} else {
				matrix[i][c] = 0
			}
		}
	}
}
