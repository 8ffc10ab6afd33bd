package anomaly

import (
	"math"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"gonum.org/v1/gonum/stat"

	"github.com/luxfinance/insight-engine/internal/domain"
)

// featureRow is one expense transaction with its derived columns. The table
// is rebuilt from scratch on every call; nothing here survives a request.
type featureRow struct {
	ID       string
	Money    int64
	Amount   float64
	Category string
	Code     int
	Time     time.Time
	Hour     int
	Day      int

	LogAmount    float64
	RollingMean7 float64
	RollingStd7  float64
	MonthStart   bool
	TypeMean     float64
	TypeStd      float64
	AmountZ      float64
	GlobalZ      float64
	UnusualHour  bool
	Weekend      bool
	DailyCount   float64
	DailyTotal   float64
	Recurring    bool
}

// expandingStats tracks a running mean/std per category (Welford).
type expandingStats struct {
	n    int
	mean float64
	m2   float64
}

func (s *expandingStats) add(x float64) {
	s.n++
	delta := x - s.mean
	s.mean += delta / float64(s.n)
	s.m2 += delta * (x - s.mean)
}

func (s *expandingStats) std() float64 {
	if s.n < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.n-1))
}

// buildFeatures derives the anomaly feature table from the supplied
// transactions. Only expense rows (negative amounts) are kept; the engine
// scores magnitudes.
func buildFeatures(txs []domain.Transaction) []featureRow {
	rows := make([]featureRow, 0, len(txs))
	for _, t := range txs {
		if t.Amount >= 0 {
			continue
		}
		hour := t.Timestamp.Hour()
		wd := t.Timestamp.Weekday()
		rows = append(rows, featureRow{
			ID:          t.ID,
			Money:       t.Amount,
			Amount:      t.AbsAmount(),
			Category:    domain.CategoryDisplayName(t.CategoryCode, t.CategoryName),
			Code:        t.CategoryCode,
			Time:        t.Timestamp,
			Hour:        hour,
			Day:         t.Timestamp.Day(),
			LogAmount:   math.Log1p(t.AbsAmount()),
			MonthStart:  t.Timestamp.Day() <= 5,
			UnusualHour: hour < 6 || hour > 23,
			Weekend:     wd == time.Saturday || wd == time.Sunday,
			Recurring:   domain.RecurringBill(t.CategoryCode, t.CategoryName),
		})
	}
	if len(rows) == 0 {
		return rows
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Time.Before(rows[j].Time) })

	amounts := make([]float64, len(rows))
	for i, r := range rows {
		amounts[i] = r.Amount
	}

	// Trailing 7-row rolling mean/std. A single-element window has no sample
	// std; it defaults to 1 so z-like ratios stay defined.
	for i := range rows {
		start := i - 6
		if start < 0 {
			start = 0
		}
		window := amounts[start : i+1]
		rows[i].RollingMean7 = stat.Mean(window, nil)
		if len(window) > 1 {
			rows[i].RollingStd7 = stat.StdDev(window, nil)
		} else {
			rows[i].RollingStd7 = 1
		}
	}

	// Expanding per-category mean/std in time order.
	perType := make(map[string]*expandingStats)
	for i := range rows {
		s := perType[rows[i].Category]
		if s == nil {
			s = &expandingStats{}
			perType[rows[i].Category] = s
		}
		s.add(rows[i].Amount)
		rows[i].TypeMean = s.mean
		rows[i].TypeStd = s.std()
	}

	globalMean := stat.Mean(amounts, nil)
	globalStd := 0.0
	if len(amounts) > 1 {
		globalStd = stat.StdDev(amounts, nil)
	}
	for i := range rows {
		if rows[i].TypeStd > 0 {
			rows[i].AmountZ = (rows[i].Amount - rows[i].TypeMean) / rows[i].TypeStd
		}
		if globalStd > 0 {
			rows[i].GlobalZ = (rows[i].Amount - globalMean) / globalStd
		}
	}

	type dayAgg struct {
		count int
		total float64
	}
	byDay := make(map[civil.Date]*dayAgg)
	for i := range rows {
		d := civil.DateOf(rows[i].Time)
		agg := byDay[d]
		if agg == nil {
			agg = &dayAgg{}
			byDay[d] = agg
		}
		agg.count++
		agg.total += rows[i].Amount
	}
	for i := range rows {
		agg := byDay[civil.DateOf(rows[i].Time)]
		rows[i].DailyCount = float64(agg.count)
		rows[i].DailyTotal = agg.total
	}

	return rows
}

// featureMatrix assembles the numeric model input and standardizes each
// column to zero mean and unit variance, fit on this table only. Non-finite
// values are zeroed before scaling.
func featureMatrix(rows []featureRow) [][]float64 {
	matrix := make([][]float64, len(rows))
	for i, r := range rows {
		unusual := 0.0
		if r.UnusualHour {
			unusual = 1
		}
		matrix[i] = []float64{r.LogAmount, r.AmountZ, unusual, r.DailyCount, r.RollingMean7}
	}
	if len(matrix) == 0 {
		return matrix
	}
	cols := len(matrix[0])
	col := make([]float64, len(matrix))
	for c := 0; c < cols; c++ {
		for i := range matrix {
			v := matrix[i][c]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
				matrix[i][c] = 0
			}
			col[i] = v
		}
		mean := stat.Mean(col, nil)
		std := 0.0
		if len(col) > 1 {
			std = stat.StdDev(col, nil)
		}
		for i := range matrix {
			if std > 0 {
				matrix[i][c] = (matrix[i][c] - mean) / std
			} else {
				matrix[i][c] = 0
			}
		}
	}
	return matrix
}
