package forecast

import (
	"sort"

	"cloud.google.com/go/civil"

	"github.com/luxfinance/insight-engine/internal/domain"
)

// dailyPoint is one calendar day's total income and expense.
type dailyPoint struct {
	Date    civil.Date
	Income  float64
	Expense float64
}

// aggregateDaily groups transactions by calendar day and reindexes to a
// dense, gap-filled daily calendar between the first and last observed date.
// Days with no transactions carry zero income and zero expense.
func aggregateDaily(txs []domain.Transaction) []dailyPoint {
	type agg struct{ income, expense float64 }
	byDay := make(map[civil.Date]*agg)
	for _, t := range txs {
		d := civil.DateOf(t.Timestamp)
		a := byDay[d]
		if a == nil {
			a = &agg{}
			byDay[d] = a
		}
		if t.IsIncome() {
			a.income += t.AbsAmount()
		} else {
			a.expense += t.AbsAmount()
		}
	}
	if len(byDay) == 0 {
		return nil
	}

	dates := make([]civil.Date, 0, len(byDay))
	for d := range byDay {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	first, last := dates[0], dates[len(dates)-1]
	var out []dailyPoint
	for d := first; !d.After(last); d = d.AddDays(1) {
		p := dailyPoint{Date: d}
		if a := byDay[d]; a != nil {
			p.Income = a.income
			p.Expense = a.expense
		}
		out = append(out, p)
	}
	return out
}

func incomeSeries(daily []dailyPoint) []float64 {
	out := make([]float64, len(daily))
	for i, p := range daily {
		out[i] = p.Income
	}
	return out
}

func expenseSeries(daily []dailyPoint) []float64 {
	out := make([]float64, len(daily))
	for i, p := range daily {
		out[i] = p.Expense
	}
	return out
}
