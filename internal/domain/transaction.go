package domain

import (
	"math"
	"time"
)

// Transaction represents one recorded money movement supplied by the caller.
// Amount is a signed integer: positive = income, negative = expense. The sign
// is the sole income/expense discriminator; engines that analyze expenses only
// filter on it themselves.
type Transaction struct {
	ID           string
	Amount       int64
	CategoryCode int
	CategoryName string
	Timestamp    time.Time

	// Opaque metadata, passed through by the adapter, never used by engines.
	Note     string
	ImageRef string
	Location string
}

// IsIncome reports whether the transaction is an income row by sign.
func (t Transaction) IsIncome() bool {
	return t.Amount > 0
}

// IsExpense reports whether the transaction should be treated as an expense
// for behavioral analysis: a negative amount, or a positive amount whose
// category is not a recognized income category.
func (t Transaction) IsExpense() bool {
	if t.Amount < 0 {
		return true
	}
	return t.Amount > 0 && !IncomeCategory(t.CategoryCode)
}

// AbsAmount returns the magnitude of the amount as a float.
func (t Transaction) AbsAmount() float64 {
	return math.Abs(float64(t.Amount))
}

// timestampFormats is the ordered list of accepted timestamp layouts. The
// first layout that parses wins.
var timestampFormats = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339,
}

// ParseTimestamp parses a loosely-typed timestamp string against the accepted
// layouts in order. Returns false when no layout matches; callers drop the
// row rather than failing the batch.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampFormats {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
