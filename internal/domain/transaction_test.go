package domain

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantOK  bool
	}{
		{
			name:   "ISO with T separator",
			input:  "2024-03-15T14:30:00",
			want:   time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "space separator",
			input:  "2024-03-15 14:30:00",
			want:   time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "date only",
			input:  "2024-03-15",
			want:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "RFC3339 with zone",
			input:  "2024-03-15T14:30:00Z",
			want:   time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC),
			wantOK: true,
		},
		{
			name:   "garbage",
			input:  "not a date",
			wantOK: false,
		},
		{
			name:   "empty",
			input:  "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseTimestamp(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestTransactionSignSemantics(t *testing.T) {
	income := Transaction{Amount: 250000, CategoryCode: 8}
	if !income.IsIncome() {
		t.Error("positive salary amount should be income")
	}
	if income.IsExpense() {
		t.Error("positive salary amount should not be an expense")
	}

	expense := Transaction{Amount: -3500, CategoryCode: 0}
	if expense.IsIncome() {
		t.Error("negative amount should not be income")
	}
	if !expense.IsExpense() {
		t.Error("negative amount should be an expense")
	}

	// A positive amount outside the income categories still counts as spend
	// for behavioral analysis.
	positiveSpend := Transaction{Amount: 4200, CategoryCode: 5}
	if !positiveSpend.IsExpense() {
		t.Error("positive shopping amount should be treated as an expense")
	}

	if got := expense.AbsAmount(); got != 3500 {
		t.Errorf("AbsAmount() = %v, want 3500", got)
	}
}
