package anomaly

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/luxfinance/insight-engine/internal/domain"
)

func newTestEngine() *Engine {
	return New(Config{Contamination: 0.1, MinSamples: 5}, zerolog.Nop())
}

func tx(id string, amount int64, code int, ts time.Time) domain.Transaction {
	return domain.Transaction{ID: id, Amount: amount, CategoryCode: code, Timestamp: ts}
}

func TestDetect_InsufficientData(t *testing.T) {
	e := newTestEngine()
	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	txs := []domain.Transaction{
		tx("a", -1000, 0, base),
		tx("b", -2000, 0, base.AddDate(0, 0, 1)),
		tx("c", 50000, 8, base.AddDate(0, 0, 2)), // income, filtered out
	}

	result, err := e.Detect(context.Background(), "u1", txs, 0.1)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if result.Success {
		t.Error("expected success=false for insufficient data")
	}
	if result.Message != "Not enough data" {
		t.Errorf("Message = %q", result.Message)
	}
	// The supplied count is reported, not the expense-filtered one.
	if result.TotalTransactions != 3 {
		t.Errorf("TotalTransactions = %d, want 3", result.TotalTransactions)
	}
	if result.Anomalies == nil || len(result.Anomalies) != 0 {
		t.Errorf("Anomalies should be an empty slice, got %v", result.Anomalies)
	}
	if len(result.Alerts) == 0 {
		t.Error("expected a guidance alert for insufficient data")
	}
}

func TestDetect_UniformSpendingHasNoAnomalies(t *testing.T) {
	e := newTestEngine()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// Ten identical everyday purchases, one per day.
	var txs []domain.Transaction
	for i := 0; i < 10; i++ {
		txs = append(txs, tx(fmt.Sprintf("t%d", i), -50000, 0, base.AddDate(0, 0, i)))
	}

	result, err := e.Detect(context.Background(), "u1", txs, 0.1)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if !result.Success {
		t.Fatal("expected success=true")
	}
	if result.AnomaliesDetected != 0 {
		t.Errorf("uniform spending produced %d anomalies: %+v", result.AnomaliesDetected, result.Anomalies)
	}
	if result.Statistics.NormalTransactions != 10 {
		t.Errorf("NormalTransactions = %d, want 10", result.Statistics.NormalTransactions)
	}
}

func TestDetect_DuplicateRule(t *testing.T) {
	e := newTestEngine()
	base := time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC)

	var txs []domain.Transaction
	for i := 0; i < 8; i++ {
		txs = append(txs, tx(fmt.Sprintf("f%d", i), int64(-2000-i*137), 0, base.AddDate(0, 0, i+3)))
	}
	// Identical amount and category two minutes apart.
	txs = append(txs,
		tx("dup-1", -15000, 4, base),
		tx("dup-2", -15000, 4, base.Add(2*time.Minute)),
	)

	// The duplicate rule fires regardless of sensitivity.
	for _, sensitivity := range []float64{0.01, 0.5} {
		result, err := e.Detect(context.Background(), "u1", txs, sensitivity)
		if err != nil {
			t.Fatalf("Detect() error = %v", err)
		}

		var found *Record
		for i := range result.Anomalies {
			if result.Anomalies[i].TransactionID == "dup-2" {
				found = &result.Anomalies[i]
				break
			}
		}
		if found == nil {
			t.Fatalf("sensitivity %v: duplicate transaction not reported", sensitivity)
		}
		if found.AnomalyScore != 1.0 {
			t.Errorf("duplicate score = %v, want 1.0", found.AnomalyScore)
		}
		if found.Severity != SeverityHigh {
			t.Errorf("duplicate severity = %q, want high", found.Severity)
		}
	}
}

func TestDetect_RecurringBillWhitelist(t *testing.T) {
	e := newTestEngine()

	// A large rent payment on the 2nd among small everyday purchases. Without
	// the whitelist it would be the top outlier.
	var txs []domain.Transaction
	txs = append(txs, tx("rent-1", -90000, 2, time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)))
	for i := 0; i < 15; i++ {
		ts := time.Date(2024, 5, 6+i, 13, 0, 0, 0, time.UTC)
		txs = append(txs, tx(fmt.Sprintf("e%d", i), int64(-2000-i*113), 0, ts))
	}

	result, err := e.Detect(context.Background(), "u1", txs, 0.1)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	for _, a := range result.Anomalies {
		if a.TransactionID == "rent-1" {
			t.Errorf("whitelisted early-month rent was reported: %+v", a)
		}
	}
}

func TestDetect_ScoresAndOrdering(t *testing.T) {
	e := newTestEngine()
	base := time.Date(2024, 4, 2, 14, 0, 0, 0, time.UTC)

	var txs []domain.Transaction
	for i := 0; i < 20; i++ {
		txs = append(txs, tx(fmt.Sprintf("n%d", i), int64(-1500-i*211), 0, base.AddDate(0, 0, i)))
	}
	// Planted anomalies: a huge spend and a late-night spend.
	txs = append(txs,
		tx("big", -500000, 5, base.AddDate(0, 0, 21)),
		tx("night", -80000, 5, time.Date(2024, 4, 25, 2, 30, 0, 0, time.UTC)),
	)

	result, err := e.Detect(context.Background(), "u1", txs, 0.15)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if !result.Success {
		t.Fatal("expected success=true")
	}

	for _, a := range result.Anomalies {
		if a.AnomalyScore < 0 || a.AnomalyScore > 1 {
			t.Errorf("score %v outside [0, 1] for %s", a.AnomalyScore, a.TransactionID)
		}
		if a.AnomalyReason == "" {
			t.Errorf("empty reason for %s", a.TransactionID)
		}
	}

	// Severity buckets must be ordered high -> medium -> low, score descending
	// within a bucket.
	for i := 1; i < len(result.Anomalies); i++ {
		prev, curr := result.Anomalies[i-1], result.Anomalies[i]
		pr, cr := severityRank(prev.Severity), severityRank(curr.Severity)
		if pr > cr {
			t.Errorf("severity order violated at %d: %s before %s", i, prev.Severity, curr.Severity)
		}
		if pr == cr && prev.AnomalyScore < curr.AnomalyScore {
			t.Errorf("score order violated at %d: %v before %v", i, prev.AnomalyScore, curr.AnomalyScore)
		}
	}

	dist := result.Statistics.SeverityDistribution
	if dist[SeverityHigh]+dist[SeverityMedium]+dist[SeverityLow] != len(result.Anomalies) {
		t.Errorf("severity distribution %v does not sum to %d anomalies", dist, len(result.Anomalies))
	}
}

func TestDetect_Deterministic(t *testing.T) {
	e := newTestEngine()
	base := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

	var txs []domain.Transaction
	for i := 0; i < 30; i++ {
		code := i % 6
		txs = append(txs, tx(fmt.Sprintf("d%d", i), int64(-1000-(i*997)%20000), code, base.Add(time.Duration(i*29)*time.Hour)))
	}

	first, err := e.Detect(context.Background(), "u1", txs, 0.1)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	second, err := e.Detect(context.Background(), "u1", txs, 0.1)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("two identical calls produced different results")
	}
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		name      string
		normScore float64
		amountZ   float64
		manual    string
		want      string
	}{
		{"manual wins", 0.1, 0, SeverityHigh, SeverityHigh},
		{"high by combined score", 0.9, 0, "", SeverityHigh},
		{"high by extreme z", 0.1, 4.5, "", SeverityHigh},
		{"medium by combined score", 0.6, 0, "", SeverityMedium},
		{"medium by z", 0.1, 2.8, "", SeverityMedium},
		{"low otherwise", 0.2, 0.5, "", SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := severity(tt.normScore, tt.amountZ, tt.manual); got != tt.want {
				t.Errorf("severity(%v, %v, %q) = %q, want %q", tt.normScore, tt.amountZ, tt.manual, got, tt.want)
			}
		})
	}
}
