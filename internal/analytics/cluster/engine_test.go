package cluster

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/luxfinance/insight-engine/internal/domain"
)

func newTestEngine() *Engine {
	return New(Config{DefaultK: 4, MinSamples: 5}, zerolog.Nop())
}

func tx(id string, amount int64, code int, ts time.Time) domain.Transaction {
	return domain.Transaction{ID: id, Amount: amount, CategoryCode: code, Timestamp: ts}
}

func TestCluster_InsufficientData(t *testing.T) {
	e := newTestEngine()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	txs := []domain.Transaction{
		tx("a", -1000, 0, base),
		tx("b", -2000, 5, base.AddDate(0, 0, 1)),
	}

	result, err := e.Cluster(context.Background(), "u1", txs, 0)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if result.Success {
		t.Error("expected success=false for insufficient data")
	}
	if len(result.Clusters) != 0 {
		t.Errorf("expected no clusters, got %d", len(result.Clusters))
	}
	if len(result.Recommendations) == 0 {
		t.Error("expected a guidance recommendation")
	}
}

func TestCluster_UniformEssentialSpending(t *testing.T) {
	e := newTestEngine()
	base := time.Date(2024, 6, 3, 13, 0, 0, 0, time.UTC)

	// Identical groceries purchases, all essential, all above the
	// micro-spending floor.
	var txs []domain.Transaction
	for i := 0; i < 12; i++ {
		txs = append(txs, tx(fmt.Sprintf("t%d", i), -20000, 15, base.AddDate(0, 0, i)))
	}

	result, err := e.Cluster(context.Background(), "u1", txs, 0)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if !result.Success {
		t.Fatal("expected success=true")
	}
	if len(result.Clusters) != 1 {
		t.Fatalf("identical rows should merge into one profile, got %d", len(result.Clusters))
	}
	c := result.Clusters[0]
	if c.ClusterName != "Daily essentials" {
		t.Errorf("ClusterName = %q, want Daily essentials", c.ClusterName)
	}
	if c.Percentage != 100 {
		t.Errorf("Percentage = %v, want 100", c.Percentage)
	}
	if c.Characteristics.TransactionCount != 12 {
		t.Errorf("TransactionCount = %d, want 12", c.Characteristics.TransactionCount)
	}
}

// mixedTransactions builds a varied table covering several behavior segments.
func mixedTransactions() []domain.Transaction {
	var txs []domain.Transaction
	id := 0
	add := func(amount int64, code int, day, hour int) {
		id++
		txs = append(txs, tx(fmt.Sprintf("m%d", id), amount, code,
			time.Date(2024, 6, day, hour, 15, 0, 0, time.UTC)))
	}

	for i := 0; i < 10; i++ {
		add(int64(-18000-i*500), 0, 2+i*2, 12) // eating out
	}
	for i := 0; i < 8; i++ {
		add(int64(-25000-i*700), 5, 3+i*3, 19) // shopping
	}
	for i := 0; i < 6; i++ {
		add(int64(-900-i*50), 1, 5+i*4, 8) // small transport fares
	}
	add(-400000, 2, 2, 9)  // rent
	add(-350000, 6, 15, 9) // a big trip
	for i := 0; i < 4; i++ {
		add(int64(-50000), 9, 1+i*7, 10) // investments
	}
	return txs
}

func TestCluster_PercentagesPartitionTheTable(t *testing.T) {
	e := newTestEngine()

	result, err := e.Cluster(context.Background(), "u1", mixedTransactions(), 0)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if !result.Success {
		t.Fatal("expected success=true")
	}
	if len(result.Clusters) < 2 {
		t.Fatalf("varied data produced %d profiles, want at least 2", len(result.Clusters))
	}

	totalPct := 0.0
	totalCount := 0
	seen := make(map[string]bool)
	for _, c := range result.Clusters {
		if seen[c.ClusterName] {
			t.Errorf("profile %q reported twice", c.ClusterName)
		}
		seen[c.ClusterName] = true
		totalPct += c.Percentage
		totalCount += c.Characteristics.TransactionCount
	}
	if totalCount != result.UserProfile.TransactionCount {
		t.Errorf("cluster members sum to %d, want %d", totalCount, result.UserProfile.TransactionCount)
	}
	if math.Abs(totalPct-100) > 0.5 {
		t.Errorf("percentages sum to %v, want ~100", totalPct)
	}

	// Ordered by total amount, IDs sequential from zero.
	for i := 1; i < len(result.Clusters); i++ {
		if result.Clusters[i].Characteristics.TotalAmount > result.Clusters[i-1].Characteristics.TotalAmount {
			t.Errorf("clusters not ordered by total amount at %d", i)
		}
	}
	for i, c := range result.Clusters {
		if c.ClusterID != i {
			t.Errorf("ClusterID = %d at position %d", c.ClusterID, i)
		}
	}
}

func TestCluster_UserProfile(t *testing.T) {
	e := newTestEngine()

	result, err := e.Cluster(context.Background(), "u1", mixedTransactions(), 0)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}

	p := result.UserProfile
	if p.FinancialHealthScore < 10 || p.FinancialHealthScore > 100 {
		t.Errorf("FinancialHealthScore = %d, outside [10, 100]", p.FinancialHealthScore)
	}
	if p.TotalSpent <= 0 {
		t.Errorf("TotalSpent = %v, want positive", p.TotalSpent)
	}
	if p.SpendingStyle == "" {
		t.Error("SpendingStyle is empty")
	}
	if p.DominantBehavior.Name != result.Clusters[0].ClusterName {
		t.Errorf("DominantBehavior = %q, want the largest cluster %q", p.DominantBehavior.Name, result.Clusters[0].ClusterName)
	}
	if len(p.TopCategories) == 0 {
		t.Error("TopCategories is empty")
	}
	if len(result.Recommendations) == 0 || len(result.Recommendations) > 5 {
		t.Errorf("got %d recommendations, want 1..5", len(result.Recommendations))
	}
}

func TestCluster_ExplicitClusterCount(t *testing.T) {
	e := newTestEngine()

	result, err := e.Cluster(context.Background(), "u1", mixedTransactions(), 3)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if !result.Success {
		t.Fatal("expected success=true")
	}
	// Merging can only reduce the reported count below the requested k.
	if len(result.Clusters) > 3 {
		t.Errorf("reported %d clusters for requested k=3", len(result.Clusters))
	}
}

func TestCluster_Deterministic(t *testing.T) {
	e := newTestEngine()
	txs := mixedTransactions()

	first, err := e.Cluster(context.Background(), "u1", txs, 0)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	second, err := e.Cluster(context.Background(), "u1", txs, 0)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("two identical calls produced different results")
	}
}

func TestHealthScore(t *testing.T) {
	tests := []struct {
		name                              string
		essential, entertainment, invest  float64
		want                              int
	}{
		{"balanced with some investing", 0.5, 0.2, 0.15, 90},
		{"no investing", 0.5, 0.2, 0, 75},
		{"entertainment heavy", 0.2, 0.6, 0, 55},
		{"strong investor", 0.4, 0.1, 0.3, 95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := healthScore(tt.essential, tt.entertainment, tt.invest); got != tt.want {
				t.Errorf("healthScore(%v, %v, %v) = %d, want %d", tt.essential, tt.entertainment, tt.invest, got, tt.want)
			}
		})
	}
}

func TestClassify_RuleOrder(t *testing.T) {
	base := time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)
	mk := func(amount float64, essential, entertainment, investment bool) featureRow {
		return featureRow{Amount: amount, Essential: essential, Entertainment: entertainment, Investment: investment, Time: base}
	}

	tests := []struct {
		name   string
		rows   []featureRow
		popAvg float64
		want   string
	}{
		{"high value beats essential", []featureRow{mk(100000, true, false, false)}, 20000, "high_value"},
		{"investment over half", []featureRow{mk(30000, false, false, true), mk(30000, false, false, true)}, 30000, "investment"},
		{"micro by floor", []featureRow{mk(5000, true, false, false)}, 5000, "micro"},
		{"essential majority", []featureRow{mk(30000, true, false, false), mk(30000, true, false, false), mk(30000, false, true, false)}, 30000, "essential"},
		{"entertainment majority", []featureRow{mk(30000, false, true, false), mk(30000, false, true, false), mk(30000, true, false, false)}, 30000, "entertainment"},
		{"mixed fallback", []featureRow{mk(30000, true, false, false), mk(30000, false, true, false)}, 30000, "mixed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			members := make([]int, len(tt.rows))
			for i := range members {
				members[i] = i
			}
			if got := classify(tt.rows, members, tt.popAvg); got != tt.want {
				t.Errorf("classify() = %q, want %q", got, tt.want)
			}
		})
	}
}
