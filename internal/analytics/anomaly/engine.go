package anomaly

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/luxfinance/insight-engine/internal/analytics"
	"github.com/luxfinance/insight-engine/internal/domain"
)

const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"

	// Two expense rows with identical category and amount within this many
	// seconds are reported as a logical duplicate.
	duplicateWindowSeconds = 300

	whitelistScore = 0.1
	maxAlerts      = 5
)

// Record is one flagged transaction.
type Record struct {
	TransactionID string  `json:"transactionId"`
	Amount        int64   `json:"amount"`
	CategoryName  string  `json:"categoryName"`
	Timestamp     string  `json:"timestamp"`
	AnomalyScore  float64 `json:"anomalyScore"`
	AnomalyReason string  `json:"anomalyReason"`
	Severity      string  `json:"severity"`
}

// Statistics summarizes the analyzed table. All fields are always present.
type Statistics struct {
	TotalTransactions       int            `json:"totalTransactions"`
	NormalTransactions      int            `json:"normalTransactions"`
	AnomalyRate             float64        `json:"anomalyRate"`
	TotalAnomalyAmount      float64        `json:"totalAnomalyAmount"`
	AnomalyAmountPercentage float64        `json:"anomalyAmountPercentage"`
	TopAnomalyCategory      string         `json:"topAnomalyCategory"`
	SeverityDistribution    map[string]int `json:"severityDistribution"`
	AverageNormalAmount     float64        `json:"averageNormalAmount"`
	AverageAnomalyAmount    float64        `json:"averageAnomalyAmount"`
}

// Result is the anomaly detection response.
type Result struct {
	Success           bool       `json:"success"`
	UserID            string     `json:"userId"`
	TotalTransactions int        `json:"totalTransactions"`
	AnomaliesDetected int        `json:"anomaliesDetected"`
	Anomalies         []Record   `json:"anomalies"`
	Statistics        Statistics `json:"statistics"`
	Alerts            []string   `json:"alerts"`
	Message           string     `json:"message"`
}

// Config tunes the engine.
type Config struct {
	// Contamination is the expected anomaly fraction used when the caller
	// supplies no sensitivity.
	Contamination float64
	// MinSamples is the minimum number of expense rows required to score.
	MinSamples int
}

// Engine flags anomalous transactions. It holds configuration only; all
// per-call state (features, scaler, forest) is local to Detect so concurrent
// calls cannot interfere.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// New creates an anomaly engine.
func New(cfg Config, log zerolog.Logger) *Engine {
	if cfg.Contamination <= 0 {
		cfg.Contamination = 0.1
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 5
	}
	return &Engine{cfg: cfg, log: log}
}

// Detect runs anomaly detection over the supplied transactions. Income rows
// are discarded; the engine scores expense magnitudes. Sensitivity is the
// contamination parameter, clamped to [0.01, 0.5].
func (e *Engine) Detect(ctx context.Context, userID string, txs []domain.Transaction, sensitivity float64) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, analytics.Internal("anomaly detection: %v", r)
		}
	}()

	rows := buildFeatures(txs)

	if len(rows) < e.cfg.MinSamples {
		return &Result{
			Success:           false,
			UserID:            userID,
			TotalTransactions: len(txs),
			Anomalies:         []Record{},
			Statistics:        emptyStatistics(len(txs)),
			Alerts:            []string{fmt.Sprintf("At least %d expense transactions are needed for analysis.", e.cfg.MinSamples)},
			Message:           "Not enough data",
		}, nil
	}

	contamination := sensitivity
	if contamination < 0.01 || contamination > 0.5 {
		contamination = e.cfg.Contamination
	}

	matrix := featureMatrix(rows)
	forest := fitIsolationForest(matrix)
	rawScores := forest.scores(matrix)
	outlier := labelOutliers(rawScores, contamination)
	normScores := normalizeScores(rawScores)

	// Whitelist: early-month recurring bills are expected large payments.
	for i := range rows {
		if rows[i].MonthStart && rows[i].Recurring {
			outlier[i] = false
			normScores[i] = whitelistScore
		}
	}

	duplicates := detectDuplicates(rows)
	duplicateIDs := make(map[string]bool, len(duplicates))
	for _, d := range duplicates {
		duplicateIDs[d.TransactionID] = true
	}

	dailyCounts := make([]float64, len(rows))
	for i, r := range rows {
		dailyCounts[i] = r.DailyCount
	}
	sort.Float64s(dailyCounts)
	countThreshold := stat.Quantile(0.95, stat.Empirical, dailyCounts, nil)

	anomalies := make([]Record, 0, len(duplicates))
	for i, r := range rows {
		if !outlier[i] || duplicateIDs[r.ID] {
			continue
		}
		anomalies = append(anomalies, Record{
			TransactionID: r.ID,
			Amount:        r.Money,
			CategoryName:  r.Category,
			Timestamp:     r.Time.Format("2006-01-02 15:04"),
			AnomalyScore:  round3(normScores[i]),
			AnomalyReason: anomalyReason(r, countThreshold),
			Severity:      severity(normScores[i], r.AmountZ, ""),
		})
	}
	anomalies = append(anomalies, duplicates...)

	sort.SliceStable(anomalies, func(i, j int) bool {
		ri, rj := severityRank(anomalies[i].Severity), severityRank(anomalies[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return anomalies[i].AnomalyScore > anomalies[j].AnomalyScore
	})

	statistics := buildStatistics(rows, anomalies)
	alerts := buildAlerts(rows, anomalies, statistics)

	e.log.Debug().
		Str("user_id", userID).
		Int("rows", len(rows)).
		Int("anomalies", len(anomalies)).
		Float64("contamination", contamination).
		Msg("anomaly detection completed")

	return &Result{
		Success:           true,
		UserID:            userID,
		TotalTransactions: len(rows),
		AnomaliesDetected: len(anomalies),
		Anomalies:         anomalies,
		Statistics:        statistics,
		Alerts:            alerts,
		Message:           "Analysis completed",
	}, nil
}

// detectDuplicates finds pairs of identical category/amount rows within the
// duplicate window. These are flagged unconditionally with the maximum score.
func detectDuplicates(rows []featureRow) []Record {
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ri, rj := rows[order[a]], rows[order[b]]
		if ri.Category != rj.Category {
			return ri.Category < rj.Category
		}
		if ri.Amount != rj.Amount {
			return ri.Amount < rj.Amount
		}
		return ri.Time.Before(rj.Time)
	})

	var out []Record
	for k := 1; k < len(order); k++ {
		prev, curr := rows[order[k-1]], rows[order[k]]
		if curr.Category != prev.Category || curr.Amount != prev.Amount || curr.Amount <= 0 {
			continue
		}
		if curr.Time.Sub(prev.Time).Seconds() < duplicateWindowSeconds {
			out = append(out, Record{
				TransactionID: curr.ID,
				Amount:        curr.Money,
				CategoryName:  curr.Category,
				Timestamp:     curr.Time.Format("2006-01-02 15:04"),
				AnomalyScore:  1.0,
				AnomalyReason: fmt.Sprintf("Possible duplicate: identical to a transaction at %s", prev.Time.Format("15:04")),
				Severity:      SeverityHigh,
			})
		}
	}
	return out
}

// anomalyReason joins every rule that triggered for the row, with a generic
// fallback when none did.
func anomalyReason(r featureRow, countThreshold float64) string {
	var reasons []string

	if r.Amount > r.RollingMean7*3 {
		reasons = append(reasons, "more than 3x the average spend of the past week")
	} else if abs(r.AmountZ) > 2 {
		reasons = append(reasons, fmt.Sprintf("far outside the usual range for '%s'", r.Category))
	}
	if abs(r.GlobalZ) > 3 {
		reasons = append(reasons, "extremely large compared with overall spending")
	}
	if r.UnusualHour {
		reasons = append(reasons, fmt.Sprintf("occurred late at night (%dh)", r.Hour))
	}
	if r.DailyCount > countThreshold {
		reasons = append(reasons, fmt.Sprintf("unusually frequent transactions (%d that day)", int(r.DailyCount)))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "spending pattern differs from usual habits")
	}

	full := strings.Join(reasons, "; ")
	return strings.ToUpper(full[:1]) + full[1:]
}

// severity derives the severity bucket from the combined score. A manual
// severity (from the duplicate rule) always wins.
func severity(normScore, amountZ float64, manual string) string {
	if manual != "" {
		return manual
	}
	combined := abs(normScore) + abs(amountZ)/3
	switch {
	case combined > 0.8 || abs(amountZ) > 4:
		return SeverityHigh
	case combined > 0.5 || abs(amountZ) > 2.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func severityRank(s string) int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

func emptyStatistics(total int) Statistics {
	return Statistics{
		TotalTransactions:    total,
		NormalTransactions:   total,
		TopAnomalyCategory:   "none",
		SeverityDistribution: map[string]int{SeverityHigh: 0, SeverityMedium: 0, SeverityLow: 0},
	}
}

func buildStatistics(rows []featureRow, anomalies []Record) Statistics {
	anomalyIDs := make(map[string]bool, len(anomalies))
	for _, a := range anomalies {
		anomalyIDs[a.TransactionID] = true
	}

	total := decimal.Zero
	anomalyAmount := decimal.Zero
	normalSum, anomalySum := 0.0, 0.0
	normalCount, anomalyCount := 0, 0
	categoryCounts := make(map[string]int)

	for _, r := range rows {
		amt := decimal.NewFromInt(r.Money).Abs()
		total = total.Add(amt)
		if anomalyIDs[r.ID] {
			anomalyAmount = anomalyAmount.Add(amt)
			anomalySum += r.Amount
			anomalyCount++
			categoryCounts[r.Category]++
		} else {
			normalSum += r.Amount
			normalCount++
		}
	}

	topCategory := "none"
	topCount := 0
	for cat, n := range categoryCounts {
		if n > topCount || (n == topCount && cat < topCategory) {
			topCategory, topCount = cat, n
		}
	}

	dist := map[string]int{SeverityHigh: 0, SeverityMedium: 0, SeverityLow: 0}
	for _, a := range anomalies {
		dist[a.Severity]++
	}

	stats := Statistics{
		TotalTransactions:    len(rows),
		NormalTransactions:   normalCount,
		TopAnomalyCategory:   topCategory,
		SeverityDistribution: dist,
		TotalAnomalyAmount:   anomalyAmount.Round(0).InexactFloat64(),
	}
	if len(rows) > 0 {
		stats.AnomalyRate = round2(float64(anomalyCount) / float64(len(rows)) * 100)
	}
	if total.IsPositive() {
		stats.AnomalyAmountPercentage = anomalyAmount.Div(total).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	if normalCount > 0 {
		stats.AverageNormalAmount = round0(normalSum / float64(normalCount))
	}
	if anomalyCount > 0 {
		stats.AverageAnomalyAmount = round0(anomalySum / float64(anomalyCount))
	}
	return stats
}

// buildAlerts emits up to five prioritized alert strings.
func buildAlerts(rows []featureRow, anomalies []Record, stats Statistics) []string {
	alerts := []string{}

	if high := stats.SeverityDistribution[SeverityHigh]; high > 0 {
		alerts = append(alerts, fmt.Sprintf("%d high-risk transactions detected (duplicates or sudden spikes).", high))
	}
	if stats.AnomalyAmountPercentage > 30 {
		alerts = append(alerts, fmt.Sprintf("Alert: %.1f%% of your spending sits in anomalous transactions.", stats.AnomalyAmountPercentage))
	}
	if len(anomalies) > 0 && stats.TopAnomalyCategory != "none" {
		alerts = append(alerts, fmt.Sprintf("Watch the '%s' category: it shows the most unusual activity.", stats.TopAnomalyCategory))
	}

	// End-of-month spend projection over the last observed month.
	last := rows[0].Time
	for _, r := range rows {
		if r.Time.After(last) {
			last = r.Time
		}
	}
	if day := last.Day(); day > 5 {
		spent := 0.0
		for _, r := range rows {
			if r.Time.Month() == last.Month() && r.Time.Year() == last.Year() {
				spent += r.Amount
			}
		}
		projected := spent / float64(day) * 31
		alerts = append(alerts, fmt.Sprintf("Projection: you may spend around %.0f this month (so far: %.0f).", projected, spent))
	}

	if len(anomalies) == 0 && len(alerts) == 0 {
		alerts = append(alerts, "Finances look stable. No risks or duplicate charges detected.")
	}
	if len(alerts) > maxAlerts {
		alerts = alerts[:maxAlerts]
	}
	return alerts
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func round0(x float64) float64 { return float64(int64(x + 0.5)) }

func round2(x float64) float64 { return float64(int64(x*100+0.5)) / 100 }

func round3(x float64) float64 { return float64(int64(x*1000+0.5)) / 1000 }
