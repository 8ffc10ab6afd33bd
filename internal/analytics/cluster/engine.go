package cluster

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/luxfinance/insight-engine/internal/analytics"
	"github.com/luxfinance/insight-engine/internal/domain"
)

// microAmountFloor is the absolute amount below which a cluster counts as
// micro-spending regardless of the population average.
const microAmountFloor = 10000

// Characteristics are the aggregate ratios of one reported cluster.
type Characteristics struct {
	AverageAmount      float64        `json:"averageAmount"`
	TotalAmount        float64        `json:"totalAmount"`
	TransactionCount   int            `json:"transactionCount"`
	EssentialRatio     float64        `json:"essentialRatio"`
	EntertainmentRatio float64        `json:"entertainmentRatio"`
	InvestmentRatio    float64        `json:"investmentRatio"`
	WeekendRatio       float64        `json:"weekendRatio"`
	TopCategories      map[string]int `json:"topCategories"`
}

// Profile is one reported (merged) cluster.
type Profile struct {
	ClusterID       int             `json:"clusterId"`
	ClusterName     string          `json:"clusterName"`
	Description     string          `json:"description"`
	Characteristics Characteristics `json:"characteristics"`
	TransactionIDs  []string        `json:"transactionIds"`
	Percentage      float64         `json:"percentage"`
}

// WeekSplit compares weekday and weekend spending.
type WeekSplit struct {
	Weekday      float64 `json:"weekday"`
	Weekend      float64 `json:"weekend"`
	WeekendRatio float64 `json:"weekendRatio"`
}

// Dominant identifies the largest reported cluster.
type Dominant struct {
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
}

// UserProfile is the user-level aggregate view.
type UserProfile struct {
	TotalSpent           float64            `json:"totalSpent"`
	AverageTransaction   float64            `json:"averageTransaction"`
	TransactionCount     int                `json:"transactionCount"`
	TopCategories        map[string]float64 `json:"topCategories"`
	WeekdayVsWeekend     WeekSplit          `json:"weekdayVsWeekend"`
	DominantBehavior     Dominant           `json:"dominantBehavior"`
	SpendingStyle        string             `json:"spendingStyle"`
	FinancialHealthScore int                `json:"financialHealthScore"`
}

// Result is the clustering response.
type Result struct {
	Success         bool        `json:"success"`
	UserID          string      `json:"userId"`
	Clusters        []Profile   `json:"clusters"`
	UserProfile     UserProfile `json:"userProfile"`
	Recommendations []string    `json:"recommendations"`
	Message         string      `json:"message"`
}

// semanticProfile is a human-meaningful label for a raw numeric cluster.
type semanticProfile struct {
	key         string
	name        string
	description string
}

var profiles = map[string]semanticProfile{
	"high_value":    {"high_value", "High-value outliers", "Few transactions with unusually large amounts"},
	"investment":    {"investment", "Investment & future", "Money set aside for savings, investments, and repayments"},
	"micro":         {"micro", "Micro-spending", "Many small everyday purchases"},
	"essential":     {"essential", "Daily essentials", "Necessary spending such as food, transport, and bills"},
	"entertainment": {"entertainment", "Lifestyle & entertainment", "Shopping, entertainment, and travel"},
	"mixed":         {"mixed", "Mixed & irregular", "A varied mix of spending without a single pattern"},
}

// Config tunes the engine.
type Config struct {
	// DefaultK caps the derived cluster count when the caller supplies none.
	DefaultK int
	// MinSamples is the minimum number of expense rows required.
	MinSamples int
}

// Engine segments spending behavior. Configuration only; models and scalers
// are local to each call.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// New creates a clustering engine.
func New(cfg Config, log zerolog.Logger) *Engine {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 4
	}
	if cfg.MinSamples < 2 {
		cfg.MinSamples = 5
	}
	return &Engine{cfg: cfg, log: log}
}

// Cluster groups the user's expenses into behavioral segments. nClusters <= 0
// means derive the cluster count from data volume.
func (e *Engine) Cluster(ctx context.Context, userID string, txs []domain.Transaction, nClusters int) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, analytics.Internal("behavior clustering: %v", r)
		}
	}()

	rows := buildFeatures(txs)

	if len(rows) < e.cfg.MinSamples {
		return &Result{
			Success:         false,
			UserID:          userID,
			Clusters:        []Profile{},
			UserProfile:     UserProfile{TopCategories: map[string]float64{}},
			Recommendations: []string{fmt.Sprintf("At least %d expense transactions are needed to analyze behavior.", e.cfg.MinSamples)},
			Message:         "Insufficient data for clustering",
		}, nil
	}

	k := nClusters
	if k <= 0 {
		k = clamp(len(rows)/5, 3, 6)
		if k > e.cfg.DefaultK {
			k = e.cfg.DefaultK
		}
	}
	k = clamp(k, 2, len(rows)/2)
	if k < 2 {
		k = 2
	}

	matrix := featureMatrix(rows)
	assign := kMeans(matrix, k)

	popAvg := 0.0
	for _, r := range rows {
		popAvg += r.Amount
	}
	popAvg /= float64(len(rows))

	// Map every raw cluster to a semantic profile, then merge clusters that
	// share a profile key. This is re-bucketing, not a second model run.
	merged := make(map[string][]int)
	for c := 0; c < k; c++ {
		var members []int
		for i, a := range assign {
			if a == c {
				members = append(members, i)
			}
		}
		if len(members) == 0 {
			continue
		}
		key := classify(rows, members, popAvg)
		merged[key] = append(merged[key], members...)
	}

	reported := make([]Profile, 0, len(merged))
	for key, members := range merged {
		sort.Ints(members)
		reported = append(reported, buildProfile(rows, members, profiles[key], len(rows)))
	}
	sort.SliceStable(reported, func(i, j int) bool {
		if reported[i].Characteristics.TotalAmount != reported[j].Characteristics.TotalAmount {
			return reported[i].Characteristics.TotalAmount > reported[j].Characteristics.TotalAmount
		}
		return reported[i].ClusterName < reported[j].ClusterName
	})
	for i := range reported {
		reported[i].ClusterID = i
	}

	userProfile := buildUserProfile(rows, reported)
	recommendations := recommendationBank(rows, popAvg)

	e.log.Debug().
		Str("user_id", userID).
		Int("rows", len(rows)).
		Int("raw_clusters", k).
		Int("reported_clusters", len(reported)).
		Msg("clustering completed")

	return &Result{
		Success:         true,
		UserID:          userID,
		Clusters:        reported,
		UserProfile:     userProfile,
		Recommendations: recommendations,
		Message:         "Spending behavior analysis completed",
	}, nil
}

// classify maps a raw cluster to a semantic profile key. Rule order matters;
// the first match wins.
func classify(rows []featureRow, members []int, popAvg float64) string {
	avg, essential, entertainment, investment := 0.0, 0.0, 0.0, 0.0
	for _, i := range members {
		avg += rows[i].Amount
		essential += b2f(rows[i].Essential)
		entertainment += b2f(rows[i].Entertainment)
		investment += b2f(rows[i].Investment)
	}
	n := float64(len(members))
	avg /= n
	essential /= n
	entertainment /= n
	investment /= n

	switch {
	case avg > popAvg*3:
		return "high_value"
	case investment > 0.5:
		return "investment"
	case avg < popAvg*0.2 || avg < microAmountFloor:
		return "micro"
	case essential > 0.6:
		return "essential"
	case entertainment > 0.5:
		return "entertainment"
	default:
		return "mixed"
	}
}

func buildProfile(rows []featureRow, members []int, sp semanticProfile, total int) Profile {
	sum := decimal.Zero
	essential, entertainment, investment, weekend := 0.0, 0.0, 0.0, 0.0
	categoryCounts := make(map[string]int)
	ids := make([]string, 0, len(members))
	for _, i := range members {
		sum = sum.Add(decimal.NewFromFloat(rows[i].Amount))
		essential += b2f(rows[i].Essential)
		entertainment += b2f(rows[i].Entertainment)
		investment += b2f(rows[i].Investment)
		weekend += b2f(rows[i].Weekend)
		categoryCounts[rows[i].Category]++
		ids = append(ids, rows[i].ID)
	}
	n := float64(len(members))
	totalAmount := sum.Round(0).InexactFloat64()
	top := topCategoriesByCount(categoryCounts, 3)

	desc := sp.description
	if names := topCategoryNames(categoryCounts, 2); len(names) > 0 {
		desc = fmt.Sprintf("%s; mostly %s", sp.description, strings.Join(names, ", "))
	}

	return Profile{
		ClusterName: sp.name,
		Description: desc,
		Characteristics: Characteristics{
			AverageAmount:      round0(totalAmount / n),
			TotalAmount:        totalAmount,
			TransactionCount:   len(members),
			EssentialRatio:     round1(essential / n * 100),
			EntertainmentRatio: round1(entertainment / n * 100),
			InvestmentRatio:    round1(investment / n * 100),
			WeekendRatio:       round1(weekend / n * 100),
			TopCategories:      top,
		},
		TransactionIDs: ids,
		Percentage:     round1(n / float64(total) * 100),
	}
}

func buildUserProfile(rows []featureRow, reported []Profile) UserProfile {
	total := decimal.Zero
	weekday, weekend := decimal.Zero, decimal.Zero
	essential, entertainment, investment := 0.0, 0.0, 0.0
	amounts := make([]float64, len(rows))
	byCategory := make(map[string]float64)
	for i, r := range rows {
		amt := decimal.NewFromFloat(r.Amount)
		total = total.Add(amt)
		if r.Weekend {
			weekend = weekend.Add(amt)
		} else {
			weekday = weekday.Add(amt)
		}
		essential += b2f(r.Essential)
		entertainment += b2f(r.Entertainment)
		investment += b2f(r.Investment)
		amounts[i] = r.Amount
		byCategory[r.Category] += r.Amount
	}
	n := float64(len(rows))
	essential /= n
	entertainment /= n
	investment /= n

	totalSpent := total.Round(0).InexactFloat64()
	split := WeekSplit{
		Weekday: weekday.Round(0).InexactFloat64(),
		Weekend: weekend.Round(0).InexactFloat64(),
	}
	if total.IsPositive() {
		split.WeekendRatio = weekend.Div(total).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
	}

	dominant := Dominant{Name: "none"}
	if len(reported) > 0 {
		dominant = Dominant{Name: reported[0].ClusterName, Percentage: reported[0].Percentage}
	}

	sort.Float64s(amounts)
	median := stat.Quantile(0.5, stat.Empirical, amounts, nil)
	avg := totalSpent / n

	return UserProfile{
		TotalSpent:           totalSpent,
		AverageTransaction:   round0(avg),
		TransactionCount:     len(rows),
		TopCategories:        topCategoriesBySum(byCategory, 5),
		WeekdayVsWeekend:     split,
		DominantBehavior:     dominant,
		SpendingStyle:        spendingStyle(essential, entertainment, avg, median),
		FinancialHealthScore: healthScore(essential, entertainment, investment),
	}
}

// spendingStyle uses the same ordered-rule precedence as cluster
// classification, over population-level ratios.
func spendingStyle(essential, entertainment, avg, median float64) string {
	switch {
	case essential > 0.7:
		return "Frugal - spending concentrates on essentials"
	case entertainment > 0.4:
		return "Indulgent - a large share goes to lifestyle and entertainment"
	case median > 0 && avg > median*2:
		return "Volatile - uneven spending with occasional large amounts"
	default:
		return "Balanced - varied and steady spending"
	}
}

// healthScore starts at 80, penalizes lopsided essential/entertainment
// shares, rewards investment, and clamps to [10, 100].
func healthScore(essential, entertainment, investment float64) int {
	score := 80.0
	if essential > 0.7 {
		score -= 10
	}
	if entertainment > 0.5 {
		score -= 20
	} else if entertainment > 0.35 {
		score -= 10
	}
	if investment > 0.25 {
		score += 15
	} else if investment > 0.1 {
		score += 10
	} else if investment == 0 {
		score -= 5
	}
	return clamp(int(score), 10, 100)
}

// recommendationBank applies independent threshold checks in priority order
// and returns up to five distinct recommendations.
func recommendationBank(rows []featureRow, popAvg float64) []string {
	n := float64(len(rows))
	essential, entertainment, investment := 0.0, 0.0, 0.0
	earlyMonth, weekend, lateNight := 0.0, 0.0, 0.0
	totalSpent, foodSpent, microSum := 0.0, 0.0, 0.0
	microCount := 0
	debtSeen := false
	byCategory := make(map[string]float64)
	amounts := make([]float64, len(rows))
	minTime, maxTime := rows[0].Time, rows[0].Time

	for i, r := range rows {
		essential += b2f(r.Essential)
		entertainment += b2f(r.Entertainment)
		investment += b2f(r.Investment)
		earlyMonth += b2f(r.EarlyMonth)
		weekend += b2f(r.Weekend)
		lateNight += b2f(r.LateNight)
		totalSpent += r.Amount
		byCategory[r.Category] += r.Amount
		amounts[i] = r.Amount

		lower := strings.ToLower(r.Category)
		if strings.Contains(lower, "food") || strings.Contains(lower, "eating") {
			foodSpent += r.Amount
		}
		if strings.Contains(lower, "debt") || strings.Contains(lower, "loan") {
			debtSeen = true
		}
		if r.Amount < popAvg*0.2 {
			microSum += r.Amount
			microCount++
		}
		if r.Time.Before(minTime) {
			minTime = r.Time
		}
		if r.Time.After(maxTime) {
			maxTime = r.Time
		}
	}
	essential /= n
	entertainment /= n
	investment /= n

	recs := []string{}
	add := func(s string) { recs = append(recs, s) }

	if essential > 0.7 {
		add("Essential costs dominate your budget. Look for cheaper recurring options for housing, utilities, and transport.")
	} else if essential < 0.3 {
		add("Few essential expenses are recorded. Make sure daily costs are tracked so the picture stays accurate.")
	}
	if entertainment > 0.35 {
		add("Entertainment spending takes a large share. Consider setting a monthly budget for it.")
	}
	if investment == 0 {
		add("No saving or investing detected. Even a small regular amount builds a buffer.")
	} else if investment < 0.05 {
		add("Saving and investing make up under 5% of your transactions. Try to raise that share gradually.")
	}
	if earlyMonth/n > 0.5 {
		add("Most spending happens right after the start of the month. Spreading it out helps the budget last.")
	}
	if weekend/n > 0.4 {
		add("Weekend spending is above normal. Planning weekend activities ahead keeps it in check.")
	}
	if lateNight/n > 0.15 {
		add("A notable share of purchases happens late at night; late-night spending is often impulsive.")
	}
	if totalSpent > 0 && foodSpent/totalSpent > 0.3 {
		add("Food-related spending exceeds 30% of the total. Meal planning can bring it down.")
	}
	if debtSeen {
		add("Debt-related payments detected. Prioritize clearing the most expensive debt first.")
	}
	if name, share := dominantCategory(byCategory, totalSpent); share > 0.45 {
		add(fmt.Sprintf("Almost half of your spending goes to '%s'. Check whether that matches your priorities.", name))
	}
	mean := stat.Mean(amounts, nil)
	if len(amounts) > 1 && mean > 0 {
		if stat.StdDev(amounts, nil)/mean > 1.5 {
			add("Your purchase amounts vary a lot. Irregular large purchases deserve a second look.")
		}
	}
	if float64(microCount)/n > 0.4 && microSum > 0 {
		days := maxTime.Sub(minTime).Hours()/24 + 1
		if days < 1 {
			days = 1
		}
		annualized := microSum / days * 365
		add(fmt.Sprintf("Small purchases add up: at this pace they cost about %.0f a year (the 'latte factor').", annualized))
	}

	if len(recs) == 0 {
		add("Your spending behavior looks balanced. Keep tracking it regularly.")
	}
	if len(recs) > 5 {
		recs = recs[:5]
	}
	return recs
}

func dominantCategory(byCategory map[string]float64, total float64) (string, float64) {
	if total <= 0 {
		return "", 0
	}
	best, bestAmt := "", 0.0
	for name, amt := range byCategory {
		if amt > bestAmt || (amt == bestAmt && name < best) {
			best, bestAmt = name, amt
		}
	}
	return best, bestAmt / total
}

func topCategoriesByCount(counts map[string]int, limit int) map[string]int {
	type kv struct {
		name  string
		count int
	}
	sorted := make([]kv, 0, len(counts))
	for name, c := range counts {
		sorted = append(sorted, kv{name, c})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].name < sorted[j].name
	})
	out := make(map[string]int)
	for i, e := range sorted {
		if i >= limit {
			break
		}
		out[e.name] = e.count
	}
	return out
}

func topCategoriesBySum(sums map[string]float64, limit int) map[string]float64 {
	type kv struct {
		name string
		sum  float64
	}
	sorted := make([]kv, 0, len(sums))
	for name, s := range sums {
		sorted = append(sorted, kv{name, s})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].sum != sorted[j].sum {
			return sorted[i].sum > sorted[j].sum
		}
		return sorted[i].name < sorted[j].name
	})
	out := make(map[string]float64)
	for i, e := range sorted {
		if i >= limit {
			break
		}
		out[e.name] = round0(e.sum)
	}
	return out
}

func topCategoryNames(counts map[string]int, limit int) []string {
	top := topCategoriesByCount(counts, limit)
	names := make([]string, 0, len(top))
	for name := range top {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func clamp[T int | float64](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round0(x float64) float64 { return math.Round(x) }

func round1(x float64) float64 { return math.Round(x*10) / 10 }
