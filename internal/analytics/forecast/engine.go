package forecast

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/luxfinance/insight-engine/internal/analytics"
	"github.com/luxfinance/insight-engine/internal/domain"
)

const (
	// fallbackSeed drives the sparse-history noise projection; fixed so the
	// forecast is reproducible.
	fallbackSeed = 42

	// Series below this daily mean on both windows count as economically
	// negligible for the trend narrative.
	activityFloor = 1000.0

	trendWindow    = 14
	trendThreshold = 0.15

	sparseConfidence = 0.3
	holtConfidence   = 0.4
)

// Point is one forecast day.
type Point struct {
	Date             string  `json:"date"`
	PredictedIncome  float64 `json:"predictedIncome"`
	PredictedExpense float64 `json:"predictedExpense"`
	Confidence       float64 `json:"confidence"`
	Description      string  `json:"description,omitempty"`
}

// Trend is the narrative block of the summary.
type Trend struct {
	IncomeTrend    string `json:"incomeTrend"`
	ExpenseTrend   string `json:"expenseTrend"`
	Recommendation string `json:"recommendation"`
}

// Summary aggregates the forecast. All fields are always present.
type Summary struct {
	PredictionPeriod      string  `json:"predictionPeriod"`
	TotalPredictedIncome  float64 `json:"totalPredictedIncome"`
	TotalPredictedExpense float64 `json:"totalPredictedExpense"`
	PredictedBalance      float64 `json:"predictedBalance"`
	AverageDailyIncome    float64 `json:"averageDailyIncome"`
	AverageDailyExpense   float64 `json:"averageDailyExpense"`
	Trend                 Trend   `json:"trend"`
	DataPointsUsed        int     `json:"dataPointsUsed"`
	ModelConfidence       float64 `json:"modelConfidence"`
	Note                  string  `json:"note,omitempty"`
}

// Result is the forecast response.
type Result struct {
	Success     bool    `json:"success"`
	UserID      string  `json:"userId"`
	Predictions []Point `json:"predictions"`
	Summary     Summary `json:"summary"`
	Message     string  `json:"message"`
}

// Config tunes the engine.
type Config struct {
	// Lookback is the sliding-window length for the sequence model.
	Lookback int
}

// Engine forecasts daily income and expense. Configuration only; scalers and
// the sequence model are constructed inside each call.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// New creates a forecast engine.
func New(cfg Config, log zerolog.Logger) *Engine {
	if cfg.Lookback < 2 {
		cfg.Lookback = 7
	}
	return &Engine{cfg: cfg, log: log}
}

// Predict forecasts the requested number of days beyond the last observed
// date. Income and expense are modeled independently; a training failure on
// either series falls back to the statistical path instead of surfacing.
func (e *Engine) Predict(ctx context.Context, userID string, txs []domain.Transaction, days int) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, analytics.Internal("trend forecast: %v", r)
		}
	}()

	daily := aggregateDaily(txs)

	if len(daily) == 0 {
		return &Result{
			Success:     false,
			UserID:      userID,
			Predictions: []Point{},
			Summary: Summary{
				PredictionPeriod: fmt.Sprintf("%d days", days),
				Trend:            insufficientTrend("No transaction data available."),
				Note:             "no data",
			},
			Message: "No transaction data",
		}, nil
	}

	income := incomeSeries(daily)
	expense := expenseSeries(daily)

	if len(daily) < 3 {
		return e.simpleForecast(userID, daily, days), nil
	}

	incomePred, incomeConf := e.trainAndPredict(ctx, income, days)
	expensePred, expenseConf := e.trainAndPredict(ctx, expense, days)
	confidence := round2((incomeConf + expenseConf) / 2)

	lastDate := daily[len(daily)-1].Date
	points := make([]Point, days)
	for i := 0; i < days; i++ {
		points[i] = Point{
			Date:             lastDate.AddDays(i + 1).String(),
			PredictedIncome:  math.Round(incomePred[i]),
			PredictedExpense: math.Round(expensePred[i]),
			Confidence:       confidence,
		}
	}

	totalIncome, totalExpense := math.Round(sum(incomePred)), math.Round(sum(expensePred))
	trend := Trend{
		IncomeTrend:    trendLabel(income, incomePred),
		ExpenseTrend:   trendLabel(expense, expensePred),
		Recommendation: balanceRecommendation(totalIncome, totalExpense),
	}

	e.log.Debug().
		Str("user_id", userID).
		Int("days_observed", len(daily)).
		Int("horizon", days).
		Float64("confidence", confidence).
		Msg("trend forecast completed")

	return &Result{
		Success:     true,
		UserID:      userID,
		Predictions: points,
		Summary: Summary{
			PredictionPeriod:      fmt.Sprintf("%d days", days),
			TotalPredictedIncome:  totalIncome,
			TotalPredictedExpense: totalExpense,
			PredictedBalance:      totalIncome - totalExpense,
			AverageDailyIncome:    math.Round(tailMean(income, 30)),
			AverageDailyExpense:   math.Round(tailMean(expense, 30)),
			Trend:                 trend,
			DataPointsUsed:        len(daily),
			ModelConfidence:       confidence,
		},
		Message: "Forecast completed",
	}, nil
}

// simpleForecast projects the historical daily averages with deterministic
// noise when fewer than three days of history exist.
func (e *Engine) simpleForecast(userID string, daily []dailyPoint, days int) *Result {
	income := incomeSeries(daily)
	expense := expenseSeries(daily)

	rng := rand.New(rand.NewSource(fallbackSeed))
	incomePred := noisyAverageForecast(income, days, rng)
	expensePred := noisyAverageForecast(expense, days, rng)

	lastDate := daily[len(daily)-1].Date
	points := make([]Point, days)
	for i := 0; i < days; i++ {
		points[i] = Point{
			Date:             lastDate.AddDays(i + 1).String(),
			PredictedIncome:  math.Round(incomePred[i]),
			PredictedExpense: math.Round(expensePred[i]),
			Confidence:       sparseConfidence,
		}
	}

	avgIncome, avgExpense := stat.Mean(income, nil), stat.Mean(expense, nil)
	totalIncome := math.Round(avgIncome * float64(days))
	totalExpense := math.Round(avgExpense * float64(days))
	return &Result{
		Success:     true,
		UserID:      userID,
		Predictions: points,
		Summary: Summary{
			PredictionPeriod:      fmt.Sprintf("%d days", days),
			TotalPredictedIncome:  totalIncome,
			TotalPredictedExpense: totalExpense,
			PredictedBalance:      totalIncome - totalExpense,
			AverageDailyIncome:    math.Round(avgIncome),
			AverageDailyExpense:   math.Round(avgExpense),
			Trend: insufficientTrend(fmt.Sprintf(
				"More days of history are needed for an accurate forecast; currently %d days recorded.", len(daily))),
			DataPointsUsed:  len(daily),
			ModelConfidence: sparseConfidence,
			Note:            "simple average-based projection",
		},
		Message: "Simple forecast (more data needed for the sequence model)",
	}
}

// trainAndPredict runs the model-selection state machine for one series:
// sparse histories use the damped-trend smoother, dense ones train the
// recurrent network. Any failure or degenerate output on the dense path
// falls back to the smoother.
func (e *Engine) trainAndPredict(ctx context.Context, series []float64, horizon int) (preds []float64, confidence float64) {
	lookback := e.cfg.Lookback
	if len(series) < lookback+5 {
		return holtForecast(series, horizon), holtConfidence
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Warn().Interface("panic", r).Msg("sequence model failed, using statistical fallback")
			preds, confidence = holtForecast(series, horizon), holtConfidence
		}
	}()

	lo, hi := minMax(series)
	if hi-lo < 1e-9 {
		return holtForecast(series, horizon), holtConfidence
	}
	scaled := make([]float64, len(series))
	for i, v := range series {
		scaled[i] = (v - lo) / (hi - lo)
	}

	windows, targets := slidingWindows(scaled, lookback)
	if len(windows) < 5 {
		return holtForecast(series, horizon), sparseConfidence
	}

	rng := rand.New(rand.NewSource(rnnSeed))
	net := newRNN(rnnHidden, rng)
	net.train(windows, targets, rng)

	window := append([]float64(nil), scaled[len(scaled)-lookback:]...)
	out := make([]float64, horizon)
	for i := 0; i < horizon; i++ {
		if err := ctx.Err(); err != nil {
			return holtForecast(series, horizon), holtConfidence
		}
		p := net.predict(window)
		out[i] = p
		window = append(window[1:], p)
	}

	for i, p := range out {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return holtForecast(series, horizon), holtConfidence
		}
		out[i] = math.Max(0, p*(hi-lo)+lo)
	}

	confidence = math.Min(0.9, 0.5+float64(len(series))/200)
	return out, confidence
}

// trendLabel classifies the recent direction of a series and, when the
// forecast agrees, appends a confirmation clause.
func trendLabel(series, forecast []float64) string {
	if len(series) < 2*trendWindow {
		return "insufficient data"
	}
	recent := stat.Mean(series[len(series)-trendWindow:], nil)
	prior := stat.Mean(series[len(series)-2*trendWindow:len(series)-trendWindow], nil)

	if recent < activityFloor && prior < activityFloor {
		return "no significant activity"
	}

	label := "stable"
	switch {
	case prior == 0 && recent > 0:
		label = "increasing"
	case prior > 0 && (recent-prior)/prior > trendThreshold:
		label = "increasing"
	case prior > 0 && (recent-prior)/prior < -trendThreshold:
		label = "decreasing"
	}

	if len(forecast) > 0 {
		n := len(forecast)
		if n > 7 {
			n = 7
		}
		fMean := stat.Mean(forecast[:n], nil)
		if label == "increasing" && fMean > recent*1.05 {
			label += ", confirmed by the forecast"
		} else if label == "decreasing" && fMean < recent*0.95 {
			label += ", confirmed by the forecast"
		}
	}
	return label
}

// balanceRecommendation derives one recommendation from the net projected
// balance.
func balanceRecommendation(totalIncome, totalExpense float64) string {
	balance := totalIncome - totalExpense
	switch {
	case totalIncome == 0 && totalExpense > 0:
		return "Spending is projected with no income. Make sure income is being recorded, and watch the balance."
	case balance < 0 && totalIncome > 0 && -balance > 0.5*totalIncome:
		return "Urgent: projected spending exceeds income by more than 50%. Cut back on non-essential expenses."
	case balance > 0 && totalIncome > 0 && balance/totalIncome > 0.3:
		return "Healthy outlook: you are projected to save over 30% of income. Keep it up."
	default:
		return "Income and spending are projected to be roughly in balance. Keep monitoring."
	}
}

func insufficientTrend(recommendation string) Trend {
	return Trend{
		IncomeTrend:    "insufficient data",
		ExpenseTrend:   "insufficient data",
		Recommendation: recommendation,
	}
}

func tailMean(series []float64, n int) float64 {
	if len(series) > n {
		series = series[len(series)-n:]
	}
	return stat.Mean(series, nil)
}

func minMax(series []float64) (lo, hi float64) {
	lo, hi = series[0], series[0]
	for _, v := range series {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func sum(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
