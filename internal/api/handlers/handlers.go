package handlers

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/luxfinance/insight-engine/internal/analytics/anomaly"
	"github.com/luxfinance/insight-engine/internal/analytics/cluster"
	"github.com/luxfinance/insight-engine/internal/analytics/forecast"
	"github.com/luxfinance/insight-engine/internal/api/middleware"
	"github.com/luxfinance/insight-engine/internal/domain"
	"github.com/luxfinance/insight-engine/internal/metrics"
)

// Version is reported by the health and info endpoints.
const Version = "1.0.0"

// AnomalyDetector scores transactions for anomalies.
type AnomalyDetector interface {
	Detect(ctx context.Context, userID string, txs []domain.Transaction, sensitivity float64) (*anomaly.Result, error)
}

// BehaviorClusterer groups transactions into behavioral profiles.
type BehaviorClusterer interface {
	Cluster(ctx context.Context, userID string, txs []domain.Transaction, nClusters int) (*cluster.Result, error)
}

// TrendForecaster predicts daily income and expense.
type TrendForecaster interface {
	Predict(ctx context.Context, userID string, txs []domain.Transaction, days int) (*forecast.Result, error)
}

// AnalyticsHandler handles the analysis endpoints.
type AnalyticsHandler struct {
	anomaly  AnomalyDetector
	cluster  BehaviorClusterer
	forecast TrendForecaster
	metrics  metrics.Collector
	log      zerolog.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(a AnomalyDetector, c BehaviorClusterer, f TrendForecaster, m metrics.Collector, log zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		anomaly:  a,
		cluster:  c,
		forecast: f,
		metrics:  m,
		log:      log,
	}
}

// wireTransaction is the request shape of one transaction.
type wireTransaction struct {
	ID           string  `json:"id"`
	Amount       float64 `json:"amount"`
	CategoryCode int     `json:"categoryCode"`
	CategoryName string  `json:"categoryName"`
	Timestamp    string  `json:"timestamp"`
	Note         string  `json:"note"`
	ImageRef     string  `json:"imageRef"`
	Location     string  `json:"location"`
}

type analysisRequest struct {
	UserID         string            `json:"userId"`
	Transactions   []wireTransaction `json:"transactions"`
	Sensitivity    float64           `json:"sensitivity"`
	NClusters      int               `json:"nClusters"`
	PredictionDays int               `json:"predictionDays"`
}

// coerceTransactions converts wire rows to domain transactions. Rows with a
// missing ID or an unparseable timestamp are dropped, not fatal.
func (h *AnalyticsHandler) coerceTransactions(rows []wireTransaction) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		if r.ID == "" {
			dropped++
			continue
		}
		ts, ok := domain.ParseTimestamp(r.Timestamp)
		if !ok {
			dropped++
			continue
		}
		out = append(out, domain.Transaction{
			ID:           r.ID,
			Amount:       int64(math.Round(r.Amount)),
			CategoryCode: r.CategoryCode,
			CategoryName: r.CategoryName,
			Timestamp:    ts,
			Note:         r.Note,
			ImageRef:     r.ImageRef,
			Location:     r.Location,
		})
	}
	if dropped > 0 {
		h.log.Warn().Int("dropped", dropped).Int("kept", len(out)).Msg("Dropped malformed transaction rows")
	}
	return out
}

func (h *AnalyticsHandler) decode(w http.ResponseWriter, r *http.Request) (*analysisRequest, bool) {
	var req analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	if req.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "userId is required")
		return nil, false
	}
	return &req, true
}

// DetectAnomaly handles POST /api/v1/detect/anomaly
func (h *AnalyticsHandler) DetectAnomaly(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	sensitivity := req.Sensitivity
	if sensitivity == 0 {
		sensitivity = 0.1
	}
	sensitivity = clampFloat(sensitivity, 0.01, 0.5)

	start := time.Now()
	result, err := h.anomaly.Detect(r.Context(), req.UserID, h.coerceTransactions(req.Transactions), sensitivity)
	h.recordOutcome("anomaly", err == nil, start)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Anomaly detection failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Anomaly detection failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// ClusterBehavior handles POST /api/v1/cluster/behavior
func (h *AnalyticsHandler) ClusterBehavior(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	// Non-positive means unset; the engine derives k from data volume.
	nClusters := req.NClusters
	if nClusters <= 0 {
		nClusters = 0
	} else {
		nClusters = clampInt(nClusters, 2, 10)
	}

	start := time.Now()
	result, err := h.cluster.Cluster(r.Context(), req.UserID, h.coerceTransactions(req.Transactions), nClusters)
	h.recordOutcome("cluster", err == nil, start)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Behavior clustering failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Behavior clustering failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// PredictTrend handles POST /api/v1/predict/trend
func (h *AnalyticsHandler) PredictTrend(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	days := req.PredictionDays
	if days == 0 {
		days = 7
	}
	days = clampInt(days, 1, 30)

	start := time.Now()
	result, err := h.forecast.Predict(r.Context(), req.UserID, h.coerceTransactions(req.Transactions), days)
	h.recordOutcome("forecast", err == nil, start)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Trend forecast failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Trend forecast failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

func (h *AnalyticsHandler) recordOutcome(engine string, success bool, start time.Time) {
	if h.metrics != nil {
		h.metrics.RecordAnalysis(engine, success, time.Since(start))
	}
}

// SystemHandler handles health and discovery endpoints.
type SystemHandler struct {
	log zerolog.Logger
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(log zerolog.Logger) *SystemHandler {
	return &SystemHandler{log: log}
}

// Health handles GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"services": map[string]string{
			"anomaly_detection":   "active",
			"behavior_clustering": "active",
			"trend_prediction":    "active",
		},
	})
}

// Info handles GET /api/v1/info
func (h *SystemHandler) Info(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"service": "insight-engine",
		"version": Version,
		"engines": []map[string]string{
			{"name": "anomaly", "description": "Isolation-forest anomaly detection with rule overrides"},
			{"name": "cluster", "description": "Behavioral clustering with semantic spending profiles"},
			{"name": "forecast", "description": "Daily income and expense trend forecast"},
		},
	})
}

// Root handles GET /
func (h *SystemHandler) Root(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"name":    "insight-engine",
		"version": Version,
		"endpoints": map[string]string{
			"anomaly":  "POST /api/v1/detect/anomaly",
			"cluster":  "POST /api/v1/cluster/behavior",
			"forecast": "POST /api/v1/predict/trend",
			"health":   "GET /health",
			"info":     "GET /api/v1/info",
			"metrics":  "GET /metrics",
		},
	})
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
