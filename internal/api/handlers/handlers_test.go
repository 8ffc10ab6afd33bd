package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/luxfinance/insight-engine/internal/analytics/anomaly"
	"github.com/luxfinance/insight-engine/internal/analytics/cluster"
	"github.com/luxfinance/insight-engine/internal/analytics/forecast"
	"github.com/luxfinance/insight-engine/internal/domain"
	"github.com/luxfinance/insight-engine/internal/metrics"
)

type fakeAnomaly struct {
	gotUserID      string
	gotTxs         []domain.Transaction
	gotSensitivity float64
	err            error
}

func (f *fakeAnomaly) Detect(ctx context.Context, userID string, txs []domain.Transaction, sensitivity float64) (*anomaly.Result, error) {
	f.gotUserID, f.gotTxs, f.gotSensitivity = userID, txs, sensitivity
	if f.err != nil {
		return nil, f.err
	}
	return &anomaly.Result{Success: true, UserID: userID, Message: "Analysis completed"}, nil
}

type fakeCluster struct {
	gotN int
}

func (f *fakeCluster) Cluster(ctx context.Context, userID string, txs []domain.Transaction, nClusters int) (*cluster.Result, error) {
	f.gotN = nClusters
	return &cluster.Result{Success: true, UserID: userID}, nil
}

type fakeForecast struct {
	gotDays int
}

func (f *fakeForecast) Predict(ctx context.Context, userID string, txs []domain.Transaction, days int) (*forecast.Result, error) {
	f.gotDays = days
	return &forecast.Result{Success: true, UserID: userID}, nil
}

func newTestHandler(a AnomalyDetector, c BehaviorClusterer, f TrendForecaster) *AnalyticsHandler {
	return NewAnalyticsHandler(a, c, f, metrics.NoOp{}, zerolog.Nop())
}

func post(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestDetectAnomaly_RequiresUserID(t *testing.T) {
	h := newTestHandler(&fakeAnomaly{}, &fakeCluster{}, &fakeForecast{})

	rec := post(t, h.DetectAnomaly, `{"transactions": []}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if body["error"] == "" {
		t.Error("expected an error message")
	}
}

func TestDetectAnomaly_RejectsInvalidJSON(t *testing.T) {
	h := newTestHandler(&fakeAnomaly{}, &fakeCluster{}, &fakeForecast{})

	rec := post(t, h.DetectAnomaly, `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDetectAnomaly_CoercionAndDispatch(t *testing.T) {
	fake := &fakeAnomaly{}
	h := newTestHandler(fake, &fakeCluster{}, &fakeForecast{})

	body := `{
		"userId": "u1",
		"sensitivity": 0.9,
		"transactions": [
			{"id": "a", "amount": -5000, "categoryCode": 0, "timestamp": "2024-03-15T12:00:00"},
			{"id": "", "amount": -1000, "categoryCode": 0, "timestamp": "2024-03-15T12:00:00"},
			{"id": "b", "amount": -2000, "categoryCode": 1, "timestamp": "not a date"}
		]
	}`
	rec := post(t, h.DetectAnomaly, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}

	if fake.gotUserID != "u1" {
		t.Errorf("userID = %q, want u1", fake.gotUserID)
	}
	if fake.gotSensitivity != 0.5 {
		t.Errorf("sensitivity = %v, want clamped 0.5", fake.gotSensitivity)
	}
	if len(fake.gotTxs) != 1 {
		t.Fatalf("engine received %d transactions, want 1 (malformed rows dropped)", len(fake.gotTxs))
	}
	if fake.gotTxs[0].ID != "a" || fake.gotTxs[0].Amount != -5000 {
		t.Errorf("unexpected transaction: %+v", fake.gotTxs[0])
	}
}

func TestDetectAnomaly_DefaultSensitivity(t *testing.T) {
	fake := &fakeAnomaly{}
	h := newTestHandler(fake, &fakeCluster{}, &fakeForecast{})

	post(t, h.DetectAnomaly, `{"userId": "u1", "transactions": []}`)
	if fake.gotSensitivity != 0.1 {
		t.Errorf("sensitivity = %v, want default 0.1", fake.gotSensitivity)
	}
}

func TestDetectAnomaly_EngineErrorBecomes500(t *testing.T) {
	fake := &fakeAnomaly{err: errors.New("model blew up")}
	h := newTestHandler(fake, &fakeCluster{}, &fakeForecast{})

	rec := post(t, h.DetectAnomaly, `{"userId": "u1", "transactions": []}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if !strings.Contains(body["error"], "failed") {
		t.Errorf("error = %q, want a failure message", body["error"])
	}
}

func TestClusterBehavior_ClampsClusterCount(t *testing.T) {
	fake := &fakeCluster{}
	h := newTestHandler(&fakeAnomaly{}, fake, &fakeForecast{})

	post(t, h.ClusterBehavior, `{"userId": "u1", "nClusters": 50, "transactions": []}`)
	if fake.gotN != 10 {
		t.Errorf("nClusters = %d, want clamped 10", fake.gotN)
	}

	// Zero means let the engine derive k.
	post(t, h.ClusterBehavior, `{"userId": "u1", "transactions": []}`)
	if fake.gotN != 0 {
		t.Errorf("nClusters = %d, want 0 passthrough", fake.gotN)
	}

	// Negative counts as unset, not as a request for the minimum k.
	post(t, h.ClusterBehavior, `{"userId": "u1", "nClusters": -3, "transactions": []}`)
	if fake.gotN != 0 {
		t.Errorf("nClusters = %d, want 0 for negative input", fake.gotN)
	}
}

func TestPredictTrend_ClampsDays(t *testing.T) {
	fake := &fakeForecast{}
	h := newTestHandler(&fakeAnomaly{}, &fakeCluster{}, fake)

	post(t, h.PredictTrend, `{"userId": "u1", "predictionDays": 90, "transactions": []}`)
	if fake.gotDays != 30 {
		t.Errorf("days = %d, want clamped 30", fake.gotDays)
	}

	post(t, h.PredictTrend, `{"userId": "u1", "transactions": []}`)
	if fake.gotDays != 7 {
		t.Errorf("days = %d, want default 7", fake.gotDays)
	}
}

func TestSystemHandler(t *testing.T) {
	h := NewSystemHandler(zerolog.Nop())

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("invalid body: %v", err)
		}
		if body["status"] != "healthy" {
			t.Errorf("status = %v, want healthy", body["status"])
		}
	})

	t.Run("info", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Info(rec, httptest.NewRequest(http.MethodGet, "/api/v1/info", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "anomaly") {
			t.Error("info response missing engine catalog")
		}
	})

	t.Run("root", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Root(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "/api/v1/detect/anomaly") {
			t.Error("root response missing endpoint map")
		}
	})
}
