package forecast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/internal/httpclient"
)

var zurich = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		return time.FixedZone("CET", 3600)
	}
	return loc
}()

func newTestClient(t *testing.T, handler http.HandlerFunc, failures uint32) (*CKWClient, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := NewCKWClient(Config{
		BaseURL:         server.URL + "/dynamische-preise",
		Location:        zurich,
		BreakerFailures: failures,
		HTTPClient:      httpclient.WrapClient(server.Client()),
	})
	return client, &hits
}

func TestFetchConvertsPrices(t *testing.T) {
	var query map[string]string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = map[string]string{
			"tariff_type":     r.URL.Query().Get("tariff_type"),
			"tariff_name":     r.URL.Query().Get("tariff_name"),
			"start_timestamp": r.URL.Query().Get("start_timestamp"),
			"end_timestamp":   r.URL.Query().Get("end_timestamp"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"prices":[
			{"start_timestamp":"2025-03-12T00:00:00+01:00","grid_usage":[{"unit":"CHF/kWh","value":0.0523456}]},
			{"start_timestamp":"2025-03-12T00:15:00+01:00","grid_usage":[{"unit":"CHF/kWh","value":0.071}]}
		]}`))
	}, 0)

	prices, err := client.Fetch(context.Background(), time.Date(2025, 3, 12, 14, 0, 0, 0, zurich))
	require.NoError(t, err)
	require.Len(t, prices, 2)

	assert.Equal(t, "grid_usage", query["tariff_type"])
	assert.Equal(t, "home_dynamic", query["tariff_name"])
	assert.Equal(t, "2025-03-12T00:00:00+01:00", query["start_timestamp"])
	assert.Equal(t, "2025-03-12T23:59:59+01:00", query["end_timestamp"])

	assert.InDelta(t, 5.2346, prices[0].Price, 1e-9)
	assert.InDelta(t, 7.1, prices[1].Price, 1e-9)
	assert.True(t, prices[0].Start.Equal(time.Date(2025, 3, 12, 0, 0, 0, 0, zurich)))
	assert.Equal(t, 15*time.Minute, prices[1].Start.Sub(prices[0].Start))
}

func TestFetchSkipsMalformedRecords(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prices":[
			{"start_timestamp":"2025-03-12T00:00:00+01:00","grid_usage":[]},
			{"grid_usage":[{"value":0.05}]},
			{"start_timestamp":"not a time","grid_usage":[{"value":0.05}]},
			{"start_timestamp":"2025-03-12T00:45:00+01:00","grid_usage":[{"value":null}]},
			{"start_timestamp":"2025-03-12T01:00:00+01:00","grid_usage":[{"value":0.04}]}
		]}`))
	}, 0)

	prices, err := client.Fetch(context.Background(), time.Date(2025, 3, 12, 0, 0, 0, 0, zurich))
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.InDelta(t, 4.0, prices[0].Price, 1e-9)
}

func TestFetchEmptyForecast(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prices":[]}`))
	}, 0)

	_, err := client.Fetch(context.Background(), time.Date(2025, 3, 12, 0, 0, 0, 0, zurich))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoPrices))
}

func TestFetchHTTPError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}, 0)

	_, err := client.Fetch(context.Background(), time.Date(2025, 3, 12, 0, 0, 0, 0, zurich))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestFetchInvalidJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prices":`))
	}, 0)

	_, err := client.Fetch(context.Background(), time.Date(2025, 3, 12, 0, 0, 0, 0, zurich))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, 2)
	day := time.Date(2025, 3, 12, 0, 0, 0, 0, zurich)

	for i := 0; i < 2; i++ {
		_, err := client.Fetch(context.Background(), day)
		require.Error(t, err)
		assert.False(t, errors.IsServiceUnavailableError(err))
	}

	// given two consecutive failures, the third call never reaches the server
	_, err := client.Fetch(context.Background(), day)
	require.Error(t, err)
	assert.True(t, errors.IsServiceUnavailableError(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestFetchHonoursCancelledContext(t *testing.T) {
	client, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prices":[]}`))
	}, 0)
	client.limiter.SetLimit(0.001)
	client.limiter.SetBurst(1)
	// drain the single token
	require.True(t, client.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Fetch(ctx, time.Date(2025, 3, 12, 0, 0, 0, 0, zurich))
	require.Error(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestDefaults(t *testing.T) {
	c := NewCKWClient(Config{})
	assert.Equal(t, DefaultCKWURL, c.baseURL)
	assert.Equal(t, DefaultTariffType, c.tariffType)
	assert.Equal(t, DefaultTariffName, c.tariffName)
	assert.NotNil(t, c.httpClient)
}
