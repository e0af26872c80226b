package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/internal/httpclient"
	"github.com/teranos/gridpulse/internal/util"
	"github.com/teranos/gridpulse/logger"
	"github.com/teranos/gridpulse/pulse/tier"
)

const (
	// DefaultCKWURL is the public CKW dynamic-price endpoint.
	DefaultCKWURL = "https://e-ckw-public-data.de-c1.eu1.cloudhub.io/api/v1/netzinformationen/energie/dynamische-preise"
	// DefaultTariffType selects the grid usage component of the tariff.
	DefaultTariffType = "grid_usage"
	// DefaultTariffName is the household dynamic tariff.
	DefaultTariffName = "home_dynamic"

	DefaultTimeout           = 30 * time.Second
	DefaultBreakerFailures   = 3
	DefaultBreakerCooldown   = 5 * time.Minute
	DefaultRequestsPerMinute = 30

	// maxRedirects bounds redirects from the CKW gateway.
	maxRedirects = 3

	// maxResponseBytes bounds the body of a single day's forecast.
	maxResponseBytes = 4 << 20

	ckwTimestampLayout = "2006-01-02T15:04:05-07:00"
)

// Config holds CKW client settings. Zero values take the defaults above.
type Config struct {
	BaseURL           string
	TariffType        string
	TariffName        string
	Timeout           time.Duration
	RequestsPerMinute float64 // <= 0 disables rate limiting
	BreakerFailures   uint32
	BreakerCooldown   time.Duration
	Location          *time.Location
	HTTPClient        *httpclient.SaferClient // nil = SSRF-protected client with Timeout
	Logger            *zap.SugaredLogger
}

// CKWClient fetches grid usage prices from the CKW public data API.
type CKWClient struct {
	baseURL    string
	tariffType string
	tariffName string
	loc        *time.Location
	httpClient *httpclient.SaferClient
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	logger     *zap.SugaredLogger
}

// NewCKWClient creates a CKW client guarded by a circuit breaker and a rate limiter.
func NewCKWClient(cfg Config) *CKWClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCKWURL
	}
	if cfg.TariffType == "" {
		cfg.TariffType = DefaultTariffType
	}
	if cfg.TariffName == "" {
		cfg.TariffName = DefaultTariffName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = DefaultBreakerCooldown
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.NewSaferClientWithOptions(cfg.Timeout, httpclient.SaferClientOptions{
			MaxRedirects: util.Ptr(maxRedirects),
		})
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(cfg.RequestsPerMinute / 60.0)
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ckw-forecast",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return &CKWClient{
		baseURL:    cfg.BaseURL,
		tariffType: cfg.TariffType,
		tariffName: cfg.TariffName,
		loc:        cfg.Location,
		httpClient: cfg.HTTPClient,
		breaker:    breaker,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     log,
	}
}

// ckwResponse mirrors the parts of the CKW payload gridpulse reads.
type ckwResponse struct {
	Prices []ckwPrice `json:"prices"`
}

type ckwPrice struct {
	StartTimestamp string     `json:"start_timestamp"`
	EndTimestamp   string     `json:"end_timestamp"`
	GridUsage      []ckwValue `json:"grid_usage"`
}

type ckwValue struct {
	Unit  string   `json:"unit"`
	Value *float64 `json:"value"`
}

// Fetch downloads the forecast for date's calendar day (00:00:00 to 23:59:59
// local time) and converts CHF/kWh to Rp/kWh. Records without a timestamp or
// value are skipped.
func (c *CKWClient) Fetch(ctx context.Context, date time.Time) ([]tier.RawPrice, error) {
	day := date.In(c.loc)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, c.loc)
	end := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, c.loc)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter wait cancelled")
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.download(ctx, start, end)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errors.WithHint(
				errors.Wrap(errors.ErrServiceUnavailable, err.Error()),
				"the forecast API failed repeatedly; gridpulse will retry after the breaker cooldown")
		}
		return nil, err
	}

	resp := result.(*ckwResponse)
	prices, skipped := c.convert(resp)
	if skipped > 0 {
		c.logger.Debugw("Skipped malformed forecast records",
			logger.FieldDate, start.Format("2006-01-02"),
			logger.FieldCount, skipped)
	}
	if len(prices) == 0 {
		return nil, errors.Wrapf(ErrNoPrices, "for %s", start.Format("2006-01-02"))
	}
	return prices, nil
}

func (c *CKWClient) download(ctx context.Context, start, end time.Time) (*ckwResponse, error) {
	u, err := c.httpClient.ValidateURL(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid forecast URL")
	}
	q := u.Query()
	q.Set("tariff_type", c.tariffType)
	q.Set("tariff_name", c.tariffName)
	q.Set("start_timestamp", start.Format(ckwTimestampLayout))
	q.Set("end_timestamp", end.Format(ckwTimestampLayout))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create forecast request")
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Infow("Fetching forecast", logger.FieldDate, start.Format("2006-01-02"))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "forecast request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read forecast response")
	}
	if resp.StatusCode != http.StatusOK {
		err := errors.Newf("forecast API returned status %d", resp.StatusCode)
		return nil, errors.WithDetail(err, fmt.Sprintf("body: %.200s", body))
	}

	var payload ckwResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode forecast response")
	}
	return &payload, nil
}

func (c *CKWClient) convert(resp *ckwResponse) ([]tier.RawPrice, int) {
	prices := make([]tier.RawPrice, 0, len(resp.Prices))
	skipped := 0
	for _, item := range resp.Prices {
		if item.StartTimestamp == "" || len(item.GridUsage) == 0 || item.GridUsage[0].Value == nil {
			skipped++
			continue
		}
		start, err := time.Parse(time.RFC3339, item.StartTimestamp)
		if err != nil {
			skipped++
			continue
		}
		prices = append(prices, tier.RawPrice{
			Start: start.In(c.loc),
			Price: roundRp(*item.GridUsage[0].Value * 100),
		})
	}
	return prices, skipped
}

// roundRp rounds a Rp value to four decimals.
func roundRp(v float64) float64 {
	return math.Round(v*10000) / 10000
}
