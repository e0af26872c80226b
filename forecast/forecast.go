// Package forecast downloads day-ahead price forecasts for the planner.
package forecast

import (
	"context"
	"time"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/pulse/tier"
)

// ErrNoPrices is returned when a forecast response carries no usable records.
var ErrNoPrices = errors.New("forecast contains no prices")

// Provider fetches the raw price forecast for one calendar day.
type Provider interface {
	Fetch(ctx context.Context, date time.Time) ([]tier.RawPrice, error)
}
