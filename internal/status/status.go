// Package status builds the spoken parts of a status announcement from
// battery and network providers.
package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// ErrNoBattery is returned by battery providers on machines without one.
var ErrNoBattery = errors.New("no battery present")

// Battery is a battery reading.
type Battery struct {
	Percent  int
	Charging bool
}

// Network is a network reading.
type Network struct {
	Connected bool
	Interface string
}

// BatteryProvider reports the battery charge.
type BatteryProvider interface {
	Battery(ctx context.Context) (Battery, error)
}

// NetworkProvider reports connectivity.
type NetworkProvider interface {
	Network(ctx context.Context) (Network, error)
}

// Reporter produces announcement parts, battery first, then network. A
// provider that fails still yields a part so announcements keep a fixed
// shape.
type Reporter struct {
	battery BatteryProvider
	network NetworkProvider
	timeout time.Duration
	logger  *log.Logger
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLogger sets the reporter's logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Reporter) { r.logger = l }
}

// WithTimeout bounds each provider query. Defaults to 2s.
func WithTimeout(d time.Duration) Option {
	return func(r *Reporter) { r.timeout = d }
}

// NewReporter creates a reporter. A nil provider omits its part.
func NewReporter(battery BatteryProvider, network NetworkProvider, opts ...Option) *Reporter {
	r := &Reporter{
		battery: battery,
		network: network,
		timeout: 2 * time.Second,
		logger:  log.Default().With("component", "status"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Parts returns the announcement text, one entry per provider.
func (r *Reporter) Parts(ctx context.Context) []string {
	var parts []string
	if r.battery != nil {
		parts = append(parts, r.batteryPart(ctx))
	}
	if r.network != nil {
		parts = append(parts, r.networkPart(ctx))
	}
	return parts
}

func (r *Reporter) batteryPart(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	b, err := r.battery.Battery(ctx)
	switch {
	case errors.Is(err, ErrNoBattery):
		return "No battery present"
	case err != nil:
		r.logger.Warn("battery query failed", "err", err)
		return "Battery status unavailable"
	case b.Charging:
		return fmt.Sprintf("Battery at %d percent and charging", b.Percent)
	default:
		return fmt.Sprintf("Battery at %d percent", b.Percent)
	}
}

func (r *Reporter) networkPart(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.network.Network(ctx)
	switch {
	case err != nil:
		r.logger.Warn("network query failed", "err", err)
		return "Network status unavailable"
	case !n.Connected:
		return "Network disconnected"
	case n.Interface != "":
		return "Network connected over " + n.Interface
	default:
		return "Network connected"
	}
}
