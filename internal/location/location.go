// Package location resolves where a report was made. It never fails: when the
// platform cannot supply a valid position, a fixed downtown fallback is used.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/s2"

	"github.com/civictrack/civictrack-backend/internal/report"
	"github.com/civictrack/civictrack-backend/pkg/logger"
)

// Fallback is returned whenever no valid position is available
var Fallback = report.Location{
	Lat:     40.7128,
	Lng:     -74.0060,
	Address: "Main St & 5th Ave, Downtown",
}

// ErrUnavailable is returned by providers that cannot locate the device
var ErrUnavailable = errors.New("location: position unavailable")

// Provider is a platform location service
type Provider interface {
	CurrentPosition(ctx context.Context) (lat, lng float64, err error)
}

// Coordinates is a Provider for a position the client already knows
type Coordinates struct {
	Lat float64
	Lng float64
}

func (c Coordinates) CurrentPosition(context.Context) (float64, float64, error) {
	return c.Lat, c.Lng, nil
}

// Unavailable is a Provider that always fails
type Unavailable struct{}

func (Unavailable) CurrentPosition(context.Context) (float64, float64, error) {
	return 0, 0, ErrUnavailable
}

// Resolver turns provider output into a report.Location
type Resolver struct {
	provider Provider
	timeout  time.Duration
	log      *logger.Logger
}

// NewResolver creates a resolver. A nil provider means the platform has no
// location service.
func NewResolver(provider Provider, timeout time.Duration, log *logger.Logger) *Resolver {
	if provider == nil {
		provider = Unavailable{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{provider: provider, timeout: timeout, log: log.WithComponent("location")}
}

// Current asks the configured platform provider
func (r *Resolver) Current(ctx context.Context) report.Location {
	return r.Resolve(ctx, r.provider)
}

// Resolve asks p for a position. Errors, timeouts and out-of-range
// coordinates all yield Fallback.
func (r *Resolver) Resolve(ctx context.Context, p Provider) report.Location {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type result struct {
		lat, lng float64
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		lat, lng, err := p.CurrentPosition(ctx)
		ch <- result{lat, lng, err}
	}()

	select {
	case <-ctx.Done():
		r.log.Warn().Err(ctx.Err()).Msg("location lookup timed out, using fallback")
		return Fallback
	case res := <-ch:
		if res.err != nil {
			r.log.Debug().Err(res.err).Msg("location unavailable, using fallback")
			return Fallback
		}
		loc, ok := FromCoordinates(res.lat, res.lng)
		if !ok {
			r.log.Warn().Float64("lat", res.lat).Float64("lng", res.lng).Msg("invalid coordinates, using fallback")
		}
		return loc
	}
}

// FromCoordinates validates a raw position and labels it. No reverse
// geocoding happens; the label embeds the rounded coordinates.
func FromCoordinates(lat, lng float64) (report.Location, bool) {
	ll := s2.LatLngFromDegrees(lat, lng)
	if !ll.IsValid() {
		return Fallback, false
	}
	return report.Location{
		Lat:     lat,
		Lng:     lng,
		Address: Label(lat, lng),
	}, true
}

// Label renders the placeholder address for a position
func Label(lat, lng float64) string {
	return fmt.Sprintf("%.4f, %.4f (Main St & 5th Ave)", lat, lng)
}

// CellToken returns the level-13 S2 cell containing the position, roughly a
// city block. Reports with the same token were made close together.
func CellToken(loc report.Location) string {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(loc.Lat, loc.Lng)).Parent(13).ToToken()
}
