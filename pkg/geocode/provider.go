package geocode

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Provider is a single-address geocoding backend.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)
}

// Cascade tries providers in order until one returns a match.
type Cascade struct {
	providers []Provider
}

// NewCascade creates a Cascade over the given providers. Nil providers are skipped.
func NewCascade(providers ...Provider) *Cascade {
	c := &Cascade{}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

// Name implements Provider.
func (c *Cascade) Name() string { return "cascade" }

// Geocode implements Provider. A provider error moves on to the next one; the
// error is returned only when no provider produced an answer at all, so the
// caller can tell "no match" apart from "geocoder unavailable".
func (c *Cascade) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	if len(c.providers) == 0 {
		return nil, eris.New("geocode: cascade has no providers")
	}

	var lastErr error
	answered := false
	for _, p := range c.providers {
		result, err := p.Geocode(ctx, addr)
		if err != nil {
			zap.L().Debug("cascade: provider error, trying next",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		answered = true
		if result != nil && result.Matched {
			return result, nil
		}
	}

	if !answered {
		return nil, eris.Wrap(lastErr, "geocode: all providers failed")
	}
	return &Result{Matched: false, Source: c.Name()}, nil
}
