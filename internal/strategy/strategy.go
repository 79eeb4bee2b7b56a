// Package strategy
package strategy

import (
	"errors"
	"fmt"

	"github.com/amirphl/eps-trader/internal/series"
	"github.com/amirphl/eps-trader/internal/strategy/signal"
	"github.com/rs/zerolog"
)

var (
	ErrInsufficientData  = errors.New("not enough trading days for a look-ahead window")
	ErrInvalidThresholds = errors.New("invalid thresholds")
)

// Strategy turns an enriched daily table into an ordered signal log.
type Strategy interface {
	Name() string
	Signals(t *series.Table) ([]signal.Signal, error)
}

// New returns the strategy registered under name.
func New(name string, th Thresholds, logger *zerolog.Logger) (Strategy, error) {
	switch name {
	case "", EPSMomentumName, "eps-momentum":
		return NewEPSMomentum(th, logger), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
