package strategy

import (
	"fmt"

	"github.com/amirphl/eps-trader/internal/series"
	"github.com/amirphl/eps-trader/internal/strategy/position"
	"github.com/amirphl/eps-trader/internal/strategy/signal"
	"github.com/rs/zerolog"
)

const EPSMomentumName = "EPS Momentum"

// EPSMomentum enters after an earnings surprise confirmed by three days of price,
// RSI and volatility follow-through, and exits on a quick reversal.
type EPSMomentum struct {
	th  Thresholds
	log zerolog.Logger
}

// NewEPSMomentum creates the strategy. A nil logger discards output.
func NewEPSMomentum(th Thresholds, logger *zerolog.Logger) *EPSMomentum {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &EPSMomentum{th: th, log: l}
}

func (s *EPSMomentum) Name() string { return EPSMomentumName }

// Signals walks days 0..n-4 once. Each day may open at most one position, buy
// taking precedence over sell. Whenever a position is open after that step, the
// exit scan runs from the current day; a hit logs the exit at the exit day and
// flattens the position. Re-entering on or before a logged exit day is allowed.
func (s *EPSMomentum) Signals(t *series.Table) ([]signal.Signal, error) {
	if t == nil || t.Len() <= Lookahead {
		n := 0
		if t != nil {
			n = t.Len()
		}
		return nil, fmt.Errorf("%w: have %d, need at least %d", ErrInsufficientData, n, Lookahead+1)
	}

	var signals []signal.Signal
	pos := position.None

	for i := 0; i+Lookahead < t.Len(); i++ {
		if BuyEligible(t, i, s.th) {
			signals = append(signals, s.emit(t, i, signal.Buy, "eps beat with momentum"))
			pos = position.Buy
		} else if SellEligible(t, i, s.th) {
			signals = append(signals, s.emit(t, i, signal.Sell, "eps miss with sell-off"))
			pos = position.Sell
		}

		switch pos {
		case position.Buy:
			if exit, ok := BuyExit(t, i, s.th); ok {
				signals = append(signals, s.emit(t, exit.Index, signal.ExitBuy, exit.Reason+" reversal"))
				pos = position.None
			}
		case position.Sell:
			if exit, ok := SellExit(t, i, s.th); ok {
				signals = append(signals, s.emit(t, exit.Index, signal.ExitSell, exit.Reason+" reversal"))
				pos = position.None
			}
		}
	}

	s.log.Info().Str("symbol", t.Symbol).Int("days", t.Len()).Int("signals", len(signals)).
		Msg("Strategy | EPS Momentum scan finished")
	return signals, nil
}

func (s *EPSMomentum) emit(t *series.Table, i int, kind signal.Kind, reason string) signal.Signal {
	sig := signal.Signal{
		Time:   t.Dates[i],
		Kind:   kind,
		Index:  i,
		Price:  t.Close[i],
		Reason: reason,
	}
	s.log.Debug().Str("symbol", t.Symbol).Str("kind", kind.String()).
		Str("date", sig.Time.Format("2006-01-02")).Float64("price", sig.Price).
		Msg("Strategy | signal")
	return sig
}
