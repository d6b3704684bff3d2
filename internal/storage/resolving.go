package storage

import (
	"context"
	"time"

	"github.com/mukhametgalin/predict-trading-system/trader-analytics/internal/types"
	"github.com/rs/zerolog/log"
)

// Resolver looks up settlement state from the upstream exchange.
type Resolver interface {
	Resolve(ctx context.Context, marketID string) (types.Resolution, error)
}

// resolutionWriter is implemented by stores that can persist a resolution.
type resolutionWriter interface {
	SetResolution(ctx context.Context, marketID, winningOutcome string) error
}

// ResolvingStore asks the upstream resolver about markets the store still
// has as unresolved. Failed or slow lookups leave the market unresolved.
type ResolvingStore struct {
	TradeStore
	resolver Resolver
	timeout  time.Duration
}

func NewResolvingStore(store TradeStore, resolver Resolver, timeout time.Duration) *ResolvingStore {
	return &ResolvingStore{
		TradeStore: store,
		resolver:   resolver,
		timeout:    timeout,
	}
}

func (s *ResolvingStore) MarketResolution(ctx context.Context, marketID string) (types.Resolution, error) {
	res, err := s.TradeStore.MarketResolution(ctx, marketID)
	if err == nil && res.Resolved {
		return res, nil
	}
	if err != nil {
		log.Warn().Err(err).Str("market", marketID).Msg("Stored resolution unavailable, asking upstream")
	}

	lookupCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	remote, err := s.resolver.Resolve(lookupCtx, marketID)
	if err != nil {
		log.Warn().Err(err).Str("market", marketID).Msg("Upstream resolution lookup failed, treating as unresolved")
		return types.Resolution{}, nil
	}
	if !remote.Resolved {
		return types.Resolution{}, nil
	}

	if w, ok := s.TradeStore.(resolutionWriter); ok {
		if err := w.SetResolution(ctx, marketID, remote.WinningOutcome); err != nil {
			log.Warn().Err(err).Str("market", marketID).Msg("Failed to persist resolution")
		}
	}

	log.Debug().
		Str("market", marketID).
		Str("winning_outcome", remote.WinningOutcome).
		Msg("Market resolved upstream")

	return remote, nil
}
