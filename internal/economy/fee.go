// Package economy holds the fee table and the fee splitter.
package economy

import (
	"fmt"

	"github.com/Gaur97shiv/playknow/internal/config"
	"github.com/Gaur97shiv/playknow/internal/model"
)

// Splitter divides fees into prize pool, platform and liker reserve shares.
// Percentages are fixed at construction.
type Splitter struct {
	prizePoolPct   int64
	platformFeePct int64
	fees           map[model.ActionType]int64
}

// NewSplitter creates a splitter from economy configuration.
func NewSplitter(cfg config.EconomyConfig) (*Splitter, error) {
	split := cfg.FeeSplit
	if split.PrizePool < 0 || split.PlatformFee < 0 || split.LikerReserve < 0 {
		return nil, fmt.Errorf("fee split percentages must be non-negative")
	}
	if sum := split.PrizePool + split.PlatformFee + split.LikerReserve; sum != 100 {
		return nil, fmt.Errorf("fee split must sum to 100, got %d", sum)
	}
	return &Splitter{
		prizePoolPct:   split.PrizePool,
		platformFeePct: split.PlatformFee,
		fees: map[model.ActionType]int64{
			model.ActionPost:        cfg.PostFee,
			model.ActionComment:     cfg.CommentFee,
			model.ActionLike:        cfg.LikeFee,
			model.ActionCommentLike: cfg.LikeFee,
		},
	}, nil
}

// Fee returns the charge for an action.
func (s *Splitter) Fee(action model.ActionType) int64 {
	return s.fees[action]
}

// Fees returns a copy of the fee table keyed by action name.
func (s *Splitter) Fees() map[string]int64 {
	out := make(map[string]int64, len(s.fees))
	for k, v := range s.fees {
		out[string(k)] = v
	}
	return out
}

// Split divides amount. The liker reserve absorbs the rounding remainder so
// the three shares always sum to amount.
func (s *Splitter) Split(amount int64) model.FeeSplit {
	prize := amount * s.prizePoolPct / 100
	platform := amount * s.platformFeePct / 100
	return model.FeeSplit{
		PrizePool:    prize,
		PlatformFee:  platform,
		LikerReserve: amount - prize - platform,
		Total:        amount,
	}
}

// Percent returns floor(amount*pct/100).
func Percent(amount, pct int64) int64 {
	if amount <= 0 || pct <= 0 {
		return 0
	}
	return amount * pct / 100
}

// Percentages returns the configured shares of every fee.
func (s *Splitter) Percentages() config.FeeSplitConfig {
	return config.FeeSplitConfig{
		PrizePool:    s.prizePoolPct,
		PlatformFee:  s.platformFeePct,
		LikerReserve: 100 - s.prizePoolPct - s.platformFeePct,
	}
}
