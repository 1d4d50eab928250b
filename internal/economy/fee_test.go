package economy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Gaur97shiv/playknow/internal/config"
	"github.com/Gaur97shiv/playknow/internal/model"
)

func defaultEconomy() config.EconomyConfig {
	return config.EconomyConfig{
		PostFee:    5,
		CommentFee: 2,
		LikeFee:    1,
		FeeSplit:   config.FeeSplitConfig{PrizePool: 70, PlatformFee: 20, LikerReserve: 10},
	}
}

func TestSplit_PostFee(t *testing.T) {
	s, err := NewSplitter(defaultEconomy())
	require.NoError(t, err)

	got := s.Split(s.Fee(model.ActionPost))
	assert.Equal(t, model.FeeSplit{PrizePool: 3, PlatformFee: 1, LikerReserve: 1, Total: 5}, got)
}

func TestSplit_SmallAmounts(t *testing.T) {
	s, err := NewSplitter(defaultEconomy())
	require.NoError(t, err)

	tests := []struct {
		amount int64
		want   model.FeeSplit
	}{
		{0, model.FeeSplit{}},
		{1, model.FeeSplit{PrizePool: 0, PlatformFee: 0, LikerReserve: 1, Total: 1}},
		{2, model.FeeSplit{PrizePool: 1, PlatformFee: 0, LikerReserve: 1, Total: 2}},
		{100, model.FeeSplit{PrizePool: 70, PlatformFee: 20, LikerReserve: 10, Total: 100}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Split(tt.amount), "amount %d", tt.amount)
	}
}

func TestFeeTable(t *testing.T) {
	s, err := NewSplitter(defaultEconomy())
	require.NoError(t, err)

	assert.Equal(t, int64(2), s.Fee(model.ActionComment))
	assert.Equal(t, int64(1), s.Fee(model.ActionLike))
	assert.Equal(t, int64(1), s.Fee(model.ActionCommentLike))
	assert.Equal(t, int64(5), s.Fees()["post"])
}

func TestNewSplitter_RejectsBadSplit(t *testing.T) {
	cfg := defaultEconomy()
	cfg.FeeSplit.LikerReserve = 20
	_, err := NewSplitter(cfg)
	assert.Error(t, err)

	cfg = defaultEconomy()
	cfg.FeeSplit = config.FeeSplitConfig{PrizePool: 110, PlatformFee: -10}
	_, err = NewSplitter(cfg)
	assert.Error(t, err)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, int64(50), Percent(100, 50))
	assert.Equal(t, int64(0), Percent(1, 50))
	assert.Equal(t, int64(3), Percent(7, 50))
	assert.Equal(t, int64(0), Percent(-10, 50))
}

// Property: the three shares sum to the amount exactly and none is negative,
// for any valid percentage split.
func TestProperty_SplitExactness(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prize := rapid.Int64Range(0, 100).Draw(t, "prize")
		platform := rapid.Int64Range(0, 100-prize).Draw(t, "platform")
		cfg := config.EconomyConfig{FeeSplit: config.FeeSplitConfig{
			PrizePool: prize, PlatformFee: platform, LikerReserve: 100 - prize - platform,
		}}
		s, err := NewSplitter(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		amount := rapid.Int64Range(0, 1_000_000_000).Draw(t, "amount")
		got := s.Split(amount)

		if got.PrizePool+got.PlatformFee+got.LikerReserve != amount {
			t.Fatalf("split %+v does not sum to %d", got, amount)
		}
		if got.PrizePool < 0 || got.PlatformFee < 0 || got.LikerReserve < 0 {
			t.Fatalf("negative share in %+v", got)
		}
		if got.Total != amount {
			t.Fatalf("total %d != amount %d", got.Total, amount)
		}
	})
}
