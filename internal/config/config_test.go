package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Auth: AuthConfig{JWTSecret: "secret"},
		Economy: EconomyConfig{
			PostFee:                 5,
			CommentFee:              2,
			LikeFee:                 1,
			FeeSplit:                FeeSplitConfig{PrizePool: 70, PlatformFee: 20, LikerReserve: 10},
			TopPostRewardPercent:    50,
			TopCommentRewardPercent: 50,
		},
		Cycle: CycleConfig{Timezone: "Asia/Kolkata", FreezeStartHour: 0, ActiveStartHour: 6},
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, int64(5), cfg.Economy.PostFee)
	assert.Equal(t, int64(2), cfg.Economy.CommentFee)
	assert.Equal(t, int64(1), cfg.Economy.LikeFee)
	assert.Equal(t, int64(100), cfg.Economy.SignupBonus)
	assert.Equal(t, FeeSplitConfig{PrizePool: 70, PlatformFee: 20, LikerReserve: 10}, cfg.Economy.FeeSplit)
	assert.Equal(t, LimitsConfig{MaxPostsPerDay: 5, MaxCommentsPerDay: 20, MaxLikesPerDay: 50}, cfg.Limits)
	assert.Equal(t, "Asia/Kolkata", cfg.Cycle.Timezone)
	assert.Equal(t, 6, cfg.Cycle.ActiveStartHour)
	assert.Equal(t, "5 0 * * *", cfg.Evaluation.Schedule)
	assert.Equal(t, 2*time.Hour, cfg.Evaluation.LockTTL)
	assert.Equal(t, time.Minute, cfg.Redis.Window)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("ECONOMY_POST_FEE", "7")
	t.Setenv("CYCLE_TIMEZONE", "UTC")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Economy.PostFee)
	assert.Equal(t, "UTC", cfg.Cycle.Timezone)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
auth:
  jwt_secret: from-file
admin:
  ids: [11, 22]
limits:
  max_posts_per_day: 3
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 3, cfg.Limits.MaxPostsPerDay)
	assert.True(t, cfg.IsAdmin(22))
	assert.False(t, cfg.IsAdmin(33))
}

func TestLoad_MissingSecret(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"split sum", func(c *Config) { c.Economy.FeeSplit.PrizePool = 60 }, "sum to 100"},
		{"negative share", func(c *Config) {
			c.Economy.FeeSplit.PrizePool = 110
			c.Economy.FeeSplit.PlatformFee = -10
		}, "non-negative"},
		{"negative fee", func(c *Config) { c.Economy.LikeFee = -1 }, "fees must be non-negative"},
		{"reward percent", func(c *Config) { c.Economy.TopPostRewardPercent = 150 }, "top_post_reward_percent"},
		{"hour range", func(c *Config) { c.Cycle.ActiveStartHour = 24 }, "0..23"},
		{"equal hours", func(c *Config) { c.Cycle.ActiveStartHour = 0 }, "must differ"},
		{"timezone", func(c *Config) { c.Cycle.Timezone = "Mars/Olympus" }, "invalid timezone"},
		{"secret", func(c *Config) { c.Auth.JWTSecret = "" }, "jwt_secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "postgres://u:p@db:5432/n?sslmode=disable", d.DSN())
}
