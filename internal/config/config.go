// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Bot        BotConfig        `mapstructure:"bot"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Log        LogConfig        `mapstructure:"log"`
	Economy    EconomyConfig    `mapstructure:"economy"`
	Cycle      CycleConfig      `mapstructure:"cycle"`
	Limits     LimitsConfig     `mapstructure:"limits"`
	Fraud      FraudConfig      `mapstructure:"fraud"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
}

// ServerConfig holds HTTP listener configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds the rate limiter backend configuration.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Limit    int           `mapstructure:"limit"`
	Window   time.Duration `mapstructure:"window"`
}

// AuthConfig holds JWT verification settings. Tokens are issued elsewhere.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// BotConfig holds Telegram operator bot configuration.
// An empty token disables the bot.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// AdminConfig holds operator user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FeeSplitConfig holds the percentage shares of every fee.
type FeeSplitConfig struct {
	PrizePool    int64 `mapstructure:"prize_pool" json:"prizePool"`
	PlatformFee  int64 `mapstructure:"platform_fee" json:"platformFee"`
	LikerReserve int64 `mapstructure:"liker_reserve" json:"likerReserve"`
}

// EconomyConfig holds fees, split and reward constants.
type EconomyConfig struct {
	PostFee                 int64          `mapstructure:"post_fee"`
	CommentFee              int64          `mapstructure:"comment_fee"`
	LikeFee                 int64          `mapstructure:"like_fee"`
	SignupBonus             int64          `mapstructure:"signup_bonus"`
	FeeSplit                FeeSplitConfig `mapstructure:"fee_split"`
	TopPostRewardPercent    int64          `mapstructure:"top_post_reward_percent"`
	TopCommentRewardPercent int64          `mapstructure:"top_comment_reward_percent"`
	LikerRewardPost         int64          `mapstructure:"liker_reward_post"`
	WinReputationBonus      int            `mapstructure:"win_reputation_bonus"`
	LockTimeout             time.Duration  `mapstructure:"lock_timeout"`
}

// CycleConfig holds the daily active/freeze boundaries.
type CycleConfig struct {
	Timezone        string `mapstructure:"timezone"`
	FreezeStartHour int    `mapstructure:"freeze_start_hour"`
	ActiveStartHour int    `mapstructure:"active_start_hour"`
}

// LimitsConfig holds per-user daily action limits.
type LimitsConfig struct {
	MaxPostsPerDay    int `mapstructure:"max_posts_per_day" json:"maxPostsPerDay"`
	MaxCommentsPerDay int `mapstructure:"max_comments_per_day" json:"maxCommentsPerDay"`
	MaxLikesPerDay    int `mapstructure:"max_likes_per_day" json:"maxLikesPerDay"`
}

// FraudConfig holds fraud heuristic thresholds.
type FraudConfig struct {
	RapidActionThreshold int           `mapstructure:"rapid_action_threshold"`
	RapidActionWindow    time.Duration `mapstructure:"rapid_action_window"`
	CoordinatedMinLikes  int           `mapstructure:"coordinated_min_likes"`
	CoordinatedLikers    int           `mapstructure:"coordinated_likers"`
	CoordinatedShared    int           `mapstructure:"coordinated_shared"`
	CoordinatedMinPosts  int           `mapstructure:"coordinated_min_posts"`
	SpamCommentThreshold int           `mapstructure:"spam_comment_threshold"`
	SpamCommentWindow    time.Duration `mapstructure:"spam_comment_window"`
	CadenceMinActions    int           `mapstructure:"cadence_min_actions"`
	CadenceTolerance     time.Duration `mapstructure:"cadence_tolerance"`
	ReputationPenalty    int           `mapstructure:"reputation_penalty"`
}

// EvaluationConfig holds the settlement job settings.
type EvaluationConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	Timeout  time.Duration `mapstructure:"timeout"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Location resolves the configured cycle timezone.
func (c *CycleConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/playknow")

	// e.g. DATABASE_HOST, ECONOMY_POST_FEE, CYCLE_TIMEZONE
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "playknow")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "playknow")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.limit", 120)
	v.SetDefault("redis.window", "1m")

	// AutomaticEnv only reaches keys viper already knows about.
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("bot.token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("economy.post_fee", 5)
	v.SetDefault("economy.comment_fee", 2)
	v.SetDefault("economy.like_fee", 1)
	v.SetDefault("economy.signup_bonus", 100)
	v.SetDefault("economy.fee_split.prize_pool", 70)
	v.SetDefault("economy.fee_split.platform_fee", 20)
	v.SetDefault("economy.fee_split.liker_reserve", 10)
	v.SetDefault("economy.top_post_reward_percent", 50)
	v.SetDefault("economy.top_comment_reward_percent", 50)
	v.SetDefault("economy.liker_reward_post", 1)
	v.SetDefault("economy.win_reputation_bonus", 5)
	v.SetDefault("economy.lock_timeout", "5s")

	v.SetDefault("cycle.timezone", "Asia/Kolkata")
	v.SetDefault("cycle.freeze_start_hour", 0)
	v.SetDefault("cycle.active_start_hour", 6)

	v.SetDefault("limits.max_posts_per_day", 5)
	v.SetDefault("limits.max_comments_per_day", 20)
	v.SetDefault("limits.max_likes_per_day", 50)

	v.SetDefault("fraud.rapid_action_threshold", 10)
	v.SetDefault("fraud.rapid_action_window", "60s")
	v.SetDefault("fraud.coordinated_min_likes", 10)
	v.SetDefault("fraud.coordinated_likers", 10)
	v.SetDefault("fraud.coordinated_shared", 3)
	v.SetDefault("fraud.coordinated_min_posts", 3)
	v.SetDefault("fraud.spam_comment_threshold", 10)
	v.SetDefault("fraud.spam_comment_window", "5m")
	v.SetDefault("fraud.cadence_min_actions", 6)
	v.SetDefault("fraud.cadence_tolerance", "250ms")
	v.SetDefault("fraud.reputation_penalty", 10)

	v.SetDefault("evaluation.enabled", true)
	v.SetDefault("evaluation.schedule", "5 0 * * *")
	v.SetDefault("evaluation.timeout", "30m")
	v.SetDefault("evaluation.lock_ttl", "2h")
}

// Validate checks invariants the economy relies on.
func (c *Config) Validate() error {
	var errs []error

	split := c.Economy.FeeSplit
	if split.PrizePool < 0 || split.PlatformFee < 0 || split.LikerReserve < 0 {
		errs = append(errs, errors.New("fee split percentages must be non-negative"))
	}
	if sum := split.PrizePool + split.PlatformFee + split.LikerReserve; sum != 100 {
		errs = append(errs, fmt.Errorf("fee split must sum to 100, got %d", sum))
	}
	if c.Economy.PostFee < 0 || c.Economy.CommentFee < 0 || c.Economy.LikeFee < 0 {
		errs = append(errs, errors.New("fees must be non-negative"))
	}
	for name, pct := range map[string]int64{
		"top_post_reward_percent":    c.Economy.TopPostRewardPercent,
		"top_comment_reward_percent": c.Economy.TopCommentRewardPercent,
	} {
		if pct < 0 || pct > 100 {
			errs = append(errs, fmt.Errorf("%s must be within 0..100, got %d", name, pct))
		}
	}

	if !validHour(c.Cycle.FreezeStartHour) || !validHour(c.Cycle.ActiveStartHour) {
		errs = append(errs, errors.New("cycle hours must be within 0..23"))
	}
	if c.Cycle.FreezeStartHour == c.Cycle.ActiveStartHour {
		errs = append(errs, errors.New("freeze_start_hour and active_start_hour must differ"))
	}
	if _, err := c.Cycle.Location(); err != nil {
		errs = append(errs, err)
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}

	return errors.Join(errs...)
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}
