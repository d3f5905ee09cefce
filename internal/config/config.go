// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samyarj/polyhoot/internal/game"
	"gopkg.in/yaml.v3"
)

// GameConfig holds the engine tunables. Durations are plain seconds/millis to keep the YAML readable.
type GameConfig struct {
	QuestionDurationSeconds int     `yaml:"question_duration_seconds"`
	StartCountdownSeconds   int     `yaml:"start_countdown_seconds"`
	BetweenQuestionsSeconds int     `yaml:"between_questions_seconds"`
	AlertThresholdSeconds   int     `yaml:"alert_threshold_seconds"`
	TickMillis              int     `yaml:"tick_millis"`
	AlertTickMillis         int     `yaml:"alert_tick_millis"`
	BonusMultiplier         float64 `yaml:"bonus_multiplier"`
	RoomCodeLength          int     `yaml:"room_code_length"`
	MaxCodeAttempts         int     `yaml:"max_code_attempts"`
	OrganizerPolicy         string  `yaml:"organizer_policy"`
	OrganizerGraceSeconds   int     `yaml:"organizer_grace_seconds"`
	EarlyClose              bool    `yaml:"early_close"`
	ReapIntervalSeconds     int     `yaml:"reap_interval_seconds"`
	EndedRetentionSeconds   int     `yaml:"ended_retention_seconds"`
	IdleTTLSeconds          int     `yaml:"idle_ttl_seconds"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// PublicURL prefixes the join links encoded in QR codes.
	PublicURL       string `yaml:"public_url"`
	ShutdownSeconds int    `yaml:"shutdown_seconds"`
}

type PostgresConfig struct {
	// URL wins over the individual fields when set.
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the Postgres connection URL, or "" when Postgres is not configured.
func (c PostgresConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Addr  string `yaml:"addr"`
	DB    int    `yaml:"db"`
	Queue string `yaml:"queue"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type AuthConfig struct {
	// TokenExpire is a Go duration; "never" or "0" disables expiry.
	TokenExpire    string `yaml:"token_expire"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PublicKeyPath  string `yaml:"public_key_path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type HistorianConfig struct {
	BatchSize       int `yaml:"batch_size"`
	FlushIntervalMs int `yaml:"flush_interval_ms"`
	// InactivitySeconds is how long a session may stay silent before it is marked abandoned.
	InactivitySeconds int `yaml:"inactivity_seconds"`
}

// Config is the full service configuration.
type Config struct {
	Game      GameConfig      `yaml:"game"`
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	Historian HistorianConfig `yaml:"historian"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Game: GameConfig{
			QuestionDurationSeconds: 20,
			StartCountdownSeconds:   5,
			BetweenQuestionsSeconds: 3,
			AlertThresholdSeconds:   10,
			TickMillis:              1000,
			AlertTickMillis:         250,
			BonusMultiplier:         game.DefaultBonusMultiplier,
			RoomCodeLength:          4,
			MaxCodeAttempts:         100,
			OrganizerPolicy:         string(game.OrganizerPolicyEnd),
			OrganizerGraceSeconds:   30,
			EarlyClose:              true,
			ReapIntervalSeconds:     60,
			EndedRetentionSeconds:   600,
			IdleTTLSeconds:          3600,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"*"},
			PublicURL:       "http://localhost:8080",
			ShutdownSeconds: 10,
		},
		Postgres: PostgresConfig{Port: 5432, SSLMode: "disable"},
		Redis:    RedisConfig{Queue: "polyhoot_actions"},
		NATS:     NATSConfig{SubjectPrefix: "polyhoot.rooms"},
		Auth:     AuthConfig{TokenExpire: "6h"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Historian: HistorianConfig{
			BatchSize:         100,
			FlushIntervalMs:   2000,
			InactivitySeconds: 600,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// POLYHOOT_CONFIG (if any), then environment variables.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("POLYHOOT_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	g := &c.Game
	g.QuestionDurationSeconds = getEnvInt("QUESTION_DURATION_SECONDS", g.QuestionDurationSeconds)
	g.StartCountdownSeconds = getEnvInt("START_COUNTDOWN_SECONDS", g.StartCountdownSeconds)
	g.BetweenQuestionsSeconds = getEnvInt("BETWEEN_QUESTIONS_SECONDS", g.BetweenQuestionsSeconds)
	g.AlertThresholdSeconds = getEnvInt("ALERT_THRESHOLD_SECONDS", g.AlertThresholdSeconds)
	g.TickMillis = getEnvInt("TICK_MILLIS", g.TickMillis)
	g.AlertTickMillis = getEnvInt("ALERT_TICK_MILLIS", g.AlertTickMillis)
	g.BonusMultiplier = getEnvFloat("BONUS_MULTIPLIER", g.BonusMultiplier)
	g.RoomCodeLength = getEnvInt("ROOM_CODE_LENGTH", g.RoomCodeLength)
	g.MaxCodeAttempts = getEnvInt("MAX_CODE_ATTEMPTS", g.MaxCodeAttempts)
	g.OrganizerPolicy = getEnv("ORGANIZER_POLICY", g.OrganizerPolicy)
	g.OrganizerGraceSeconds = getEnvInt("ORGANIZER_GRACE_SECONDS", g.OrganizerGraceSeconds)
	g.EarlyClose = getEnvBool("EARLY_CLOSE", g.EarlyClose)
	g.ReapIntervalSeconds = getEnvInt("REAP_INTERVAL_SECONDS", g.ReapIntervalSeconds)
	g.EndedRetentionSeconds = getEnvInt("ENDED_RETENTION_SECONDS", g.EndedRetentionSeconds)
	g.IdleTTLSeconds = getEnvInt("IDLE_TTL_SECONDS", g.IdleTTLSeconds)

	c.Server.Addr = getEnv("SERVER_ADDR", c.Server.Addr)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	c.Server.PublicURL = getEnv("PUBLIC_URL", c.Server.PublicURL)

	c.Postgres.URL = getEnv("DATABASE_URL", c.Postgres.URL)
	c.Postgres.Host = getEnv("PG_HOST", c.Postgres.Host)
	c.Postgres.Port = getEnvInt("PG_PORT", c.Postgres.Port)
	c.Postgres.User = getEnv("POSTGRES_USER", c.Postgres.User)
	c.Postgres.Password = getEnv("POSTGRES_PASSWORD", c.Postgres.Password)
	c.Postgres.Database = getEnv("PG_DATABASE", c.Postgres.Database)
	c.Postgres.SSLMode = getEnv("PG_SSLMODE", c.Postgres.SSLMode)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.Queue = getEnv("HISTORIAN_QUEUE_NAME", c.Redis.Queue)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)

	c.Auth.TokenExpire = getEnv("TOKEN_EXPIRE_TIME", c.Auth.TokenExpire)
	c.Auth.PrivateKeyPath = getEnv("JWT_PRIVATE_KEY_PATH", c.Auth.PrivateKeyPath)
	c.Auth.PublicKeyPath = getEnv("JWT_PUBLIC_KEY_PATH", c.Auth.PublicKeyPath)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Historian.BatchSize = getEnvInt("HISTORIAN_BATCH_SIZE", c.Historian.BatchSize)
	c.Historian.FlushIntervalMs = getEnvInt("HISTORIAN_FLUSH_INTERVAL_MS", c.Historian.FlushIntervalMs)
	c.Historian.InactivitySeconds = getEnvInt("GAME_INACTIVITY_TIMEOUT_SEC", c.Historian.InactivitySeconds)
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	g := c.Game
	switch game.OrganizerPolicy(g.OrganizerPolicy) {
	case game.OrganizerPolicyEnd, game.OrganizerPolicyGrace:
	default:
		return fmt.Errorf("invalid organizer policy %q (want end or grace)", g.OrganizerPolicy)
	}
	if g.QuestionDurationSeconds <= 0 {
		return fmt.Errorf("question duration must be positive, got %d", g.QuestionDurationSeconds)
	}
	if g.RoomCodeLength <= 0 || g.RoomCodeLength > 12 {
		return fmt.Errorf("room code length must be between 1 and 12, got %d", g.RoomCodeLength)
	}
	if g.BonusMultiplier < 1 {
		return fmt.Errorf("bonus multiplier must be at least 1, got %v", g.BonusMultiplier)
	}
	if _, err := c.TokenTTL(); err != nil {
		return err
	}
	return nil
}

// TokenTTL parses Auth.TokenExpire. Zero means tokens never expire.
func (c Config) TokenTTL() (time.Duration, error) {
	switch c.Auth.TokenExpire {
	case "", "0", "never":
		return 0, nil
	}
	d, err := time.ParseDuration(c.Auth.TokenExpire)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	return d, nil
}

// GameSettings converts the game section into engine settings.
func (c Config) GameSettings() game.Settings {
	g := c.Game
	s := game.DefaultSettings()
	s.QuestionDurationSeconds = g.QuestionDurationSeconds
	s.StartCountdownSeconds = g.StartCountdownSeconds
	s.BetweenQuestionsSeconds = g.BetweenQuestionsSeconds
	s.AlertThresholdSeconds = g.AlertThresholdSeconds
	s.TickInterval = time.Duration(g.TickMillis) * time.Millisecond
	s.AlertTickInterval = time.Duration(g.AlertTickMillis) * time.Millisecond
	s.BonusMultiplier = g.BonusMultiplier
	s.RoomCodeLength = g.RoomCodeLength
	s.MaxCodeAttempts = g.MaxCodeAttempts
	s.OrganizerPolicy = game.OrganizerPolicy(g.OrganizerPolicy)
	s.OrganizerGrace = time.Duration(g.OrganizerGraceSeconds) * time.Second
	s.EarlyClose = g.EarlyClose
	s.EndedRetention = time.Duration(g.EndedRetentionSeconds) * time.Second
	s.IdleTTL = time.Duration(g.IdleTTLSeconds) * time.Second
	return s
}

// ReapInterval is how often the registry reaper runs.
func (c Config) ReapInterval() time.Duration {
	return time.Duration(c.Game.ReapIntervalSeconds) * time.Second
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvFloat(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return v
}
