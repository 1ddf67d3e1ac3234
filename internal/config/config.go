package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/robfig/cron"
)

// twoYears is the default lifetime of anonymous vote cookies.
const twoYears = 2 * 365 * 24 * 60 * 60

// minCookieKeyLen is what securecookie needs for an HMAC-SHA256 key.
const minCookieKeyLen = 32

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port              string
	AuthToken         string
	DBURL             string
	DBAutoMigrate     bool
	ReadTimeoutSecs   int
	WriteTimeoutSecs  int
	IdleTimeoutSecs   int
	DBMaxConns        int
	DBMinConns        int
	DBMaxIdleSecs     int
	DBMaxLifeSecs     int
	DBConnTimeoutSecs int
	DBStatementCache  int
	// VotesPerIP caps anonymous and authenticated votes from one address on
	// one comment field. Zero means unlimited.
	VotesPerIP        int
	CookieMaxAgeSecs  int
	CookieHashKey     string
	RecomputeSchedule string
}

// Load reads configuration from environment variables, applying defaults and validation.
// When ENV_FILE names a dotenv file it is read first; variables already present in the
// environment win.
func Load() (Config, error) {
	if file := os.Getenv("ENV_FILE"); file != "" {
		if err := godotenv.Load(file); err != nil {
			return Config{}, fmt.Errorf("ENV_FILE %s: %w", file, err)
		}
	}

	cfg := Config{
		Port:              getEnv("PORT", "8080"),
		AuthToken:         os.Getenv("AUTH_TOKEN"),
		DBURL:             os.Getenv("DB_URL"),
		DBAutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
		ReadTimeoutSecs:   getEnvInt("SERVER_READ_TIMEOUT", 15),
		WriteTimeoutSecs:  getEnvInt("SERVER_WRITE_TIMEOUT", 15),
		IdleTimeoutSecs:   getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		DBMaxConns:        getEnvInt("DB_MAX_CONNS", 20),
		DBMinConns:        getEnvInt("DB_MIN_CONNS", 2),
		DBMaxIdleSecs:     getEnvInt("DB_MAX_CONN_IDLE_SECS", 300),
		DBMaxLifeSecs:     getEnvInt("DB_MAX_CONN_LIFETIME_SECS", 3600),
		DBConnTimeoutSecs: getEnvInt("DB_CONN_TIMEOUT_SECS", 10),
		DBStatementCache:  getEnvInt("DB_STATEMENT_CACHE_CAPACITY", 256),
		VotesPerIP:        getEnvInt("RATINGS_VOTES_PER_IP", 0),
		CookieMaxAgeSecs:  getEnvInt("COOKIES_MAX_AGE", twoYears),
		CookieHashKey:     os.Getenv("VOTE_COOKIE_HASH_KEY"),
		RecomputeSchedule: os.Getenv("RATINGS_RECOMPUTE_SCHEDULE"),
	}

	if cfg.AuthToken == "" {
		return Config{}, fmt.Errorf("AUTH_TOKEN is required")
	}
	if cfg.DBURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required")
	}
	if cfg.DBMaxConns <= 0 {
		return Config{}, fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return Config{}, fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBStatementCache < 0 {
		return Config{}, fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if cfg.VotesPerIP < 0 {
		return Config{}, fmt.Errorf("RATINGS_VOTES_PER_IP must be non-negative")
	}
	if cfg.CookieMaxAgeSecs <= 0 {
		return Config{}, fmt.Errorf("COOKIES_MAX_AGE must be positive")
	}
	if cfg.CookieHashKey != "" && len(cfg.CookieHashKey) < minCookieKeyLen {
		return Config{}, fmt.Errorf("VOTE_COOKIE_HASH_KEY must be at least %d bytes", minCookieKeyLen)
	}
	if cfg.RecomputeSchedule != "" {
		if _, err := cron.Parse(cfg.RecomputeSchedule); err != nil {
			return Config{}, fmt.Errorf("RATINGS_RECOMPUTE_SCHEDULE: %w", err)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}
