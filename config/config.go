package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"engagement-rewards/ledger"

	"github.com/joho/godotenv"
)

const (
	StoreShopify  = "shopify"
	StorePostgres = "postgres"
)

// Config is loaded once at startup and never mutated afterwards.
type Config struct {
	Port           string
	AppEnv         string
	RecordStore    string
	DatabaseURL    string
	AllowedOrigins []string

	ShopifyDomain        string
	ShopifyAdminToken    string
	ShopifyAPIVersion    string
	ShopifyAPISecret     string
	ShopifyWebhookSecret string
	DevModeKey           string
	GatewayToken         string

	StoreLocation *time.Location
	CurrencyCode  string

	StreakThreshold     int
	StreakRewardAmount  string
	CommentRewardAmount string
	DefaultOrderPercent int
	Milestones          []int

	RedisAddr     string
	RedisPassword string

	WebhookCallbackBaseURL string

	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2Bucket          string

	policy ledger.Policy
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return FromLookup(os.Getenv)
}

// FromLookup builds a Config from an arbitrary getenv-like function.
func FromLookup(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Port:                   get("PORT", "5200"),
		AppEnv:                 get("APP_ENV", "development"),
		RecordStore:            strings.ToLower(get("RECORD_STORE", StoreShopify)),
		DatabaseURL:            get("DATABASE_URL", ""),
		AllowedOrigins:         splitList(get("ALLOWED_ORIGINS", "http://localhost:3000")),
		ShopifyDomain:          get("SHOPIFY_STORE_DOMAIN", ""),
		ShopifyAdminToken:      get("SHOPIFY_ADMIN_API_TOKEN", ""),
		ShopifyAPIVersion:      get("SHOPIFY_API_VERSION", "2024-07"),
		ShopifyAPISecret:       get("SHOPIFY_API_SECRET", ""),
		ShopifyWebhookSecret:   get("SHOPIFY_WEBHOOK_SECRET", ""),
		DevModeKey:             get("DEV_MODE_KEY", ""),
		GatewayToken:           get("GATEWAY_TOKEN", ""),
		CurrencyCode:           strings.ToUpper(get("CURRENCY_CODE", "CAD")),
		StreakRewardAmount:     get("STREAK_REWARD_AMOUNT", "0.90"),
		CommentRewardAmount:    get("COMMENT_REWARD_AMOUNT", "0.05"),
		RedisAddr:              get("REDIS_ADDR", ""),
		RedisPassword:          get("REDIS_PASSWORD", ""),
		WebhookCallbackBaseURL: strings.TrimRight(get("WEBHOOK_CALLBACK_BASE_URL", ""), "/"),
		R2AccountID:            get("CLOUDFLARE_ACCOUNT_ID", ""),
		R2AccessKeyID:          get("R2_ACCESS_KEY_ID", ""),
		R2AccessKeySecret:      get("R2_ACCESS_KEY_SECRET", ""),
		R2Bucket:               get("R2_BUCKET_NAME", ""),
	}

	var errs []error
	required := func(key, val string) {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s environment variable not set", key))
		}
	}
	required("SHOPIFY_STORE_DOMAIN", cfg.ShopifyDomain)
	required("SHOPIFY_ADMIN_API_TOKEN", cfg.ShopifyAdminToken)
	required("SHOPIFY_API_SECRET", cfg.ShopifyAPISecret)
	required("SHOPIFY_WEBHOOK_SECRET", cfg.ShopifyWebhookSecret)
	required("GATEWAY_TOKEN", cfg.GatewayToken)

	// CORS runs with credentials, which cannot be combined with a wildcard origin.
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			errs = append(errs, errors.New("ALLOWED_ORIGINS: wildcard \"*\" is not allowed, list explicit origins"))
			break
		}
	}

	switch cfg.RecordStore {
	case StoreShopify:
	case StorePostgres:
		required("DATABASE_URL", cfg.DatabaseURL)
	default:
		errs = append(errs, fmt.Errorf("RECORD_STORE must be %q or %q, got %q", StoreShopify, StorePostgres, cfg.RecordStore))
	}

	loc, err := time.LoadLocation(get("STORE_TIMEZONE", "America/Edmonton"))
	if err != nil {
		errs = append(errs, fmt.Errorf("STORE_TIMEZONE: %w", err))
	}
	cfg.StoreLocation = loc

	cfg.StreakThreshold = intVar(get, "STREAK_THRESHOLD", ledger.DefaultStreakThreshold, &errs)
	cfg.DefaultOrderPercent = intVar(get, "DEFAULT_ORDER_PERCENT", ledger.DefaultOrderPercent, &errs)

	cfg.Milestones = ledger.DefaultMilestones
	if raw := get("STREAK_MILESTONES", ""); raw != "" {
		cfg.Milestones = nil
		for _, part := range splitList(raw) {
			n, err := strconv.Atoi(part)
			if err != nil || n <= 0 {
				errs = append(errs, fmt.Errorf("STREAK_MILESTONES: invalid value %q", part))
				continue
			}
			cfg.Milestones = append(cfg.Milestones, n)
		}
	}

	if len(errs) == 0 {
		cfg.policy, err = cfg.buildPolicy()
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) buildPolicy() (ledger.Policy, error) {
	p := ledger.DefaultPolicy()
	streak, err := ledger.ParseMoney(c.StreakRewardAmount, c.CurrencyCode)
	if err != nil {
		return p, fmt.Errorf("STREAK_REWARD_AMOUNT: %w", err)
	}
	comment, err := ledger.ParseMoney(c.CommentRewardAmount, c.CurrencyCode)
	if err != nil {
		return p, fmt.Errorf("COMMENT_REWARD_AMOUNT: %w", err)
	}
	if c.DefaultOrderPercent < 0 || c.DefaultOrderPercent > 100 {
		return p, fmt.Errorf("DEFAULT_ORDER_PERCENT must be between 0 and 100, got %d", c.DefaultOrderPercent)
	}
	p.StreakThreshold = c.StreakThreshold
	p.StreakReward = streak
	p.CommentReward = comment
	p.DefaultOrderPercent = c.DefaultOrderPercent
	p.Milestones = append([]int(nil), c.Milestones...)
	return p, nil
}

// Policy returns the reward policy derived from the configuration.
func (c *Config) Policy() ledger.Policy {
	p := c.policy
	p.Milestones = append([]int(nil), c.policy.Milestones...)
	return p
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production" || c.AppEnv == "prod"
}

func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2AccessKeySecret != "" && c.R2Bucket != ""
}

func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

func intVar(get func(string, string) string, key string, def int, errs *[]error) int {
	raw := get(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
