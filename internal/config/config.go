package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

type Config struct {
	ProjectID      string
	Port           string   `validate:"required,numeric"`
	AllowedOrigins []string
	Store          string   `validate:"oneof=firestore memory"`

	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceMonthly  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int `validate:"gte=0"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json console"`

	Engine Engine
}

// Engine holds the tunables of the booking engine. They can be overridden
// from a YAML file named by ENGINE_CONFIG_FILE.
type Engine struct {
	Timezone        string        `yaml:"timezone" validate:"required"`
	GracePeriod     time.Duration `yaml:"gracePeriod" validate:"gte=0"`
	VillageCooldown time.Duration `yaml:"villageCooldown" validate:"gte=0"`
	RecheckDelay    time.Duration `yaml:"recheckDelay" validate:"gt=0"`
	MaxRangeDays    int           `yaml:"maxRangeDays" validate:"gte=1,lte=92"`
	BookingsPerMin  int           `yaml:"bookingsPerMinute" validate:"gte=1"`
}

func Load() (Config, error) {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	projectID := getenv("FIREBASE_PROJECT_ID", "")
	if projectID == "" {
		projectID = getenv("GOOGLE_CLOUD_PROJECT", "")
	}

	cfg := Config{
		ProjectID:           projectID,
		Port:                getenv("PORT", "8080"),
		AllowedOrigins:      splitList(getenv("ALLOWED_ORIGINS", "http://localhost:3000")),
		Store:               getenv("STORE", "firestore"),
		StripeSecretKey:     getenv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getenv("STRIPE_WEBHOOK_SECRET", ""),
		StripePriceMonthly:  getenv("STRIPE_PRICE_MONTHLY", ""),
		RedisAddr:           getenv("REDIS_ADDR", ""),
		RedisPassword:       getenv("REDIS_PASSWORD", ""),
		RedisDB:             getint("REDIS_DB", 0),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		LogFormat:           getenv("LOG_FORMAT", "json"),
		Engine: Engine{
			Timezone:        getenv("TIMEZONE", "Europe/Paris"),
			GracePeriod:     getduration("GRACE_PERIOD", 72*time.Hour),
			VillageCooldown: getduration("VILLAGE_COOLDOWN", 30*24*time.Hour),
			RecheckDelay:    getduration("RECHECK_DELAY", 10*time.Second),
			MaxRangeDays:    getint("MAX_RANGE_DAYS", 31),
			BookingsPerMin:  getint("BOOKING_RATE", 10),
		},
	}

	if path := getenv("ENGINE_CONFIG_FILE", ""); path != "" {
		if err := loadEngineFile(path, &cfg.Engine); err != nil {
			return Config{}, err
		}
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags and cross-field rules.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Store == "firestore" && cfg.ProjectID == "" {
		return fmt.Errorf("config validation failed: FIREBASE_PROJECT_ID or GOOGLE_CLOUD_PROJECT is required")
	}
	if _, err := time.LoadLocation(cfg.Engine.Timezone); err != nil {
		return fmt.Errorf("config validation failed: timezone %q: %w", cfg.Engine.Timezone, err)
	}
	return nil
}

// Location returns the zone reservation dates and times are expressed in.
func (e Engine) Location() *time.Location {
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) StripeEnabled() bool { return c.StripeSecretKey != "" }

func (c Config) RedisEnabled() bool { return c.RedisAddr != "" }

func loadEngineFile(path string, e *Engine) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read engine config: %w", err)
	}
	if err := yaml.Unmarshal(data, e); err != nil {
		return fmt.Errorf("failed to parse engine config: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	out := []string{}
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getint(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getduration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
