package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
)

var loadEnvOnce sync.Once

// Config returns the raw value of an environment variable after .env has been loaded.
func Config(key string) string {
	loadDotEnv()
	return os.Getenv(key)
}

func loadDotEnv() {
	loadEnvOnce.Do(func() {
		if err := godotenv.Load(); err != nil {
			log.Info("no .env file found, using system environment variables")
		}
	})
}

type Settings struct {
	Environment   string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	PublicAppURL  string `env:"PUBLIC_APP_URL" envDefault:"http://localhost:5173"`
	AllowOrigins  string `env:"CORS_ALLOW_ORIGINS" envDefault:"http://localhost:5173"`
	SeedDemoData  bool   `env:"SEED_DEMO" envDefault:"false"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:"admin123"`

	HTTP       HTTP       `envPrefix:"HTTP_"`
	DB         Database   `envPrefix:"DB_"`
	Redis      Redis      `envPrefix:"REDIS_"`
	JWT        JWT        `envPrefix:"JWT_"`
	Order      Order      `envPrefix:"ORDER_"`
	Gateway    Gateway    `envPrefix:"GATEWAY_"`
	SMTP       SMTP       `envPrefix:"SMTP_"`
	S3         S3         `envPrefix:"S3_"`
	Cloudinary Cloudinary `envPrefix:"CLOUDINARY_"`
	Print      Print      `envPrefix:"PRINT_"`
	Agent      Agent      `envPrefix:"AGENT_"`
}

type HTTP struct {
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port string `env:"PORT" envDefault:"8002"`
}

type Database struct {
	Driver   string `env:"DRIVER" envDefault:"postgres"`
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME" envDefault:"cinema_pos"`
	// DSN overrides the individual fields; for sqlite it is the file path.
	DSN string `env:"DSN"`
}

type Redis struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type JWT struct {
	Secret     string        `env:"SECRET" envDefault:"change-me"`
	AccessTTL  time.Duration `env:"ACCESS_TTL" envDefault:"1h"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
	GuestTTL   time.Duration `env:"GUEST_TTL" envDefault:"2h"`
}

type Order struct {
	RequestTimeout       time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	GatewayCreateTimeout time.Duration `env:"GATEWAY_CREATE_TIMEOUT" envDefault:"15s"`
	ReservationTTL       time.Duration `env:"RESERVATION_TTL" envDefault:"15m"`
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	RelayInterval        time.Duration `env:"RELAY_INTERVAL" envDefault:"2s"`
	Currency             string        `env:"CURRENCY" envDefault:"INR"`
}

type Gateway struct {
	ConfigCacheTTL  time.Duration `env:"CONFIG_CACHE_TTL" envDefault:"60s"`
	RazorpayBaseURL string        `env:"RAZORPAY_BASE_URL" envDefault:"https://api.razorpay.com"`
	PaytmBaseURL    string        `env:"PAYTM_BASE_URL" envDefault:"https://securegw.paytm.in"`
	PhonePeBaseURL  string        `env:"PHONEPE_BASE_URL" envDefault:"https://api.phonepe.com/apis/hermes"`
	CallbackBaseURL string        `env:"CALLBACK_BASE_URL" envDefault:"http://localhost:8002"`
}

type SMTP struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM" envDefault:"Cinema Concessions <no-reply@cinema.local>"`
}

type S3 struct {
	Region          string `env:"REGION" envDefault:"ap-south-1"`
	Bucket          string `env:"BUCKET"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
}

type Cloudinary struct {
	CloudName string `env:"CLOUD_NAME"`
	APIKey    string `env:"API_KEY"`
	APISecret string `env:"API_SECRET"`
}

type Print struct {
	BridgePort    int           `env:"BRIDGE_PORT" envDefault:"17388"`
	BridgeTimeout time.Duration `env:"BRIDGE_TIMEOUT" envDefault:"500ms"`
	JobDelay      time.Duration `env:"JOB_DELAY" envDefault:"2s"`
	PrinterAddr   string        `env:"PRINTER_ADDR"`
	PrinterDevice string        `env:"PRINTER_DEVICE"`
	SpoolDir      string        `env:"SPOOL_DIR" envDefault:"./spool"`
	// FallbackCommand is run with the rendered HTML file path as its last argument.
	FallbackCommand []string `env:"FALLBACK_COMMAND" envSeparator:" "`
}

type Agent struct {
	ListenAddr     string        `env:"LISTEN_ADDR" envDefault:"127.0.0.1:17390"`
	ServerURL      string        `env:"SERVER_URL" envDefault:"http://localhost:8002"`
	Token          string        `env:"TOKEN"`
	TheaterID      uint          `env:"THEATER_ID"`
	QueuePath      string        `env:"QUEUE_PATH" envDefault:"./offline-queue.db"`
	ProbeSchedule  string        `env:"PROBE_SCHEDULE" envDefault:"@every 5s"`
	BackoffInitial time.Duration `env:"BACKOFF_INITIAL" envDefault:"2s"`
	BackoffMax     time.Duration `env:"BACKOFF_MAX" envDefault:"60s"`
}

// Load reads .env (if any) and parses the environment into Settings.
func Load() (*Settings, error) {
	loadDotEnv()

	cfg := &Settings{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Settings) Validate() error {
	switch s.DB.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER %q is not supported", s.DB.Driver)
	}
	if s.Order.RequestTimeout <= 0 || s.Order.GatewayCreateTimeout <= 0 {
		return fmt.Errorf("order timeouts must be positive")
	}
	if s.IsProduction() && s.JWT.Secret == "change-me" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

func (s *Settings) IsProduction() bool {
	return s.Environment == "production"
}

func (s *Settings) LogLevelValue() log.Level {
	switch s.LogLevel {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}
