package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrJWTSecretRequired  = errors.New("config: jwt secret required")
	ErrNoUsers            = errors.New("config: at least one user required")
	ErrServiceURLRequired = errors.New("config: service url required")
	ErrCredentials        = errors.New("config: username and password required")
)

// Server configures the meter reading service.
type Server struct {
	GRPCAddr               string            `yaml:"grpc_addr"`
	HTTPAddr               string            `yaml:"http_addr"`
	DatabaseURL            string            `yaml:"database_url"`
	JWTSecret              string            `yaml:"jwt_secret"`
	TokenTTL               time.Duration     `yaml:"token_ttl"`
	Users                  map[string]string `yaml:"users"`
	DiagnosticsRequireAuth *bool             `yaml:"diagnostics_require_auth"`
}

// RequireDiagnosticsAuth reports whether diagnostics streams need a bearer
// token. Defaults to true.
func (s Server) RequireDiagnosticsAuth() bool {
	if s.DiagnosticsRequireAuth == nil {
		return true
	}
	return *s.DiagnosticsRequireAuth
}

// Client configures the meter client process.
type Client struct {
	ServiceURL       string        `yaml:"service_url"`
	CustomerID       int32         `yaml:"customer_id"`
	DelayInterval    time.Duration `yaml:"delay_interval"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	DiagnosticsEvery int           `yaml:"diagnostics_every"`
	BatchSize        int           `yaml:"batch_size"`
	Notes            string        `yaml:"notes"`
	MetricsAddr      string        `yaml:"metrics_addr"`
}

// LoadServer loads server config from the yaml file named by
// METER_SERVER_CONFIG, then applies environment overrides.
func LoadServer() (Server, error) {
	cfg := Server{
		GRPCAddr: ":5000",
		HTTPAddr: ":8080",
		TokenTTL: time.Hour,
	}
	if err := loadFile(os.Getenv("METER_SERVER_CONFIG"), &cfg); err != nil {
		return cfg, err
	}

	cfg.GRPCAddr = getenvDefault("GRPC_ADDR", cfg.GRPCAddr)
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.JWTSecret))
	cfg.TokenTTL = getenvDuration("TOKEN_TTL", cfg.TokenTTL)
	if users := splitPairs(os.Getenv("METER_USERS")); len(users) > 0 {
		cfg.Users = users
	}
	if value := os.Getenv("DIAGNOSTICS_REQUIRE_AUTH"); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			cfg.DiagnosticsRequireAuth = &parsed
		}
	}

	if cfg.JWTSecret == "" {
		return cfg, ErrJWTSecretRequired
	}
	if len(cfg.Users) == 0 {
		return cfg, ErrNoUsers
	}
	return cfg, nil
}

// LoadClient loads client config from the yaml file named by
// METER_CLIENT_CONFIG, then applies environment overrides.
func LoadClient() (Client, error) {
	cfg := Client{
		ServiceURL:       "http://localhost:5000",
		CustomerID:       100,
		DelayInterval:    5 * time.Second,
		DiagnosticsEvery: 3,
		BatchSize:        5,
		Notes:            "This is our test",
	}
	if err := loadFile(os.Getenv("METER_CLIENT_CONFIG"), &cfg); err != nil {
		return cfg, err
	}

	cfg.ServiceURL = getenvDefault("SERVICE_URL", cfg.ServiceURL)
	cfg.CustomerID = int32(getenvIntDefault("CUSTOMER_ID", int(cfg.CustomerID)))
	cfg.DelayInterval = getenvDuration("DELAY_INTERVAL", cfg.DelayInterval)
	cfg.Username = getenvDefault("METER_USERNAME", cfg.Username)
	cfg.Password = getenvDefault("METER_PASSWORD", cfg.Password)
	cfg.DiagnosticsEvery = getenvIntDefault("DIAGNOSTICS_EVERY", cfg.DiagnosticsEvery)
	cfg.BatchSize = getenvIntDefault("BATCH_SIZE", cfg.BatchSize)
	cfg.Notes = getenvDefault("READING_NOTES", cfg.Notes)
	cfg.MetricsAddr = getenvDefault("METRICS_ADDR", cfg.MetricsAddr)

	if strings.TrimSpace(cfg.ServiceURL) == "" {
		return cfg, ErrServiceURLRequired
	}
	if cfg.Username == "" || cfg.Password == "" {
		return cfg, ErrCredentials
	}
	return cfg, nil
}

func loadFile(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// splitPairs parses "user:hash,user2:hash2".
func splitPairs(value string) map[string]string {
	if value == "" {
		return nil
	}
	result := make(map[string]string)
	for _, part := range strings.Split(value, ",") {
		name, hash, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || name == "" || hash == "" {
			continue
		}
		result[name] = hash
	}
	return result
}
