package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/brainbox/retailplus/internal/gateway"
	"github.com/joho/godotenv"
)

// Load reads the .env file named by RETAILPLUS_ENV (or .env by default),
// then its .secret sidecar if present. Missing files are not an error: all
// settings have defaults and the agent runs offline-only without a backend.
func Load() error {
	envFile := os.Getenv("RETAILPLUS_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

// BackendProvider returns the gateway provider: rest, postgres or mock.
// Defaults to "rest".
func BackendProvider() string {
	p := os.Getenv("BACKEND_PROVIDER")
	if p == "" {
		return gateway.ProviderREST
	}
	return p
}

func BackendURL() string {
	return os.Getenv("BACKEND_URL")
}

func BackendAPIKey() string {
	return os.Getenv("BACKEND_API_KEY")
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// GatewayOptions collects the backend settings for gateway.NewClient.
func GatewayOptions(userAgent string) gateway.Options {
	return gateway.Options{
		URL:         BackendURL(),
		APIKey:      BackendAPIKey(),
		DatabaseURL: DatabaseURL(),
		Timeout:     PullTimeout(),
		UserAgent:   userAgent,
	}
}

// BackendConfigured reports whether the selected provider has usable,
// non-placeholder settings.
func BackendConfigured() bool {
	return GatewayOptions("").Configured(BackendProvider())
}

// BackendWatchAddr returns the host:port the connectivity watcher dials,
// derived from the backend URL or DATABASE_URL. Empty when neither parses.
func BackendWatchAddr() string {
	raw := BackendURL()
	if BackendProvider() == gateway.ProviderPostgres {
		raw = DatabaseURL()
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http":
			port = "80"
		case "postgres", "postgresql":
			port = "5432"
		default:
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// LocalStorePath returns the sqlite file backing the local store.
// Defaults to "retailplus.db".
func LocalStorePath() string {
	p := os.Getenv("LOCAL_STORE_PATH")
	if p == "" {
		return "retailplus.db"
	}
	return p
}

// SyncInterval returns the background sync period. Defaults to 30s.
func SyncInterval() time.Duration {
	return duration("SYNC_INTERVAL", 30*time.Second)
}

// ProbeTimeout bounds a backend reachability probe. Defaults to 5s.
func ProbeTimeout() time.Duration {
	return duration("PROBE_TIMEOUT", 5*time.Second)
}

// EntryTimeout bounds one queue entry during a drain. Defaults to 10s.
func EntryTimeout() time.Duration {
	return duration("ENTRY_TIMEOUT", 10*time.Second)
}

// PullTimeout bounds the reads of one pull. Defaults to 15s.
func PullTimeout() time.Duration {
	return duration("PULL_TIMEOUT", 15*time.Second)
}

// NetworkCheckInterval is the period of the network watcher. Defaults to 15s.
func NetworkCheckInterval() time.Duration {
	return duration("NETWORK_CHECK_INTERVAL", 15*time.Second)
}

// HousekeepingInterval is the period of local cleanup. Defaults to 1h.
func HousekeepingInterval() time.Duration {
	return duration("HOUSEKEEPING_INTERVAL", time.Hour)
}

// FailureRetention is how long surfaced sync failures and corrupt queue
// backups are kept. Defaults to 30 days.
func FailureRetention() time.Duration {
	return duration("FAILURE_RETENTION", 30*24*time.Hour)
}

func OwnerKey() string {
	return os.Getenv("OWNER_KEY")
}

func OwnerSecret() string {
	return os.Getenv("OWNER_SECRET")
}

// SessionUserID is the authenticated user the agent resolves a tenant for.
func SessionUserID() string {
	return os.Getenv("SESSION_USER_ID")
}

// APIToken guards the local API when set.
func APIToken() string {
	return os.Getenv("AGENT_API_TOKEN")
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8787
	}
	return port
}

// ServerAddr binds to loopback unless SERVER_HOST says otherwise.
func ServerAddr() string {
	host := os.Getenv("SERVER_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(ServerPort()))
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// LogFile enables rotating file output in addition to stderr.
func LogFile() string {
	return os.Getenv("LOG_FILE")
}

func duration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Summary lists the effective settings without secrets, for the startup log.
func Summary() map[string]string {
	return map[string]string{
		"backend_provider":   BackendProvider(),
		"backend_configured": strconv.FormatBool(BackendConfigured()),
		"local_store":        LocalStorePath(),
		"sync_interval":      SyncInterval().String(),
		"listen":             ServerAddr(),
		"owner_mode":         strconv.FormatBool(OwnerKey() != "" && OwnerSecret() != ""),
		"api_token":          strconv.FormatBool(APIToken() != ""),
	}
}
