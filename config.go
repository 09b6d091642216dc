package goSession

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds everything a [Client] needs. Build it with [DefaultConfig] or
// [ConfigFromEnv], adjust fields, then pass it to [Builder.WithConfig].
//
// Config is copied at Build time; later edits do not affect a built client.
type Config struct {
	// BaseURL is the backend origin, e.g. https://api.example.com.
	BaseURL   string          `env:"BASE_URL" validate:"required,url"`
	Endpoints EndpointsConfig `envPrefix:"ENDPOINT_"`
	Storage   StorageConfig   `envPrefix:"STORAGE_"`
	Refresh   RefreshConfig   `envPrefix:"REFRESH_"`
	Logout    LogoutConfig    `envPrefix:"LOGOUT_"`
	HTTP      HTTPConfig      `envPrefix:"HTTP_"`
	Claims    ClaimsConfig    `envPrefix:"CLAIMS_"`
	Audit     AuditConfig     `envPrefix:"AUDIT_"`
	Metrics   MetricsConfig   `envPrefix:"METRICS_"`
}

/*
====================================
ENDPOINTS CONFIG
====================================
*/

// EndpointsConfig holds the session endpoint paths, resolved against BaseURL.
type EndpointsConfig struct {
	Login   string `env:"LOGIN" validate:"required"`
	Refresh string `env:"REFRESH" validate:"required"`
	Logout  string `env:"LOGOUT" validate:"required"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageBackend selects where the access token survives restarts.
type StorageBackend string

const (
	// StorageMemory keeps the token for the life of the process only.
	StorageMemory StorageBackend = "memory"
	// StorageFile keeps the token in a 0600 credentials file.
	StorageFile StorageBackend = "file"
	// StorageRedis keeps the token in Redis, shared by every process using
	// the same key.
	StorageRedis StorageBackend = "redis"
)

// StorageConfig controls token persistence.
type StorageConfig struct {
	// Key is the well-known name the token is stored under.
	Key     string         `env:"KEY" validate:"required"`
	Backend StorageBackend `env:"BACKEND" validate:"oneof=memory file redis"`
	// FilePath is required for the file backend.
	FilePath    string        `env:"FILE_PATH"`
	RedisPrefix string        `env:"REDIS_PREFIX"`
	RedisTTL    time.Duration `env:"REDIS_TTL" validate:"gte=0"`
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh episodes.
type RefreshConfig struct {
	// Timeout bounds the refresh call. When it elapses the episode fails and
	// every queued request is rejected.
	Timeout time.Duration `env:"TIMEOUT" validate:"gt=0"`
	// ProactiveWindow, when positive, refreshes before sending a request whose
	// token expires within the window. Zero waits for a 401.
	ProactiveWindow time.Duration `env:"PROACTIVE_WINDOW" validate:"gte=0"`
}

// LogoutConfig controls the best-effort backend logout call.
type LogoutConfig struct {
	Timeout time.Duration `env:"TIMEOUT" validate:"gt=0"`
}

// HTTPConfig controls the credentialed HTTP client.
type HTTPConfig struct {
	// Timeout applies to the whole request including replays. Zero disables it.
	Timeout time.Duration `env:"TIMEOUT" validate:"gte=0"`
	// RequestIDHeader is added to requests that lack one. "-" disables it.
	RequestIDHeader string `env:"REQUEST_ID_HEADER"`
}

/*
====================================
CLAIMS CONFIG
====================================
*/

// ClaimsConfig controls how token claims are checked client side.
//
// With SigningMethod empty the client decodes claims without checking the
// signature; the backend stays the authority. Setting "ed25519" or "hs256"
// together with PublicKey turns on signature, issuer and audience checks.
type ClaimsConfig struct {
	SigningMethod string `env:"SIGNING_METHOD" validate:"omitempty,oneof=ed25519 hs256"`
	PublicKey     []byte `env:"-"`
	Issuer        string `env:"ISSUER"`
	Audience      string `env:"AUDIENCE"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE" validate:"gte=0"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"ENABLE_LATENCY_HISTOGRAMS"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a config with every field but BaseURL set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Endpoints: EndpointsConfig{
			Login:   "/auth/login",
			Refresh: "/auth/refresh",
			Logout:  "/auth/logout",
		},
		Storage: StorageConfig{
			Key:         "access_token",
			Backend:     StorageMemory,
			RedisPrefix: "gs",
		},
		Refresh: RefreshConfig{
			Timeout: 10 * time.Second,
		},
		Logout: LogoutConfig{
			Timeout: 5 * time.Second,
		},
		HTTP: HTTPConfig{
			Timeout:         30 * time.Second,
			RequestIDHeader: "X-Request-ID",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Claims.PublicKey = cloneBytes(cfg.Claims.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate reports the first problem with c, or nil.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config %s failed %q validation", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag())
		}
		return err
	}

	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return errors.New("BaseURL must use http or https")
	}

	if c.Storage.Backend == StorageFile && strings.TrimSpace(c.Storage.FilePath) == "" {
		return errors.New("file storage requires Storage.FilePath")
	}

	if c.Claims.SigningMethod != "" && len(c.Claims.PublicKey) == 0 {
		return errors.New("signed claims verification requires Claims.PublicKey")
	}
	if c.Claims.SigningMethod == "" && (c.Claims.Issuer != "" || c.Claims.Audience != "") {
		return errors.New("Claims.Issuer and Claims.Audience require a SigningMethod")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
