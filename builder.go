package goSession

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"

	"github.com/MrEthical07/goSession/internal/api"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/tokenstore"
	"github.com/MrEthical07/goSession/transport"
)

// Builder assembles a [Client]. Each builder builds once.
type Builder struct {
	config     Config
	httpClient *http.Client
	persister  tokenstore.Persister
	redis      redis.UniversalClient
	logger     logrus.FieldLogger
	auditSink  AuditSink
	now        func() time.Time

	built bool
}

// New returns a builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole config.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBaseURL sets Config.BaseURL.
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.BaseURL = baseURL
	return b
}

// WithHTTPClient sets the client whose transport, jar, timeout and redirect
// policy the session builds on. The client itself is not modified.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

// WithPersister overrides the persister selected by Config.Storage.
func (b *Builder) WithPersister(p tokenstore.Persister) *Builder {
	b.persister = p
	return b
}

// WithRedis supplies the client used by the redis storage backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger. The default is the logrus standard logger.
func (b *Builder) WithLogger(log logrus.FieldLogger) *Builder {
	b.logger = log
	return b
}

// WithAuditSink sets where audit events go when Config.Audit is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock sets the time source used for claims expiry checks.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the refresh latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the config, restores any persisted token and returns a
// ready client. A persisted token that is malformed or expired is cleared.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	log := b.logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "goSession")

	// -------- PERSISTENCE --------
	persister, err := b.resolvePersister(cfg)
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics(cfg.Metrics)
	store := tokenstore.New(persister,
		tokenstore.WithKey(cfg.Storage.Key),
		tokenstore.WithLogger(log),
		tokenstore.WithFailureHook(func(string, error) { metrics.Inc(MetricPersistenceFailure) }),
	)

	// -------- CLAIMS --------
	verifier, err := jwt.NewVerifier(jwt.VerifierConfig{
		SigningMethod: jwt.SigningMethod(cfg.Claims.SigningMethod),
		VerifyKey:     cloneBytes(cfg.Claims.PublicKey),
		Issuer:        cfg.Claims.Issuer,
		Audience:      cfg.Claims.Audience,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	// -------- HTTP --------
	var base http.Client
	if b.httpClient != nil {
		base = *b.httpClient
	}
	baseRT := base.Transport
	if baseRT == nil {
		baseRT = http.DefaultTransport
	}
	jar := base.Jar
	if jar == nil {
		jar, err = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, err
		}
	}

	idHeader := strings.TrimSpace(cfg.HTTP.RequestIDHeader)
	apiIDHeader := idHeader
	if apiIDHeader == "-" {
		apiIDHeader = ""
	}

	// Session endpoint calls bypass the coordinated transport.
	backend, err := api.New(api.Options{
		BaseURL: cfg.BaseURL,
		HTTP: &http.Client{
			Transport:     baseRT,
			Jar:           jar,
			CheckRedirect: base.CheckRedirect,
		},
		Endpoints: api.Endpoints{
			Login:   cfg.Endpoints.Login,
			Refresh: cfg.Endpoints.Refresh,
			Logout:  cfg.Endpoints.Logout,
		},
		RequestIDHeader: apiIDHeader,
		NewRequestID:    uuid.NewString,
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:   cfg,
		log:      log,
		now:      now,
		store:    store,
		verifier: verifier,
		api:      backend,
		hub:      newStateHub(),
		metrics:  metrics,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Now:        now,
			OnDrop: func(ev internalaudit.Event) {
				log.WithField("event_type", ev.EventType).Debug("goSession: audit buffer full, event dropped")
			},
		}, b.auditSink),
	}

	c.flows = flows.Deps{
		Login: flows.LoginDeps{
			Call:     backend.Login,
			Verifier: verifier,
			Install:  store.Set,
		},
		Refresh: flows.RefreshDeps{
			Call:     backend.Refresh,
			Verifier: verifier,
		},
		Logout: flows.LogoutDeps{
			Call:    backend.Logout,
			Current: store.Get,
			Clear:   store.Clear,
			Timeout: cfg.Logout.Timeout,
		},
	}

	// -------- REFRESH COORDINATOR --------
	c.coord, err = refresh.New(refresh.Deps{
		Refresh:     c.refreshToken,
		Install:     store.Set,
		Current:     store.Get,
		Generation:  store.Generation,
		InstallIf:   store.SetIfGeneration,
		Discard:     c.discardToken,
		ForceLogout: c.logout,
		Timeout:     cfg.Refresh.Timeout,
		NewID:       uuid.NewString,
		Observer:    episodeObserver{c: c},
	})
	if err != nil {
		return nil, err
	}

	topts := transport.Options{
		Base:            baseRT,
		Tokens:          store,
		Recoverer:       c.coord,
		RequestIDHeader: idHeader,
		NewRequestID:    uuid.NewString,
		Logger:          log,
	}
	if cfg.Refresh.ProactiveWindow > 0 {
		topts.RefreshDue = c.refreshDue
	}
	c.transport, err = transport.New(topts)
	if err != nil {
		return nil, err
	}
	c.http = &http.Client{
		Transport:     c.transport,
		Jar:           jar,
		Timeout:       cfg.HTTP.Timeout,
		CheckRedirect: base.CheckRedirect,
	}

	store.OnChange(func(token string) {
		c.hub.publish(deriveState(token, verifier))
	})

	// -------- STARTUP --------
	c.restore(context.Background())

	b.built = true
	return c, nil
}

func (b *Builder) resolvePersister(cfg Config) (tokenstore.Persister, error) {
	if b.persister != nil {
		return b.persister, nil
	}
	switch cfg.Storage.Backend {
	case StorageFile:
		return tokenstore.NewFilePersister(cfg.Storage.FilePath), nil
	case StorageRedis:
		if b.redis == nil {
			return nil, errors.New("redis storage requires a redis client")
		}
		return tokenstore.NewRedisPersister(b.redis, cfg.Storage.RedisPrefix, cfg.Storage.RedisTTL), nil
	default:
		return nil, nil
	}
}

// restore loads the persisted token and discards it when it no longer
// verifies.
func (c *Client) restore(ctx context.Context) {
	token := c.store.Load(ctx)
	if token == "" {
		return
	}
	if c.verifier.Verify(token).Valid {
		c.log.Debug("goSession: resumed persisted session")
		return
	}

	c.store.Clear(ctx)
	c.metrics.Inc(MetricStartupTokenDiscarded)
	c.log.Info("goSession: discarded invalid or expired persisted token")
	c.emitAudit(ctx, internalaudit.Event{EventType: internalaudit.EventStartupDiscarded, Success: true})
}
