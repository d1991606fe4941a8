// Package health probes the assistant's dependencies before a request is
// classified.
package health

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-retail-voice/internal/httpc"
)

// DefaultTimeout bounds each probe.
const DefaultTimeout = 5 * time.Second

// Critical failures.
var (
	ErrToolUnavailable     = errors.New("health: tool server is not available")
	ErrSpeechNotConfigured = errors.New("health: speech synthesis credential not configured")
)

// Status is the result of one Probe.
type Status struct {
	CatalogReachable bool `json:"catalogReachable"`
	ToolReachable    bool `json:"toolReachable"`
	SpeechConfigured bool `json:"speechConfigured"`
	SpeechReachable  bool `json:"speechReachable"`
}

// Critical returns the first failure that must stop the request: the tool
// server first, then the synthesis credential.
func (s Status) Critical() error {
	if !s.ToolReachable {
		return ErrToolUnavailable
	}
	if !s.SpeechConfigured {
		return ErrSpeechNotConfigured
	}
	return nil
}

// Speech is the part of the speech service the prober needs.
type Speech interface {
	Health(ctx context.Context) error
	Configured() bool
}

// Config configures a Prober.
type Config struct {
	// ToolEndpoint is the tool server base URL; GET {ToolEndpoint}/health.
	ToolEndpoint string

	// CatalogEndpoint is the catalog REST base URL. Optional.
	CatalogEndpoint string

	Speech  Speech
	Timeout time.Duration
}

// Prober runs the dependency probes.
type Prober struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Prober) { p.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Prober) { p.logger = l }
}

// NewProber creates a Prober.
func NewProber(cfg Config, opts ...Option) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	p := &Prober{
		cfg:    cfg,
		client: httpc.NewClient(cfg.Timeout),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "health")
	return p
}

// Probe checks all dependencies concurrently. Each probe has its own
// timeout; a failed probe marks its dependency unreachable and never fails
// Probe itself.
func (p *Prober) Probe(ctx context.Context) Status {
	var st Status
	if p.cfg.Speech != nil {
		st.SpeechConfigured = p.cfg.Speech.Configured()
	}

	var g errgroup.Group
	g.Go(func() error {
		st.ToolReachable = p.ping(ctx, "tool server", p.cfg.ToolEndpoint)
		return nil
	})
	g.Go(func() error {
		if p.cfg.CatalogEndpoint == "" {
			p.logger.Debug("catalog probe skipped, no endpoint")
			return nil
		}
		st.CatalogReachable = p.ping(ctx, "catalog", p.cfg.CatalogEndpoint)
		return nil
	})
	if st.SpeechConfigured {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
			defer cancel()
			if err := p.cfg.Speech.Health(pctx); err != nil {
				p.logger.Warn("speech service not reachable", "error", err)
				return nil
			}
			st.SpeechReachable = true
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Debug("health status",
		"tool", st.ToolReachable,
		"catalog", st.CatalogReachable,
		"speech_configured", st.SpeechConfigured,
		"speech", st.SpeechReachable,
	)
	return st
}

func (p *Prober) ping(ctx context.Context, name, base string) bool {
	if base == "" {
		p.logger.Warn(name+" not configured")
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if err := httpc.Ping(pctx, p.client, strings.TrimRight(base, "/")+"/health"); err != nil {
		p.logger.Warn(name+" not available", "error", err)
		return false
	}
	return true
}
