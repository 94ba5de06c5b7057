package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ProberConfig controls backend reachability probing.
type ProberConfig struct {
	URL              string        `koanf:"url"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold int           `koanf:"failure_threshold"`
}

// DefaultProberConfig returns sensible defaults.
func DefaultProberConfig() ProberConfig {
	return ProberConfig{
		Interval:         5 * time.Second,
		Timeout:          3 * time.Second,
		FailureThreshold: 2,
	}
}

// Prober polls the backend health endpoint and reports reachability edges.
// It starts offline; one good probe flips it online, FailureThreshold
// consecutive bad ones flip it back.
type Prober struct {
	config     ProberConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.Mutex
	online    bool
	failures  int
	nextSubID int
	subs      map[int]func(bool)
}

// NewProber creates a prober for config.URL.
func NewProber(config ProberConfig, logger *slog.Logger) *Prober {
	defaults := DefaultProberConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}

	return &Prober{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
		subs:       make(map[int]func(bool)),
	}
}

// Online returns the last probe verdict.
func (p *Prober) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Subscribe registers fn for reachability edges.
func (p *Prober) Subscribe(fn func(online bool)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSubID
	p.nextSubID++
	p.subs[id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// Run probes until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Check probes once, notifies subscribers on an edge and returns the verdict.
func (p *Prober) Check(ctx context.Context) bool {
	ok := p.probe(ctx)
	if ctx.Err() != nil {
		return p.Online()
	}

	p.mu.Lock()
	was := p.online
	if ok {
		p.failures = 0
		p.online = true
	} else {
		p.failures++
		if p.failures >= p.config.FailureThreshold {
			p.online = false
		}
	}
	now := p.online
	var subs []func(bool)
	if now != was {
		subs = make([]func(bool), 0, len(p.subs))
		for _, fn := range p.subs {
			subs = append(subs, fn)
		}
	}
	p.mu.Unlock()

	if now != was {
		p.logger.Info("backend reachability changed", "online", now)
		for _, fn := range subs {
			fn(now)
		}
	}
	return now
}

func (p *Prober) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.URL, nil)
	if err != nil {
		p.logger.Error("failed to build probe request", "url", p.config.URL, "error", err)
		return false
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Debug("probe failed", "url", p.config.URL, "error", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
