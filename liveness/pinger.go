// Package liveness keeps a deployment warm by requesting its own health
// endpoint on a fixed interval.
package liveness

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	goerrors "github.com/goliatone/go-errors"
	accounts "github.com/versehub/go-accounts"
)

const (
	DefaultInterval = 10 * time.Minute
	pingTimeout     = 5 * time.Second
)

// Pinger requests URL every Interval until its context is cancelled.
type Pinger struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   accounts.Logger

	healthy atomic.Bool
	pings   atomic.Int64
}

type Option func(*Pinger)

func WithClient(c *http.Client) Option {
	return func(p *Pinger) {
		if c != nil {
			p.client = c
		}
	}
}

func WithLogger(l accounts.Logger) Option {
	return func(p *Pinger) {
		if l != nil {
			p.logger = l
		}
	}
}

func New(url string, interval time.Duration, opts ...Option) *Pinger {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Pinger{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: pingTimeout},
		logger:   accounts.NewSlogLogger(nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks until ctx is done.
func (p *Pinger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := p.Ping(pingCtx)
			cancel()

			switch {
			case err != nil && p.healthy.Swap(false):
				p.logger.Warn("liveness: %s became unreachable: %v", p.url, err)
			case err != nil:
				p.logger.Debug("liveness: %s still unreachable: %v", p.url, err)
			case !p.healthy.Swap(true):
				p.logger.Info("liveness: %s reachable", p.url)
			}

		case <-ctx.Done():
			return
		}
	}
}

// Ping issues a single GET and expects a 2xx answer.
func (p *Pinger) Ping(ctx context.Context) error {
	p.pings.Add(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid liveness url")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "liveness request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return goerrors.New("liveness endpoint returned "+resp.Status, goerrors.CategoryOperation).
			WithMetadata(map[string]any{"status": resp.StatusCode})
	}
	return nil
}

// Healthy reports the outcome of the last scheduled ping.
func (p *Pinger) Healthy() bool { return p.healthy.Load() }

// Pings reports how many requests were issued.
func (p *Pinger) Pings() int64 { return p.pings.Load() }
