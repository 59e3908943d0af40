// Package keepalive pings the service's own health endpoint so that hosts
// which idle unused instances keep it awake.
package keepalive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/ssml-tts-service/internal/tts/ttsutils"
)

// DefaultInterval is the time between pings.
const DefaultInterval = 5 * time.Minute

const (
	healthPath     = "/health"
	requestTimeout = 30 * time.Second

	logFmtPingOK     = "Keepalive ping to %s succeeded (%d)"
	logFmtPingFailed = "Keepalive ping to %s failed: %v"
	logFmtStarted    = "Keepalive pinging %s every %s"
)

// ErrUnhealthy is returned when the health endpoint does not answer 200.
var ErrUnhealthy = errors.New("health endpoint returned non-OK status")

// Pinger periodically requests <base>/health.
type Pinger struct {
	client   *http.Client
	url      string
	interval time.Duration
	log      *logger.Logger
}

// New creates a Pinger for baseURL. A non-positive interval selects
// DefaultInterval.
func New(baseURL string, interval time.Duration, log *logger.Logger) *Pinger {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Pinger{
		client:   &http.Client{Timeout: requestTimeout},
		url:      ttsutils.JoinURL(baseURL, healthPath),
		interval: interval,
		log:      log,
	}
}

// URL returns the pinged URL.
func (p *Pinger) URL() string {
	return p.url
}

// Run pings once immediately and then on every tick until ctx is done.
// Failures are logged and never stop the loop.
func (p *Pinger) Run(ctx context.Context) {
	p.log.Info(logFmtStarted, p.url, p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.pingAndLog(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Pinger) pingAndLog(ctx context.Context) {
	status, err := p.Ping(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn(logFmtPingFailed, p.url, err)
		}

		return
	}

	p.log.Info(logFmtPingOK, p.url, status)
}

// Ping requests the health endpoint once and returns the status code.
func (p *Pinger) Ping(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create keepalive request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to reach %s: %w", p.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("%w: %s", ErrUnhealthy, resp.Status)
	}

	return resp.StatusCode, nil
}
