// Package keepalive periodically requests the public API URL so that
// free-tier hosting does not put the service to sleep.
package keepalive

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/robfig/cron/v3"

	"github.com/patric-chuzhbe/bookshelf/internal/logger"
)

type KeepAlive struct {
	url          string
	schedule     cron.Schedule
	client       *resty.Client
	cron         *cron.Cron
	errorChannel chan error
}

// New parses schedule as a standard five-field cron spec (descriptors
// such as "@every 10m" work too).
func New(url, schedule string, timeout time.Duration) (*KeepAlive, error) {
	parsed, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("in internal/keepalive/keepalive.go/New(): error while `cron.ParseStandard()` calling: %w", err)
	}

	return &KeepAlive{
		url:          url,
		schedule:     parsed,
		client:       resty.New().SetTimeout(timeout),
		cron:         cron.New(),
		errorChannel: make(chan error, 16),
	}, nil
}

func (k *KeepAlive) ListenErrors(callback func(error)) {
	go func() {
		for err := range k.errorChannel {
			callback(err)
		}
	}()
}

// Run starts the scheduler in its own goroutine.
func (k *KeepAlive) Run() {
	k.cron.Schedule(k.schedule, cron.FuncJob(k.tick))
	k.cron.Start()
	logger.Log.Infow("keep-alive job scheduled", "url", k.url)
}

// Stop waits for a running tick to finish or for ctx to expire.
func (k *KeepAlive) Stop(ctx context.Context) {
	select {
	case <-k.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (k *KeepAlive) tick() {
	if err := k.Ping(context.Background()); err != nil {
		select {
		case k.errorChannel <- err:
		default:
			logger.Log.Warnw("keep-alive error dropped, channel is full", "err", err)
		}
		return
	}
	logger.Log.Debugw("keep-alive request succeeded", "url", k.url)
}

// Ping issues one GET request; any non-2xx answer is an error.
func (k *KeepAlive) Ping(ctx context.Context) error {
	response, err := k.client.R().SetContext(ctx).Get(k.url)
	if err != nil {
		return fmt.Errorf("in internal/keepalive/keepalive.go/Ping(): error while `k.client.R().Get()` calling: %w", err)
	}
	if response.IsError() {
		return fmt.Errorf("in internal/keepalive/keepalive.go/Ping(): %s answered %d", k.url, response.StatusCode())
	}

	return nil
}
