// Package notification forwards broadcast events to external webhooks.
package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smartdevs17/noc-leaderboard/internal/broadcast"
	"github.com/smartdevs17/noc-leaderboard/internal/config"
	"github.com/smartdevs17/noc-leaderboard/internal/metrics"
	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

const transportWebhook = "webhook"

// Forwarder is a hub subscriber that POSTs every event to the configured
// webhook URLs. Slow endpoints never stall the hub: events are moved into a
// local queue and dropped when it is full.
type Forwarder struct {
	hub            *broadcast.Hub
	sender         *WebhookSender
	urls           []string
	queueSize      int
	logger         *DeliveryLogger
	metricsManager *metrics.Manager

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// receiving is cleared when the receive loop exits on its own
	receiving atomic.Bool

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// ForwarderStats provides delivery statistics
type ForwarderStats struct {
	Running   bool   `json:"running"`
	URLs      int    `json:"urls"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// NewForwarder creates a forwarder from the notifications config section
func NewForwarder(cfg *config.NotificationConfig, hub *broadcast.Hub, metricsManager *metrics.Manager) *Forwarder {
	logger := NewDeliveryLogger()
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Forwarder{
		hub:            hub,
		sender:         NewWebhookSender(cfg.Timeout, cfg.RetryAttempts, cfg.RetryDelay, logger),
		urls:           append([]string(nil), cfg.WebhookURLs...),
		queueSize:      queueSize,
		logger:         logger,
		metricsManager: metricsManager,
	}
}

// Start begins forwarding until ctx is done, Stop is called, or the hub closes
func (f *Forwarder) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Webhook forwarder already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.running = true
	f.receiving.Store(true)

	queue := make(chan broadcast.Event, f.queueSize)
	f.wg.Add(2)
	go f.receive(ctx, queue)
	go f.deliver(ctx, queue)

	f.logger.Entry().WithField("urls", len(f.urls)).Info("Webhook forwarder started")
	return nil
}

// Stop cancels delivery and waits for the worker goroutines
func (f *Forwarder) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	f.cancel()
	f.mu.Unlock()

	f.wg.Wait()
	f.logger.Entry().Info("Webhook forwarder stopped")
	return nil
}

// IsHealthy reports whether the forwarder is running and still subscribed
// to the hub
func (f *Forwarder) IsHealthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running && f.receiving.Load()
}

// GetStats returns delivery statistics
func (f *Forwarder) GetStats() ForwarderStats {
	return ForwarderStats{
		Running:   f.IsHealthy(),
		URLs:      len(f.urls),
		Delivered: f.delivered.Load(),
		Failed:    f.failed.Load(),
		Dropped:   f.dropped.Load(),
	}
}

// receive moves hub events into queue. A subscription dropped for falling
// behind is renewed; events published in between are lost.
func (f *Forwarder) receive(ctx context.Context, queue chan<- broadcast.Event) {
	defer f.wg.Done()
	defer close(queue)
	defer f.receiving.Store(false)

	for {
		sub, err := f.hub.Subscribe(transportWebhook)
		if err != nil {
			f.logger.Entry().WithError(err).Info("Broadcast hub unavailable, forwarder exiting")
			return
		}

	drain:
		for {
			select {
			case <-ctx.Done():
				f.hub.Unsubscribe(sub)
				return
			case event, ok := <-sub.Events():
				if !ok {
					break drain
				}
				select {
				case queue <- event:
				default:
					f.dropped.Add(1)
					f.recordDelivery("dropped", 0)
					f.logger.LogDropped(string(event.Type), event.Seq, "queue full")
				}
			}
		}

		if !f.hub.IsHealthy() {
			return
		}
		f.logger.Entry().Warn("Webhook subscription dropped, resubscribing")
	}
}

func (f *Forwarder) deliver(ctx context.Context, queue <-chan broadcast.Event) {
	defer f.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-queue:
			if !ok {
				return
			}
			payload := BuildPayload(event)
			for _, url := range f.urls {
				resp := f.sender.Send(ctx, url, payload)
				if ctx.Err() != nil {
					return
				}
				if resp.Success {
					f.delivered.Add(1)
					f.recordDelivery("success", resp.ResponseTime)
				} else {
					f.failed.Add(1)
					f.recordDelivery("failure", resp.ResponseTime)
				}
			}
		}
	}
}

func (f *Forwarder) recordDelivery(status string, duration time.Duration) {
	if f.metricsManager == nil {
		return
	}
	f.metricsManager.GetPrometheusMetrics().RecordWebhookDelivery(status, duration)
}
