package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/formahub/session-core/internal/api/metrics"
	"github.com/formahub/session-core/internal/core/ports"
)

const (
	defaultWorkers = 2
	channelBuffer  = 64
	notifyTimeout  = 10 * time.Second
)

// LogoutNotifier delivers best-effort logout notifications to the server.
// Logout must return as soon as local cleanup is done, so notifications are
// queued and sent by background workers; a failed or dropped notification is
// logged and forgotten, never reported back.
type LogoutNotifier struct {
	queue   chan string
	workers int
	gateway ports.AuthGateway
	log     zerolog.Logger
}

// NewLogoutNotifier creates a notifier with numWorkers background senders.
// If numWorkers <= 0, defaultWorkers is used.
func NewLogoutNotifier(numWorkers int, gateway ports.AuthGateway, log zerolog.Logger) *LogoutNotifier {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	return &LogoutNotifier{
		queue:   make(chan string, channelBuffer),
		workers: numWorkers,
		gateway: gateway,
		log:     log,
	}
}

// Start launches the worker goroutines. Workers stop when ctx is cancelled;
// notifications still queued at that point are abandoned.
func (n *LogoutNotifier) Start(ctx context.Context) {
	for i := 0; i < n.workers; i++ {
		go n.runWorker(ctx, i)
	}
}

// Enqueue hands a credential to the workers. It never blocks: when the
// queue is saturated the notification is dropped, which is an acceptable
// outcome for an operation whose result is ignored by design.
func (n *LogoutNotifier) Enqueue(credential string) {
	select {
	case n.queue <- credential:
	default:
		n.log.Warn().Msg("logout notification queue full, dropping")
		metrics.LogoutNotificationsTotal.WithLabelValues("dropped").Inc()
	}
}

func (n *LogoutNotifier) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case credential, ok := <-n.queue:
			if !ok {
				return
			}
			notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
			err := n.gateway.NotifyLogout(notifyCtx, credential)
			cancel()
			if err != nil {
				n.log.Debug().Err(err).Int("worker_id", id).Msg("logout notification failed")
				metrics.LogoutNotificationsTotal.WithLabelValues("failed").Inc()
				continue
			}
			metrics.LogoutNotificationsTotal.WithLabelValues("sent").Inc()
		}
	}
}
