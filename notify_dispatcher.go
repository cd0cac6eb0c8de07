package authx

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/MrEthical07/authx/internal/queue"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// ErrNotificationPermanent marks a Notifier error that must not be retried, such as a
// template or address error. Wrap it: fmt.Errorf("%w: bad address", ErrNotificationPermanent).
var ErrNotificationPermanent = errors.New("authx: permanent notification failure")

// notifyDispatcher delivers notifications after the triggering state change has been
// committed. In async mode a worker pool drains a bounded queue; otherwise the
// notification is sent inline. Either way a failure is retried, then logged and counted,
// and never reported to the caller of the Engine operation.
type notifyDispatcher struct {
	cfg      NotificationConfig
	notifier Notifier
	log      *zap.Logger
	metrics  *Metrics

	// pending is nil in inline mode.
	pending *queue.Queue[Notification]
	closed  atomic.Bool
}

func newNotifyDispatcher(cfg NotificationConfig, notifier Notifier, log *zap.Logger, metrics *Metrics) *notifyDispatcher {
	if notifier == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := &notifyDispatcher{
		cfg:      cfg,
		notifier: notifier,
		log:      log.Named("notify"),
		metrics:  metrics,
	}
	if cfg.Async {
		d.pending = queue.New(queue.Config[Notification]{
			Workers:    cfg.Workers,
			BufferSize: cfg.BufferSize,
			DropIfFull: cfg.DropIfFull,
			OnDrop:     d.onDrop,
		}, func(n Notification) { d.deliver(context.Background(), n) })
	}
	return d
}

// Dispatch hands n to the delivery path. It never returns an error; request cancellation
// does not abort an inline send.
func (d *notifyDispatcher) Dispatch(ctx context.Context, n Notification) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.pending == nil {
		d.deliver(context.WithoutCancel(ctx), n)
		return
	}
	d.pending.Push(ctx, n)
}

func (d *notifyDispatcher) onDrop(n Notification) {
	d.metrics.observeNotification(n.Kind, "dropped")
	d.log.Warn("notification dropped before delivery",
		zap.String("kind", string(n.Kind)),
		zap.String("account_id", n.AccountID),
	)
}

func (d *notifyDispatcher) deliver(ctx context.Context, n Notification) {
	attempts := 0
	attempt := func(ctx context.Context) error {
		attempts++
		attemptCtx, cancel := d.attemptContext(ctx)
		defer cancel()
		return d.notifier.Notify(attemptCtx, n)
	}

	var err error
	if d.cfg.MaxRetries == 0 {
		err = attempt(ctx)
	} else {
		backoff := retry.WithMaxRetries(d.cfg.MaxRetries, retry.NewExponential(d.cfg.RetryBase))
		err = retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := attempt(ctx); err != nil {
				if errors.Is(err, ErrNotificationPermanent) {
					return err
				}
				return retry.RetryableError(err)
			}
			return nil
		})
	}

	if err != nil {
		d.metrics.observeNotification(n.Kind, "failed")
		d.log.Error("notification delivery failed",
			zap.String("kind", string(n.Kind)),
			zap.String("account_id", n.AccountID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return
	}
	d.metrics.observeNotification(n.Kind, "sent")
}

func (d *notifyDispatcher) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.SendTimeout > 0 {
		return context.WithTimeout(ctx, d.cfg.SendTimeout)
	}
	return context.WithCancel(ctx)
}

// Close stops accepting notifications, drains the queue, and waits for the workers.
func (d *notifyDispatcher) Close() {
	if d == nil {
		return
	}
	d.closed.Store(true)
	d.pending.Close()
}

func (d *notifyDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.pending.Dropped()
}
