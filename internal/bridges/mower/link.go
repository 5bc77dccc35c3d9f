package mower

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Link names used in logs and health messages.
const (
	LinkCloud   = "cloud"
	LinkPrivate = "private"
)

// Retry defaults applied when a RetryPolicy field is zero.
const (
	defaultInitialDelay = 10 * time.Second
	defaultMaxDelay     = 300 * time.Second
	defaultMultiplier   = 2.0
)

// qosAtMostOnce is used for every publish and subscribe.
const qosAtMostOnce byte = 0

// Session is one broker session. It is implemented by an adapter over
// internal/infrastructure/mqtt in main and by fakes in tests.
type Session interface {
	// Connect makes one connection attempt. It returns an error wrapping
	// ErrAuth when the broker rejects the credentials.
	Connect(ctx context.Context) error

	// Publish sends one message.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic filter on the current session.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// Unsubscribe removes a subscription.
	Unsubscribe(topic string) error

	// IsConnected returns true while the session is up.
	IsConnected() bool

	// SetOnDisconnect registers the callback fired when the session drops.
	SetOnDisconnect(callback func(err error))

	// Close ends the session gracefully.
	Close() error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// RetryPolicy controls reconnect backoff. Delays grow by Multiplier from
// InitialDelay up to MaxDelay; Jitter is the randomization factor in [0,1].
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

// newBackOff returns an exponential backoff that never gives up on its own.
func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = defaultInitialDelay
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = defaultMaxDelay
	}
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = defaultMultiplier
	}
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// link supervises one broker session: connect with backoff, run the
// on-connect hook, wait for loss, repeat. Both CloudLink and PrivateLink
// embed it.
type link struct {
	name    string
	session Session
	retry   RetryPolicy

	// onUp runs after every successful connect (subscriptions, replays).
	// An error tears the session down and starts a new connect cycle.
	onUp func(ctx context.Context) error

	// onState is told when the link goes up or down.
	onState func(name string, up bool)

	// lost receives the disconnect reason. Buffered so the transport
	// callback never blocks.
	lost chan error

	// topics are the filters subscribed on the current session.
	topics   []string
	topicsMu sync.Mutex

	// closing rejects publishes once shutdown has begun.
	closing   bool
	mu        sync.RWMutex
	closeOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

func newLink(name string, session Session, retry RetryPolicy) *link {
	l := &link{
		name:    name,
		session: session,
		retry:   retry,
		lost:    make(chan error, 1),
	}
	session.SetOnDisconnect(func(err error) {
		if err == nil {
			err = errors.New("connection closed")
		}
		select {
		case l.lost <- err:
		default:
		}
	})
	return l
}

// run keeps the session connected until ctx is cancelled. It returns nil on
// cancellation and an error wrapping ErrAuth if credentials are rejected.
func (l *link) run(ctx context.Context) error {
	for {
		l.drainLost()

		if err := l.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if l.onUp != nil {
			if err := l.onUp(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				l.logWarn("session setup failed, reconnecting", "error", err)
				l.resetTopics()
				//nolint:errcheck // session is being discarded
				l.session.Close()
				if !l.sleep(ctx, l.retry.newBackOff().NextBackOff()) {
					return nil
				}
				continue
			}
		}

		l.logInfo("link up")
		l.reportState(true)

		select {
		case <-ctx.Done():
			return nil
		case err := <-l.lost:
			l.resetTopics()
			l.logWarn("link lost", "error", err)
			l.reportState(false)
		}
	}
}

// connect retries Connect with exponential backoff. Auth failures end the
// retry loop immediately.
func (l *link) connect(ctx context.Context) error {
	attempt := 0
	op := func() error {
		attempt++
		err := l.session.Connect(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrAuth) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		l.logWarn("connect failed, retrying",
			"attempt", attempt,
			"retry_in", next.Round(time.Millisecond).String(),
			"error", err)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(l.retry.newBackOff(), ctx), notify)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAuth) {
		l.logError("credentials rejected", err)
	}
	return fmt.Errorf("%s link: %w", l.name, err)
}

// subscribe subscribes on the current session and remembers the filter so
// shutdown can unsubscribe it.
func (l *link) subscribe(topic string, handler func(topic string, payload []byte)) error {
	if err := l.session.Subscribe(topic, qosAtMostOnce, handler); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	l.topicsMu.Lock()
	l.topics = append(l.topics, topic)
	l.topicsMu.Unlock()
	l.logDebug("subscribed", "topic", topic)
	return nil
}

// publish sends one message at QoS 0. It never queues: a disconnected
// session yields ErrPublish and the message is dropped.
func (l *link) publish(topic string, payload []byte, retained bool) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closing {
		return ErrShuttingDown
	}
	if !l.session.IsConnected() {
		return fmt.Errorf("%w: %s link not connected", ErrPublish, l.name)
	}
	if err := l.session.Publish(topic, payload, qosAtMostOnce, retained); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}
	return nil
}

// connected reports whether the session is currently up.
func (l *link) connected() bool {
	return l.session.IsConnected()
}

// stopAccepting makes every later publish fail with ErrShuttingDown.
// In-flight publishes finish before it returns.
func (l *link) stopAccepting() {
	l.mu.Lock()
	l.closing = true
	l.mu.Unlock()
}

// shutdown rejects further publishes, then unsubscribes and closes the
// session. Only the first call has an effect.
func (l *link) shutdown() {
	l.closeOnce.Do(l.close)
}

func (l *link) close() {
	l.stopAccepting()

	if l.session.IsConnected() {
		l.topicsMu.Lock()
		topics := l.topics
		l.topics = nil
		l.topicsMu.Unlock()

		for _, topic := range topics {
			if err := l.session.Unsubscribe(topic); err != nil {
				l.logWarn("unsubscribe failed", "topic", topic, "error", err)
			}
		}
	}

	if err := l.session.Close(); err != nil {
		l.logError("close failed", err)
	}
	l.logInfo("link closed")
}

func (l *link) resetTopics() {
	l.topicsMu.Lock()
	l.topics = nil
	l.topicsMu.Unlock()
}

func (l *link) drainLost() {
	select {
	case <-l.lost:
	default:
	}
}

func (l *link) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (l *link) reportState(up bool) {
	if l.onState != nil {
		l.onState(l.name, up)
	}
}

// SetLogger sets the logger for this link.
func (l *link) SetLogger(logger Logger) {
	l.loggerMu.Lock()
	l.logger = logger
	l.loggerMu.Unlock()
}

func (l *link) getLogger() Logger {
	l.loggerMu.RLock()
	defer l.loggerMu.RUnlock()
	return l.logger
}

func (l *link) logDebug(msg string, keysAndValues ...any) {
	if logger := l.getLogger(); logger != nil {
		logger.Debug(msg, append([]any{"link", l.name}, keysAndValues...)...)
	}
}

func (l *link) logInfo(msg string, keysAndValues ...any) {
	if logger := l.getLogger(); logger != nil {
		logger.Info(msg, append([]any{"link", l.name}, keysAndValues...)...)
	}
}

func (l *link) logWarn(msg string, keysAndValues ...any) {
	if logger := l.getLogger(); logger != nil {
		logger.Warn(msg, append([]any{"link", l.name}, keysAndValues...)...)
	}
}

func (l *link) logError(msg string, err error) {
	if logger := l.getLogger(); logger != nil {
		logger.Error(msg, "link", l.name, "error", err)
	}
}
