package mower

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// BridgeState is the controller lifecycle state.
type BridgeState int

// Controller states. Running and Degraded alternate while links come and go.
const (
	StateStarting BridgeState = iota
	StateConnecting
	StateRunning
	StateDegraded
	StateShuttingDown
	StateStopped
)

func (s BridgeState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateDegraded:
		return "degraded"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Heartbeat defaults.
const (
	DefaultOfflineTimeout = 15 * time.Minute
	DefaultSweepInterval  = time.Minute
)

// ControllerOptions holds everything needed to build a BridgeController.
type ControllerOptions struct {
	// CloudSession and PrivateSession are the two broker sessions.
	CloudSession   Session
	PrivateSession Session

	// Topics builds private and discovery topics.
	Topics Topics

	// Brands are the cloud brand prefixes to subscribe.
	Brands []string

	// Devices are asked for a full status on every cloud connect.
	Devices []DeviceKey

	// Retry controls reconnect backoff of both links.
	Retry RetryPolicy

	// OfflineTimeout marks a device offline when no status arrived for
	// this long. Default: 15 minutes.
	OfflineTimeout time.Duration

	// SweepInterval is how often the offline check runs. Default: 1 minute.
	SweepInterval time.Duration

	// HealthInterval is how often health is published. Default: 30 seconds.
	HealthInterval time.Duration

	// Version is reported in health messages.
	Version string

	// Logger is optional.
	Logger Logger
}

// BridgeController relays status from the cloud to the private broker and
// commands the other way, and keeps discovery and availability current.
//
// Thread Safety: All methods are safe for concurrent use.
type BridgeController struct {
	topics    Topics
	registry  *Registry
	cloud     *CloudLink
	private   *PrivateLink
	discovery *DiscoveryPublisher
	health    *HealthReporter

	offlineTimeout time.Duration
	sweepInterval  time.Duration

	state   BridgeState
	linksUp map[string]bool
	stateMu sync.RWMutex

	started      atomic.Bool
	stoppingOnce sync.Once

	// now is replaceable in tests.
	now func() time.Time

	logger Logger
}

// NewBridgeController wires the links, registry, discovery and health
// reporting together. Call Run to start.
func NewBridgeController(opts ControllerOptions) (*BridgeController, error) {
	b := &BridgeController{
		topics:         opts.Topics,
		registry:       NewRegistry(),
		offlineTimeout: opts.OfflineTimeout,
		sweepInterval:  opts.SweepInterval,
		state:          StateStarting,
		linksUp:        map[string]bool{LinkCloud: false, LinkPrivate: false},
		now:            time.Now,
	}
	if b.topics == (Topics{}) {
		b.topics = NewTopics("", "")
	}
	if b.offlineTimeout <= 0 {
		b.offlineTimeout = DefaultOfflineTimeout
	}
	if b.sweepInterval <= 0 {
		b.sweepInterval = DefaultSweepInterval
	}

	cloud, err := NewCloudLink(CloudLinkOptions{
		Session:  opts.CloudSession,
		Brands:   opts.Brands,
		Devices:  opts.Devices,
		Retry:    opts.Retry,
		OnStatus: b.handleStatus,
	})
	if err != nil {
		return nil, err
	}
	cloud.onState = b.onLinkState
	b.cloud = cloud

	private, err := NewPrivateLink(PrivateLinkOptions{
		Session:     opts.PrivateSession,
		Topics:      b.topics,
		Retry:       opts.Retry,
		OnCommand:   b.handleCommand,
		OnConnected: b.onPrivateConnected,
	})
	if err != nil {
		return nil, err
	}
	private.onState = b.onLinkState
	b.private = private

	b.discovery = NewDiscoveryPublisher(b.topics, private)
	b.health = NewHealthReporter(HealthReporterConfig{
		Topic:     b.topics.BridgeHealth(),
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: private,
		Source:    b,
	})

	if opts.Logger != nil {
		b.logger = withComponent(opts.Logger, "controller")
		cloud.SetLogger(withComponent(opts.Logger, "link"))
		private.SetLogger(withComponent(opts.Logger, "link"))
		b.health.SetLogger(withComponent(opts.Logger, "health"))
	}

	return b, nil
}

// Run connects both links and relays until ctx is cancelled, then shuts
// down gracefully. It returns nil after a normal shutdown and an error
// wrapping ErrAuth if either broker rejected the credentials.
func (b *BridgeController) Run(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return errors.New("bridge controller already started")
	}

	b.setState(StateConnecting)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.cloud.run(gctx) })
	g.Go(func() error { return b.private.run(gctx) })
	g.Go(func() error {
		b.sweepLoop(gctx)
		return nil
	})
	b.health.Start(gctx)

	// Reject new work as soon as ctx ends, while the link loops wind down.
	stopAfter := context.AfterFunc(ctx, b.beginShutdown)
	defer stopAfter()

	err := g.Wait()
	if err != nil {
		b.logError("bridge stopping on fatal error", err)
	}

	b.shutdown()
	return err
}

// beginShutdown enters ShuttingDown, publishes the final health message and
// makes both links reject further publishes. Safe to call more than once;
// later callers wait for the first to finish.
func (b *BridgeController) beginShutdown() {
	b.stoppingOnce.Do(func() {
		b.setState(StateShuttingDown)
		b.cloud.stopAccepting()
		b.health.Stop()
		b.private.stopAccepting()
	})
}

// shutdown closes the cloud and private links after beginShutdown. The
// bridge offline message goes out as the private session closes.
func (b *BridgeController) shutdown() {
	b.beginShutdown()

	b.cloud.shutdown()
	b.private.shutdown()

	b.setState(StateStopped)
}

// handleStatus merges a cloud status message into the device and publishes
// the results. Malformed payloads are dropped without touching state.
func (b *BridgeController) handleStatus(brandCode, serial string, payload []byte) {
	key := DeviceKey{Brand: brandCode, Serial: serial}
	topic := CloudStatus(brandCode, serial)

	brand, err := LookupBrand(brandCode)
	if err != nil {
		b.logWarn("dropping status", "brand", brandCode, "serial", serial, "topic", topic, "error", err)
		return
	}

	update, err := DecodeStatus(payload)
	if err != nil {
		b.logWarn("dropping malformed status", "brand", brandCode, "serial", serial, "topic", topic, "error", err)
		return
	}

	created, _ := b.registry.Update(key, func(dev *MowerDevice) error {
		wasOnline := dev.Online
		changes := MergeStatus(dev.State, update)
		dev.LastUpdate = b.now()
		dev.Online = true

		if !dev.DiscoveryPublished || DiscoveryRelevant(brand, changes) {
			if err := b.discovery.Publish(dev); err != nil {
				b.logPublishError("discovery publish failed", key, err)
			}
		}

		if !wasOnline {
			if err := b.private.PublishAvailability(key, true); err != nil {
				b.logPublishError("availability publish failed", key, err)
			}
		}

		merged, err := EncodeDocument(dev.State)
		if err != nil {
			b.logWarn("encoding status failed", "brand", key.Brand, "serial", key.Serial, "error", err)
			return nil
		}
		derived, err := EncodeDocument(EntityValues(brand, dev.State))
		if err != nil {
			b.logWarn("encoding state failed", "brand", key.Brand, "serial", key.Serial, "error", err)
			return nil
		}
		if err := b.private.PublishStatus(key, merged, derived); err != nil {
			b.logPublishError("status publish failed", key, err)
		}

		b.logDebug("status merged", "brand", key.Brand, "serial", key.Serial, "changes", len(changes))
		return nil
	})

	if created {
		b.logInfo("new device", "brand", key.Brand, "serial", key.Serial, "devices", b.registry.Count())
	}
}

// handleCommand validates a private command and relays it to the cloud.
func (b *BridgeController) handleCommand(brand, serial string, payload []byte) {
	key := DeviceKey{Brand: brand, Serial: serial}
	topic := b.topics.Command(brand, serial)

	if _, err := LookupBrand(brand); err != nil {
		b.logWarn("dropping command", "brand", brand, "serial", serial, "topic", topic, "error", err)
		return
	}

	cmd, err := ToCloudCommand(key, payload)
	if err != nil {
		b.logWarn("dropping malformed command", "brand", brand, "serial", serial, "topic", topic, "error", err)
		return
	}

	if err := b.cloud.SendCommand(brand, serial, cmd); err != nil {
		b.logPublishError("command relay failed", key, err)
		return
	}
	b.logDebug("command relayed", "brand", brand, "serial", serial)
}

// onPrivateConnected runs on every new private session. Retained discovery
// and availability may have been lost with the broker, so both are
// republished for every known device.
func (b *BridgeController) onPrivateConnected(_ context.Context) error {
	for _, key := range b.registry.Keys() {
		//nolint:errcheck // the callback never fails
		b.registry.Visit(key, func(dev *MowerDevice) error {
			dev.DiscoveryPublished = false
			if err := b.discovery.Publish(dev); err != nil {
				b.logPublishError("discovery republish failed", key, err)
			}
			if err := b.private.PublishAvailability(key, dev.Online); err != nil {
				b.logPublishError("availability republish failed", key, err)
			}
			return nil
		})
	}
	return nil
}

// onLinkState updates the lifecycle state when a link goes up or down.
func (b *BridgeController) onLinkState(name string, up bool) {
	if name == LinkCloud && !up {
		b.markAllOffline()
	}

	b.stateMu.Lock()
	b.linksUp[name] = up
	prev, next := b.state, b.nextStateLocked()
	changed := b.transitionLocked(next)
	b.stateMu.Unlock()

	if changed {
		b.logInfo("bridge state changed", "from", prev.String(), "to", next.String(), "link", name, "up", up)
	}

	if b.private.IsConnected() {
		if err := b.health.PublishNow(); err != nil {
			b.logPublishError("health publish failed", DeviceKey{}, err)
		}
	}
}

// nextStateLocked derives the state from link connectivity.
// Caller must hold stateMu.
func (b *BridgeController) nextStateLocked() BridgeState {
	cloudUp, privateUp := b.linksUp[LinkCloud], b.linksUp[LinkPrivate]

	switch b.state {
	case StateShuttingDown, StateStopped:
		return b.state
	}

	switch {
	case cloudUp && privateUp:
		return StateRunning
	case !cloudUp && !privateUp:
		return StateConnecting
	case b.state == StateRunning || b.state == StateDegraded:
		return StateDegraded
	default:
		return b.state
	}
}

func (b *BridgeController) setState(next BridgeState) {
	b.stateMu.Lock()
	prev := b.state
	changed := b.transitionLocked(next)
	b.stateMu.Unlock()

	if changed {
		b.logInfo("bridge state changed", "from", prev.String(), "to", next.String())
	}
}

// transitionLocked moves to next unless already there or stopped.
// Caller must hold stateMu.
func (b *BridgeController) transitionLocked(next BridgeState) bool {
	if b.state == StateStopped || b.state == next {
		return false
	}
	b.state = next
	return true
}

// markAllOffline marks every online device offline.
func (b *BridgeController) markAllOffline() {
	for _, key := range b.registry.Keys() {
		b.setOffline(key, func(*MowerDevice) bool { return true })
	}
}

// sweepLoop marks devices offline once their status goes stale.
func (b *BridgeController) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(b.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweep()
		}
	}
}

func (b *BridgeController) sweep() {
	now := b.now()
	for _, key := range b.registry.Keys() {
		if b.setOffline(key, func(dev *MowerDevice) bool {
			return now.Sub(dev.LastUpdate) > b.offlineTimeout
		}) {
			b.logInfo("device offline", "brand", key.Brand, "serial", key.Serial,
				"timeout", b.offlineTimeout.String())
		}
	}
}

// setOffline marks an online device offline when stale reports true and
// publishes its availability. It reports whether the device changed.
func (b *BridgeController) setOffline(key DeviceKey, stale func(*MowerDevice) bool) bool {
	var changed bool
	//nolint:errcheck // the callback never fails
	b.registry.Visit(key, func(dev *MowerDevice) error {
		if !dev.Online || !stale(dev) {
			return nil
		}
		dev.Online = false
		changed = true
		if err := b.private.PublishAvailability(key, false); err != nil {
			b.logPublishError("availability publish failed", key, err)
		}
		return nil
	})
	return changed
}

// State returns the current lifecycle state.
func (b *BridgeController) State() BridgeState {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

// CloudConnected reports whether the cloud link is up.
func (b *BridgeController) CloudConnected() bool {
	return b.cloud.connected()
}

// PrivateConnected reports whether the private link is up.
func (b *BridgeController) PrivateConnected() bool {
	return b.private.connected()
}

// DeviceCount returns the number of known devices.
func (b *BridgeController) DeviceCount() int {
	return b.registry.Count()
}

// Device returns a copy of a known device.
func (b *BridgeController) Device(key DeviceKey) (MowerDevice, bool) {
	return b.registry.Get(key)
}

func (b *BridgeController) logPublishError(msg string, key DeviceKey, err error) {
	args := []any{"error", err}
	if key != (DeviceKey{}) {
		args = append(args, "brand", key.Brand, "serial", key.Serial)
	}
	if errors.Is(err, ErrShuttingDown) {
		b.logDebug(msg, args...)
		return
	}
	b.logWarn(msg, args...)
}

// componentLogger tags every record with the component that wrote it.
type componentLogger struct {
	logger    Logger
	component string
}

func withComponent(logger Logger, component string) Logger {
	return componentLogger{logger: logger, component: component}
}

func (l componentLogger) with(keysAndValues []any) []any {
	return append([]any{"component", l.component}, keysAndValues...)
}

func (l componentLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, l.with(keysAndValues)...)
}

func (l componentLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, l.with(keysAndValues)...)
}

func (l componentLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warn(msg, l.with(keysAndValues)...)
}

func (l componentLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error(msg, l.with(keysAndValues)...)
}

func (b *BridgeController) logDebug(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, keysAndValues...)
	}
}

func (b *BridgeController) logInfo(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Info(msg, keysAndValues...)
	}
}

func (b *BridgeController) logWarn(msg string, keysAndValues ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, keysAndValues...)
	}
}

func (b *BridgeController) logError(msg string, err error) {
	if b.logger != nil {
		b.logger.Error(msg, "error", err)
	}
}
