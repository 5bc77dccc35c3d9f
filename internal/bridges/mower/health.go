package mower

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// HealthStatus is the overall bridge health.
type HealthStatus string

// Health status values.
const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

const defaultHealthInterval = 30 * time.Second

// HealthMessage is the retained document on {namespace}/health.
type HealthMessage struct {
	Status        HealthStatus `json:"status"`
	State         string       `json:"state"`
	Reason        string       `json:"reason,omitempty"`
	Version       string       `json:"version"`
	Cloud         LinkHealth   `json:"cloud"`
	Private       LinkHealth   `json:"private"`
	Devices       int          `json:"devices"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Timestamp     time.Time    `json:"timestamp"`
}

// LinkHealth describes one broker connection.
type LinkHealth struct {
	Connected bool `json:"connected"`
}

// HealthPublisher publishes health messages.
type HealthPublisher interface {
	Publish(topic string, payload []byte, retained bool) error
	IsConnected() bool
}

// HealthSource exposes the bridge state the reporter describes.
type HealthSource interface {
	State() BridgeState
	CloudConnected() bool
	PrivateConnected() bool
	DeviceCount() int
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Topic is where health messages are published.
	Topic string

	// Version is the bridge software version.
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher
	Source    HealthSource
}

// HealthReporter publishes bridge health at a fixed interval.
type HealthReporter struct {
	topic     string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	source    HealthSource

	// now is replaceable in tests.
	now func() time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a health reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		topic:     cfg.Topic,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		source:    cfg.Source,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		h.publish(HealthStopping, "bridge stopping")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishNow publishes the current health immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if h.publisher == nil || !h.publisher.IsConnected() {
				continue
			}
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	switch {
	case h.source == nil:
		return HealthHealthy, ""
	case !h.source.CloudConnected():
		return HealthDegraded, "cloud disconnected"
	case !h.source.PrivateConnected():
		return HealthDegraded, "private broker disconnected"
	default:
		return HealthHealthy, ""
	}
}

// Message builds a health message without publishing it.
func (h *HealthReporter) Message(status HealthStatus, reason string) HealthMessage {
	now := h.now()
	msg := HealthMessage{
		Status:        status,
		Reason:        reason,
		Version:       h.version,
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Timestamp:     now.UTC(),
	}
	if h.source != nil {
		msg.State = h.source.State().String()
		msg.Cloud.Connected = h.source.CloudConnected()
		msg.Private.Connected = h.source.PrivateConnected()
		msg.Devices = h.source.DeviceCount()
	}
	return msg
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(h.Message(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
