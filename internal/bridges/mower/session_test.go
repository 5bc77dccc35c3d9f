package mower

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// fakeSession implements Session for testing.
type fakeSession struct {
	mu           sync.Mutex
	connected    bool
	failConnect  error
	connectErrs  []error
	connectCalls int
	published    []fakePublish
	subs         map[string]func(topic string, payload []byte)
	unsubscribed []string
	onDisconnect func(error)
	closeCalls   int

	// connectGate, when set, holds Connect until it is closed,
	// ignoring ctx.
	connectGate chan struct{}
	gateWaits   int
}

type fakePublish struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{subs: make(map[string]func(topic string, payload []byte))}
}

func (f *fakeSession) Connect(ctx context.Context) error {
	f.mu.Lock()
	gate := f.connectGate
	if gate != nil {
		f.gateWaits++
	}
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	if gate != nil {
		return f.failConnect
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	if f.failConnect != nil {
		return f.failConnect
	}
	f.connected = true
	return nil
}

func (f *fakeSession) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return errors.New("fake: not connected")
	}
	f.published = append(f.published, fakePublish{
		Topic:    topic,
		Payload:  string(payload),
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (f *fakeSession) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return errors.New("fake: not connected")
	}
	f.subs[topic] = handler
	return nil
}

func (f *fakeSession) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, topic)
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

func (f *fakeSession) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSession) SetOnDisconnect(callback func(err error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisconnect = callback
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.closeCalls++
	return nil
}

// drop simulates a lost connection.
func (f *fakeSession) drop(err error) {
	f.mu.Lock()
	f.connected = false
	f.subs = make(map[string]func(topic string, payload []byte))
	callback := f.onDisconnect
	f.mu.Unlock()

	if callback != nil {
		callback(err)
	}
}

func (f *fakeSession) setFailConnect(err error) {
	f.mu.Lock()
	f.failConnect = err
	f.mu.Unlock()
}

// deliver simulates an inbound message, routed like a broker would.
func (f *fakeSession) deliver(topic string, payload string) bool {
	f.mu.Lock()
	var handler func(string, []byte)
	for filter, h := range f.subs {
		if topicMatches(filter, topic) {
			handler = h
			break
		}
	}
	f.mu.Unlock()

	if handler == nil {
		return false
	}
	handler(topic, []byte(payload))
	return true
}

func (f *fakeSession) publishedTo(topic string) []fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakePublish
	for _, p := range f.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeSession) publishedWithPrefix(prefix string) []fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakePublish
	for _, p := range f.published {
		if strings.HasPrefix(p.Topic, prefix) {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeSession) subscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[topic]
	return ok
}

func (f *fakeSession) stats() (connectCalls, closeCalls int, unsubscribed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls, f.closeCalls, append([]string(nil), f.unsubscribed...)
}

// topicMatches implements MQTT filter matching for + and #.
func topicMatches(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, part := range fp {
		if part == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if part != "+" && part != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}

// testRetry keeps reconnect tests fast.
var testRetry = RetryPolicy{
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
	Multiplier:   2,
}

// recordingLogger implements Logger and keeps every line with its fields.
type recordingLogger struct {
	mu     sync.Mutex
	lines  []string
	fields [][]any
}

func (l *recordingLogger) record(level, msg string, keysAndValues []any) {
	l.mu.Lock()
	l.lines = append(l.lines, level+" "+msg)
	l.fields = append(l.fields, keysAndValues)
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, kv ...any) { l.record("DEBUG", msg, kv) }
func (l *recordingLogger) Info(msg string, kv ...any)  { l.record("INFO", msg, kv) }
func (l *recordingLogger) Warn(msg string, kv ...any)  { l.record("WARN", msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...any) { l.record("ERROR", msg, kv) }

func (l *recordingLogger) has(line string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.lines {
		if got == line {
			return true
		}
	}
	return false
}

// field returns the value of key on the first record matching line.
func (l *recordingLogger) field(line, key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, got := range l.lines {
		if got != line {
			continue
		}
		kv := l.fields[i]
		for j := 0; j+1 < len(kv); j += 2 {
			if kv[j] == key {
				return kv[j+1], true
			}
		}
		return nil, false
	}
	return nil, false
}
