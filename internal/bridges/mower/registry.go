package mower

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// DeviceKey identifies a mower. It never changes for the life of a device.
type DeviceKey struct {
	Brand  string
	Serial string
}

// String returns "BRAND/SERIAL".
func (k DeviceKey) String() string {
	return k.Brand + "/" + k.Serial
}

// MowerDevice is the bridge's view of one mower.
type MowerDevice struct {
	Key DeviceKey

	// State is the merged vendor status document. It only grows or updates
	// by field-level merge; fields are never removed.
	State map[string]any

	// Online is true while status messages keep arriving.
	Online bool

	// DiscoveryPublished is true once every discovery config of the device
	// was published on the current private session.
	DiscoveryPublished bool

	// LastUpdate is when the last status message was merged.
	LastUpdate time.Time
}

// Registry holds every device seen since startup.
//
// The index is guarded by an RWMutex; each device has its own mutex so an
// update of one device (merge plus publishes) is serialized while different
// devices proceed in parallel. Devices are never removed.
type Registry struct {
	mu      sync.RWMutex
	devices map[DeviceKey]*registryEntry
}

type registryEntry struct {
	mu  sync.Mutex
	dev MowerDevice
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[DeviceKey]*registryEntry),
	}
}

// Update runs fn with exclusive access to the device, creating the device
// with an empty state first if it is unknown.
//
// Returns:
//   - created: true if this call created the device
//   - error: whatever fn returned
func (r *Registry) Update(key DeviceKey, fn func(dev *MowerDevice) error) (created bool, err error) {
	e, created := r.entry(key, true)

	e.mu.Lock()
	defer e.mu.Unlock()
	return created, fn(&e.dev)
}

// Visit runs fn with exclusive access to an existing device.
// It reports false without calling fn if the device is unknown.
func (r *Registry) Visit(key DeviceKey, fn func(dev *MowerDevice) error) (bool, error) {
	e, _ := r.entry(key, false)
	if e == nil {
		return false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return true, fn(&e.dev)
}

// Get returns a deep copy of a device.
func (r *Registry) Get(key DeviceKey) (MowerDevice, bool) {
	e, _ := r.entry(key, false)
	if e == nil {
		return MowerDevice{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dev.DeepCopy(), true
}

// Keys returns every device key, sorted by brand then serial.
func (r *Registry) Keys() []DeviceKey {
	r.mu.RLock()
	keys := lo.Keys(r.devices)
	r.mu.RUnlock()

	slices.SortFunc(keys, func(a, b DeviceKey) int {
		if c := cmp.Compare(a.Brand, b.Brand); c != 0 {
			return c
		}
		return cmp.Compare(a.Serial, b.Serial)
	})
	return keys
}

// Count returns the number of known devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// entry looks up a device, optionally creating it.
func (r *Registry) entry(key DeviceKey, create bool) (*registryEntry, bool) {
	r.mu.RLock()
	e, ok := r.devices[key]
	r.mu.RUnlock()
	if ok || !create {
		return e, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.devices[key]; ok {
		return e, false
	}
	e = &registryEntry{dev: MowerDevice{Key: key, State: make(map[string]any)}}
	r.devices[key] = e
	return e, true
}

// DeepCopy returns a copy of the device whose State shares no maps or slices
// with the original.
func (d MowerDevice) DeepCopy() MowerDevice {
	cp := d
	cp.State = copyObject(d.State)
	return cp
}

func copyObject(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyObject(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return val
	}
}
