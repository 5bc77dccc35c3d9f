package mower

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// DecodeStatus parses a vendor status message.
//
// The payload must be a single JSON object. Numbers are kept as json.Number
// so values are republished exactly as the device sent them.
func DecodeStatus(payload []byte) (map[string]any, error) {
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedPayload)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level is %T, want object", ErrMalformedPayload, doc)
	}
	return obj, nil
}

// MergeStatus deep-merges update into state and returns the dotted paths of
// every leaf that changed, sorted.
//
// Merge rules:
//   - keys missing from update keep their current value
//   - nested objects merge recursively
//   - arrays and scalars replace the current value, except that an existing
//     object is never replaced by a non-object, so no nested field is lost
//   - explicit nulls are ignored and never erase a field; an object holding
//     only nulls adds nothing
func MergeStatus(state, update map[string]any) []string {
	var changes []string
	mergeObject(state, update, "", &changes)
	sort.Strings(changes)
	return changes
}

func mergeObject(dst, src map[string]any, prefix string, changes *[]string) {
	for key, value := range src {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		if value == nil {
			continue
		}

		current, isObj := dst[key].(map[string]any)
		obj, ok := value.(map[string]any)
		switch {
		case ok && isObj:
			mergeObject(current, obj, path, changes)
		case ok:
			child := make(map[string]any, len(obj))
			var childChanges []string
			mergeObject(child, obj, path, &childChanges)
			if len(child) == 0 && len(obj) > 0 {
				continue
			}
			if _, existed := dst[key]; existed || len(obj) == 0 {
				*changes = append(*changes, path)
			}
			dst[key] = child
			*changes = append(*changes, childChanges...)
		case isObj:
			// Type conflict: keep the object.
		default:
			if old, exists := dst[key]; exists && valuesEqual(old, value) {
				continue
			}
			dst[key] = copyValue(value)
			*changes = append(*changes, path)
		}
	}
}

// valuesEqual compares decoded JSON values.
func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			if other, ok := bv[k]; !ok || !valuesEqual(v, other) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// Extract returns the value at a dotted path. Numeric segments index arrays.
func Extract(state map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = state
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			current = node[i]
		default:
			return nil, false
		}
	}

	if current == nil {
		return nil, false
	}
	return current, true
}

// ExtractField is Extract with the brand's path for a logical field.
func ExtractField(brand Brand, state map[string]any, field Field) (any, bool) {
	return Extract(state, brand.Path(field))
}

// ToCloudCommand validates a private command for a device before it is
// relayed upstream. Commands are forwarded verbatim: the returned payload is
// the input.
func ToCloudCommand(key DeviceKey, payload []byte) ([]byte, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, fmt.Errorf("%w: empty payload for %s", ErrMalformedCommand, key)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: invalid JSON for %s", ErrMalformedCommand, key)
	}
	return payload, nil
}

// discoveryFields are the fields that appear in discovery device metadata.
var discoveryFields = []Field{FieldFirmware, FieldMAC, FieldSerial}

// DiscoveryRelevant reports whether any changed path touches a field that
// is rendered into discovery configs.
func DiscoveryRelevant(brand Brand, changes []string) bool {
	for _, field := range discoveryFields {
		path := brand.Path(field)
		for _, change := range changes {
			if change == path || strings.HasPrefix(change, path+".") || strings.HasPrefix(path, change+".") {
				return true
			}
		}
	}
	return false
}

// EncodeDocument serialises a status or state document. Object keys are
// sorted so equal documents encode to equal bytes.
func EncodeDocument(doc map[string]any) ([]byte, error) {
	return json.Marshal(doc)
}

// asInt converts a decoded JSON number (or numeric string) to an integer.
// Fractional values are truncated.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}

// asFloat converts a decoded JSON number (or numeric string) to a float.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// formatMinutes renders a minute counter as "3d 04h 05min".
func formatMinutes(total int64) string {
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%dd %02dh %02dmin", total/1440, (total%1440)/60, total%60)
}

// formatKilometres renders a metre counter as whole kilometres, "12 km".
func formatKilometres(metres float64) string {
	return fmt.Sprintf("%d km", int64(math.Trunc(metres/1000)))
}
