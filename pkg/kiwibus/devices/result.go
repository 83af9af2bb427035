package devices

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/tsarna/kiwibus/pkg/kiwibus/eventbus"
	"go.uber.org/zap"
)

// Result is the outcome of a device query. Live results change as events
// arrive, so every accessor takes a lock.
type Result struct {
	bus    Bus
	params Params
	logger *zap.Logger

	mu       sync.RWMutex
	reply    eventbus.Reply
	devices  []*Device
	listener string
}

func (r *Result) load(reply eventbus.Reply) {
	var devices []*Device
	if result, ok := reply.Result.(map[string]any); ok {
		if items, ok := result["items"].([]any); ok {
			for _, item := range items {
				if properties, ok := item.(map[string]any); ok {
					devices = append(devices, NewDevice(r.bus, properties))
				}
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.reply = reply
	r.devices = devices
}

func (r *Result) setListener(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = id
}

// Params returns the parameters the query was sent with.
func (r *Result) Params() Params {
	return r.params
}

// Reply returns the getDevices reply the result was built from.
func (r *Result) Reply() eventbus.Reply {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reply
}

// Listener returns the address of the live listener, or "" for a result that
// is not live.
func (r *Result) Listener() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listener
}

// IndexOf returns the position of the device with guid, or -1.
func (r *Result) IndexOf(guid string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOfLocked(guid)
}

func (r *Result) indexOfLocked(guid string) int {
	return slices.IndexFunc(r.devices, func(d *Device) bool {
		return d.GUID() == guid
	})
}

// Len returns the number of devices.
func (r *Result) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// Get returns the device at index, or nil when index is out of range.
func (r *Result) Get(index int) *Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.devices) {
		return nil
	}
	return r.devices[index]
}

// All returns the devices in order.
func (r *Result) All() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.devices)
}

// Sync applies a pushed event: CREATED appends the device, DELETED removes it
// and UPDATED merges the pushed properties into it. It reports whether the
// result changed.
func (r *Result) Sync(event eventbus.Event) bool {
	properties, ok := deviceProperties(event.Value)
	if !ok {
		r.logger.Debug("Ignoring device event without device", zap.String("type", string(event.Type)))
		return false
	}
	guid, _ := properties["guid"].(string)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Type {
	case eventbus.EventCreated:
		r.devices = append(r.devices, NewDevice(r.bus, properties))
		return true

	case eventbus.EventDeleted:
		index := r.indexOfLocked(guid)
		if index == -1 {
			return false
		}
		r.devices = slices.Delete(r.devices, index, index+1)
		return true

	case eventbus.EventUpdated:
		index := r.indexOfLocked(guid)
		if index == -1 {
			return false
		}
		if err := r.devices[index].merge(properties); err != nil {
			r.logger.Warn("Failed to apply device update", zap.String("guid", guid), zap.Error(err))
			return false
		}
		return true
	}

	return false
}

// Close stops live updates. It is a no-op for results that are not live.
func (r *Result) Close() {
	r.mu.Lock()
	id := r.listener
	r.listener = ""
	r.mu.Unlock()

	if id != "" {
		r.bus.UnregisterBusHandler(id)
	}
}

// deviceProperties returns the JSON object form of a pushed event value.
func deviceProperties(value any) (map[string]any, bool) {
	if properties, ok := value.(map[string]any); ok {
		data, err := json.Marshal(properties)
		if err != nil {
			return nil, false
		}
		var normalized map[string]any
		if err := json.Unmarshal(data, &normalized); err != nil {
			return nil, false
		}
		return normalized, true
	}
	return nil, false
}
