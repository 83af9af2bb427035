package devices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/tsarna/go-structdiff"
	"github.com/tsarna/kiwibus/pkg/kiwibus/eventbus"
)

// Device service actions.
const (
	ActionGetDevices                = "getDevices"
	ActionUpdateDevice              = "updateDevice"
	ActionDeleteDevice              = "deleteDevice"
	ActionCreateDevice              = "createDevice"
	ActionRegisterDeviceSetListener = "registerDeviceSetListener"
)

// ErrNoChanges is returned by Device.Update when no tag value differs from
// the one the device was loaded with.
var ErrNoChanges = errors.New("no changes found")

// Bus is the part of an eventbus.Client devices need.
type Bus interface {
	Send(address string, msg eventbus.Message, handler eventbus.ReplyHandler)
	Request(ctx context.Context, address string, msg eventbus.Message) (eventbus.Reply, error)
	RegisterBusHandler(id string, handler eventbus.Handler, actions ...string) bool
	UnregisterBusHandler(id string) bool
}

// TagValue is the current value of one device tag. OCA is the optimistic
// concurrency counter the server checks on update.
type TagValue struct {
	Value any   `json:"value"`
	OCA   int64 `json:"oca"`
}

// Device is one device as returned by the device service. It is safe for
// concurrent use, since live sets merge pushed updates into it.
type Device struct {
	bus Bus

	mu         sync.RWMutex
	guid       string
	properties map[string]any
	tagValues  map[string]TagValue
	pristine   map[string]TagValue
}

// NewDevice creates a Device from the properties the device service sent.
func NewDevice(bus Bus, properties map[string]any) *Device {
	d := &Device{bus: bus}
	d.load(properties)
	return d
}

// load replaces every property and makes the tag values pristine.
func (d *Device) load(properties map[string]any) {
	d.properties = maps.Clone(properties)
	if d.properties == nil {
		d.properties = make(map[string]any)
	}
	d.guid, _ = d.properties["guid"].(string)
	d.tagValues = decodeTagValues(d.properties["tagValues"])
	d.pristine = maps.Clone(d.tagValues)
}

func decodeTagValues(raw any) map[string]TagValue {
	tagValues := make(map[string]TagValue)
	if raw == nil {
		return tagValues
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return tagValues
	}
	if err := json.Unmarshal(data, &tagValues); err != nil {
		return make(map[string]TagValue)
	}
	return tagValues
}

// GUID returns the device's identifier.
func (d *Device) GUID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.guid
}

// Properties returns a shallow copy of every property the device carries.
func (d *Device) Properties() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.properties)
}

// TagValue returns the current value of tag name.
func (d *Device) TagValue(name string) (TagValue, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	tag, ok := d.tagValues[name]
	return tag, ok
}

// TagValues returns a copy of the current tag values.
func (d *Device) TagValues() map[string]TagValue {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.tagValues)
}

// SetTagValue changes the value of tag name locally. The OCA of an existing
// tag is kept. Nothing is sent until Update.
func (d *Device) SetTagValue(name string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tag := d.tagValues[name]
	tag.Value = value
	d.tagValues[name] = tag
}

// Changes returns the tags whose value differs from the pristine copy.
func (d *Device) Changes() (map[string]TagValue, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.changesLocked()
}

func (d *Device) changesLocked() (map[string]TagValue, error) {
	before, err := tagValueMap(d.pristine)
	if err != nil {
		return nil, err
	}
	after, err := tagValueMap(d.tagValues)
	if err != nil {
		return nil, err
	}

	diff, err := structdiff.Diff(before, after)
	if err != nil {
		return nil, fmt.Errorf("failed to diff tag values: %w", err)
	}
	patch, _ := any(diff).(map[string]any)

	changes := make(map[string]TagValue, len(patch))
	for name := range patch {
		// tags removed locally are not sent
		if tag, ok := d.tagValues[name]; ok {
			changes[name] = tag
		}
	}
	return changes, nil
}

// tagValueMap maps tag names to plain JSON values so changes are detected by
// value and not by Go type.
func tagValueMap(tagValues map[string]TagValue) (map[string]any, error) {
	values := make(map[string]any, len(tagValues))
	for name, tag := range tagValues {
		data, err := json.Marshal(tag.Value)
		if err != nil {
			return nil, fmt.Errorf("tag %s: %w", name, err)
		}
		var value any
		if err := json.Unmarshal(data, &value); err != nil {
			return nil, fmt.Errorf("tag %s: %w", name, err)
		}
		values[name] = value
	}
	return values, nil
}

// Update sends the changed tag values to the device service. It returns
// ErrNoChanges without sending anything if nothing changed. On success the
// current values become the pristine ones.
func (d *Device) Update(ctx context.Context) (eventbus.Reply, error) {
	d.mu.RLock()
	guid := d.guid
	changes, err := d.changesLocked()
	d.mu.RUnlock()
	if err != nil {
		return eventbus.Reply{}, err
	}
	if len(changes) == 0 {
		return eventbus.Reply{}, ErrNoChanges
	}

	reply, err := d.bus.Request(ctx, eventbus.DeviceServiceAddress, eventbus.Message{
		Action: ActionUpdateDevice,
		Params: map[string]any{"deviceId": guid},
		Body:   map[string]any{"tagValues": changes},
	})
	if err != nil {
		return reply, err
	}
	if !reply.OK() {
		return reply, reply.Err()
	}

	d.mu.Lock()
	for name, tag := range changes {
		d.pristine[name] = tag
	}
	d.mu.Unlock()

	return reply, nil
}

// Delete asks the device service to delete the device.
func (d *Device) Delete(ctx context.Context) (eventbus.Reply, error) {
	reply, err := d.bus.Request(ctx, eventbus.DeviceServiceAddress, eventbus.Message{
		Action: ActionDeleteDevice,
		Params: map[string]any{"deviceId": d.GUID()},
	})
	if err != nil {
		return reply, err
	}
	return reply, reply.Err()
}

// Reset discards local tag value changes.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tagValues = maps.Clone(d.pristine)
}

// merge applies pushed properties on top of the current ones. Tag values
// arriving this way are pristine.
func (d *Device) merge(properties map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	merged := maps.Clone(d.properties)
	if err := structdiff.Apply(&merged, properties); err != nil {
		return fmt.Errorf("failed to merge device %s: %w", d.guid, err)
	}
	d.load(merged)
	return nil
}
