package devices

import (
	"context"
	"fmt"

	"github.com/tsarna/kiwibus/pkg/kiwibus/eventbus"
	"go.uber.org/zap"
)

// Pagination defaults.
const (
	DefaultOffset = 0
	DefaultLimit  = 50
)

// listenerPrefix starts the address of every live set listener.
const listenerPrefix = "CLIENT_"

// liveActions are the mock actions whose synthesized events reach live sets.
var liveActions = []string{ActionCreateDevice, ActionUpdateDevice, ActionDeleteDevice}

// Params are the query parameters sent with getDevices.
type Params struct {
	Filter     any  `json:"filter,omitempty"`
	Projection any  `json:"projection,omitempty"`
	Sorting    any  `json:"sorting,omitempty"`
	Offset     *int `json:"offset,omitempty"`
	Limit      *int `json:"limit,omitempty"`
}

// Set builds a device query.
type Set struct {
	bus      Bus
	logger   *zap.Logger
	params   Params
	live     bool
	onChange func(*Result, eventbus.Event)
}

// NewSet starts a query against bus.
func NewSet(bus Bus) *Set {
	return &Set{bus: bus, logger: zap.NewNop()}
}

// WithLogger sets the logger.
func (s *Set) WithLogger(logger *zap.Logger) *Set {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Filter restricts the query to devices matching filter.
func (s *Set) Filter(filter any) *Set {
	s.params.Filter = filter
	return s
}

// Project limits the properties returned for each device.
func (s *Set) Project(projection any) *Set {
	s.params.Projection = projection
	return s
}

// Sort sets the sort criteria.
func (s *Set) Sort(sorting any) *Set {
	s.params.Sorting = sorting
	return s
}

// Paginate requests limit devices starting at offset. A negative offset or a
// non-positive limit falls back to DefaultOffset and DefaultLimit.
func (s *Set) Paginate(offset, limit int) *Set {
	if offset < 0 {
		offset = DefaultOffset
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	s.params.Offset = &offset
	s.params.Limit = &limit
	return s
}

// Live keeps the result up to date with events pushed by the device service.
func (s *Set) Live() *Set {
	s.live = true
	return s
}

// OnChange sets a callback run after a pushed event modified a live result.
func (s *Set) OnChange(fn func(*Result, eventbus.Event)) *Set {
	s.onChange = fn
	return s
}

// Params returns the parameters the query will be sent with.
func (s *Set) Params() Params {
	return s.params
}

// Query sends getDevices and returns the result. A live query first
// registers a listener under a fresh "CLIENT_<uuid>" address and asks the
// device service to push changes of the set there; the listener is dropped
// again if the query fails.
func (s *Set) Query(ctx context.Context) (*Result, error) {
	result := &Result{bus: s.bus, params: s.params, logger: s.logger}

	if s.live {
		if err := s.registerListener(result); err != nil {
			return nil, err
		}
	}

	reply, err := s.bus.Request(ctx, eventbus.DeviceServiceAddress, eventbus.Message{
		Action: ActionGetDevices,
		Params: s.params,
	})
	if err == nil {
		err = reply.Err()
	}
	if err != nil {
		result.Close()
		return nil, fmt.Errorf("device query failed: %w", err)
	}

	result.load(reply)
	return result, nil
}

func (s *Set) registerListener(result *Result) error {
	id := listenerPrefix + eventbus.GenerateUUID()

	handler := func(event eventbus.Event) {
		if result.Sync(event) && s.onChange != nil {
			s.onChange(result, event)
		}
	}
	if !s.bus.RegisterBusHandler(id, handler, liveActions...) {
		return fmt.Errorf("failed to register device set listener: %w", eventbus.ErrNotOpen)
	}
	result.setListener(id)

	msg := eventbus.Message{
		Action: ActionRegisterDeviceSetListener,
		Body: map[string]any{
			"filter":       s.params.Filter,
			"projection":   s.params.Projection,
			"replyAddress": id,
		},
	}
	s.bus.Send(eventbus.DeviceServiceAddress, msg, func(reply eventbus.Reply) {
		if err := reply.Err(); err != nil {
			s.logger.Warn("Device set listener not registered", zap.String("listener", id), zap.Error(err))
			return
		}
		s.logger.Debug("Device set listener registered", zap.String("listener", id))
	})

	return nil
}
