package eventbus

import (
	"go.uber.org/zap"
)

// LifecycleEvent names the connection events handlers can subscribe to.
type LifecycleEvent string

const (
	EventOnOpen  LifecycleEvent = "onOpen"
	EventOnClose LifecycleEvent = "onClose"
)

// Address and action used to drop every server-side listener of a client.
const (
	DeviceServiceAddress         = "deviceservice"
	ActionUnregisterAllListeners = "unregisterAllListeners"
)

type registration struct {
	id      string
	handler Handler
	actions map[string]struct{} // mock mode only
}

// RegisterBusHandler registers handler for events pushed to id. In mock mode
// actions lists the request actions whose mocked replies are turned into
// events for this handler. It returns false if the client is not OPEN or id
// is already registered. Registrations outlive a lost connection and are
// sent again when the client reconnects.
func (c *Client) RegisterBusHandler(id string, handler Handler, actions ...string) bool {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		c.logger.Error("Cannot register bus handler, EventBus not open", zap.String("id", id))
		return false
	}

	if _, exists := c.busHandlers[id]; exists {
		c.mu.Unlock()
		c.logger.Warn("Bus handler already registered", zap.String("id", id))
		return false
	}

	reg := &registration{id: id, handler: handler}
	if c.config.MockMode {
		reg.actions = make(map[string]struct{}, len(actions))
		for _, action := range actions {
			reg.actions[action] = struct{}{}
		}
	}
	c.busHandlers[id] = reg
	transport := c.transport
	c.mu.Unlock()

	c.logger.Debug("Registered bus handler", zap.String("id", id), zap.Strings("actions", actions))

	if transport != nil {
		if err := transport.Send(Frame{Type: FrameRegister, Address: id}); err != nil {
			c.logger.Warn("Failed to send register frame", zap.String("id", id), zap.Error(err))
		}
	}

	return true
}

// UnregisterBusHandler removes the handler registered under id. It returns
// false if the client is not OPEN or id is unknown.
func (c *Client) UnregisterBusHandler(id string) bool {
	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		c.logger.Warn("Cannot unregister bus handler, EventBus not open", zap.String("id", id))
		return false
	}

	if _, exists := c.busHandlers[id]; !exists {
		c.mu.Unlock()
		c.logger.Warn("Bus handler not registered", zap.String("id", id))
		return false
	}

	delete(c.busHandlers, id)
	transport := c.transport
	c.mu.Unlock()

	c.logger.Debug("Unregistered bus handler", zap.String("id", id))

	if transport != nil {
		if err := transport.Send(Frame{Type: FrameUnregister, Address: id}); err != nil {
			c.logger.Warn("Failed to send unregister frame", zap.String("id", id), zap.Error(err))
		}
	}

	return true
}

// HasBusHandler reports whether a handler is registered under id.
func (c *Client) HasBusHandler(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.busHandlers[id]
	return exists
}

// RegisterEventHandler registers fn to run on every open or close of the
// connection. It returns false for an unknown event or a duplicate id.
func (c *Client) RegisterEventHandler(event LifecycleEvent, id string, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	handlers := c.lifecycleMapLocked(event)
	if handlers == nil {
		c.logger.Warn("Unknown lifecycle event", zap.String("event", string(event)))
		return false
	}

	if _, exists := handlers[id]; exists {
		c.logger.Warn("Event handler already registered", zap.String("event", string(event)), zap.String("id", id))
		return false
	}

	handlers[id] = fn
	return true
}

// UnregisterEventHandler removes a handler added by RegisterEventHandler.
func (c *Client) UnregisterEventHandler(event LifecycleEvent, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	handlers := c.lifecycleMapLocked(event)
	if handlers == nil {
		return false
	}

	if _, exists := handlers[id]; !exists {
		return false
	}

	delete(handlers, id)
	return true
}

func (c *Client) lifecycleMapLocked(event LifecycleEvent) map[string]func() {
	switch event {
	case EventOnOpen:
		return c.onOpen
	case EventOnClose:
		return c.onClose
	default:
		return nil
	}
}

// NavigationStart tears down everything registered for the current view:
// every bus handler is unregistered, the server is told to drop all
// listeners of this client, and with auto-unregister enabled the open and
// close handlers are cleared too.
func (c *Client) NavigationStart() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.busHandlers))
	for id := range c.busHandlers {
		ids = append(ids, id)
	}
	c.busHandlers = make(map[string]*registration)

	if c.config.AutoUnregister {
		c.onOpen = make(map[string]func())
		c.onClose = make(map[string]func())
	}

	transport := c.transport
	open := c.state == StateOpen
	c.mu.Unlock()

	c.logger.Debug("Navigation start, clearing bus handlers", zap.Int("count", len(ids)))

	if !open {
		return
	}

	if transport != nil {
		for _, id := range ids {
			if err := transport.Send(Frame{Type: FrameUnregister, Address: id}); err != nil {
				c.logger.Warn("Failed to send unregister frame", zap.String("id", id), zap.Error(err))
			}
		}
	}

	if err := c.sendNoReply(DeviceServiceAddress, Message{Action: ActionUnregisterAllListeners}); err != nil {
		c.logger.Warn("Failed to unregister listeners", zap.Error(err))
	}
}
