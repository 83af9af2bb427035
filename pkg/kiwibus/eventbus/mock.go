package eventbus

import (
	"go.uber.org/zap"
)

// MockResponder computes the reply to a request in mock mode. It is called
// synchronously from Send.
type MockResponder func(msg *Message) Reply

// MockResponse is a canned responder. Event, when set, is the type of the
// event synthesized for mock listeners; otherwise it is inferred from the
// action name.
type MockResponse struct {
	Respond MockResponder
	Event   EventType
}

// WithEvent returns a copy of r that declares its event type explicitly.
func (r MockResponse) WithEvent(eventType EventType) MockResponse {
	r.Event = eventType
	return r
}

// MockKey builds the "address:action" key mock responses are stored under.
func MockKey(address, action string) string {
	return address + ":" + action
}

// AddMockResponse registers responder under key ("address:action"). The first
// registration for a key wins; later ones are ignored and reported by a false
// return.
//
// Replies are turned into events for mock listeners of the action, typed by
// the action prefix: create gives CREATED, update UPDATED, delete DELETED.
// Actions with any other name produce no event at all; use
// AddMockResponseWithEvent to declare the type for them.
func (c *Client) AddMockResponse(key string, responder MockResponder) bool {
	return c.addMockResponse(key, MockResponse{Respond: responder})
}

// AddMockResponseWithEvent is AddMockResponse with an explicit event type.
func (c *Client) AddMockResponseWithEvent(key string, eventType EventType, responder MockResponder) bool {
	return c.addMockResponse(key, MockResponse{Respond: responder, Event: eventType})
}

// AddMock registers a prepared MockResponse under key.
func (c *Client) AddMock(key string, response MockResponse) bool {
	return c.addMockResponse(key, response)
}

func (c *Client) addMockResponse(key string, response MockResponse) bool {
	if response.Respond == nil {
		c.logger.Warn("Mock response has no responder", zap.String("key", key))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.mockResponses[key]; exists {
		c.logger.Warn("Mock response already registered, ignoring", zap.String("key", key))
		return false
	}

	c.mockResponses[key] = response
	return true
}

// MockKeys returns the keys of all registered mock responses.
func (c *Client) MockKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.mockResponses))
	for key := range c.mockResponses {
		keys = append(keys, key)
	}
	return keys
}

// sendMock answers req from the registered mock responses and then feeds the
// result to every mock listener interested in the action.
func (c *Client) sendMock(req *request) {
	action := req.message.Action
	key := MockKey(req.address, action)

	c.mu.Lock()
	response, found := c.mockResponses[key]
	c.mu.Unlock()

	if !found {
		c.logger.Warn("No mocked response found", zap.String("key", key))
		c.deliver(req, notFoundReply(req.address, action))
		return
	}

	msg := req.message
	msg.AccessToken = c.credentials.Get()
	reply := response.Respond(&msg)
	if reply.Code == 0 {
		reply = badRequestReply()
	}

	c.deliver(req, reply)

	eventType := response.Event
	if eventType == "" {
		eventType = EventTypeForAction(action)
	}
	if eventType == "" {
		return
	}

	event := Event{Type: eventType, Value: reply.Result}
	for _, reg := range c.mockListeners(action) {
		c.logTraffic("Mock event matched handler",
			zap.String("id", reg.id),
			zap.String("action", action),
			zap.String("type", string(eventType)),
		)
		reg.handler(event)
	}
}

func (c *Client) mockListeners(action string) []*registration {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []*registration
	for _, reg := range c.busHandlers {
		if _, ok := reg.actions[action]; ok {
			matched = append(matched, reg)
		}
	}
	return matched
}
