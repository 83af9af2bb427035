package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/tsarna/kiwibus/pkg/kiwibus/o11y"
	"go.uber.org/zap"
)

// request is one logical Send. It survives resends after a token refresh.
type request struct {
	address  string
	message  Message
	handler  ReplyHandler
	attempts int
	start    time.Time
	ctx      context.Context
	span     o11y.Span
}

// pendingRequest is one transmission of a request awaiting its reply.
type pendingRequest struct {
	*request
	replyAddress string
	timer        *time.Timer
	returned     int32 // Atomic boolean, set by whichever of reply or timeout wins
}

// Send transmits msg to address and settles handler exactly once: with the
// server's reply, or with a locally synthesized 503, 408 or 400. A nil
// handler discards the reply. Replies read from the connection are handed
// to handler on a goroutine of their own, so handler may itself send and
// wait for further requests.
func (c *Client) Send(address string, msg Message, handler ReplyHandler) {
	req := &request{
		address: address,
		message: msg,
		handler: handler,
		start:   time.Now(),
		ctx:     context.Background(),
	}

	if c.tracingProvider != nil {
		req.ctx, req.span = c.tracingProvider.StartSpan(req.ctx, "eventbus.send")
		req.span.SetAttributes(
			o11y.Label{Key: "address", Value: address},
			o11y.Label{Key: "action", Value: msg.Action},
		)
	}

	c.dispatch(req)
}

// Request sends msg and waits for its settlement. The error is non-nil only
// if ctx ends first; failed replies are reported through Reply.Err.
func (c *Client) Request(ctx context.Context, address string, msg Message) (Reply, error) {
	replies := make(chan Reply, 1)
	c.Send(address, msg, func(reply Reply) {
		replies <- reply
	})

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// Publish sends msg to address without expecting a reply. It is a no-op in
// mock mode.
func (c *Client) Publish(address string, msg Message) error {
	if c.State() != StateOpen {
		c.logger.Warn("EventBus not open, message not published",
			zap.String("address", address),
			zap.String("action", msg.Action),
		)
		return ErrNotOpen
	}

	if c.config.MockMode {
		c.logTraffic("Publish ignored in mock mode", zap.String("address", address), zap.String("action", msg.Action))
		return nil
	}

	if c.publishCounter != nil {
		c.publishCounter.Add(context.Background(), 1, o11y.Label{Key: "address", Value: address})
	}

	return c.transmit(FramePublish, address, msg, "")
}

// sendNoReply sends a request whose reply nobody waits for.
func (c *Client) sendNoReply(address string, msg Message) error {
	if c.State() != StateOpen || c.config.MockMode {
		return nil
	}
	return c.transmit(FrameSend, address, msg, "")
}

func (c *Client) transmit(frameType, address string, msg Message, replyAddress string) error {
	msg.AccessToken = c.credentials.Get()
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	transport := c.currentTransport()
	if transport == nil {
		return ErrNotOpen
	}

	c.logTraffic("Sending message",
		zap.String("type", frameType),
		zap.String("address", address),
		zap.String("action", msg.Action),
	)

	return transport.Send(Frame{
		Type:         frameType,
		Address:      address,
		Body:         body,
		ReplyAddress: replyAddress,
	})
}

func (c *Client) dispatch(req *request) {
	if c.State() != StateOpen {
		c.logger.Warn("EventBus not open, request not sent",
			zap.String("address", req.address),
			zap.String("action", req.message.Action),
		)
		c.deliver(req, unavailableReply())
		return
	}

	if c.config.MockMode {
		c.sendMock(req)
		return
	}

	p := &pendingRequest{
		request:      req,
		replyAddress: GenerateUUID(),
	}

	c.pendingMu.Lock()
	c.pending[p.replyAddress] = p
	p.timer = time.AfterFunc(c.config.SendTimeout, func() {
		c.expire(p)
	})
	count := len(c.pending)
	c.pendingMu.Unlock()
	c.recordPending(count)

	if err := c.transmit(FrameSend, req.address, req.message, p.replyAddress); err != nil {
		c.logger.Warn("Failed to send request",
			zap.String("address", req.address),
			zap.String("action", req.message.Action),
			zap.Error(err),
		)
		if c.settle(p) {
			c.deliver(req, unavailableReply())
		}
	}
}

// settle marks p completed and forgets it. Only the first caller gets true.
func (c *Client) settle(p *pendingRequest) bool {
	if !atomic.CompareAndSwapInt32(&p.returned, 0, 1) {
		return false
	}

	c.pendingMu.Lock()
	delete(c.pending, p.replyAddress)
	if p.timer != nil {
		p.timer.Stop()
	}
	count := len(c.pending)
	c.pendingMu.Unlock()
	c.recordPending(count)

	return true
}

func (c *Client) lookupPending(replyAddress string) *pendingRequest {
	if replyAddress == "" {
		return nil
	}
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return c.pending[replyAddress]
}

func (c *Client) expire(p *pendingRequest) {
	if !c.settle(p) {
		return
	}

	c.logger.Warn("Request timed out",
		zap.String("address", p.address),
		zap.String("action", p.message.Action),
		zap.Duration("timeout", c.config.SendTimeout),
	)
	c.deliver(p.request, timeoutReply(p.address, p.message.Action))
}

// handleFrame routes an inbound frame to the request it answers or to the
// bus handler registered under its address.
func (c *Client) handleFrame(frame Frame) {
	switch frame.Type {
	case FramePong:
		return

	case FrameError:
		if p := c.lookupPending(frame.Address); p != nil {
			if c.settle(p) {
				go c.deliver(p.request, Reply{Code: CodeInternalServerError, Message: frame.Message})
			}
			return
		}
		c.logger.Warn("EventBus error", zap.String("address", frame.Address), zap.String("message", frame.Message))

	default:
		if p := c.lookupPending(frame.Address); p != nil {
			c.handleReply(p, decodeReply(frame.Body))
			return
		}
		c.dispatchEvent(frame.Address, frame.Body)
	}
}

func (c *Client) handleReply(p *pendingRequest, reply Reply) {
	if !c.settle(p) {
		c.logger.Debug("Dropping late reply",
			zap.String("address", p.address),
			zap.String("action", p.message.Action),
		)
		return
	}

	if reply.Code == CodeTokenExpired {
		if p.attempts < c.config.MaxTokenRetries {
			go c.refreshAndResend(p.request)
			return
		}
		c.logger.Warn("Access token still expired after refresh",
			zap.String("address", p.address),
			zap.String("action", p.message.Action),
			zap.Int("attempts", p.attempts),
		)
	}

	go c.deliver(p.request, reply)
}

// refreshAndResend renews the access token and sends req again. If the token
// cannot be renewed the reload func takes over and req is never settled.
func (c *Client) refreshAndResend(req *request) {
	ctx, cancel := context.WithTimeout(req.ctx, c.config.SendTimeout)
	defer cancel()

	token, err := c.credentials.Refresh(ctx)
	if err == nil && token == "" {
		err = errors.New("refresh response carries no access token")
	}
	if err != nil {
		c.logger.Error("Failed to refresh access token, reloading",
			zap.String("address", req.address),
			zap.String("action", req.message.Action),
			zap.Error(err),
		)
		if req.span != nil {
			req.span.SetStatus(o11y.SpanStatusError, err.Error())
			req.span.End()
		}
		c.reload(c)
		return
	}

	c.credentials.Set(token)
	req.attempts++

	c.logger.Debug("Access token refreshed, resending request",
		zap.String("address", req.address),
		zap.String("action", req.message.Action),
		zap.Int("attempt", req.attempts),
	)
	c.dispatch(req)
}

func (c *Client) deliver(req *request, reply Reply) {
	c.logTraffic("Received reply",
		zap.String("address", req.address),
		zap.String("action", req.message.Action),
		zap.Int("code", reply.Code),
	)

	if c.requestCounter != nil {
		c.requestCounter.Add(req.ctx, 1,
			o11y.Label{Key: "address", Value: req.address},
			o11y.Label{Key: "action", Value: req.message.Action},
			o11y.Label{Key: "code", Value: strconv.Itoa(reply.Code)},
		)
	}
	if c.latencyHistogram != nil {
		c.latencyHistogram.Record(req.ctx, time.Since(req.start).Seconds(),
			o11y.Label{Key: "address", Value: req.address},
		)
	}
	if req.span != nil {
		if reply.OK() {
			req.span.SetStatus(o11y.SpanStatusOK, "")
		} else {
			req.span.SetStatus(o11y.SpanStatusError, reply.Message)
		}
		req.span.End()
	}

	if req.handler != nil {
		req.handler(reply)
	}
}

// dispatchEvent queues a pushed event for the handler registered under
// address. Events reach handlers in arrival order, off the read loop.
func (c *Client) dispatchEvent(address string, body json.RawMessage) {
	event := decodeEvent(body)

	c.events.push(func() {
		c.mu.Lock()
		reg := c.busHandlers[address]
		c.mu.Unlock()

		if reg == nil {
			c.logger.Debug("No handler for inbound message", zap.String("address", address))
			return
		}

		c.logTraffic("Dispatching event", zap.String("address", address), zap.String("type", string(event.Type)))
		reg.handler(event)
	})
}

func (c *Client) recordPending(count int) {
	if c.pendingGauge != nil {
		c.pendingGauge.Set(context.Background(), float64(count))
	}
}

// ReconnectOnReload is the default ReloadFunc: it resets the connection so
// the host can start again from a clean state.
func ReconnectOnReload(c *Client) {
	c.logger.Error("Access token could not be refreshed, resetting EventBus connection")

	if err := c.Close(); err != nil {
		c.logger.Warn("Failed to close EventBus", zap.Error(err))
	}
	if err := c.Open(context.Background()); err != nil {
		c.logger.Warn("Failed to reopen EventBus", zap.Error(err))
	}
}
