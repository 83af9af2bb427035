package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tsarna/kiwibus/pkg/kiwibus/o11y"
	"go.uber.org/zap/zaptest"
)

// fakeTransport records outbound frames and lets tests inject inbound ones.
type fakeTransport struct {
	mu      sync.Mutex
	hooks   TransportHooks
	frames  []Frame
	closed  bool
	sendErr error
	respond func(*fakeTransport, Frame)
}

func (f *fakeTransport) Send(frame Frame) error {
	f.mu.Lock()
	if f.sendErr != nil {
		err := f.sendErr
		f.mu.Unlock()
		return err
	}
	f.frames = append(f.frames, frame)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil && frame.Type == FrameSend {
		go respond(f, frame)
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) sent() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	frames := make([]Frame, len(f.frames))
	copy(frames, f.frames)
	return frames
}

func (f *fakeTransport) sentOfType(frameType string) []Frame {
	var result []Frame
	for _, frame := range f.sent() {
		if frame.Type == frameType {
			result = append(result, frame)
		}
	}
	return result
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// reply answers a request frame with a raw JSON body.
func (f *fakeTransport) reply(request Frame, body string) {
	f.hooks.OnFrame(Frame{
		Type:    FrameReceive,
		Address: request.ReplyAddress,
		Body:    json.RawMessage(body),
	})
}

// push delivers an event body to a registered address.
func (f *fakeTransport) push(address, body string) {
	f.hooks.OnFrame(Frame{
		Type:    FrameReceive,
		Address: address,
		Body:    json.RawMessage(body),
	})
}

// drop simulates the server going away.
func (f *fakeTransport) drop() {
	f.hooks.OnClose(errors.New("connection reset"))
}

// fakeDialer hands out fakeTransports and counts dial attempts.
type fakeDialer struct {
	mu         sync.Mutex
	dials      int
	err        error
	respond    func(*fakeTransport, Frame)
	transports []*fakeTransport
}

func (d *fakeDialer) dial(ctx context.Context, hooks TransportHooks) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if d.err != nil {
		return nil, d.err
	}

	t := &fakeTransport{hooks: hooks, respond: d.respond}
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

// fakeCredentials returns queued refresh results.
type fakeCredentials struct {
	mu        sync.Mutex
	token     string
	next      []string
	err       error
	refreshes int
}

func (f *fakeCredentials) Get() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeCredentials) Set(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token != "" {
		f.token = token
	}
}

func (f *fakeCredentials) Refresh(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.err != nil {
		return "", f.err
	}
	if len(f.next) == 0 {
		return "", nil
	}
	token := f.next[0]
	f.next = f.next[1:]
	return token, nil
}

func (f *fakeCredentials) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

// replyRecorder collects every settlement of a request.
type replyRecorder struct {
	mu      sync.Mutex
	replies []Reply
	ch      chan Reply
}

func newReplyRecorder() *replyRecorder {
	return &replyRecorder{ch: make(chan Reply, 10)}
}

func (r *replyRecorder) handle(reply Reply) {
	r.mu.Lock()
	r.replies = append(r.replies, reply)
	r.mu.Unlock()
	r.ch <- reply
}

func (r *replyRecorder) all() []Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]Reply, len(r.replies))
	copy(result, r.replies)
	return result
}

func (r *replyRecorder) wait(t *testing.T) Reply {
	t.Helper()
	select {
	case reply := <-r.ch:
		return reply
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
		return Reply{}
	}
}

func newMockClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient().
		WithLogger(zaptest.NewLogger(t)).
		WithMockMode(true).
		Build()
	require.NoError(t, err)
	require.NoError(t, client.Open(context.Background()))
	return client
}

func newFakeClient(t *testing.T, dialer *fakeDialer, configure func(*ClientBuilder)) *Client {
	t.Helper()
	builder := NewClient().
		WithLogger(zaptest.NewLogger(t)).
		WithDialer(dialer.dial).
		WithReconnect(false, 0)
	if configure != nil {
		configure(builder)
	}
	client, err := builder.Build()
	require.NoError(t, err)
	return client
}

func decodeMessage(t *testing.T, frame Frame) Message {
	t.Helper()
	var msg Message
	require.NoError(t, json.Unmarshal(frame.Body, &msg))
	return msg
}

// recordingMetrics keeps every observation in memory.
type recordingMetrics struct {
	mu           sync.Mutex
	counters     map[string][][]o11y.Label
	observations map[string][]float64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		counters:     make(map[string][][]o11y.Label),
		observations: make(map[string][]float64),
	}
}

type recordingInstrument struct {
	name    string
	metrics *recordingMetrics
}

func (m *recordingMetrics) Counter(name string) o11y.Counter {
	return &recordingInstrument{name: name, metrics: m}
}

func (m *recordingMetrics) Histogram(name string) o11y.Histogram {
	return &recordingInstrument{name: name, metrics: m}
}

func (m *recordingMetrics) Gauge(name string) o11y.Gauge {
	return &recordingInstrument{name: name, metrics: m}
}

func (i *recordingInstrument) Add(ctx context.Context, value int64, labels ...o11y.Label) {
	i.metrics.mu.Lock()
	defer i.metrics.mu.Unlock()
	i.metrics.counters[i.name] = append(i.metrics.counters[i.name], labels)
}

func (i *recordingInstrument) Record(ctx context.Context, value float64, labels ...o11y.Label) {
	i.metrics.mu.Lock()
	defer i.metrics.mu.Unlock()
	i.metrics.observations[i.name] = append(i.metrics.observations[i.name], value)
}

func (i *recordingInstrument) Set(ctx context.Context, value float64, labels ...o11y.Label) {
	i.Record(ctx, value, labels...)
}

func (m *recordingMetrics) counted(name string) [][]o11y.Label {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func (m *recordingMetrics) observed(name string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.observations[name]
}

// recordingTracer records span names and final statuses.
type recordingTracer struct {
	mu    sync.Mutex
	spans []*recordingSpan
}

type recordingSpan struct {
	name   string
	labels []o11y.Label
	status o11y.SpanStatusCode
	ended  bool
}

func (r *recordingTracer) StartSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := &recordingSpan{name: name}
	r.spans = append(r.spans, span)
	return ctx, span
}

func (s *recordingSpan) SetAttributes(labels ...o11y.Label) {
	s.labels = append(s.labels, labels...)
}

func (s *recordingSpan) SetStatus(code o11y.SpanStatusCode, description string) {
	s.status = code
}

func (s *recordingSpan) End() {
	s.ended = true
}

func pendingCount(c *Client) int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}
