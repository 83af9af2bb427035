package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterBusHandler(t *testing.T) {
	t.Run("requires open connection", func(t *testing.T) {
		client := newFakeClient(t, &fakeDialer{}, nil)
		assert.False(t, client.RegisterBusHandler("id", func(Event) {}))
		assert.False(t, client.HasBusHandler("id"))
	})

	t.Run("sends register frame and receives events", func(t *testing.T) {
		dialer := &fakeDialer{}
		client := newFakeClient(t, dialer, nil)
		require.NoError(t, client.Open(context.Background()))

		events := make(chan Event, 1)
		id := GenerateUUID()
		require.True(t, client.RegisterBusHandler(id, func(e Event) { events <- e }))
		assert.True(t, client.HasBusHandler(id))

		registers := dialer.last().sentOfType(FrameRegister)
		require.Len(t, registers, 1)
		assert.Equal(t, id, registers[0].Address)

		dialer.last().push(id, `{"type":"UPDATED","value":{"guid":"d1"}}`)

		select {
		case e := <-events:
			assert.Equal(t, EventUpdated, e.Type)
			assert.Equal(t, map[string]any{"guid": "d1"}, e.Value)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	})

	t.Run("untyped push is delivered as value", func(t *testing.T) {
		dialer := &fakeDialer{}
		client := newFakeClient(t, dialer, nil)
		require.NoError(t, client.Open(context.Background()))

		events := make(chan Event, 2)
		client.RegisterBusHandler("id", func(e Event) { events <- e })
		dialer.last().push("id", `[1,2]`)
		dialer.last().push("other", `{"type":"CREATED"}`)

		select {
		case e := <-events:
			assert.Equal(t, Event{Value: []any{float64(1), float64(2)}}, e)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
		time.Sleep(20 * time.Millisecond)
		assert.Empty(t, events)
	})

	t.Run("events keep their order off the read loop", func(t *testing.T) {
		dialer := &fakeDialer{}
		client := newFakeClient(t, dialer, nil)
		require.NoError(t, client.Open(context.Background()))

		release := make(chan struct{})
		seen := make(chan string, 3)
		client.RegisterBusHandler("id", func(e Event) {
			<-release
			seen <- e.Value.(map[string]any)["guid"].(string)
		})

		// pushes return while the handler is still blocked
		for _, guid := range []string{"d1", "d2", "d3"} {
			dialer.last().push("id", `{"type":"CREATED","value":{"guid":"`+guid+`"}}`)
		}
		close(release)

		var order []string
		for range 3 {
			select {
			case guid := <-seen:
				order = append(order, guid)
			case <-time.After(time.Second):
				t.Fatal("event not delivered")
			}
		}
		assert.Equal(t, []string{"d1", "d2", "d3"}, order)
	})

	t.Run("duplicate id is ignored", func(t *testing.T) {
		client := newMockClient(t)

		calls := 0
		require.True(t, client.RegisterBusHandler("id", func(Event) { calls++ }, "createDevice"))
		assert.False(t, client.RegisterBusHandler("id", func(Event) { calls += 10 }, "createDevice"))

		client.AddMockResponse("deviceservice:createDevice", func(*Message) Reply { return Reply{Code: 200} })
		client.Send("deviceservice", Message{Action: "createDevice"}, nil)
		assert.Equal(t, 1, calls)
	})
}

func TestUnregisterBusHandler(t *testing.T) {
	dialer := &fakeDialer{}
	client := newFakeClient(t, dialer, nil)
	require.NoError(t, client.Open(context.Background()))

	require.True(t, client.RegisterBusHandler("id", func(Event) {}))
	assert.True(t, client.UnregisterBusHandler("id"))
	assert.False(t, client.HasBusHandler("id"))
	assert.False(t, client.UnregisterBusHandler("id"))

	unregisters := dialer.last().sentOfType(FrameUnregister)
	require.Len(t, unregisters, 1)
	assert.Equal(t, "id", unregisters[0].Address)

	require.True(t, client.RegisterBusHandler("other", func(Event) {}))
	require.NoError(t, client.Close())
	assert.False(t, client.UnregisterBusHandler("other"))
}

func TestEventHandlers(t *testing.T) {
	client := newFakeClient(t, &fakeDialer{}, nil)

	assert.True(t, client.RegisterEventHandler(EventOnOpen, "a", func() {}))
	assert.False(t, client.RegisterEventHandler(EventOnOpen, "a", func() {}))
	assert.True(t, client.RegisterEventHandler(EventOnClose, "a", func() {}))
	assert.False(t, client.RegisterEventHandler(LifecycleEvent("onError"), "a", func() {}))

	assert.True(t, client.UnregisterEventHandler(EventOnOpen, "a"))
	assert.False(t, client.UnregisterEventHandler(EventOnOpen, "a"))
	assert.False(t, client.UnregisterEventHandler(LifecycleEvent("onError"), "a"))
}

func TestNavigationStart(t *testing.T) {
	t.Run("clears registrations", func(t *testing.T) {
		dialer := &fakeDialer{}
		client := newFakeClient(t, dialer, nil)
		require.NoError(t, client.Open(context.Background()))

		client.RegisterBusHandler("a", func(Event) {})
		client.RegisterBusHandler("b", func(Event) {})

		opened := 0
		client.RegisterEventHandler(EventOnOpen, "open", func() { opened++ })

		client.NavigationStart()

		assert.False(t, client.HasBusHandler("a"))
		assert.False(t, client.HasBusHandler("b"))

		transport := dialer.last()
		unregistered := map[string]bool{}
		for _, frame := range transport.sentOfType(FrameUnregister) {
			unregistered[frame.Address] = true
		}
		assert.Equal(t, map[string]bool{"a": true, "b": true}, unregistered)

		sends := transport.sentOfType(FrameSend)
		require.Len(t, sends, 1)
		assert.Equal(t, "deviceservice", sends[0].Address)
		assert.Empty(t, sends[0].ReplyAddress)
		assert.Equal(t, "unregisterAllListeners", decodeMessage(t, sends[0]).Action)
		assert.Zero(t, pendingCount(client))

		// auto-unregister cleared the open handler
		require.NoError(t, client.Close())
		require.NoError(t, client.Open(context.Background()))
		assert.Zero(t, opened)

		// ids can be reused
		assert.True(t, client.RegisterBusHandler("a", func(Event) {}))
	})

	t.Run("keeps lifecycle handlers without auto-unregister", func(t *testing.T) {
		client, err := NewClient().WithMockMode(true).WithAutoUnregister(false).Build()
		require.NoError(t, err)

		opened := 0
		client.RegisterEventHandler(EventOnOpen, "open", func() { opened++ })
		require.NoError(t, client.Open(context.Background()))

		client.NavigationStart()
		require.NoError(t, client.Close())
		require.NoError(t, client.Open(context.Background()))
		assert.Equal(t, 2, opened)
	})

	t.Run("closed client only clears local state", func(t *testing.T) {
		dialer := &fakeDialer{}
		client := newFakeClient(t, dialer, nil)
		require.NoError(t, client.Open(context.Background()))
		client.RegisterBusHandler("a", func(Event) {})
		transport := dialer.last()
		require.NoError(t, client.Close())

		client.NavigationStart()
		assert.False(t, client.HasBusHandler("a"))
		assert.Empty(t, transport.sentOfType(FrameUnregister))
	})
}

func TestGenerateUUID(t *testing.T) {
	a := GenerateUUID()
	b := GenerateUUID()

	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Equal(t, byte('4'), a[14], "version nibble")
	assert.Contains(t, "89ab", string(a[19]), "variant nibble")
}
