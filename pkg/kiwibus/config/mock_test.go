package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/kiwibus/pkg/kiwibus/eventbus"
	"go.uber.org/zap"
)

func newTestResponder(t *testing.T, jq string, result any) *mockResponder {
	t.Helper()
	responder := &mockResponder{
		key:    "deviceservice:test",
		code:   eventbus.CodeOK,
		result: result,
		logger: zap.NewNop(),
	}
	if jq != "" {
		query, err := compileMockQuery(jq)
		require.NoError(t, err)
		responder.query = query
	}
	return responder
}

func TestMockResponder(t *testing.T) {
	t.Run("static", func(t *testing.T) {
		responder := newTestResponder(t, "", "static")
		responder.status = "done"

		reply := responder.Respond(&eventbus.Message{Action: "test"})
		assert.Equal(t, eventbus.Reply{Code: 200, Result: "static", Status: "done"}, reply)
	})

	t.Run("several outputs become a list", func(t *testing.T) {
		responder := newTestResponder(t, ".params[] | . * 2", nil)

		reply := responder.Respond(&eventbus.Message{Action: "test", Params: []int{1, 2, 3}})
		assert.Equal(t, []any{float64(2), float64(4), float64(6)}, reply.Result)
	})

	t.Run("no output is a null result", func(t *testing.T) {
		responder := newTestResponder(t, "empty", "ignored")

		reply := responder.Respond(&eventbus.Message{Action: "test"})
		assert.Equal(t, eventbus.CodeOK, reply.Code)
		assert.Nil(t, reply.Result)
	})

	t.Run("query sees the action and the static result", func(t *testing.T) {
		responder := newTestResponder(t, `{action: .action, count: ($result | length)}`, []any{"a", "b"})

		reply := responder.Respond(&eventbus.Message{Action: "test"})
		assert.Equal(t, map[string]any{"action": "test", "count": 2}, reply.Result)
	})

	t.Run("structs are queried by their JSON form", func(t *testing.T) {
		type filter struct {
			Name string `json:"name"`
		}
		responder := newTestResponder(t, ".params.name", nil)

		reply := responder.Respond(&eventbus.Message{Action: "test", Params: filter{Name: "pump"}})
		assert.Equal(t, "pump", reply.Result)
	})

	t.Run("runtime error is a 500", func(t *testing.T) {
		responder := newTestResponder(t, `error("boom")`, nil)

		reply := responder.Respond(&eventbus.Message{Action: "test"})
		assert.Equal(t, eventbus.CodeInternalServerError, reply.Code)
		assert.Contains(t, reply.Message, "boom")
	})
}

func TestCompileMockQuery(t *testing.T) {
	_, err := compileMockQuery(".params")
	assert.NoError(t, err)

	_, err = compileMockQuery("{{")
	assert.Error(t, err)

	_, err = compileMockQuery("$undefined")
	assert.Error(t, err)
}
