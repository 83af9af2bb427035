package eventbus

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReply(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Reply
	}{
		{"ok", `{"code":200,"result":[1]}`, Reply{Code: 200, Result: []any{float64(1)}}},
		{"error with message", `{"code":401,"message":"no"}`, Reply{Code: 401, Message: "no"}},
		{"zero code is a code", `{"code":0}`, Reply{Code: 0}},
		{"missing code", `{"result":{}}`, Reply{Code: 400, Message: "Bad request"}},
		{"null", `null`, Reply{Code: 400, Message: "Bad request"}},
		{"garbage", `{`, Reply{Code: 400, Message: "Bad request"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeReply(json.RawMessage(tt.body)))
		})
	}
}

func TestReplyErr(t *testing.T) {
	assert.NoError(t, Reply{Code: 200}.Err())

	tests := []struct {
		code int
		kind ErrorKind
	}{
		{400, KindBadRequest},
		{401, KindUnauthorized},
		{404, KindNotFound},
		{408, KindTimeout},
		{419, KindTokenExpired},
		{500, KindInternal},
		{503, KindUnavailable},
		{418, KindUnknown},
	}

	for _, tt := range tests {
		err := Reply{Code: tt.code}.Err()
		var replyErr *ReplyError
		require.ErrorAs(t, err, &replyErr)
		assert.Equal(t, tt.kind, replyErr.Kind, "code %d", tt.code)
		assert.Equal(t, tt.code, replyErr.Code)
	}

	assert.Equal(t, "503 service unavailable: EventBus not open", unavailableReply().Err().Error())
	assert.Equal(t, "418 unknown", Reply{Code: 418}.Err().Error())
	assert.Equal(t, "unknown", ErrorKind(99).String())
}

func TestReplyDecodeResult(t *testing.T) {
	reply := Reply{Code: 200, Result: map[string]any{"items": []any{map[string]any{"guid": "d1"}}}}

	var result struct {
		Items []struct {
			GUID string `json:"guid"`
		} `json:"items"`
	}
	require.NoError(t, reply.DecodeResult(&result))
	require.Len(t, result.Items, 1)
	assert.Equal(t, "d1", result.Items[0].GUID)

	var wrong []string
	assert.Error(t, reply.DecodeResult(&wrong))
}
