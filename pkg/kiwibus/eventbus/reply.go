package eventbus

import (
	"encoding/json"
	"fmt"
)

// Response codes carried in replies.
const (
	CodeOK                  = 200
	CodeBadRequest          = 400
	CodeUnauthorized        = 401
	CodeNotFound            = 404
	CodeTimeout             = 408
	CodeTokenExpired        = 419
	CodeInternalServerError = 500
	CodeServiceUnavailable  = 503
)

// Reply is the settled result of a request. Code is always set: replies that
// arrive without one are replaced by a 400 before any handler sees them.
type Reply struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
	Status  string `json:"status,omitempty"`
}

// ReplyHandler receives the settlement of a request. It is called exactly once
// per Send.
type ReplyHandler func(Reply)

// OK reports whether the reply carries code 200.
func (r Reply) OK() bool {
	return r.Code == CodeOK
}

// Err returns nil for a 200 reply and a *ReplyError otherwise.
func (r Reply) Err() error {
	if r.OK() {
		return nil
	}
	return &ReplyError{
		Kind:    KindForCode(r.Code),
		Code:    r.Code,
		Message: r.Message,
	}
}

// DecodeResult converts the reply's result into v via its JSON form.
func (r Reply) DecodeResult(v any) error {
	data, err := json.Marshal(r.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// ErrorKind classifies a failed reply.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	KindNotFound
	KindTimeout
	KindTokenExpired
	KindInternal
	KindUnavailable
)

var kindNames = map[ErrorKind]string{
	KindUnknown:      "unknown",
	KindBadRequest:   "bad request",
	KindUnauthorized: "unauthorized",
	KindNotFound:     "not found",
	KindTimeout:      "timeout",
	KindTokenExpired: "token expired",
	KindInternal:     "internal server error",
	KindUnavailable:  "service unavailable",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// KindForCode maps a response code to its ErrorKind.
func KindForCode(code int) ErrorKind {
	switch code {
	case CodeBadRequest:
		return KindBadRequest
	case CodeUnauthorized:
		return KindUnauthorized
	case CodeNotFound:
		return KindNotFound
	case CodeTimeout:
		return KindTimeout
	case CodeTokenExpired:
		return KindTokenExpired
	case CodeInternalServerError:
		return KindInternal
	case CodeServiceUnavailable:
		return KindUnavailable
	default:
		return KindUnknown
	}
}

// ReplyError is the error view of a non-200 reply.
type ReplyError struct {
	Kind    ErrorKind
	Code    int
	Message string
}

func (e *ReplyError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.Code, e.Kind)
	}
	return fmt.Sprintf("%d %s: %s", e.Code, e.Kind, e.Message)
}

type wireReply struct {
	Code    *int   `json:"code"`
	Message string `json:"message"`
	Result  any    `json:"result"`
	Status  string `json:"status"`
}

// decodeReply turns a raw reply body into a Reply. Bodies that cannot be
// parsed or that carry no code become a local 400.
func decodeReply(body json.RawMessage) Reply {
	var wire wireReply
	if len(body) == 0 || json.Unmarshal(body, &wire) != nil || wire.Code == nil {
		return badRequestReply()
	}

	return Reply{
		Code:    *wire.Code,
		Message: wire.Message,
		Result:  wire.Result,
		Status:  wire.Status,
	}
}

func badRequestReply() Reply {
	return Reply{Code: CodeBadRequest, Message: "Bad request"}
}

func unavailableReply() Reply {
	return Reply{Code: CodeServiceUnavailable, Message: "EventBus not open"}
}

func timeoutReply(address, action string) Reply {
	return Reply{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("Response for %s:%s timed out", address, action),
	}
}

func notFoundReply(address, action string) Reply {
	return Reply{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("No mocked response for %s:%s found", address, action),
	}
}
