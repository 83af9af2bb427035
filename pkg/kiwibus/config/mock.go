package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/itchyny/gojq"
	"github.com/tsarna/go2cty2go"
	"github.com/tsarna/kiwibus/pkg/kiwibus/eventbus"
	"go.uber.org/zap"
)

// MockDefinition is a canned reply for one "address:action" key. The reply
// carries Result as is, unless Jq is set, in which case the query is run
// against the request message ({action, params, body}) with the static result
// bound to $result, and its output becomes the reply's result.
type MockDefinition struct {
	Key      string         `hcl:"key,label"`
	Code     *int           `hcl:"code,optional"`
	Message  string         `hcl:"message,optional"`
	Status   string         `hcl:"status,optional"`
	Result   hcl.Expression `hcl:"result,optional"`
	Jq       string         `hcl:"jq,optional"`
	Event    string         `hcl:"event,optional"`
	DefRange hcl.Range      `hcl:",def_range"`
}

type MockBlockHandler struct {
	BlockHandlerBase
	seen duplicateChecker
}

func NewMockBlockHandler() *MockBlockHandler {
	return &MockBlockHandler{seen: newDuplicateChecker(hcl.DiagWarning)}
}

func (h *MockBlockHandler) Preprocess(block *hcl.Block) hcl.Diagnostics {
	key := block.Labels[0]
	address, action, ok := strings.Cut(key, ":")
	if !ok || address == "" || action == "" {
		return hcl.Diagnostics{&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid mock key",
			Detail:   fmt.Sprintf("Mock key %q must have the form \"address:action\"", key),
			Subject:  block.LabelRanges[0].Ptr(),
		}}
	}
	return h.seen.check(block, key)
}

func (h *MockBlockHandler) Process(config *Config, block *hcl.Block) hcl.Diagnostics {
	mockDef := MockDefinition{}
	diags := gohcl.DecodeBody(block.Body, config.evalCtx, &mockDef)
	if diags.HasErrors() {
		return diags
	}
	mockDef.Key = block.Labels[0]

	// first definition wins, as with Client.AddMockResponse
	if _, exists := config.Mocks[mockDef.Key]; exists {
		return diags
	}

	response, addDiags := config.buildMockResponse(&mockDef)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return diags
	}

	config.Mocks[mockDef.Key] = response
	config.mockKeys = append(config.mockKeys, mockDef.Key)

	return diags
}

func (c *Config) buildMockResponse(mockDef *MockDefinition) (eventbus.MockResponse, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	responder := &mockResponder{
		key:     mockDef.Key,
		code:    eventbus.CodeOK,
		message: mockDef.Message,
		status:  mockDef.Status,
		logger:  c.Logger,
	}
	if mockDef.Code != nil {
		responder.code = *mockDef.Code
	}

	if IsExpressionProvided(mockDef.Result) {
		val, valDiags := mockDef.Result.Value(c.evalCtx)
		diags = diags.Extend(valDiags)
		if valDiags.HasErrors() {
			return eventbus.MockResponse{}, diags
		}

		result, err := go2cty2go.CtyToAny(val)
		if err == nil {
			result, err = normalize(result)
		}
		if err != nil {
			return eventbus.MockResponse{}, diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid mock result",
				Detail:   fmt.Sprintf("Failed to convert result: %s", err),
				Subject:  mockDef.Result.Range().Ptr(),
			})
		}
		responder.result = result
	}

	if mockDef.Jq != "" {
		query, err := compileMockQuery(mockDef.Jq)
		if err != nil {
			return eventbus.MockResponse{}, diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid jq query",
				Detail:   err.Error(),
				Subject:  &mockDef.DefRange,
			})
		}
		responder.query = query
	}

	eventType := eventbus.EventType(mockDef.Event)
	switch eventType {
	case "", eventbus.EventCreated, eventbus.EventUpdated, eventbus.EventDeleted, eventbus.EventFailed:
	default:
		return eventbus.MockResponse{}, diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid event type",
			Detail:   fmt.Sprintf("Event type %q must be one of CREATED, UPDATED, DELETED, FAILED", mockDef.Event),
			Subject:  &mockDef.DefRange,
		})
	}

	return eventbus.MockResponse{Respond: responder.Respond, Event: eventType}, diags
}

func compileMockQuery(jqQuery string) (*gojq.Code, error) {
	query, err := gojq.Parse(jqQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JQ query '%s': %w", jqQuery, err)
	}

	code, err := gojq.Compile(query, gojq.WithVariables([]string{"$result"}))
	if err != nil {
		return nil, fmt.Errorf("failed to compile JQ query '%s': %w", jqQuery, err)
	}
	return code, nil
}

type mockResponder struct {
	key     string
	code    int
	message string
	status  string
	result  any
	query   *gojq.Code
	logger  *zap.Logger
}

// Respond implements eventbus.MockResponder.
func (m *mockResponder) Respond(msg *eventbus.Message) eventbus.Reply {
	reply := eventbus.Reply{
		Code:    m.code,
		Message: m.message,
		Status:  m.status,
		Result:  m.result,
	}
	if m.query == nil {
		return reply
	}

	result, err := m.runQuery(msg)
	if err != nil {
		m.logger.Error("Mock jq query failed", zap.String("mock", m.key), zap.Error(err))
		return eventbus.Reply{Code: eventbus.CodeInternalServerError, Message: err.Error()}
	}
	reply.Result = result
	return reply
}

// runQuery returns the query's only output, or all of its outputs as a list
// when there is more than one.
func (m *mockResponder) runQuery(msg *eventbus.Message) (any, error) {
	input, err := normalize(msg)
	if err != nil {
		return nil, err
	}

	iter := m.query.RunWithContext(context.Background(), input, m.result)

	var results []any
	for {
		value, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := value.(error); isErr {
			return nil, fmt.Errorf("jq: %w", err)
		}
		results = append(results, value)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// normalize converts v to the plain JSON value types gojq works on, which
// also match what a reply decoded off the wire carries.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}
