package classify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/warehousekit/dispatchd/core/model"
)

// FallbackMessage replaces empty or placeholder failure details.
const FallbackMessage = "no failure detail provided"

// DefaultTargetCode is the upstream business code that counts as success.
const DefaultTargetCode = 50421021

// placeholderTokens are upstream filler strings carrying no real content.
var placeholderTokens = map[string]struct{}{
	"":        {},
	"info":    {},
	"null":    {},
	"error":   {},
	"ok":      {},
	"success": {},
}

// infoPaths lists the plausible nesting depths of the human readable
// failure detail, most specific first. The first non-empty hit wins.
var infoPaths = [][]string{
	{"data", "msg", "detail", "info"},
	{"data", "msg", "info"},
	{"msg", "detail", "info"},
	{"msg", "info"},
	{"info"},
	{"data", "detail"},
	{"detail"},
}

// codePaths lists where the numeric business code may live.
var codePaths = [][]string{
	{"data", "msg", "detail", "error_id"},
	{"msg", "detail", "error_id"},
	{"data", "detail", "error_id"},
	{"detail", "error_id"},
	{"error_id"},
}

// successPaths lists where a boolean success flag may live.
var successPaths = [][]string{
	{"success"},
	{"data", "success"},
}

// Classifier turns raw HTTP responses into DispatchOutcomes. A response is
// successful when it carries a true success flag or when the extracted
// business code equals TargetCode.
type Classifier struct {
	TargetCode int
}

// New creates a Classifier for the given business success code.
func New(targetCode int) *Classifier {
	return &Classifier{TargetCode: targetCode}
}

// Classify maps an HTTP status and body to a DispatchOutcome. The payload
// shape is not contractually fixed upstream, so extraction walks a fixed
// list of strategies and tolerates missing or malformed fields.
func (c *Classifier) Classify(status int, body []byte) model.DispatchOutcome {
	data := decode(body)

	if status < 200 || status >= 300 {
		code, _ := extractCode(data)
		msg := extractInfo(data)
		if msg == FallbackMessage {
			msg = fmt.Sprintf("http status %d", status)
		}
		return model.DispatchOutcome{Kind: model.OutcomeTransportFailure, Code: code, Message: msg}
	}

	if flagTrue(data, successPaths) {
		code, _ := extractCode(data)
		return model.DispatchOutcome{Kind: model.OutcomeSuccess, Code: code, Message: extractInfo(data)}
	}
	if code, ok := extractCode(data); ok && code == c.TargetCode {
		return model.DispatchOutcome{Kind: model.OutcomeSuccess, Code: code, Message: extractInfo(data)}
	}

	code, _ := extractCode(data)
	return model.DispatchOutcome{Kind: model.OutcomeBusinessFailure, Code: code, Message: extractInfo(data)}
}

// TransportError builds the outcome for a request that never produced a
// usable HTTP response.
func TransportError(err error) model.DispatchOutcome {
	msg := FallbackMessage
	if err != nil {
		msg = err.Error()
	}
	return model.DispatchOutcome{Kind: model.OutcomeTransportFailure, Message: msg}
}

func decode(body []byte) map[string]any {
	var data map[string]any
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil
	}
	return data
}

// lookup walks path through nested maps. Arrays are searched for the first
// element that yields a value for the key.
func lookup(v any, path []string) (any, bool) {
	cur := v
	for _, key := range path {
		cur = descend(cur, key)
		if cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func descend(v any, key string) any {
	switch t := v.(type) {
	case map[string]any:
		return t[key]
	case []any:
		for _, el := range t {
			if got := descend(el, key); got != nil {
				return got
			}
		}
	}
	return nil
}

func flagTrue(data map[string]any, paths [][]string) bool {
	for _, p := range paths {
		if v, ok := lookup(data, p); ok {
			if b, ok := v.(bool); ok && b {
				return true
			}
		}
	}
	return false
}

func extractCode(data map[string]any) (int, bool) {
	for _, p := range codePaths {
		v, ok := lookup(data, p)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return int(t), true
		case int:
			return t, true
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func extractInfo(data map[string]any) string {
	for _, p := range infoPaths {
		v, ok := lookup(data, p)
		if !ok || emptyValue(v) {
			continue
		}
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return FallbackMessage
}

// emptyValue reports whether the extracted value carries no real content.
func emptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		_, placeholder := placeholderTokens[strings.ToLower(strings.TrimSpace(t))]
		return placeholder
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}
