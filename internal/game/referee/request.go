package referee

import (
	"strconv"

	"github.com/ptcgai/referee-server-go/internal/game/interpreter"
	"github.com/ptcgai/referee-server-go/internal/game/model"
)

// Request is an operation requested by a player or operator.
type Request struct {
	ActorID string         `json:"actor_id"`
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Result is the normalized answer to a Request.
type Result struct {
	Success           bool                    `json:"success"`
	Message           string                  `json:"message"`
	Data              map[string]any          `json:"data,omitempty"`
	RequiresSelection bool                    `json:"requires_selection"`
	Candidates        []interpreter.Candidate `json:"candidates,omitempty"`
	SelectionContext  map[string]any          `json:"selection_context,omitempty"`
}

func ok(message string, data map[string]any) *Result {
	if data == nil {
		data = make(map[string]any)
	}
	return &Result{Success: true, Message: message, Data: data}
}

// failed converts an error into a failed result. Domain failures carry their
// kind and details.
func failed(err error) *Result {
	data := map[string]any{"kind": "internal"}
	if f, isFailure := model.AsFailure(err); isFailure {
		data["kind"] = string(f.Kind)
		for k, v := range f.Details {
			data[k] = v
		}
	}
	return &Result{Success: false, Message: err.Error(), Data: data}
}

// payload reads typed fields from a request payload. Values decoded from
// JSON or protobuf Structs arrive as float64 and []any, so both forms are
// accepted.
type payload map[string]any

func (p payload) has(key string) bool {
	_, found := p[key]
	return found
}

func (p payload) str(keys ...string) string {
	for _, key := range keys {
		switch v := p[key].(type) {
		case string:
			if v != "" {
				return v
			}
		}
	}
	return ""
}

func (p payload) requireStr(keys ...string) (string, error) {
	if s := p.str(keys...); s != "" {
		return s, nil
	}
	return "", model.Validationf("payload field %q is required", keys[0])
}

func (p payload) integer(key string, def int) (int, error) {
	raw, found := p[key]
	if !found || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, model.Validationf("payload field %q must be an integer", key)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, model.Validationf("payload field %q must be an integer", key)
		}
		return n, nil
	}
	return 0, model.Validationf("payload field %q must be an integer", key)
}

func (p payload) boolean(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// strs reads a list of strings. A single string is treated as a one-element
// list. The second result reports whether the key was present at all.
func (p payload) strs(keys ...string) ([]string, bool) {
	for _, key := range keys {
		raw, found := p[key]
		if !found || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case []string:
			return append([]string{}, v...), true
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, isStr := item.(string); isStr {
					out = append(out, s)
				}
			}
			return out, true
		case string:
			if v == "" {
				return []string{}, true
			}
			return []string{v}, true
		}
	}
	return nil, false
}

// distinct rejects a uid list that names the same card twice.
func distinct(field string, uids []string) error {
	seen := make(map[string]bool, len(uids))
	for _, uid := range uids {
		if seen[uid] {
			return model.Validationf("payload field %q lists %s more than once", field, uid)
		}
		seen[uid] = true
	}
	return nil
}

// targets reads a map of energy uid to Pokémon uid.
func (p payload) targets(key string) map[string]string {
	out := make(map[string]string)
	switch v := p[key].(type) {
	case map[string]string:
		for k, s := range v {
			out[k] = s
		}
	case map[string]any:
		for k, item := range v {
			if s, isStr := item.(string); isStr {
				out[k] = s
			}
		}
	}
	return out
}
