package tubesvc

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// taskFilter wraps a compiled CEL program evaluated against task rows on
// the listing endpoint. When disabled, Eval always returns true. The
// engine core never interprets classification fields; filtering lives
// entirely here.
type taskFilter struct {
	prog    cel.Program
	enabled bool
}

func newTaskFilter(expr string) (taskFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return taskFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.IntType),
		cel.Variable("state", cel.IntType),
		cel.Variable("status", cel.StringType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("message_type", cel.StringType),
		cel.Variable("object_type", cel.IntType),
		cel.Variable("object_id", cel.IntType),
		cel.Variable("epoch", cel.IntType),
		cel.Variable("to_send_at", cel.IntType),
		cel.Variable("valid_until", cel.IntType),
		cel.Variable("created_at", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Parsed JSON payload for field filtering, when the payload is JSON
		cel.Variable("json", cel.DynType),
		// Current time in wire units for windowed filters
		cel.Variable("now", cel.IntType),
	)
	if err != nil {
		return taskFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return taskFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return taskFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return taskFilter{}, err
	}
	return taskFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against a row. When disabled,
// returns true.
func (f taskFilter) Eval(row Row, now time.Time) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(row.Payload, &jsonObj)
	out, _, err := f.prog.Eval(map[string]any{
		"id":           int64(row.ID),
		"state":        int64(row.State),
		"status":       row.Status,
		"channel":      row.Channel,
		"message_type": row.MessageType,
		"object_type":  row.ObjectType,
		"object_id":    row.ObjectID,
		"epoch":        int64(row.Epoch),
		"to_send_at":   row.ToSendAt,
		"valid_until":  row.ValidUntil,
		"created_at":   row.CreatedAt,
		"text":         string(row.Payload),
		"json":         jsonObj,
		"now":          timeToWire(now),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
