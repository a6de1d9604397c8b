package visibility

import (
	"encoding/json"
	"reflect"

	"github.com/goliatone/go-clinicform/pkg/model"
)

// Hidden is the set of field ids hidden by side effects rather than by their
// declared logic.
type Hidden map[string]struct{}

// NewHidden builds a set from ids.
func NewHidden(ids ...string) Hidden {
	out := make(Hidden, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

// Has reports membership. A nil set contains nothing.
func (h Hidden) Has(id string) bool {
	_, ok := h[id]
	return ok
}

// Clone copies the set.
func (h Hidden) Clone() Hidden {
	out := make(Hidden, len(h))
	for id := range h {
		out[id] = struct{}{}
	}
	return out
}

// Context carries the runtime inputs a visibility decision depends on.
type Context struct {
	Values model.FormValues
	Hidden Hidden
}

// Evaluator decides whether a field participates in rendering and validation.
type Evaluator interface {
	IsVisible(field model.FormField, ctx Context) bool
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(field model.FormField, ctx Context) bool

// IsVisible delegates to the underlying function.
func (fn EvaluatorFunc) IsVisible(field model.FormField, ctx Context) bool {
	return fn(field, ctx)
}

// Default is the Evaluator backed by IsVisible.
var Default Evaluator = EvaluatorFunc(func(field model.FormField, ctx Context) bool {
	return IsVisible(field, ctx.Values, ctx.Hidden)
})

// IsVisible resolves a field's visibility. Side-effect hiding wins over any
// declared rule; a field without a rule is visible.
//
// A rule compares another field's value for equality only. Single rules are
// the common case; and/or rules combine their children's predicates and apply
// the outermost action to the result. There is no general expression language.
func IsVisible(field model.FormField, values model.FormValues, hidden Hidden) bool {
	if hidden.Has(field.ID) {
		return false
	}
	if field.Logic == nil || isBlank(*field.Logic) {
		return true
	}
	matched := Matches(*field.Logic, values)
	if action(*field.Logic) == model.ActionHide {
		return !matched
	}
	return matched
}

// Matches evaluates the predicate of a rule, ignoring its action. A referenced
// field without a recorded value never matches.
func Matches(logic model.Logic, values model.FormValues) bool {
	switch logic.Kind {
	case model.LogicAnd:
		if len(logic.Rules) == 0 {
			return false
		}
		for _, rule := range logic.Rules {
			if !Matches(rule, values) {
				return false
			}
		}
		return true
	case model.LogicOr:
		for _, rule := range logic.Rules {
			if Matches(rule, values) {
				return true
			}
		}
		return false
	default:
		current, ok := values[logic.FieldID]
		if !ok {
			return false
		}
		return Equal(current, logic.Value)
	}
}

// VisibleFields returns the visible fields of a step in order.
func VisibleFields(step model.FormStep, values model.FormValues, hidden Hidden) []model.FormField {
	var out []model.FormField
	for _, field := range step.Fields {
		if IsVisible(field, values, hidden) {
			out = append(out, field)
		}
	}
	return out
}

// Equal is strict equality between a recorded value and a rule value: both
// sides must share a dynamic kind. Numbers compare numerically whatever their
// Go width, since rules decoded from JSON carry float64. Collections never
// equal a rule value.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if an, ok := number(a); ok {
		bn, ok := number(b)
		return ok && an == bn
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	switch reflect.ValueOf(a).Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.Struct, reflect.Pointer, reflect.Func:
		return false
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	return a == b
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func action(logic model.Logic) model.LogicAction {
	if logic.Action == "" {
		return model.ActionShow
	}
	return logic.Action
}

// isBlank reports a single rule that names no field. Such rules are ignored
// rather than hiding the field forever.
func isBlank(logic model.Logic) bool {
	switch logic.Kind {
	case model.LogicAnd, model.LogicOr:
		return len(logic.Rules) == 0
	default:
		return logic.FieldID == ""
	}
}
