package model

import (
	"encoding/json"
	"strings"
)

// LogicKind tags the visibility rule variant.
type LogicKind string

const (
	LogicSingle LogicKind = "single"
	LogicAnd    LogicKind = "and"
	LogicOr     LogicKind = "or"
)

// LogicAction selects whether a matching predicate shows or hides the field.
type LogicAction string

const (
	ActionShow LogicAction = "show"
	ActionHide LogicAction = "hide"
)

// Logic is a visibility rule. A single rule compares one other field's
// current value against Value. The and/or variants combine the predicates of
// Rules; only the outermost Action is applied.
//
// Forms serialised before the variant existed carry no kind and decode as
// LogicSingle.
type Logic struct {
	Kind    LogicKind   `json:"kind,omitempty"`
	FieldID string      `json:"fieldId,omitempty"`
	Value   any         `json:"value,omitempty"`
	Action  LogicAction `json:"action,omitempty"`
	Rules   []Logic     `json:"rules,omitempty"`
}

// UnmarshalJSON defaults the kind and action of legacy rules.
func (l *Logic) UnmarshalJSON(data []byte) error {
	type alias Logic
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = Logic(raw)
	l.normalize()
	return nil
}

func (l *Logic) normalize() {
	l.Kind = LogicKind(strings.ToLower(strings.TrimSpace(string(l.Kind))))
	if l.Kind == "" {
		l.Kind = LogicSingle
	}
	l.Action = LogicAction(strings.ToLower(strings.TrimSpace(string(l.Action))))
	if l.Action == "" {
		l.Action = ActionShow
	}
}

// References returns the ids of every field the rule reads.
func (l Logic) References() []string {
	switch l.Kind {
	case LogicAnd, LogicOr:
		var out []string
		for _, rule := range l.Rules {
			out = append(out, rule.References()...)
		}
		return out
	default:
		if l.FieldID == "" {
			return nil
		}
		return []string{l.FieldID}
	}
}

// Clone returns a deep copy of the rule tree.
func (l Logic) Clone() Logic {
	out := l
	if l.Rules != nil {
		out.Rules = make([]Logic, len(l.Rules))
		for i, rule := range l.Rules {
			out.Rules[i] = rule.Clone()
		}
	}
	return out
}
