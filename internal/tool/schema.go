package tool

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/hal9000y/workspace-agent/internal/validate"
)

// Kind is the argument type a Param accepts.
type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindBoolean
	// KindStringList accepts a list of strings or a single bare string.
	KindStringList
)

func (k Kind) jsonType() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindBoolean:
		return "boolean"
	case KindStringList:
		return "array"
	default:
		return "string"
	}
}

// Param declares one named argument of a tool.
type Param struct {
	Name        string
	Kind        Kind
	Description string
	Required    bool
	Default     any
	Enum        []string
	// Rule validates and normalizes string values, or each element of a list.
	Rule func(field, value string) (string, error)
	Min  int64
	Max  int64
}

// Schema is the ordered argument list of a tool plus an optional
// cross-field check run after every Param passed.
type Schema struct {
	Params []Param
	Check  func(args map[string]any) error
}

// Bind validates args against s and returns the coerced arguments with
// defaults applied. Validation stops at the first failing Param, in
// declaration order. Arguments not declared in s are dropped.
func (s Schema) Bind(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(s.Params))

	for _, p := range s.Params {
		raw, ok := args[p.Name]
		if ok && isEmpty(raw) {
			ok = false
		}

		if !ok {
			if p.Required {
				return nil, validate.Errorf(p.Name, "is required")
			}
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}

		v, err := p.coerce(raw)
		if err != nil {
			return nil, err
		}
		out[p.Name] = v
	}

	if s.Check != nil {
		if err := s.Check(out); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (p Param) coerce(raw any) (any, error) {
	switch p.Kind {
	case KindInteger:
		n, ok := toInt64(raw)
		if !ok {
			return nil, validate.Errorf(p.Name, "must be an integer, got %v", raw)
		}
		if n < p.Min {
			return nil, validate.Errorf(p.Name, "must be at least %d, got %d", p.Min, n)
		}
		if p.Max > 0 && n > p.Max {
			return nil, validate.Errorf(p.Name, "must be at most %d, got %d", p.Max, n)
		}
		return n, nil

	case KindBoolean:
		switch b := raw.(type) {
		case bool:
			return b, nil
		case string:
			if v, err := strconv.ParseBool(b); err == nil {
				return v, nil
			}
		}
		return nil, validate.Errorf(p.Name, "must be a boolean, got %v", raw)

	case KindStringList:
		var items []string
		switch v := raw.(type) {
		case string:
			items = []string{v}
		case []string:
			items = v
		case []any:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, validate.Errorf(p.Name, "must be a list of strings, got element %v", item)
				}
				items = append(items, s)
			}
		default:
			return nil, validate.Errorf(p.Name, "must be a string or a list of strings")
		}

		out := make([]string, 0, len(items))
		for _, item := range items {
			s, err := p.checkString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil

	default:
		s, ok := raw.(string)
		if !ok {
			return nil, validate.Errorf(p.Name, "must be a string, got %v", raw)
		}
		return p.checkString(s)
	}
}

func (p Param) checkString(s string) (string, error) {
	if len(p.Enum) > 0 {
		if _, err := validate.OneOf(p.Name, s, p.Enum); err != nil {
			return "", err
		}
	}
	if p.Rule != nil {
		return p.Rule(p.Name, s)
	}

	return s, nil
}

func toInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	}

	return 0, false
}

func isEmpty(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	}

	return false
}

// JSONSchema renders s as a JSON Schema object.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Params))
	required := make([]string, 0)

	for _, p := range s.Params {
		prop := map[string]any{
			"type":        p.Kind.jsonType(),
			"description": p.Description,
		}

		if p.Kind == KindStringList {
			items := map[string]any{"type": "string"}
			if len(p.Enum) > 0 {
				items["enum"] = p.Enum
			}
			prop["items"] = items
		} else if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}

		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Required {
			required = append(required, p.Name)
		}

		props[p.Name] = prop
	}

	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}
