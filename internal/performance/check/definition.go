package check

import (
	"fmt"
	"time"
)

// Kinds of declarative checks.
const (
	KindStatus            = "status"
	KindStatusBelow       = "status_below"
	KindDurationBelow     = "duration_below"
	KindJSONEquals        = "json_equals"
	KindJSONArray         = "json_array"
	KindJSONArrayNotEmpty = "json_array_not_empty"
	KindJSONSchema        = "json_schema"
	KindBodyContains      = "body_contains"
)

// Definition declares a check in a profile file.
//
//	checks:
//	  - name: contacts status is 200
//	    kind: status
//	    status: [200]
//	  - name: contacts returns array
//	    kind: json_array
type Definition struct {
	Name   string `json:"name" yaml:"name"`
	Kind   string `json:"kind" yaml:"kind"`
	Status []int  `json:"status,omitempty" yaml:"status,omitempty"`
	Below  int    `json:"below,omitempty" yaml:"below,omitempty"`
	Within string `json:"within,omitempty" yaml:"within,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	Equals string `json:"equals,omitempty" yaml:"equals,omitempty"`
	Text   string `json:"text,omitempty" yaml:"text,omitempty"`
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
	Negate bool   `json:"negate,omitempty" yaml:"negate,omitempty"`
}

// Compile turns the definition into a Check.
func (d Definition) Compile() (Check, error) {
	if d.Name == "" {
		return Check{}, fmt.Errorf("check name is required")
	}

	var p Predicate
	switch d.Kind {
	case KindStatus:
		if len(d.Status) == 0 {
			return Check{}, fmt.Errorf("check %q: status requires at least one code", d.Name)
		}
		if len(d.Status) == 1 {
			p = Status(d.Status[0])
		} else {
			p = StatusIn(d.Status...)
		}
	case KindStatusBelow:
		if d.Below <= 0 {
			return Check{}, fmt.Errorf("check %q: below must be positive", d.Name)
		}
		p = StatusBelow(d.Below)
	case KindDurationBelow:
		within, err := time.ParseDuration(d.Within)
		if err != nil || within <= 0 {
			return Check{}, fmt.Errorf("check %q: within must be a positive duration, got %q", d.Name, d.Within)
		}
		p = DurationBelow(within)
	case KindJSONEquals:
		if d.Path == "" {
			return Check{}, fmt.Errorf("check %q: path is required", d.Name)
		}
		p = JSONEquals(d.Path, d.Equals)
	case KindJSONArray:
		p = JSONArray(d.Path)
	case KindJSONArrayNotEmpty:
		p = JSONArrayNotEmpty(d.Path)
	case KindJSONSchema:
		var err error
		if p, err = MatchesSchema(d.Schema); err != nil {
			return Check{}, fmt.Errorf("check %q: %w", d.Name, err)
		}
	case KindBodyContains:
		if d.Text == "" {
			return Check{}, fmt.Errorf("check %q: text is required", d.Name)
		}
		p = BodyContains(d.Text)
	default:
		return Check{}, fmt.Errorf("check %q: unknown kind %q", d.Name, d.Kind)
	}

	if d.Negate {
		p = Not(p)
	}
	return Check{Name: d.Name, Predicate: p}, nil
}

// CompileAll compiles a list of definitions into a Set.
func CompileAll(defs []Definition) (Set, error) {
	set := make(Set, 0, len(defs))
	for _, d := range defs {
		c, err := d.Compile()
		if err != nil {
			return nil, err
		}
		set = append(set, c)
	}
	return set, nil
}
