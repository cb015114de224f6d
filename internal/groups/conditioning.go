// Package groups selects dataset rows by protected-attribute values.
//
// A Spec is a list of Conditions joined by OR; a Condition is a list of
// Constraints joined by AND. The privileged group "sex is 1" and the
// unprivileged group "sex is 0, or race is 0 or 2" read:
//
//	priv := groups.Spec{{groups.Eq("sex", 1)}}
//	unpriv := groups.Spec{{groups.Eq("sex", 0)}, {groups.In("race", 0, 2)}}
package groups

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"fairtrain/internal/data"
)

var ErrInvalidGroupSpec = errors.New("invalid group spec")

type Kind int

const (
	Single Kind = iota
	Set
)

// Constraint accepts one value (Single) or any of several (Set) for one
// protected attribute.
type Constraint struct {
	Attr   string
	Kind   Kind
	Values []float64
}

func Eq(attr string, v float64) Constraint {
	return Constraint{Attr: attr, Kind: Single, Values: []float64{v}}
}

func In(attr string, vs ...float64) Constraint {
	return Constraint{Attr: attr, Kind: Set, Values: append([]float64(nil), vs...)}
}

func (c Constraint) accepts(v float64) bool {
	if c.Kind == Single {
		return v == c.Values[0]
	}
	for _, a := range c.Values {
		if v == a {
			return true
		}
	}
	return false
}

func (c Constraint) String() string {
	if c.Kind == Single {
		return fmt.Sprintf("%s=%g", c.Attr, c.Values[0])
	}
	vs := make([]string, len(c.Values))
	for i, v := range c.Values {
		vs[i] = fmt.Sprintf("%g", v)
	}
	return fmt.Sprintf("%s in {%s}", c.Attr, strings.Join(vs, ","))
}

// Condition matches a row when every constraint does.
type Condition []Constraint

// Spec matches a row when any condition does. A nil Spec matches every row.
type Spec []Condition

func (s Spec) String() string {
	if s == nil {
		return "all"
	}
	parts := make([]string, len(s))
	for i, c := range s {
		cs := make([]string, len(c))
		for j, k := range c {
			cs[j] = k.String()
		}
		parts[i] = strings.Join(cs, " and ")
	}
	return strings.Join(parts, " or ")
}

// Validate checks that every attribute named by spec is a protected
// attribute of ds and that no condition or constraint is empty.
func Validate(ds *data.Dataset, spec Spec) error {
	_, err := resolve(ds, spec)
	return err
}

type boundConstraint struct {
	col int
	c   Constraint
}

func resolve(ds *data.Dataset, spec Spec) ([][]boundConstraint, error) {
	out := make([][]boundConstraint, len(spec))
	for i, cond := range spec {
		if len(cond) == 0 {
			return nil, fmt.Errorf("%w: condition %d has no constraints", ErrInvalidGroupSpec, i)
		}
		out[i] = make([]boundConstraint, len(cond))
		for j, c := range cond {
			col, ok := ds.ProtectedIndex(c.Attr)
			if !ok {
				return nil, fmt.Errorf("%w: %q is not a protected attribute (have %v)", ErrInvalidGroupSpec, c.Attr, ds.ProtectedNames)
			}
			if len(c.Values) == 0 || (c.Kind == Single && len(c.Values) != 1) {
				return nil, fmt.Errorf("%w: constraint on %q has %d values", ErrInvalidGroupSpec, c.Attr, len(c.Values))
			}
			out[i][j] = boundConstraint{col: col, c: c}
		}
	}
	return out, nil
}

// Membership marks the rows of ds that belong to spec.
func Membership(ds *data.Dataset, spec Spec) ([]bool, error) {
	bound, err := resolve(ds, spec)
	if err != nil {
		return nil, err
	}
	out := make([]bool, ds.Len())
	if spec == nil {
		for i := range out {
			out[i] = true
		}
		return out, nil
	}
	for i, row := range ds.Protected {
		for _, cond := range bound {
			if matches(row, cond) {
				out[i] = true
				break
			}
		}
	}
	return out, nil
}

func matches(row []float64, cond []boundConstraint) bool {
	for _, b := range cond {
		if !b.c.accepts(row[b.col]) {
			return false
		}
	}
	return true
}

// FromMaps converts the list-of-mappings form used in configuration files.
// A scalar value becomes Eq and a list becomes In. Attributes inside one
// mapping are sorted so the resulting Spec is deterministic.
func FromMaps(maps []map[string]any) (Spec, error) {
	if len(maps) == 0 {
		return nil, fmt.Errorf("%w: empty group list", ErrInvalidGroupSpec)
	}
	spec := make(Spec, 0, len(maps))
	for i, m := range maps {
		if len(m) == 0 {
			return nil, fmt.Errorf("%w: mapping %d is empty", ErrInvalidGroupSpec, i)
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		cond := make(Condition, 0, len(keys))
		for _, k := range keys {
			switch v := m[k].(type) {
			case []any:
				vs := make([]float64, len(v))
				for j, e := range v {
					f, ok := toFloat(e)
					if !ok {
						return nil, fmt.Errorf("%w: %s[%d] is %T", ErrInvalidGroupSpec, k, j, e)
					}
					vs[j] = f
				}
				cond = append(cond, In(k, vs...))
			default:
				f, ok := toFloat(v)
				if !ok {
					return nil, fmt.Errorf("%w: %s is %T", ErrInvalidGroupSpec, k, v)
				}
				cond = append(cond, Eq(k, f))
			}
		}
		spec = append(spec, cond)
	}
	return spec, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint32:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
