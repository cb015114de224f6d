package groups

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse reads the compact command-line form of a Spec. Conditions are
// separated by ';', constraints by ',', and alternative values by '|':
//
//	sex=1,race=1;race=0|2
//
// is "(sex is 1 and race is 1) or race is 0 or 2".
func Parse(s string) (Spec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidGroupSpec)
	}
	var spec Spec
	for _, part := range strings.Split(s, ";") {
		var cond Condition
		for _, term := range strings.Split(part, ",") {
			attr, vals, ok := strings.Cut(strings.TrimSpace(term), "=")
			attr = strings.TrimSpace(attr)
			if !ok || attr == "" {
				return nil, fmt.Errorf("%w: %q is not attr=value", ErrInvalidGroupSpec, term)
			}
			raw := strings.Split(vals, "|")
			vs := make([]float64, len(raw))
			for i, r := range raw {
				v, err := strconv.ParseFloat(strings.TrimSpace(r), 64)
				if err != nil {
					return nil, fmt.Errorf("%w: %s value %q", ErrInvalidGroupSpec, attr, r)
				}
				vs[i] = v
			}
			if len(vs) == 1 {
				cond = append(cond, Eq(attr, vs[0]))
			} else {
				cond = append(cond, In(attr, vs...))
			}
		}
		spec = append(spec, cond)
	}
	return spec, nil
}
