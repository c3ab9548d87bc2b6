package audience

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// FieldType groups schema fields by the operators they accept.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldDate   FieldType = "date"
	FieldTag    FieldType = "tag"
)

// Schema lists every field a criteria leaf may reference.
var Schema = map[string]FieldType{
	"email":         FieldString,
	"first_name":    FieldString,
	"last_name":     FieldString,
	"gender":        FieldString,
	"city":          FieldString,
	"age":           FieldNumber,
	"birth_date":    FieldDate,
	"last_visit_at": FieldDate,
	"created_at":    FieldDate,
	"tags":          FieldTag,
}

var operatorsByType = map[FieldType][]domain.Operator{
	FieldString: {domain.OpEq, domain.OpNeq, domain.OpContains, domain.OpStartsWith, domain.OpIn},
	FieldNumber: {domain.OpEq, domain.OpNeq, domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte, domain.OpBetween},
	FieldDate:   {domain.OpBefore, domain.OpAfter, domain.OpWithinLastDays},
	FieldTag:    {domain.OpHas, domain.OpHasAny, domain.OpHasNone},
}

// Operators returns the operators accepted for a field type.
func Operators(t FieldType) []domain.Operator {
	return operatorsByType[t]
}

const (
	maxDepth    = 8
	maxChildren = 50
	maxListLen  = 500
)

// Node is a validated criteria tree with typed leaf values.
type Node struct {
	Kind     domain.NodeKind
	Children []*Node
	Pred     *Predicate // set when Kind is match
}

// Predicate is a single typed field comparison.
type Predicate struct {
	Field string
	Type  FieldType
	Op    domain.Operator

	Str  string
	Strs []string
	Num  float64
	Min  float64
	Max  float64
	Time time.Time
	Days int
}

// Validate checks criteria against the schema.
func Validate(c domain.Criteria) error {
	_, err := Parse(c)
	return err
}

// Parse validates criteria and converts them into a typed tree. Empty
// criteria yield a nil node, which selects every eligible contact.
func Parse(c domain.Criteria) (*Node, error) {
	if c.IsEmpty() {
		return nil, nil
	}
	return parseNode(c, "target_audience", 1)
}

func parseNode(c domain.Criteria, path string, depth int) (*Node, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: %s: criteria nested deeper than %d levels", ErrValidation, path, maxDepth)
	}
	switch c.Kind {
	case domain.NodeAll, domain.NodeAny:
		if len(c.Children) == 0 {
			return nil, fmt.Errorf("%w: %s: %q needs at least one child", ErrValidation, path, c.Kind)
		}
		if len(c.Children) > maxChildren {
			return nil, fmt.Errorf("%w: %s: %q has more than %d children", ErrValidation, path, c.Kind, maxChildren)
		}
		n := &Node{Kind: c.Kind, Children: make([]*Node, 0, len(c.Children))}
		for i, child := range c.Children {
			cn, err := parseNode(child, fmt.Sprintf("%s.children[%d]", path, i), depth+1)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, cn)
		}
		return n, nil

	case domain.NodeNot:
		if len(c.Children) != 1 {
			return nil, fmt.Errorf("%w: %s: \"not\" needs exactly one child", ErrValidation, path)
		}
		cn, err := parseNode(c.Children[0], path+".children[0]", depth+1)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: domain.NodeNot, Children: []*Node{cn}}, nil

	case domain.NodeMatch:
		p, err := parsePredicate(c, path)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: domain.NodeMatch, Pred: p}, nil

	case "":
		return nil, fmt.Errorf("%w: %s: kind is required", ErrValidation, path)
	default:
		return nil, fmt.Errorf("%w: %s: unknown kind %q", ErrValidation, path, c.Kind)
	}
}

func parsePredicate(c domain.Criteria, path string) (*Predicate, error) {
	ft, ok := Schema[c.Field]
	if !ok {
		return nil, fmt.Errorf("%w: %s: unknown field %q", ErrValidation, path, c.Field)
	}
	if !allowed(ft, c.Operator) {
		return nil, fmt.Errorf("%w: %s: operator %q not allowed on %s field %q", ErrValidation, path, c.Operator, ft, c.Field)
	}
	p := &Predicate{Field: c.Field, Type: ft, Op: c.Operator}
	bad := func(want string) error {
		return fmt.Errorf("%w: %s: %s %s expects %s", ErrValidation, path, c.Field, c.Operator, want)
	}

	switch ft {
	case FieldString:
		if c.Operator == domain.OpIn {
			strs, ok := toStrings(c.Arg)
			if !ok || len(strs) == 0 {
				return nil, bad("a non-empty list of strings")
			}
			p.Strs = strs
			return p, nil
		}
		s, ok := c.Arg.(string)
		if !ok {
			return nil, bad("a string")
		}
		p.Str = s
		return p, nil

	case FieldNumber:
		if c.Operator == domain.OpBetween {
			nums, ok := toNumbers(c.Arg)
			if !ok || len(nums) != 2 || nums[0] > nums[1] {
				return nil, bad("[min, max] with min <= max")
			}
			p.Min, p.Max = nums[0], nums[1]
			return p, nil
		}
		f, ok := toNumber(c.Arg)
		if !ok {
			return nil, bad("a number")
		}
		p.Num = f
		return p, nil

	case FieldDate:
		if c.Operator == domain.OpWithinLastDays {
			f, ok := toNumber(c.Arg)
			if !ok || f < 1 || f != math.Trunc(f) {
				return nil, bad("a positive whole number of days")
			}
			p.Days = int(f)
			return p, nil
		}
		s, ok := c.Arg.(string)
		if !ok {
			return nil, bad("a date (YYYY-MM-DD or RFC 3339)")
		}
		t, err := parseDate(s)
		if err != nil {
			return nil, bad("a date (YYYY-MM-DD or RFC 3339)")
		}
		p.Time = t
		return p, nil

	case FieldTag:
		if c.Operator == domain.OpHas {
			s, ok := c.Arg.(string)
			if !ok || s == "" {
				return nil, bad("a tag")
			}
			p.Str = s
			return p, nil
		}
		strs, ok := toStrings(c.Arg)
		if !ok || len(strs) == 0 {
			return nil, bad("a non-empty list of tags")
		}
		p.Strs = strs
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s: unsupported field type %s", ErrValidation, path, ft)
}

func allowed(ft FieldType, op domain.Operator) bool {
	for _, o := range operatorsByType[ft] {
		if o == op {
			return true
		}
	}
	return false
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toNumbers(v interface{}) ([]float64, bool) {
	switch list := v.(type) {
	case []float64:
		return list, true
	case []int:
		out := make([]float64, len(list))
		for i, n := range list {
			out[i] = float64(n)
		}
		return out, true
	case []interface{}:
		out := make([]float64, 0, len(list))
		for _, item := range list {
			f, ok := toNumber(item)
			if !ok {
				return nil, false
			}
			out = append(out, f)
		}
		return out, true
	}
	return nil, false
}

// toStrings accepts a list of strings, deduplicated in order. Blank items
// are rejected.
func toStrings(v interface{}) ([]string, bool) {
	var raw []string
	switch list := v.(type) {
	case []string:
		raw = list
	case []interface{}:
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			raw = append(raw, s)
		}
	default:
		return nil, false
	}
	if len(raw) > maxListLen {
		return nil, false
	}
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s) == "" {
			return nil, false
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, true
}
