package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// NodeKind tags a node in an audience criteria tree.
type NodeKind string

const (
	NodeAll   NodeKind = "all"   // every child must match
	NodeAny   NodeKind = "any"   // at least one child must match
	NodeNot   NodeKind = "not"   // exactly one child, negated
	NodeMatch NodeKind = "match" // leaf predicate
)

// Operator is a predicate comparison applied to a contact field.
type Operator string

const (
	OpEq             Operator = "eq"
	OpNeq            Operator = "neq"
	OpContains       Operator = "contains"
	OpStartsWith     Operator = "starts_with"
	OpIn             Operator = "in"
	OpGt             Operator = "gt"
	OpGte            Operator = "gte"
	OpLt             Operator = "lt"
	OpLte            Operator = "lte"
	OpBetween        Operator = "between"
	OpBefore         Operator = "before"
	OpAfter          Operator = "after"
	OpWithinLastDays Operator = "within_last_days"
	OpHas            Operator = "has"
	OpHasAny         Operator = "has_any"
	OpHasNone        Operator = "has_none"
)

// Criteria is the audience filter of a campaign, expressed as a small tree
// of tagged nodes. The zero value selects every eligible contact.
//
//	{"kind":"all","children":[
//	  {"kind":"match","field":"city","operator":"eq","value":"Lyon"},
//	  {"kind":"not","children":[{"kind":"match","field":"tags","operator":"has","value":"vip"}]}
//	]}
type Criteria struct {
	Kind     NodeKind    `json:"kind,omitempty"`
	Children []Criteria  `json:"children,omitempty"`
	Field    string      `json:"field,omitempty"`
	Operator Operator    `json:"operator,omitempty"`
	Arg      interface{} `json:"value,omitempty"`
}

// IsEmpty reports whether the criteria selects everyone.
func (c Criteria) IsEmpty() bool {
	return c.Kind == "" && len(c.Children) == 0
}

// Match builds a leaf predicate.
func Match(field string, op Operator, value interface{}) Criteria {
	return Criteria{Kind: NodeMatch, Field: field, Operator: op, Arg: value}
}

// All builds a conjunction.
func All(children ...Criteria) Criteria {
	return Criteria{Kind: NodeAll, Children: children}
}

// Any builds a disjunction.
func Any(children ...Criteria) Criteria {
	return Criteria{Kind: NodeAny, Children: children}
}

// Not negates a single node.
func Not(child Criteria) Criteria {
	return Criteria{Kind: NodeNot, Children: []Criteria{child}}
}

// Value implements driver.Valuer so criteria can be stored as JSONB.
func (c Criteria) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JSONB columns.
func (c *Criteria) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = Criteria{}
		return nil
	case []byte:
		if len(v) == 0 {
			*c = Criteria{}
			return nil
		}
		return json.Unmarshal(v, c)
	case string:
		if v == "" {
			*c = Criteria{}
			return nil
		}
		return json.Unmarshal([]byte(v), c)
	default:
		return fmt.Errorf("criteria: unsupported scan type %T", src)
	}
}
