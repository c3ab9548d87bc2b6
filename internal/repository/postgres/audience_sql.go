package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/service/audience"
	"github.com/lib/pq"
)

// audienceQuery compiles a validated criteria tree into a WHERE clause with
// numbered placeholders. Every leaf is wrapped in COALESCE(..., false) so
// that NULL columns behave like the in-memory evaluator: unknown is false,
// and NOT of unknown is true.
type audienceQuery struct {
	args []interface{}
	now  time.Time
}

func (q *audienceQuery) nextArg(v interface{}) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

var stringColumns = map[string]string{
	"email":      "c.email",
	"first_name": "c.first_name",
	"last_name":  "c.last_name",
	"gender":     "c.gender",
	"city":       "c.city",
}

var dateColumns = map[string]string{
	"birth_date":    "c.birth_date",
	"last_visit_at": "c.last_visit_at",
	"created_at":    "c.created_at",
}

// where builds the full filter: the criteria, a usable address and no
// active suppression on the channel.
func (q *audienceQuery) where(root *audience.Node, channel domain.Channel) (string, error) {
	conds := []string{"c.email <> ''"}
	if root != nil {
		cond, err := q.node(root)
		if err != nil {
			return "", err
		}
		conds = append(conds, cond)
	}
	conds = append(conds, fmt.Sprintf(
		"NOT EXISTS (SELECT 1 FROM suppressions s WHERE s.contact_id = c.id AND s.channel = %s)",
		q.nextArg(string(channel))))
	return strings.Join(conds, " AND "), nil
}

func (q *audienceQuery) node(n *audience.Node) (string, error) {
	switch n.Kind {
	case domain.NodeAll, domain.NodeAny:
		if len(n.Children) == 0 {
			if n.Kind == domain.NodeAll {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		sep := " AND "
		if n.Kind == domain.NodeAny {
			sep = " OR "
		}
		parts := make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			p, err := q.node(child)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
		}
		return "(" + strings.Join(parts, sep) + ")", nil
	case domain.NodeNot:
		p, err := q.node(n.Children[0])
		if err != nil {
			return "", err
		}
		return "(NOT " + p + ")", nil
	case domain.NodeMatch:
		p, err := q.predicate(n.Pred)
		if err != nil {
			return "", err
		}
		return "COALESCE((" + p + "), false)", nil
	}
	return "", fmt.Errorf("%w: unknown node kind %q", domain.ErrValidation, n.Kind)
}

func (q *audienceQuery) predicate(p *audience.Predicate) (string, error) {
	switch p.Type {
	case audience.FieldString:
		col, ok := stringColumns[p.Field]
		if !ok {
			break
		}
		v := "LOWER(COALESCE(" + col + ", ''))"
		switch p.Op {
		case domain.OpEq:
			return fmt.Sprintf("%s = %s", v, q.nextArg(strings.ToLower(p.Str))), nil
		case domain.OpNeq:
			return fmt.Sprintf("%s <> %s", v, q.nextArg(strings.ToLower(p.Str))), nil
		case domain.OpContains:
			return fmt.Sprintf("POSITION(%s IN %s) > 0", q.nextArg(strings.ToLower(p.Str)), v), nil
		case domain.OpStartsWith:
			arg := q.nextArg(strings.ToLower(p.Str))
			return fmt.Sprintf("LEFT(%s, LENGTH(%s)) = %s", v, arg, arg), nil
		case domain.OpIn:
			lowered := make([]string, len(p.Strs))
			for i, s := range p.Strs {
				lowered[i] = strings.ToLower(s)
			}
			return fmt.Sprintf("%s = ANY(%s)", v, q.nextArg(pq.Array(lowered))), nil
		}
	case audience.FieldNumber:
		age := fmt.Sprintf("EXTRACT(YEAR FROM AGE(%s::date, c.birth_date))", q.nextArg(q.now.UTC().Format("2006-01-02")))
		switch p.Op {
		case domain.OpEq:
			return fmt.Sprintf("%s = %s", age, q.nextArg(p.Num)), nil
		case domain.OpNeq:
			return fmt.Sprintf("%s <> %s", age, q.nextArg(p.Num)), nil
		case domain.OpGt:
			return fmt.Sprintf("%s > %s", age, q.nextArg(p.Num)), nil
		case domain.OpGte:
			return fmt.Sprintf("%s >= %s", age, q.nextArg(p.Num)), nil
		case domain.OpLt:
			return fmt.Sprintf("%s < %s", age, q.nextArg(p.Num)), nil
		case domain.OpLte:
			return fmt.Sprintf("%s <= %s", age, q.nextArg(p.Num)), nil
		case domain.OpBetween:
			return fmt.Sprintf("%s BETWEEN %s AND %s", age, q.nextArg(p.Min), q.nextArg(p.Max)), nil
		}
	case audience.FieldDate:
		col, ok := dateColumns[p.Field]
		if !ok {
			break
		}
		switch p.Op {
		case domain.OpBefore:
			return fmt.Sprintf("%s < %s", col, q.nextArg(p.Time)), nil
		case domain.OpAfter:
			return fmt.Sprintf("%s > %s", col, q.nextArg(p.Time)), nil
		case domain.OpWithinLastDays:
			return fmt.Sprintf("%s >= %s", col, q.nextArg(audience.WindowStart(q.now, p.Days))), nil
		}
	case audience.FieldTag:
		tags := "COALESCE(c.tags, '{}')"
		switch p.Op {
		case domain.OpHas:
			return fmt.Sprintf("%s = ANY(%s)", q.nextArg(p.Str), tags), nil
		case domain.OpHasAny:
			return fmt.Sprintf("%s && %s", tags, q.nextArg(pq.Array(p.Strs))), nil
		case domain.OpHasNone:
			return fmt.Sprintf("NOT (%s && %s)", tags, q.nextArg(pq.Array(p.Strs))), nil
		}
	}
	return "", fmt.Errorf("%w: unsupported predicate %s %s", domain.ErrValidation, p.Field, p.Op)
}
