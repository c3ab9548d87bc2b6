package audience

import (
	"strings"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
)

// Matches evaluates the tree against one contact. A nil node matches
// everyone. A predicate on an unknown value (no birth date, never visited)
// is false, so "not" above it is true.
func (n *Node) Matches(c *domain.Contact, now time.Time) bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case domain.NodeAll:
		for _, child := range n.Children {
			if !child.Matches(c, now) {
				return false
			}
		}
		return true
	case domain.NodeAny:
		for _, child := range n.Children {
			if child.Matches(c, now) {
				return true
			}
		}
		return false
	case domain.NodeNot:
		return !n.Children[0].Matches(c, now)
	case domain.NodeMatch:
		return n.Pred.matches(c, now)
	}
	return false
}

func (p *Predicate) matches(c *domain.Contact, now time.Time) bool {
	switch p.Type {
	case FieldString:
		return p.matchString(stringField(c, p.Field))
	case FieldNumber:
		age := c.Age(now)
		if age < 0 {
			return false
		}
		return p.matchNumber(float64(age))
	case FieldDate:
		t := dateField(c, p.Field)
		if t == nil {
			return false
		}
		return p.matchDate(*t, now)
	case FieldTag:
		return p.matchTags(c)
	}
	return false
}

func (p *Predicate) matchString(v string) bool {
	lv := strings.ToLower(v)
	switch p.Op {
	case domain.OpEq:
		return lv == strings.ToLower(p.Str)
	case domain.OpNeq:
		return lv != strings.ToLower(p.Str)
	case domain.OpContains:
		return strings.Contains(lv, strings.ToLower(p.Str))
	case domain.OpStartsWith:
		return strings.HasPrefix(lv, strings.ToLower(p.Str))
	case domain.OpIn:
		for _, s := range p.Strs {
			if lv == strings.ToLower(s) {
				return true
			}
		}
	}
	return false
}

func (p *Predicate) matchNumber(v float64) bool {
	switch p.Op {
	case domain.OpEq:
		return v == p.Num
	case domain.OpNeq:
		return v != p.Num
	case domain.OpGt:
		return v > p.Num
	case domain.OpGte:
		return v >= p.Num
	case domain.OpLt:
		return v < p.Num
	case domain.OpLte:
		return v <= p.Num
	case domain.OpBetween:
		return v >= p.Min && v <= p.Max
	}
	return false
}

func (p *Predicate) matchDate(v, now time.Time) bool {
	switch p.Op {
	case domain.OpBefore:
		return v.Before(p.Time)
	case domain.OpAfter:
		return v.After(p.Time)
	case domain.OpWithinLastDays:
		return !v.Before(WindowStart(now, p.Days))
	}
	return false
}

func (p *Predicate) matchTags(c *domain.Contact) bool {
	switch p.Op {
	case domain.OpHas:
		return c.HasTag(p.Str)
	case domain.OpHasAny:
		for _, t := range p.Strs {
			if c.HasTag(t) {
				return true
			}
		}
		return false
	case domain.OpHasNone:
		for _, t := range p.Strs {
			if c.HasTag(t) {
				return false
			}
		}
		return true
	}
	return false
}

// WindowStart is the earliest instant inside a within_last_days window.
func WindowStart(now time.Time, days int) time.Time {
	return now.UTC().Add(-time.Duration(days) * 24 * time.Hour)
}

func stringField(c *domain.Contact, field string) string {
	switch field {
	case "email":
		return c.Email
	case "first_name":
		return c.FirstName
	case "last_name":
		return c.LastName
	case "gender":
		return c.Gender
	case "city":
		return c.City
	}
	return ""
}

func dateField(c *domain.Contact, field string) *time.Time {
	switch field {
	case "birth_date":
		return c.BirthDate
	case "last_visit_at":
		return c.LastVisitAt
	case "created_at":
		t := c.CreatedAt
		return &t
	}
	return nil
}
