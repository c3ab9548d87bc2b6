package domain

import "time"

// Contact is an addressable person the engine can send to. Contacts are
// owned by the surrounding application; the engine only reads them.
type Contact struct {
	ID          string     `json:"id" db:"id"`
	Email       string     `json:"email" db:"email"`
	FirstName   string     `json:"first_name" db:"first_name"`
	LastName    string     `json:"last_name" db:"last_name"`
	Gender      string     `json:"gender,omitempty" db:"gender"`
	City        string     `json:"city,omitempty" db:"city"`
	BirthDate   *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	LastVisitAt *time.Time `json:"last_visit_at,omitempty" db:"last_visit_at"`
	Tags        []string   `json:"tags,omitempty" db:"tags"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// FullName joins first and last name, skipping empty parts.
func (c *Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Age returns the contact's age in whole years at now, or -1 if unknown.
func (c *Contact) Age(now time.Time) int {
	if c.BirthDate == nil {
		return -1
	}
	b := c.BirthDate.UTC()
	n := now.UTC()
	age := n.Year() - b.Year()
	if n.Month() < b.Month() || (n.Month() == b.Month() && n.Day() < b.Day()) {
		age--
	}
	return age
}

// HasTag reports whether the contact carries tag (case-sensitive).
func (c *Contact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
