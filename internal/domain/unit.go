package domain

import "time"

// Unit is a physical location owning queues and resources.
type Unit struct {
	ID       string
	TenantID string
	Name     string
	Timezone string
	Audit
}

func (u *Unit) AuditInfo() *Audit { return &u.Audit }

// Location resolves the unit's timezone, falling back to fallback on empty or unknown names.
func (u *Unit) Location(fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	if u == nil || u.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// IssueDay formats the local calendar day used for ticket numbering.
func IssueDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
