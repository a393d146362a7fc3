package models

import "time"

// Entity is the external record a workflow instance tracks.
type Entity struct {
	Name     string            `json:"name"   validate:"required"`
	Key      string            `json:"key"    validate:"required"`
	StatusID string            `json:"status_id,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// Value returns a field of the entity. "statusId" resolves to StatusID.
func (e *Entity) Value(field string) (string, bool) {
	if field == "statusId" {
		return e.StatusID, true
	}

	v, ok := e.Fields[field]

	return v, ok
}

// User is a directory account.
type User struct {
	ID       string `json:"id"       validate:"required"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// GroupMember is a time-bounded membership of a user in a group. A nil ThruDate is open-ended.
type GroupMember struct {
	GroupID  string     `json:"group_id" validate:"required"`
	UserID   string     `json:"user_id"  validate:"required"`
	FromDate time.Time  `json:"from_date"`
	ThruDate *time.Time `json:"thru_date,omitempty"`
}

// Covers reports whether the membership window includes at.
func (m *GroupMember) Covers(at time.Time) bool {
	if at.Before(m.FromDate) {
		return false
	}

	return m.ThruDate == nil || at.Before(*m.ThruDate)
}
