package web

import "time"

// ActionRequest is the body of suspend, resume and abort.
type ActionRequest struct {
	UserID string `json:"user_id"`
}

type UpdateVariableRequest struct {
	Expression string `json:"expression" validate:"required"`
}

type CreateInitiatorRequest struct {
	UserGroupID string     `json:"user_group_id" validate:"required"`
	FromDate    time.Time  `json:"from_date"`
	ThruDate    *time.Time `json:"thru_date,omitempty"`
}

type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}
