// Package queue carries audit events for the token lifecycle over RabbitMQ.
package queue

// Event types published by the auth service.
const (
	EventLogin           = "login"
	EventLoginFailed     = "login_failed"
	EventAccessRefreshed = "access_refreshed"
	EventRotated         = "rotated"
	EventLogout          = "logout"
)

// AuthEvent records one lifecycle transition. It never carries token
// material, only who and what.
type AuthEvent struct {
	Type       string `json:"type"`
	UserID     uint64 `json:"user_id,omitempty"`
	Username   string `json:"username"`
	OccurredAt string `json:"occurred_at"`
}
