package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	EventTypeTokenIssued      EventType = "token_issued"
	EventTypeTokenValidated   EventType = "token_validated"
	EventTypeTokenRefreshed   EventType = "token_refreshed"
	EventTypeTokenRevoked     EventType = "token_revoked"
	EventTypeLoginSuccess     EventType = "login_success"
	EventTypeLoginFailed      EventType = "login_failed"
	EventTypeLogout           EventType = "logout"
	EventTypePermissionDenied EventType = "permission_denied"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"

	// EventStatusError marks an operation that failed against a backing
	// store or provider, as opposed to a token being classified invalid.
	EventStatusError EventStatus = "error"
)

// Event is a single append-only audit log entry. PrincipalID is nullable
// because failed logins may have no resolvable principal.
type Event struct {
	ID          int64       `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	EventType   EventType   `json:"event_type"`
	Status      EventStatus `json:"status"`
	PrincipalID *int64      `json:"principal_id,omitempty"`
	Username    string      `json:"username,omitempty"`
	JTI         string      `json:"jti,omitempty"`
	AppName     string      `json:"app_name,omitempty"`
	IPAddress   string      `json:"ip_address,omitempty"`
	UserAgent   string      `json:"user_agent,omitempty"`
	RequestID   string      `json:"request_id,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	Message     string      `json:"message,omitempty"`

	// Detail carries free-form structured payload
	Detail map[string]interface{} `json:"detail,omitempty"`
}

// ToJSON converts the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	StartTime   *time.Time
	EndTime     *time.Time
	PrincipalID *int64
	Username    string
	EventTypes  []EventType
	Status      *EventStatus
	AppName     string
	JTI         string
	IPAddress   string

	Limit  int
	Offset int
}

// RetentionPolicy defines how long audit events are kept. There is no
// per-row update or delete path; retention is the only destructive
// operation on the log.
type RetentionPolicy struct {
	RetentionDays int
}

// DefaultRetentionPolicy returns the default retention policy (90 days)
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{RetentionDays: 90}
}
