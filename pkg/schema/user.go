// Package schema defines the data structures shared by the key switcher daemon, its CLI and the SDK.
package schema

import "time"

// StudentRecord is the persisted per-user usage row.
// It is keyed by PID; Calls starts at zero and LastKeyTime stays nil until the first key is issued.
type StudentRecord struct {
	User        string     `json:"user"`
	PID         string     `json:"pid"`
	Calls       int        `json:"calls"`
	LastKeyTime *time.Time `json:"last_key_time"`
}

// AddUserRequest is the body of POST /add_user.
type AddUserRequest struct {
	Name string `json:"name"`
	PID  string `json:"PID"`
}

// TempKeyRequest is the body of POST /temp_key.
type TempKeyRequest struct {
	PID string `json:"PID"`
}

// TempKeyResponse carries the secret value for the active schedule slot.
type TempKeyResponse struct {
	Key string `json:"key"`
}

// UsageResponse reports a user's counters.
type UsageResponse struct {
	PID         string     `json:"PID"`
	Calls       int        `json:"calls"`
	LastKeyTime *time.Time `json:"last_key_time"`
}

// ScheduleEntry describes one slot of the rotation schedule. Secret values are never included.
type ScheduleEntry struct {
	KeyID    string    `json:"key_id"`
	StartsAt time.Time `json:"starts_at"`
}

// HealthResponse is returned by POST /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
