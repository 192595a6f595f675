package domain

import "time"

// UserUsage is the authoritative persistent mirror of the fast-path usage
// counters the meter (C9) maintains in Redis. Unique on (UserID, Feature).
type UserUsage struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Feature   string    `json:"feature_name"`
	Count     int       `json:"usage_count"`
	ResetAt   time.Time `json:"reset_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
