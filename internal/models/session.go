package models

import "time"

// Session represents one issued refresh token persisted in the sessions
// table. Validity is decided by store lookup: a token is usable exactly while
// a matching row exists with expires_at in the future. Revocation deletes the
// row; rows are never updated in place.
type Session struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Token     string    `db:"token" json:"token"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	UserAgent string    `db:"user_agent" json:"user_agent"`
}
