package domain

import "time"

// Status is the closed set of login states a chat session can be in.
// A missing session record is equivalent to StatusLoggedOut.
type Status string

const (
	StatusLoggedOut     Status = "logged_out"
	StatusAwaitingPhone Status = "awaiting_phone"
	StatusAwaitingOtp   Status = "awaiting_otp"
	StatusLoggedIn      Status = "logged_in"
)

// Valid reports whether s is one of the known session statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusLoggedOut, StatusAwaitingPhone, StatusAwaitingOtp, StatusLoggedIn:
		return true
	}
	return false
}

// Session is the durable per-chat login state. Which fields are meaningful
// depends on Status:
//
//   - StatusAwaitingPhone: no extra fields
//   - StatusAwaitingOtp: PhoneNumber and LoginChallenge
//   - StatusLoggedIn: InstallationID and CountryCode
//
// LoginChallenge is the raw provider response from login initiation. It is
// opaque to everything except the identity client, which minted it, and must
// be round-tripped byte-for-byte between login initiation and OTP
// verification.
type Session struct {
	ChatID         int64
	Status         Status
	PhoneNumber    string
	LoginChallenge string
	InstallationID string
	CountryCode    string
	UpdatedAt      time.Time
}

// LoggedOut returns the implicit session for a chat with no stored record.
func LoggedOut(chatID int64) Session {
	return Session{ChatID: chatID, Status: StatusLoggedOut}
}
