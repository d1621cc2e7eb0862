package model

import "time"

// Session is the operator's authenticated state as seen by every screen.
// The upstream token never leaves the server.
type Session struct {
	Token     string `json:"-"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	UserRole  string `json:"user_role"`
	LastPage  string `json:"last_page"`
	// Remember selects durable storage for the session.
	Remember bool `json:"remember"`
}

// IsAdmin reports whether the stored role is "admin". This is a display
// convenience only; the upstream service decides what a user may do.
func (s Session) IsAdmin() bool {
	return s.UserRole == "admin"
}

// SessionRecord is the durable row backing a remembered session.
type SessionRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Token     string    `gorm:"not null"`
	UserName  string    `gorm:"size:256"`
	UserEmail string    `gorm:"size:256;index"`
	UserRole  string    `gorm:"size:64"`
	LastPage  string    `gorm:"size:64"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ToSession converts the durable row back into a Session.
func (r SessionRecord) ToSession() Session {
	return Session{
		Token:     r.Token,
		UserName:  r.UserName,
		UserEmail: r.UserEmail,
		UserRole:  r.UserRole,
		LastPage:  r.LastPage,
		Remember:  true,
	}
}
