package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// A subscription belongs to the operator who registered it, identified by email.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	UserEmail string    `gorm:"index;size:256;not null"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}
