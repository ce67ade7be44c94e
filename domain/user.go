// Package domain contains core concepts of the chat system.
// This file defines User entities.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

type UserID string

// User is immutable once registered.
// PasswordHash never leaves the service layer.
type User struct {
	ID           UserID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
