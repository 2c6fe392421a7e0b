package entity

import (
	"time"

	"github.com/google/uuid"
)

// User is a job owner as far as notifications are concerned.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
