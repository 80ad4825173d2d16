package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`

	CreatedAt time.Time `json:"created_at"`
}
