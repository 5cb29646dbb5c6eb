package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID `json:"id"`
	CreatedAt      time.Time `json:"createdAt"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	EmailVerified  bool      `json:"emailVerified"`
	HashedPassword string    `json:"-"`
}
