package user

import (
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// User is an actor known to the engine. Only the role assignment matters here;
// credentials live with the external auth service.
type User struct {
	ID        string    `json:"id" bson:"_id" validate:"required"`
	Username  string    `json:"username" bson:"username" validate:"required"`
	Email     string    `json:"email,omitempty" bson:"email,omitempty" validate:"omitempty,email"`
	Roles     []string  `json:"roles" bson:"roles" validate:"dive,required"`
	Status    Status    `json:"status" bson:"status"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
