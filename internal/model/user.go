package model

import "time"

// Role is the single role a user holds. Values match the stored column.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTecnico Role = "tecnico"
	RoleCliente Role = "cliente"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTecnico, RoleCliente:
		return true
	}
	return false
}

// User is reference data owned by the identity side; the workflow only reads it.
type User struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Role      Role      `gorm:"type:varchar(16);index;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   uint64 `json:"id"`
	Role Role   `json:"role"`
}

func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role}
}
