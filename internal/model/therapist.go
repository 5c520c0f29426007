package model

// Therapist roles
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Therapist owns a service offering, availability windows and appointments.
type Therapist struct {
	Base
	Name         string `db:"name" json:"name"`
	Phone        string `db:"phone" json:"phone"`
	Email        string `db:"email" json:"email,omitempty"`
	PasswordHash string `db:"password_hash" json:"-"`
	Role         string `db:"role" json:"role"`
}

type CreateTherapistRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Phone    string `json:"phone" binding:"required,phone"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type UpdateTherapistRequest struct {
	Name     *string `json:"name" binding:"omitempty,max=100"`
	Phone    *string `json:"phone" binding:"omitempty,phone"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Password *string `json:"password" binding:"omitempty,min=8"`
}
