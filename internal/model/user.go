package model

import "time"

type UserRole string

const (
	RoleStudent  UserRole = "student"
	RoleLecturer UserRole = "lecturer"
	RoleAdmin    UserRole = "admin"
)

type User struct {
	ID         int64     `json:"id"`
	TelegramID *int64    `json:"telegram_id"` // nil, пока аккаунт не привязан к боту
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	Role       UserRole  `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}

func (u *User) IsStudent() bool  { return u.Role == RoleStudent }
func (u *User) IsLecturer() bool { return u.Role == RoleLecturer }
func (u *User) IsAdmin() bool    { return u.Role == RoleAdmin }
