package models

import "time"

// User учётная запись администратора/сотрудника.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsStaff      bool      `json:"is_staff"`
	IsSuperuser  bool      `json:"is_superuser"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// CanUseAdmin true для активных сотрудников и суперпользователей.
func (u *User) CanUseAdmin() bool {
	return u != nil && u.IsActive && (u.IsStaff || u.IsSuperuser)
}
