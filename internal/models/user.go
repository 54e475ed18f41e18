package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role тип акаунта користувача
type Role string

const (
	RoleStudent   Role = "student"
	RoleCounselor Role = "counselor"
	RoleAdmin     Role = "admin"
)

// StaffRoles ролі, що перевіряють контент і отримують ескалації
var StaffRoles = []Role{RoleCounselor, RoleAdmin}

// IsStaff: чи може роль перевіряти контент і відповідати в чатах
func (r Role) IsStaff() bool {
	return r == RoleCounselor || r == RoleAdmin
}

// Valid: чи є r однією з відомих ролей
func (r Role) Valid() bool {
	return r == RoleStudent || r.IsStaff()
}

// User акаунт студента, консультанта або адміністратора.
// Студенти реєструються лише з username і отримують синтетичну email-адресу.
type User struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"type:text;not null;index" json:"role"`
	DisplayName  string    `json:"display_name"`
	Language     string    `gorm:"type:text;default:'en'" json:"language"`
	CreatedAt    time.Time `json:"created_at"`
}

// BeforeCreate генерує UUID, якщо ID ще не задано
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// Actor автентифікований користувач, що виконує операцію
type Actor struct {
	ID   string
	Role Role
}
