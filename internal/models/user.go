package models

import (
	"time"
)

// Роли пользователей системы
const (
	RoleCompany = "company" // Компания-отправитель
	RoleDriver  = "driver"  // Водитель
	RoleAdmin   = "admin"   // Администратор
)

type User struct {
	ID          uint      `json:"id" gorm:"primaryKey;column:id;autoIncrement"`
	FirstName   string    `json:"firstName" gorm:"column:first_name;not null;type:varchar(255)"`
	LastName    string    `json:"lastName" gorm:"column:last_name;type:varchar(255)"`
	CompanyName string    `json:"companyName" gorm:"column:company_name;type:varchar(255)"`
	Phone       string    `json:"phone" gorm:"column:phone;unique;not null;type:varchar(20)"`
	Role        string    `json:"role" gorm:"column:role;default:'company';type:varchar(20)"`
	FCMToken    string    `json:"fcmToken" gorm:"column:fcm_token;type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

type UserResponse struct {
	ID          uint      `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	CompanyName string    `json:"companyName,omitempty"`
	Phone       string    `json:"phone"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

// FullName возвращает отображаемое имя пользователя
func (u *User) FullName() string {
	if u.CompanyName != "" {
		return u.CompanyName
	}
	return u.FirstName + " " + u.LastName
}
