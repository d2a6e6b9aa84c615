package models

import (
	"time"
)

// Route представляет именованный междугородний маршрут (пара городов),
// который могут обслуживать водители. Справочные данные, создаются оператором.
type Route struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null;type:varchar(255)"`
	FromCity  string    `json:"from_city" gorm:"not null;type:varchar(255)"`
	ToCity    string    `json:"to_city" gorm:"not null;type:varchar(255)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

type RouteResponse struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	FromCity string `json:"from_city"`
	ToCity   string `json:"to_city"`
}
