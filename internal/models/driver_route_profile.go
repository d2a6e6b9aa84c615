package models

import (
	"strconv"
	"strings"
	"time"
)

// DriverRouteProfile представляет регулярное расписание водителя по маршруту:
// дни недели, временное окно и максимальная вместимость. Используется только
// как шаблон при создании первого рейса на дату — после создания рейса
// изменения профиля на существующие рейсы не влияют.
type DriverRouteProfile struct {
	ID                        uint      `json:"id" gorm:"primaryKey"`
	DriverID                  uint      `json:"driver_id" gorm:"not null;index"`
	RouteID                   uint      `json:"route_id" gorm:"not null;index"`
	DaysOfWeek                string    `json:"days_of_week" gorm:"not null;type:varchar(20)"` // Номера дней через запятую, 0 = воскресенье
	DepartureTime             string    `json:"departure_time" gorm:"type:varchar(5)"`         // Формат HH:MM
	ArrivalTime               string    `json:"arrival_time" gorm:"type:varchar(5)"`
	MaxPackages               int       `json:"max_packages" gorm:"not null"`
	MaxWeight                 float64   `json:"max_weight" gorm:"not null"` // Максимальный вес в кг
	AcceptsMultiplePickups    bool      `json:"accepts_multiple_pickups" gorm:"default:true"`
	AcceptsMultipleDeliveries bool      `json:"accepts_multiple_deliveries" gorm:"default:true"`
	Active                    bool      `json:"active" gorm:"default:true"`
	CreatedAt                 time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt                 time.Time `json:"updated_at" gorm:"autoUpdateTime"`
	Driver                    User      `json:"-" gorm:"foreignKey:DriverID"`
	Route                     Route     `json:"-" gorm:"foreignKey:RouteID"`
}

// CoversDate проверяет, покрывает ли профиль день недели указанной даты
func (p *DriverRouteProfile) CoversDate(date time.Time) bool {
	weekday := int(date.Weekday())
	for _, part := range strings.Split(p.DaysOfWeek, ",") {
		day, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if day == weekday {
			return true
		}
	}
	return false
}

type DriverRouteProfileResponse struct {
	ID                        uint    `json:"id"`
	DriverID                  uint    `json:"driver_id"`
	RouteID                   uint    `json:"route_id"`
	RouteName                 string  `json:"route_name,omitempty"`
	DaysOfWeek                string  `json:"days_of_week"`
	DepartureTime             string  `json:"departure_time"`
	ArrivalTime               string  `json:"arrival_time"`
	MaxPackages               int     `json:"max_packages"`
	MaxWeight                 float64 `json:"max_weight"`
	AcceptsMultiplePickups    bool    `json:"accepts_multiple_pickups"`
	AcceptsMultipleDeliveries bool    `json:"accepts_multiple_deliveries"`
	Active                    bool    `json:"active"`
}
