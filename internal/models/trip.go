package models

import (
	"time"
)

type TripStatus string

const (
	TripStatusScheduled  TripStatus = "scheduled"   // Рейс запланирован
	TripStatusInProgress TripStatus = "in_progress" // Рейс начат
	TripStatusCompleted  TripStatus = "completed"   // Рейс завершен
	TripStatusCancelled  TripStatus = "cancelled"   // Рейс отменен
)

// Trip представляет конкретный датированный рейс одного водителя по маршруту.
// Создается лениво: первый принятый заказ на (водитель, маршрут, дата) создает
// рейс по шаблону профиля; потолок вместимости копируется из профиля в момент
// создания и дальше не меняется. Счетчик last_sequence выдает номера плечам
// доставки и обновляется тем же UPDATE, что и занятая вместимость, поэтому
// нумерация образует строгий порядок принятия внутри рейса.
// Частичный уникальный индекс допускает не больше одного действующего рейса
// на (водитель, маршрут, дата): гонку двух первых принятий решает база, а не
// чтение перед записью. Завершенные и отмененные рейсы индекс не учитывает.
type Trip struct {
	ID                 uint       `json:"id" gorm:"primaryKey"`
	DriverID           uint       `json:"driver_id" gorm:"not null;uniqueIndex:idx_trips_driver_route_date,where:status = 'scheduled' OR status = 'in_progress'"`
	RouteID            uint       `json:"route_id" gorm:"not null;uniqueIndex:idx_trips_driver_route_date"`
	ProfileID          uint       `json:"profile_id" gorm:"not null"`
	TravelDate         time.Time  `json:"travel_date" gorm:"not null;uniqueIndex:idx_trips_driver_route_date"`
	Status             TripStatus `json:"status" gorm:"type:varchar(20);default:'scheduled'"`
	MaxPackages        int        `json:"max_packages" gorm:"not null"`
	MaxWeight          float64    `json:"max_weight" gorm:"not null"`
	ConsumedPackages   int        `json:"consumed_packages" gorm:"not null;default:0"`
	ConsumedWeight     float64    `json:"consumed_weight" gorm:"not null;default:0"`
	LastSequence       int        `json:"-" gorm:"not null;default:0"`
	PlannedDeparture   *time.Time `json:"planned_departure,omitempty"`
	PlannedArrival     *time.Time `json:"planned_arrival,omitempty"`
	ActualDeparture    *time.Time `json:"actual_departure,omitempty"`
	ActualArrival      *time.Time `json:"actual_arrival,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty" gorm:"default:''"`
	CreatedAt          time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	Driver             User       `json:"-" gorm:"foreignKey:DriverID"`
	Route              Route      `json:"-" gorm:"foreignKey:RouteID"`
}

type TripResponse struct {
	ID               uint       `json:"id"`
	DriverID         uint       `json:"driver_id"`
	RouteID          uint       `json:"route_id"`
	RouteName        string     `json:"route_name,omitempty"`
	TravelDate       time.Time  `json:"travel_date"`
	Status           TripStatus `json:"status"`
	MaxPackages      int        `json:"max_packages"`
	MaxWeight        float64    `json:"max_weight"`
	ConsumedPackages int        `json:"consumed_packages"`
	ConsumedWeight   float64    `json:"consumed_weight"`
	PlannedDeparture *time.Time `json:"planned_departure,omitempty"`
	PlannedArrival   *time.Time `json:"planned_arrival,omitempty"`
	ActualDeparture  *time.Time `json:"actual_departure,omitempty"`
	ActualArrival    *time.Time `json:"actual_arrival,omitempty"`
	DriverName       string     `json:"driver_name,omitempty"`
}

// ToResponse формирует ответ API по рейсу
func (t *Trip) ToResponse() TripResponse {
	return TripResponse{
		ID:               t.ID,
		DriverID:         t.DriverID,
		RouteID:          t.RouteID,
		RouteName:        t.Route.Name,
		TravelDate:       t.TravelDate,
		Status:           t.Status,
		MaxPackages:      t.MaxPackages,
		MaxWeight:        t.MaxWeight,
		ConsumedPackages: t.ConsumedPackages,
		ConsumedWeight:   t.ConsumedWeight,
		PlannedDeparture: t.PlannedDeparture,
		PlannedArrival:   t.PlannedArrival,
		ActualDeparture:  t.ActualDeparture,
		ActualArrival:    t.ActualArrival,
		DriverName:       t.Driver.FullName(),
	}
}
