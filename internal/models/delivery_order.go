package models

import (
	"time"
)

type OrderStatus string

const (
	OrderStatusDraft              OrderStatus = "draft"               // Заказ и остановки еще записываются, для подбора не виден
	OrderStatusAwaitingDriver     OrderStatus = "awaiting_driver"     // Ожидает принятия водителем
	OrderStatusDriverAccepted     OrderStatus = "driver_accepted"     // Принят водителем, закреплен за рейсом
	OrderStatusPickedUp           OrderStatus = "picked_up"           // Груз забран у отправителя
	OrderStatusInTransit          OrderStatus = "in_transit"          // Груз в пути
	OrderStatusCompleted          OrderStatus = "completed"           // Все точки доставлены
	OrderStatusPartiallyDelivered OrderStatus = "partially_delivered" // Часть точек не доставлена
	OrderStatusCancelled          OrderStatus = "cancelled"           // Отменен
)

// IsTerminal возвращает true, если статус заказа конечный
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusPartiallyDelivered || s == OrderStatusCancelled
}

// DeliveryOrder представляет заявку компании на перевозку по маршруту.
// Основной получатель хранится прямо в заказе (точка 1), дополнительные
// точки доставки — в DeliveryStop начиная с номера 2.
type DeliveryOrder struct {
	ID                 uint           `json:"id" gorm:"primaryKey"`
	OrderNumber        string         `json:"order_number" gorm:"uniqueIndex;not null;type:varchar(20)"`
	CompanyID          uint           `json:"company_id" gorm:"not null;index"`
	RouteID            uint           `json:"route_id" gorm:"not null;index"`
	ScheduledDate      time.Time      `json:"scheduled_date" gorm:"not null"`
	PackageCount       int            `json:"package_count" gorm:"not null"`
	TotalWeight        float64        `json:"total_weight" gorm:"not null"` // Общий вес в кг
	PickupAddress      string         `json:"pickup_address" gorm:"not null;type:text"`
	RecipientName      string         `json:"recipient_name" gorm:"not null;type:varchar(255)"`
	RecipientPhone     string         `json:"recipient_phone" gorm:"type:varchar(20)"`
	DeliveryAddress    string         `json:"delivery_address" gorm:"not null;type:text"`
	Status             OrderStatus    `json:"status" gorm:"type:varchar(30);default:'draft';index"`
	TripID             *uint          `json:"trip_id,omitempty" gorm:"index;default:null"`
	CancellationReason string         `json:"cancellation_reason,omitempty" gorm:"default:''"`
	CreatedAt          time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	Company            User           `json:"-" gorm:"foreignKey:CompanyID"`
	Route              Route          `json:"-" gorm:"foreignKey:RouteID"`
	Stops              []DeliveryStop `json:"-" gorm:"foreignKey:DeliveryOrderID"`
}

// DeliveryStop представляет дополнительную точку доставки заказа.
// Нумерация начинается с 2: точка 1 — основной получатель в самом заказе.
// Создается вместе с заказом в одной транзакции, до перевода заказа
// в статус awaiting_driver.
type DeliveryStop struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	DeliveryOrderID uint      `json:"delivery_order_id" gorm:"not null;index"`
	Sequence        int       `json:"sequence" gorm:"not null"`
	RecipientName   string    `json:"recipient_name" gorm:"not null;type:varchar(255)"`
	RecipientPhone  string    `json:"recipient_phone" gorm:"type:varchar(20)"`
	Address         string    `json:"address" gorm:"not null;type:text"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

type DeliveryStopResponse struct {
	ID             uint   `json:"id"`
	Sequence       int    `json:"sequence"`
	RecipientName  string `json:"recipient_name"`
	RecipientPhone string `json:"recipient_phone,omitempty"`
	Address        string `json:"address"`
}

type DeliveryOrderResponse struct {
	ID                 uint                   `json:"id"`
	OrderNumber        string                 `json:"order_number"`
	CompanyID          uint                   `json:"company_id"`
	RouteID            uint                   `json:"route_id"`
	ScheduledDate      time.Time              `json:"scheduled_date"`
	PackageCount       int                    `json:"package_count"`
	TotalWeight        float64                `json:"total_weight"`
	PickupAddress      string                 `json:"pickup_address"`
	RecipientName      string                 `json:"recipient_name"`
	RecipientPhone     string                 `json:"recipient_phone,omitempty"`
	DeliveryAddress    string                 `json:"delivery_address"`
	Status             OrderStatus            `json:"status"`
	TripID             *uint                  `json:"trip_id,omitempty"`
	CancellationReason string                 `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	CompanyName        string                 `json:"company_name,omitempty"`
	Stops              []DeliveryStopResponse `json:"stops"`
}

// ToResponse формирует ответ API по заказу вместе с его остановками
func (o *DeliveryOrder) ToResponse() DeliveryOrderResponse {
	stops := make([]DeliveryStopResponse, 0, len(o.Stops))
	for _, stop := range o.Stops {
		stops = append(stops, DeliveryStopResponse{
			ID:             stop.ID,
			Sequence:       stop.Sequence,
			RecipientName:  stop.RecipientName,
			RecipientPhone: stop.RecipientPhone,
			Address:        stop.Address,
		})
	}

	return DeliveryOrderResponse{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		CompanyID:          o.CompanyID,
		RouteID:            o.RouteID,
		ScheduledDate:      o.ScheduledDate,
		PackageCount:       o.PackageCount,
		TotalWeight:        o.TotalWeight,
		PickupAddress:      o.PickupAddress,
		RecipientName:      o.RecipientName,
		RecipientPhone:     o.RecipientPhone,
		DeliveryAddress:    o.DeliveryAddress,
		Status:             o.Status,
		TripID:             o.TripID,
		CancellationReason: o.CancellationReason,
		CreatedAt:          o.CreatedAt,
		CompanyName:        o.Company.FullName(),
		Stops:              stops,
	}
}
