package models

import (
	"time"
)

type LegStatus string

const (
	LegStatusPending   LegStatus = "pending"    // Плечо еще не начато
	LegStatusInTransit LegStatus = "in_transit" // Водитель в пути к точке
	LegStatusPickedUp  LegStatus = "picked_up"  // Груз забран (только для плеча забора)
	LegStatusDelivered LegStatus = "delivered"  // Доставлено (только для плеча доставки)
	LegStatusFailed    LegStatus = "failed"     // Не удалось выполнить
	LegStatusCancelled LegStatus = "cancelled"  // Отменено вместе с заказом
)

// Виды плеч для операции продвижения статуса
const (
	LegKindPickup   = "pickup"
	LegKindDelivery = "delivery"
)

// IsTerminal возвращает true, если статус плеча конечный
func (s LegStatus) IsTerminal() bool {
	return s == LegStatusPickedUp || s == LegStatusDelivered ||
		s == LegStatusFailed || s == LegStatusCancelled
}

// pickupTransitions описывает машину состояний плеча забора:
// только вперед, без возвратов
var pickupTransitions = map[LegStatus][]LegStatus{
	LegStatusPending:   {LegStatusInTransit, LegStatusFailed},
	LegStatusInTransit: {LegStatusPickedUp, LegStatusFailed},
}

// deliveryTransitions описывает машину состояний плеча доставки
var deliveryTransitions = map[LegStatus][]LegStatus{
	LegStatusPending:   {LegStatusInTransit, LegStatusFailed},
	LegStatusInTransit: {LegStatusDelivered, LegStatusFailed},
}

func canTransition(table map[LegStatus][]LegStatus, from, to LegStatus) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PickupLeg представляет единственное событие забора груза по заказу внутри
// рейса: водитель один раз приезжает к отправителю и забирает весь заказ.
// Уникальность по (trip_id, delivery_order_id) — настоящий инвариант: один
// забор на заказ на рейс. На плечи доставки это ограничение не распространяется.
type PickupLeg struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	TripID          uint      `json:"trip_id" gorm:"not null;uniqueIndex:idx_pickup_trip_order"`
	DeliveryOrderID uint      `json:"delivery_order_id" gorm:"not null;uniqueIndex:idx_pickup_trip_order"`
	Address         string    `json:"address" gorm:"not null;type:text"`
	Status          LegStatus `json:"status" gorm:"type:varchar(20);default:'pending'"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// CanAdvanceTo проверяет допустимость перехода статуса плеча забора
func (l *PickupLeg) CanAdvanceTo(next LegStatus) bool {
	return canTransition(pickupTransitions, l.Status, next)
}

// DeliveryLeg представляет одну точку выгрузки. Заказ с k дополнительными
// остановками порождает k+1 плеч доставки: сначала основной получатель
// (stop_id = NULL), затем остановки по возрастанию номера. Поле sequence —
// сквозная нумерация внутри рейса, выдается счетчиком рейса в транзакции
// принятия. Уникального ограничения на (trip_id, delivery_order_id) нет
// намеренно: у многоточечного заказа таких строк несколько.
type DeliveryLeg struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	TripID          uint      `json:"trip_id" gorm:"not null;index"`
	DeliveryOrderID uint      `json:"delivery_order_id" gorm:"not null;index"`
	PickupLegID     uint      `json:"pickup_leg_id" gorm:"not null;index"`
	StopID          *uint     `json:"stop_id,omitempty"` // NULL = основной получатель заказа
	Sequence        int       `json:"sequence" gorm:"not null"`
	RecipientName   string    `json:"recipient_name" gorm:"not null;type:varchar(255)"`
	RecipientPhone  string    `json:"recipient_phone" gorm:"type:varchar(20)"`
	Address         string    `json:"address" gorm:"not null;type:text"`
	Status          LegStatus `json:"status" gorm:"type:varchar(20);default:'pending'"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// CanAdvanceTo проверяет допустимость перехода статуса плеча доставки
func (l *DeliveryLeg) CanAdvanceTo(next LegStatus) bool {
	return canTransition(deliveryTransitions, l.Status, next)
}

type PickupLegResponse struct {
	ID              uint      `json:"id"`
	TripID          uint      `json:"trip_id"`
	DeliveryOrderID uint      `json:"delivery_order_id"`
	Address         string    `json:"address"`
	Status          LegStatus `json:"status"`
}

type DeliveryLegResponse struct {
	ID              uint      `json:"id"`
	TripID          uint      `json:"trip_id"`
	DeliveryOrderID uint      `json:"delivery_order_id"`
	PickupLegID     uint      `json:"pickup_leg_id"`
	StopID          *uint     `json:"stop_id,omitempty"`
	Sequence        int       `json:"sequence"`
	RecipientName   string    `json:"recipient_name"`
	RecipientPhone  string    `json:"recipient_phone,omitempty"`
	Address         string    `json:"address"`
	Status          LegStatus `json:"status"`
}

// ToResponse формирует ответ API по плечу забора
func (l *PickupLeg) ToResponse() PickupLegResponse {
	return PickupLegResponse{
		ID:              l.ID,
		TripID:          l.TripID,
		DeliveryOrderID: l.DeliveryOrderID,
		Address:         l.Address,
		Status:          l.Status,
	}
}

// ToResponse формирует ответ API по плечу доставки
func (l *DeliveryLeg) ToResponse() DeliveryLegResponse {
	return DeliveryLegResponse{
		ID:              l.ID,
		TripID:          l.TripID,
		DeliveryOrderID: l.DeliveryOrderID,
		PickupLegID:     l.PickupLegID,
		StopID:          l.StopID,
		Sequence:        l.Sequence,
		RecipientName:   l.RecipientName,
		RecipientPhone:  l.RecipientPhone,
		Address:         l.Address,
		Status:          l.Status,
	}
}
