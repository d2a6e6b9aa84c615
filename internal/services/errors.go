package services

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Коды причин для ошибок валидации
const (
	ReasonOrderNotAvailable   = "order_not_available"   // Заказ не в статусе awaiting_driver
	ReasonOrderTerminal       = "order_terminal"        // Заказ уже в конечном статусе
	ReasonNoActiveProfile     = "no_active_profile"     // У водителя нет активного профиля по маршруту
	ReasonDateNotCovered      = "date_not_covered"      // День недели не входит в расписание профиля
	ReasonMultiDeliveryDenied = "multi_delivery_denied" // Профиль не принимает многоточечные заказы
	ReasonMultiPickupDenied   = "multi_pickup_denied"   // Профиль не принимает второй заказ в рейс
	ReasonIllegalTransition   = "illegal_transition"    // Недопустимый переход статуса плеча
	ReasonPickupNotCompleted  = "pickup_not_completed"  // Доставка до завершения забора
	ReasonForbidden           = "forbidden"             // Плечо или рейс принадлежит другому водителю
	ReasonTripNotCompletable  = "trip_not_completable"  // У рейса остались незавершенные плечи
)

// ValidationError — запрос отклонен без побочных эффектов, с конкретным кодом причины
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// NewValidationError создает ошибку валидации с кодом причины
func NewValidationError(reason, message string) *ValidationError {
	return &ValidationError{Reason: reason, Message: message}
}

// CapacityExceededError — рейс не может вместить заказ ни по одному из измерений.
// Никогда не повторяется автоматически: клиент предлагает другой рейс или дату.
type CapacityExceededError struct {
	TripID         uint
	NeededPackages int
	NeededWeight   float64
	FreePackages   int
	FreeWeight     float64
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("рейс %d не вмещает заказ: нужно %d мест / %.1f кг, свободно %d мест / %.1f кг",
		e.TripID, e.NeededPackages, e.NeededWeight, e.FreePackages, e.FreeWeight)
}

// ConflictError — параллельное принятие или повтор уже выполненной операции.
// Безопасно для повтора на стороне клиента: повтор увидит итоговое состояние.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// IsValidation проверяет, является ли ошибка ошибкой валидации
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// IsCapacityExceeded проверяет, является ли ошибка отказом по вместимости
func IsCapacityExceeded(err error) (*CapacityExceededError, bool) {
	var ce *CapacityExceededError
	ok := errors.As(err, &ce)
	return ce, ok
}

// IsConflict проверяет, является ли ошибка конфликтом параллельного доступа
func IsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	ok := errors.As(err, &ce)
	return ce, ok
}

// IsNotFound проверяет, что запись не найдена
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// isUniqueViolation распознает нарушение уникального индекса PostgreSQL.
// Гонка двух принятий одного заказа упирается в уникальность плеча забора
// (trip_id, delivery_order_id) и должна стать конфликтом, а не 500.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
