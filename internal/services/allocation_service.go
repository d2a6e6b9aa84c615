package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"delivery-backend/internal/middleware"
	"delivery-backend/internal/models"

	"gorm.io/gorm"
)

// AllocationService закрепляет заказы за рейсами и ведет журнал плеч.
// Все многострочные изменения выполняются одной транзакцией: либо рейс,
// плечо забора и все плечи доставки записаны целиком, либо не записано ничего.
// Никто кроме этого сервиса строки плеч не создает и не изменяет.
type AllocationService struct {
	db *gorm.DB

	// CancelEmptyTrips управляет политикой отмены опустевшего рейса:
	// если после отмены заказа у запланированного рейса не осталось
	// незавершенных плеч, рейс отменяется вместе с заказом
	CancelEmptyTrips bool
}

func NewAllocationService(db *gorm.DB) *AllocationService {
	return &AllocationService{
		db:               db,
		CancelEmptyTrips: true,
	}
}

// errTripCreationRace сигнализирует, что параллельная транзакция успела
// создать действующий рейс на ту же тройку (водитель, маршрут, дата)
var errTripCreationRace = errors.New("действующий рейс уже создан параллельной транзакцией")

// AcceptResult описывает итог принятия заказа водителем
type AcceptResult struct {
	Order           models.DeliveryOrder
	Trip            models.Trip
	PickupLeg       models.PickupLeg
	DeliveryLegs    []models.DeliveryLeg
	AlreadyAccepted bool
}

// Accept закрепляет заказ за рейсом водителя: резервирует вместимость,
// создает одно плечо забора и по одному плечу доставки на каждую точку.
// Операция идемпотентна: повторный вызов для уже принятого этим водителем
// заказа возвращает существующее состояние без повторного резервирования.
func (s *AllocationService) Accept(driverID, orderID uint) (*AcceptResult, error) {
	var result AcceptResult

	txBody := func(tx *gorm.DB) error {
		var order models.DeliveryOrder
		if err := tx.Preload("Stops", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).First(&order, orderID).Error; err != nil {
			return err
		}

		// Конечный заказ не принимается повторно, даже если trip_id
		// остался от прежнего закрепления (отмена его не очищает)
		if order.Status.IsTerminal() {
			return NewValidationError(ReasonOrderNotAvailable,
				fmt.Sprintf("заказ %s недоступен для принятия (статус %s)", order.OrderNumber, order.Status))
		}

		// Идемпотентность: заказ с установленным trip_id уже принят.
		// До первой записи — повтор того же водителя возвращает готовый
		// результат, чужой водитель получает конфликт.
		if order.TripID != nil {
			var trip models.Trip
			if err := tx.First(&trip, *order.TripID).Error; err != nil {
				return err
			}
			if trip.DriverID != driverID {
				return &ConflictError{Message: "заказ уже принят другим водителем"}
			}
			existing, err := s.loadAcceptedState(tx, &order, &trip)
			if err != nil {
				return err
			}
			result = *existing
			result.AlreadyAccepted = true
			return nil
		}

		if order.Status != models.OrderStatusAwaitingDriver {
			return NewValidationError(ReasonOrderNotAvailable,
				fmt.Sprintf("заказ %s недоступен для принятия (статус %s)", order.OrderNumber, order.Status))
		}

		// Профиль водителя по маршруту заказа — шаблон рейса
		var profile models.DriverRouteProfile
		if err := tx.Where("driver_id = ? AND route_id = ? AND active = ?",
			driverID, order.RouteID, true).First(&profile).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return NewValidationError(ReasonNoActiveProfile,
					"у водителя нет активного профиля по маршруту заказа")
			}
			return err
		}

		if !profile.CoversDate(order.ScheduledDate) {
			return NewValidationError(ReasonDateNotCovered,
				"день недели заказа не входит в расписание водителя")
		}

		if !profile.AcceptsMultipleDeliveries && len(order.Stops) > 0 {
			return NewValidationError(ReasonMultiDeliveryDenied,
				"водитель не принимает заказы с несколькими точками доставки")
		}

		trip, err := s.findOrCreateTrip(tx, &profile, order.ScheduledDate)
		if err != nil {
			return err
		}

		if !profile.AcceptsMultiplePickups {
			var pickupCount int64
			if err := tx.Model(&models.PickupLeg{}).
				Where("trip_id = ?", trip.ID).Count(&pickupCount).Error; err != nil {
				return err
			}
			if pickupCount > 0 {
				return NewValidationError(ReasonMultiPickupDenied,
					"водитель принимает только один заказ на рейс")
			}
		}

		// Проверка и резервирование вместимости одним условным UPDATE:
		// два параллельных принятия не могут оба пройти мимо потолка.
		// Тот же UPDATE продвигает счетчик last_sequence, поэтому номера
		// плеч выдаются под той же блокировкой строки рейса.
		legCount := len(order.Stops) + 1
		res := tx.Model(&models.Trip{}).
			Where("id = ? AND consumed_packages + ? <= max_packages AND consumed_weight + ? <= max_weight",
				trip.ID, order.PackageCount, order.TotalWeight).
			Updates(map[string]interface{}{
				"consumed_packages": gorm.Expr("consumed_packages + ?", order.PackageCount),
				"consumed_weight":   gorm.Expr("consumed_weight + ?", order.TotalWeight),
				"last_sequence":     gorm.Expr("last_sequence + ?", legCount),
				"updated_at":        time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			middleware.TrackCapacityRejection()
			return &CapacityExceededError{
				TripID:         trip.ID,
				NeededPackages: order.PackageCount,
				NeededWeight:   order.TotalWeight,
				FreePackages:   trip.MaxPackages - trip.ConsumedPackages,
				FreeWeight:     trip.MaxWeight - trip.ConsumedWeight,
			}
		}

		// Перечитываем рейс внутри транзакции: last_sequence теперь наш
		if err := tx.First(trip, trip.ID).Error; err != nil {
			return err
		}
		baseSequence := trip.LastSequence - legCount + 1

		pickupLeg := models.PickupLeg{
			TripID:          trip.ID,
			DeliveryOrderID: order.ID,
			Address:         order.PickupAddress,
			Status:          models.LegStatusPending,
		}
		if err := tx.Create(&pickupLeg).Error; err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Message: "плечо забора по заказу уже существует в этом рейсе"}
			}
			return err
		}

		// Разворачиваем заказ в плечи доставки: сначала основной получатель
		// из самого заказа, затем каждая остановка по возрастанию номера.
		// Итерируем список остановок, прочитанный в этой же транзакции, —
		// пропустить остановку структурно невозможно.
		deliveryLegs := make([]models.DeliveryLeg, 0, legCount)
		deliveryLegs = append(deliveryLegs, models.DeliveryLeg{
			TripID:          trip.ID,
			DeliveryOrderID: order.ID,
			PickupLegID:     pickupLeg.ID,
			StopID:          nil,
			Sequence:        baseSequence,
			RecipientName:   order.RecipientName,
			RecipientPhone:  order.RecipientPhone,
			Address:         order.DeliveryAddress,
			Status:          models.LegStatusPending,
		})
		for i := range order.Stops {
			stop := order.Stops[i]
			deliveryLegs = append(deliveryLegs, models.DeliveryLeg{
				TripID:          trip.ID,
				DeliveryOrderID: order.ID,
				PickupLegID:     pickupLeg.ID,
				StopID:          &stop.ID,
				Sequence:        baseSequence + 1 + i,
				RecipientName:   stop.RecipientName,
				RecipientPhone:  stop.RecipientPhone,
				Address:         stop.Address,
				Status:          models.LegStatusPending,
			})
		}
		if err := tx.Create(&deliveryLegs).Error; err != nil {
			return err
		}

		// Закрепляем заказ за рейсом. Условие на статус и пустой trip_id —
		// защита от параллельного принятия, успевшего между чтением и записью.
		res = tx.Model(&models.DeliveryOrder{}).
			Where("id = ? AND status = ? AND trip_id IS NULL", order.ID, models.OrderStatusAwaitingDriver).
			Updates(map[string]interface{}{
				"trip_id":    trip.ID,
				"status":     models.OrderStatusDriverAccepted,
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &ConflictError{Message: "заказ уже принят другим водителем"}
		}

		order.TripID = &trip.ID
		order.Status = models.OrderStatusDriverAccepted

		result = AcceptResult{
			Order:        order,
			Trip:         *trip,
			PickupLeg:    pickupLeg,
			DeliveryLegs: deliveryLegs,
		}
		return nil
	}

	err := s.db.Transaction(txBody)
	// Проигравший гонку создания рейса повторяет транзакцию и находит
	// рейс победителя обычным чтением
	if errors.Is(err, errTripCreationRace) {
		result = AcceptResult{}
		err = s.db.Transaction(txBody)
	}
	if errors.Is(err, errTripCreationRace) {
		err = &ConflictError{Message: "рейс создается параллельным принятием, повторите запрос"}
	}

	if err != nil {
		trackAllocationError(err)
		return nil, err
	}

	if result.AlreadyAccepted {
		middleware.TrackAllocation("already_accepted")
	} else {
		middleware.TrackAllocation("accepted")
	}
	return &result, nil
}

// loadAcceptedState собирает существующее состояние принятого заказа
// для идемпотентного ответа
func (s *AllocationService) loadAcceptedState(tx *gorm.DB, order *models.DeliveryOrder, trip *models.Trip) (*AcceptResult, error) {
	var pickupLeg models.PickupLeg
	if err := tx.Where("trip_id = ? AND delivery_order_id = ?", trip.ID, order.ID).
		First(&pickupLeg).Error; err != nil {
		return nil, err
	}

	var deliveryLegs []models.DeliveryLeg
	if err := tx.Where("trip_id = ? AND delivery_order_id = ?", trip.ID, order.ID).
		Order("sequence ASC").Find(&deliveryLegs).Error; err != nil {
		return nil, err
	}

	return &AcceptResult{
		Order:        *order,
		Trip:         *trip,
		PickupLeg:    pickupLeg,
		DeliveryLegs: deliveryLegs,
	}, nil
}

// findOrCreateTrip находит действующий рейс (водитель, маршрут, дата) или
// лениво создает его по профилю. Потолок вместимости копируется из профиля
// в момент создания и дальше от изменений профиля не зависит.
func (s *AllocationService) findOrCreateTrip(tx *gorm.DB, profile *models.DriverRouteProfile, date time.Time) (*models.Trip, error) {
	travelDate := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	var trip models.Trip
	err := tx.Where("driver_id = ? AND route_id = ? AND travel_date = ? AND status IN ?",
		profile.DriverID, profile.RouteID, travelDate,
		[]string{string(models.TripStatusScheduled), string(models.TripStatusInProgress)}).
		First(&trip).Error
	if err == nil {
		return &trip, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	trip = models.Trip{
		DriverID:         profile.DriverID,
		RouteID:          profile.RouteID,
		ProfileID:        profile.ID,
		TravelDate:       travelDate,
		Status:           models.TripStatusScheduled,
		MaxPackages:      profile.MaxPackages,
		MaxWeight:        profile.MaxWeight,
		PlannedDeparture: combineDateTime(travelDate, profile.DepartureTime),
		PlannedArrival:   combineDateTime(travelDate, profile.ArrivalTime),
	}
	if err := tx.Create(&trip).Error; err != nil {
		// Частичный уникальный индекс рейсов: параллельное принятие
		// успело создать рейс между нашим чтением и записью
		if isUniqueViolation(err) {
			return nil, errTripCreationRace
		}
		return nil, err
	}

	log.Printf("Создан рейс %d по профилю %d (водитель %d, маршрут %d, дата %s)",
		trip.ID, profile.ID, profile.DriverID, profile.RouteID, travelDate.Format("2006-01-02"))
	return &trip, nil
}

// combineDateTime совмещает дату рейса со временем HH:MM из профиля
func combineDateTime(date time.Time, hhmm string) *time.Time {
	if hhmm == "" {
		return nil
	}
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return nil
	}
	combined := time.Date(date.Year(), date.Month(), date.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, date.Location())
	return &combined
}

// CancelResult описывает итог отмены заказа
type CancelResult struct {
	Order         models.DeliveryOrder
	TripCancelled bool
}

// CancelOrder отменяет заказ из любого неконечного статуса: возвращает
// зарезервированную вместимость рейсу, переводит все плечи заказа в
// конечный статус cancelled и помечает заказ отмененным.
func (s *AllocationService) CancelOrder(orderID uint, reason string) (*CancelResult, error) {
	var result CancelResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var order models.DeliveryOrder
		if err := tx.First(&order, orderID).Error; err != nil {
			return err
		}

		if order.Status.IsTerminal() {
			return NewValidationError(ReasonOrderTerminal,
				fmt.Sprintf("заказ %s уже в конечном статусе %s", order.OrderNumber, order.Status))
		}

		if order.TripID != nil {
			// Возвращаем вместимость с отсечкой в ноль: счетчик не должен
			// уйти в минус даже при расхождении данных
			if err := tx.Model(&models.Trip{}).
				Where("id = ?", *order.TripID).
				Updates(map[string]interface{}{
					"consumed_packages": gorm.Expr(
						"CASE WHEN consumed_packages >= ? THEN consumed_packages - ? ELSE 0 END",
						order.PackageCount, order.PackageCount),
					"consumed_weight": gorm.Expr(
						"CASE WHEN consumed_weight >= ? THEN consumed_weight - ? ELSE 0 END",
						order.TotalWeight, order.TotalWeight),
					"updated_at": time.Now(),
				}).Error; err != nil {
				return err
			}

			nonTerminal := []string{
				string(models.LegStatusPending),
				string(models.LegStatusInTransit),
			}
			if err := tx.Model(&models.PickupLeg{}).
				Where("trip_id = ? AND delivery_order_id = ? AND status IN ?",
					*order.TripID, order.ID, nonTerminal).
				Updates(map[string]interface{}{
					"status":     models.LegStatusCancelled,
					"updated_at": time.Now(),
				}).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.DeliveryLeg{}).
				Where("trip_id = ? AND delivery_order_id = ? AND status IN ?",
					*order.TripID, order.ID, nonTerminal).
				Updates(map[string]interface{}{
					"status":     models.LegStatusCancelled,
					"updated_at": time.Now(),
				}).Error; err != nil {
				return err
			}
		}

		res := tx.Model(&models.DeliveryOrder{}).
			Where("id = ? AND status NOT IN ?", order.ID, []string{
				string(models.OrderStatusCompleted),
				string(models.OrderStatusPartiallyDelivered),
				string(models.OrderStatusCancelled),
			}).
			Updates(map[string]interface{}{
				"status":              models.OrderStatusCancelled,
				"cancellation_reason": reason,
				"updated_at":          time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &ConflictError{Message: "заказ уже переведен в конечный статус"}
		}

		order.Status = models.OrderStatusCancelled
		order.CancellationReason = reason

		if order.TripID != nil {
			cancelled, err := s.maybeCancelEmptyTrip(tx, *order.TripID)
			if err != nil {
				return err
			}
			result.TripCancelled = cancelled
		}

		result.Order = order
		return nil
	})

	if err != nil {
		return nil, err
	}

	middleware.TrackAllocation("cancelled")
	return &result, nil
}

// maybeCancelEmptyTrip применяет политику опустевшего рейса. Решение
// логируется в обоих случаях: и отмена, и сознательное сохранение рейса.
func (s *AllocationService) maybeCancelEmptyTrip(tx *gorm.DB, tripID uint) (bool, error) {
	var trip models.Trip
	if err := tx.First(&trip, tripID).Error; err != nil {
		return false, err
	}

	// Отменять можно только не выехавший рейс
	if trip.Status != models.TripStatusScheduled {
		return false, nil
	}

	nonTerminal := []string{
		string(models.LegStatusPending),
		string(models.LegStatusInTransit),
	}
	var remaining int64
	if err := tx.Model(&models.PickupLeg{}).
		Where("trip_id = ? AND status IN ?", tripID, nonTerminal).
		Count(&remaining).Error; err != nil {
		return false, err
	}
	if remaining == 0 {
		var deliveryRemaining int64
		if err := tx.Model(&models.DeliveryLeg{}).
			Where("trip_id = ? AND status IN ?", tripID, nonTerminal).
			Count(&deliveryRemaining).Error; err != nil {
			return false, err
		}
		remaining = deliveryRemaining
	}

	if remaining > 0 {
		return false, nil
	}

	if !s.CancelEmptyTrips {
		log.Printf("Рейс %d опустел после отмены заказа, сохранен по настройке политики", tripID)
		return false, nil
	}

	if err := tx.Model(&models.Trip{}).
		Where("id = ? AND status = ?", tripID, models.TripStatusScheduled).
		Updates(map[string]interface{}{
			"status":              models.TripStatusCancelled,
			"cancellation_reason": "все заказы рейса отменены",
			"updated_at":          time.Now(),
		}).Error; err != nil {
		return false, err
	}

	log.Printf("Рейс %d отменен: не осталось незавершенных плеч", tripID)
	return true, nil
}

// AdvanceResult описывает итог продвижения плеча
type AdvanceResult struct {
	Kind        string
	PickupLeg   *models.PickupLeg
	DeliveryLeg *models.DeliveryLeg
	OrderStatus models.OrderStatus
}

// AdvanceLeg продвигает статус плеча строго вперед по машине состояний.
// Плечи доставки не могут начаться, пока забор заказа не завершен.
// Когда все плечи доставки заказа достигают конечного статуса, статус
// заказа выводится из них: completed, если все доставлены, иначе
// partially_delivered.
func (s *AllocationService) AdvanceLeg(driverID uint, kind string, legID uint, next models.LegStatus) (*AdvanceResult, error) {
	var result AdvanceResult
	result.Kind = kind

	err := s.db.Transaction(func(tx *gorm.DB) error {
		switch kind {
		case models.LegKindPickup:
			return s.advancePickupLeg(tx, driverID, legID, next, &result)
		case models.LegKindDelivery:
			return s.advanceDeliveryLeg(tx, driverID, legID, next, &result)
		default:
			return NewValidationError(ReasonIllegalTransition,
				fmt.Sprintf("неизвестный вид плеча: %s", kind))
		}
	})

	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *AllocationService) advancePickupLeg(tx *gorm.DB, driverID, legID uint, next models.LegStatus, result *AdvanceResult) error {
	var leg models.PickupLeg
	if err := tx.First(&leg, legID).Error; err != nil {
		return err
	}

	var trip models.Trip
	if err := tx.First(&trip, leg.TripID).Error; err != nil {
		return err
	}
	if trip.DriverID != driverID {
		return NewValidationError(ReasonForbidden, "плечо принадлежит рейсу другого водителя")
	}

	if !leg.CanAdvanceTo(next) {
		return NewValidationError(ReasonIllegalTransition,
			fmt.Sprintf("переход плеча забора %s -> %s недопустим", leg.Status, next))
	}

	// Условие на текущий статус защищает от параллельного продвижения
	res := tx.Model(&models.PickupLeg{}).
		Where("id = ? AND status = ?", leg.ID, leg.Status).
		Updates(map[string]interface{}{
			"status":     next,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &ConflictError{Message: "статус плеча уже изменен параллельным запросом"}
	}
	leg.Status = next

	// Забор завершен — заказ переходит в picked_up, плечи доставки
	// становятся доступными для старта
	var order models.DeliveryOrder
	if err := tx.First(&order, leg.DeliveryOrderID).Error; err != nil {
		return err
	}
	if next == models.LegStatusPickedUp && order.Status == models.OrderStatusDriverAccepted {
		if err := tx.Model(&models.DeliveryOrder{}).
			Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"status":     models.OrderStatusPickedUp,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}
		order.Status = models.OrderStatusPickedUp
	}

	// Провал забора означает провал всего заказа: плечи доставки
	// выполнить уже невозможно
	if next == models.LegStatusFailed {
		if err := tx.Model(&models.DeliveryLeg{}).
			Where("pickup_leg_id = ? AND status IN ?", leg.ID, []string{
				string(models.LegStatusPending),
				string(models.LegStatusInTransit),
			}).
			Updates(map[string]interface{}{
				"status":     models.LegStatusFailed,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.DeliveryOrder{}).
			Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"status":     models.OrderStatusPartiallyDelivered,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}
		order.Status = models.OrderStatusPartiallyDelivered
	}

	result.PickupLeg = &leg
	result.OrderStatus = order.Status
	return nil
}

func (s *AllocationService) advanceDeliveryLeg(tx *gorm.DB, driverID, legID uint, next models.LegStatus, result *AdvanceResult) error {
	var leg models.DeliveryLeg
	if err := tx.First(&leg, legID).Error; err != nil {
		return err
	}

	var trip models.Trip
	if err := tx.First(&trip, leg.TripID).Error; err != nil {
		return err
	}
	if trip.DriverID != driverID {
		return NewValidationError(ReasonForbidden, "плечо принадлежит рейсу другого водителя")
	}

	if !leg.CanAdvanceTo(next) {
		return NewValidationError(ReasonIllegalTransition,
			fmt.Sprintf("переход плеча доставки %s -> %s недопустим", leg.Status, next))
	}

	// Защитная проверка на уровне чтения: нельзя доставить то, что еще
	// не забрано. Движок обеспечивает это структурно, но проверяем явно.
	if leg.Status == models.LegStatusPending {
		var pickupLeg models.PickupLeg
		if err := tx.First(&pickupLeg, leg.PickupLegID).Error; err != nil {
			return err
		}
		if pickupLeg.Status != models.LegStatusPickedUp {
			return NewValidationError(ReasonPickupNotCompleted,
				"забор заказа еще не завершен")
		}
	}

	res := tx.Model(&models.DeliveryLeg{}).
		Where("id = ? AND status = ?", leg.ID, leg.Status).
		Updates(map[string]interface{}{
			"status":     next,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &ConflictError{Message: "статус плеча уже изменен параллельным запросом"}
	}
	leg.Status = next

	var order models.DeliveryOrder
	if err := tx.First(&order, leg.DeliveryOrderID).Error; err != nil {
		return err
	}

	if next == models.LegStatusInTransit && order.Status == models.OrderStatusPickedUp {
		if err := tx.Model(&models.DeliveryOrder{}).
			Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"status":     models.OrderStatusInTransit,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}
		order.Status = models.OrderStatusInTransit
	}

	// Все плечи доставки заказа в конечном статусе — выводим статус заказа
	if next.IsTerminal() {
		derived, err := s.deriveOrderStatus(tx, &order)
		if err != nil {
			return err
		}
		if derived != "" && derived != order.Status {
			if err := tx.Model(&models.DeliveryOrder{}).
				Where("id = ?", order.ID).
				Updates(map[string]interface{}{
					"status":     derived,
					"updated_at": time.Now(),
				}).Error; err != nil {
				return err
			}
			order.Status = derived
		}
	}

	result.DeliveryLeg = &leg
	result.OrderStatus = order.Status
	return nil
}

// deriveOrderStatus выводит статус заказа из его плеч доставки.
// Возвращает пустую строку, пока остались незавершенные плечи.
func (s *AllocationService) deriveOrderStatus(tx *gorm.DB, order *models.DeliveryOrder) (models.OrderStatus, error) {
	var legs []models.DeliveryLeg
	if err := tx.Where("delivery_order_id = ? AND trip_id = ?", order.ID, *order.TripID).
		Find(&legs).Error; err != nil {
		return "", err
	}

	allDelivered := true
	for _, leg := range legs {
		if !leg.Status.IsTerminal() {
			return "", nil
		}
		if leg.Status != models.LegStatusDelivered {
			allDelivered = false
		}
	}

	if allDelivered {
		return models.OrderStatusCompleted, nil
	}
	return models.OrderStatusPartiallyDelivered, nil
}

// trackAllocationError относит ошибку принятия к метрике по ее типу
func trackAllocationError(err error) {
	if _, ok := IsCapacityExceeded(err); ok {
		middleware.TrackAllocation("capacity_rejected")
		return
	}
	if _, ok := IsConflict(err); ok {
		middleware.TrackAllocation("conflict")
		return
	}
	if _, ok := IsValidation(err); ok {
		middleware.TrackAllocation("validation_rejected")
	}
}
