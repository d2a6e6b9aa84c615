package services

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"delivery-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Понедельник, покрывается профилем с днями "1,3,5"
var mondayDate = time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

// Вторник, профилем не покрывается
var tuesdayDate = time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)

var phoneSeq int

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// Одно соединение: условные UPDATE сериализуются как на одной строке
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(
		&models.User{},
		&models.Route{},
		&models.DriverRouteProfile{},
		&models.DeliveryOrder{},
		&models.DeliveryStop{},
		&models.Trip{},
		&models.PickupLeg{},
		&models.DeliveryLeg{},
	))
	return gdb
}

type fixture struct {
	db      *gorm.DB
	company models.User
	driver  models.User
	route   models.Route
	profile models.DriverRouteProfile
}

func createUser(t *testing.T, db *gorm.DB, role, name string) models.User {
	t.Helper()
	phoneSeq++
	user := models.User{
		FirstName:   name,
		CompanyName: "",
		Phone:       fmt.Sprintf("+7700%07d", phoneSeq),
		Role:        role,
	}
	if role == models.RoleCompany {
		user.CompanyName = name
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func createProfile(t *testing.T, db *gorm.DB, driverID, routeID uint, maxPackages int, maxWeight float64) models.DriverRouteProfile {
	t.Helper()
	profile := models.DriverRouteProfile{
		DriverID:                  driverID,
		RouteID:                   routeID,
		DaysOfWeek:                "1,3,5",
		DepartureTime:             "08:00",
		ArrivalTime:               "14:00",
		MaxPackages:               maxPackages,
		MaxWeight:                 maxWeight,
		AcceptsMultiplePickups:    true,
		AcceptsMultipleDeliveries: true,
		Active:                    true,
	}
	require.NoError(t, db.Create(&profile).Error)
	return profile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)

	company := createUser(t, db, models.RoleCompany, "ТОО Ромашка")
	driver := createUser(t, db, models.RoleDriver, "Асхат")

	route := models.Route{Name: "Алматы - Астана", FromCity: "Алматы", ToCity: "Астана"}
	require.NoError(t, db.Create(&route).Error)

	profile := createProfile(t, db, driver.ID, route.ID, 10, 100)

	return &fixture{db: db, company: company, driver: driver, route: route, profile: profile}
}

var orderSeq int

func (f *fixture) createOrder(t *testing.T, date time.Time, packages int, weight float64, stops int) models.DeliveryOrder {
	t.Helper()
	orderSeq++
	order := models.DeliveryOrder{
		OrderNumber:     fmt.Sprintf("PED-TEST%04d", orderSeq),
		CompanyID:       f.company.ID,
		RouteID:         f.route.ID,
		ScheduledDate:   date,
		PackageCount:    packages,
		TotalWeight:     weight,
		PickupAddress:   "Алматы, Абая 10",
		RecipientName:   "Основной получатель",
		RecipientPhone:  "+77001234567",
		DeliveryAddress: "Астана, Кунаева 1",
		Status:          models.OrderStatusAwaitingDriver,
	}
	require.NoError(t, f.db.Create(&order).Error)

	for i := 0; i < stops; i++ {
		stop := models.DeliveryStop{
			DeliveryOrderID: order.ID,
			Sequence:        i + 2,
			RecipientName:   fmt.Sprintf("Получатель %d", i+2),
			Address:         fmt.Sprintf("Астана, точка %d", i+2),
		}
		require.NoError(t, f.db.Create(&stop).Error)
		order.Stops = append(order.Stops, stop)
	}
	return order
}

func TestAcceptFanOut(t *testing.T) {
	f := newFixture(t)
	svc := NewAllocationService(f.db)

	order := f.createOrder(t, mondayDate, 3, 30, 2)

	result, err := svc.Accept(f.driver.ID, order.ID)
	require.NoError(t, err)
	assert.False(t, result.AlreadyAccepted)

	// Заказ закреплен за рейсом
	assert.Equal(t, models.OrderStatusDriverAccepted, result.Order.Status)
	require.NotNil(t, result.Order.TripID)
	assert.Equal(t, result.Trip.ID, *result.Order.TripID)

	// Рейс создан лениво по шаблону профиля
	assert.Equal(t, models.TripStatusScheduled, result.Trip.Status)
	assert.Equal(t, 10, result.Trip.MaxPackages)
	assert.Equal(t, 100.0, result.Trip.MaxWeight)
	assert.Equal(t, 3, result.Trip.ConsumedPackages)
	assert.Equal(t, 30.0, result.Trip.ConsumedWeight)
	require.NotNil(t, result.Trip.PlannedDeparture)
	assert.Equal(t, 8, result.Trip.PlannedDeparture.Hour())

	// Одно плечо забора
	assert.Equal(t, order.ID, result.PickupLeg.DeliveryOrderID)
	assert.Equal(t, models.LegStatusPending, result.PickupLeg.Status)
	assert.Equal(t, order.PickupAddress, result.PickupLeg.Address)

	// k остановок дают k+1 плеч доставки: первой идет основной получатель,
	// затем остановки по возрастанию номера
	require.Len(t, result.DeliveryLegs, 3)
	assert.Nil(t, result.DeliveryLegs[0].StopID)
	assert.Equal(t, "Основной получатель", result.DeliveryLegs[0].RecipientName)
	require.NotNil(t, result.DeliveryLegs[1].StopID)
	assert.Equal(t, order.Stops[0].ID, *result.DeliveryLegs[1].StopID)
	require.NotNil(t, result.DeliveryLegs[2].StopID)
	assert.Equal(t, order.Stops[1].ID, *result.DeliveryLegs[2].StopID)

	// Нумерация сквозная и без дырок
	for i, leg := range result.DeliveryLegs {
		assert.Equal(t, i+1, leg.Sequence)
		assert.Equal(t, result.PickupLeg.ID, leg.PickupLegID)
		assert.Equal(t, models.LegStatusPending, leg.Status)
	}
}

func TestAcceptSequencesContiguousAcrossOrders(t *testing.T) {
	f := newFixture(t)
	svc := NewAllocationService(f.db)

	first := f.createOrder(t, mondayDate, 2, 20, 1)  // 2 плеча доставки
	second := f.createOrder(t, mondayDate, 2, 20, 2) // 3 плеча доставки

	r1, err := svc.Accept(f.driver.ID, first.ID)
	require.NoError(t, err)
	r2, err := svc.Accept(f.driver.ID, second.ID)
	require.NoError(t, err)

	assert.Equal(t, r1.Trip.ID, r2.Trip.ID)
	assert.Equal(t, []int{1, 2}, sequences(r1.DeliveryLegs))
	assert.Equal(t, []int{3, 4, 5}, sequences(r2.DeliveryLegs))
}

func sequences(legs []models.DeliveryLeg) []int {
	out := make([]int, 0, len(legs))
	for _, leg := range legs {
		out = append(out, leg.Sequence)
	}
	return out
}

func TestAcceptCapacity(t *testing.T) {
	f := newFixture(t)
	svc := NewAllocationService(f.db)

	// Рейс 10 мест / 100 кг: 6 занято, 5 не влезает, 4 заполняет до упора
	big := f.createOrder(t, mondayDate, 6, 60, 0)
	over := f.createOrder(t, mondayDate, 5, 50, 0)
	fill := f.createOrder(t, mondayDate, 4, 40, 0)

	r1, err := svc.Accept(f.driver.ID, big.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, r1.Trip.ConsumedPackages)

	_, err = svc.Accept(f.driver.ID, over.ID)
	ce, ok := IsCapacityExceeded(err)
	require.True(t, ok, "ожидался отказ по вместимости, получено: %v", err)
	assert.Equal(t, r1.Trip.ID, ce.TripID)
	assert.Equal(t, 5, ce.NeededPackages)

	// Отказ не оставляет следов: ни плеч, ни закрепления
	var overReloaded models.DeliveryOrder
	require.NoError(t, f.db.First(&overReloaded, over.ID).Error)
	assert.Equal(t, models.OrderStatusAwaitingDriver, overReloaded.Status)
	assert.Nil(t, overReloaded.TripID)

	var legCount int64
	require.NoError(t, f.db.Model(&models.DeliveryLeg{}).
		Where("delivery_order_id = ?", over.ID).Count(&legCount).Error)
	assert.Zero(t, legCount)

	// Меньший заказ все еще помещается
	r3, err := svc.Accept(f.driver.ID, fill.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, r3.Trip.ConsumedPackages)
	assert.Equal(t, 100.0, r3.Trip.ConsumedWeight)

	// Рейс заполнен до упора: не влезает даже минимальный заказ
	tiny := f.createOrder(t, mondayDate, 1, 1, 0)
	_, err = svc.Accept(f.driver.ID, tiny.ID)
	_, ok = IsCapacityExceeded(err)
	assert.True(t, ok, "ожидался отказ по вместимости, получено: %v", err)
}

func TestAcceptIdempotent(t *testing.T) {
	f := newFixture(t)
	svc := NewAllocationService(f.db)

	order := f.createOrder(t, mondayDate, 3, 30, 1)

	first, err := svc.Accept(f.driver.ID, order.ID)
	require.NoError(t, err)

	second, err := svc.Accept(f.driver.ID, order.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyAccepted)
	assert.Equal(t, first.Trip.ID, second.Trip.ID)
	assert.Equal(t, first.PickupLeg.ID, second.PickupLeg.ID)
	assert.Equal(t, sequences(first.DeliveryLegs), sequences(second.DeliveryLegs))

	// Повтор не резервирует вместимость второй раз
	var trip models.Trip
	require.NoError(t, f.db.First(&trip, first.Trip.ID).Error)
	assert.Equal(t, 3, trip.ConsumedPackages)
	assert.Equal(t, 30.0, trip.ConsumedWeight)
}

func TestAcceptConflictOtherDriver(t *testing.T) {
	f := newFixture(t)
	svc := NewAllocationService(f.db)

	other := createUser(t, f.db, models.RoleDriver, "Бауыржан")
	createProfile(t, f.db, other.ID, f.route.ID, 10, 100)

	order := f.createOrder(t, mondayDate, 3, 30, 0)

	_, err := svc.Accept(f.driver.ID, order.ID)
	require.NoError(t, err)

	_, err = svc.Accept(other.ID, order.ID)
	_, ok := IsConflict(err)
	assert.True(t, ok, "ожидался конфликт, получено: %v", err)
}

func TestAcceptValidation(t *testing.T) {
	f := newFixture(t)
	svc := NewAllocationService(f.db)

	t.Run("draft order", func(t *testing.T) {
		order := f.createOrder(t, mondayDate, 1, 10, 0)
		require.NoError(t, f.db.Model(&order).Update("status", models.OrderStatusDraft).Error)

		_, err := svc.Accept(f.driver.ID, order.ID)
		ve, ok := IsValidation(err)
		require.True(t, ok)
		assert.Equal(t, ReasonOrderNotAvailable, ve.Reason)
	})

	t.Run("no active profile", func(t *testing.T) {
		stranger := createUser(t, f.db, models.RoleDriver, "Чужой")
		order := f.createOrder(t, mondayDate, 1, 10, 0)

		_, err := svc.Accept(stranger.ID, order.ID)
		ve, ok := IsValidation(err)
		require.True(t, ok)
		assert.Equal(t, ReasonNoActiveProfile, ve.Reason)
	})

	t.Run("date not covered", func(t *testing.T) {
		order := f.createOrder(t, tuesdayDate, 1, 10, 0)

		_, err := svc.Accept(f.driver.ID, order.ID)
		ve, ok := IsValidation(err)
		require.True(t, ok)
		assert.Equal(t, ReasonDateNotCovered, ve.Reason)
	})

	t.Run("multi delivery denied", func(t *testing.T) {
		require.NoError(t, f.db.Model(&f.profile).
			Update("accepts_multiple_deliveries", false).Error)
		defer f.db.Model(&f.profile).Update("accepts_multiple_deliveries", true)

		order := f.createOrder(t, mondayDate, 1, 10, 2)
		_, err := svc.Accept(f.driver.ID, order.ID)
		ve, ok := IsValidation(err)
		require.True(t, ok)
		assert.Equal(t, ReasonMultiDeliveryDenied, ve.Reason)
	})

	t.Run("multi pickup denied", func(t *testing.T) {
		require.NoError(t, f.db.Model(&f.profile).
			Update("accepts_multiple_pickups", false).Error)
		defer f.db.Model(&f.profile).Update("accepts_multiple_pickups", true)

		first := f.createOrder(t, mondayDate, 1, 10, 0)
		second := f.createOrder(t, mondayDate, 1, 10, 0)

		_, err := svc.Accept(f.driver.ID, first.ID)
		require.NoError(t, err)

		_, err = svc.Accept(f.driver.ID, second.ID)
		ve, ok := IsValidation(err)
		require.True(t, ok)
		assert.Equal(t, ReasonMultiPickupDenied, ve.Reason)
	})
}

func TestCancelReleasesCapacity(t *testing.T) {
	f := newFixture(t)
	svc := NewAllocationService(f.db)

	order := f.createOrder(t, mondayDate, 6, 60, 1)
	blocked := f.createOrder(t, mondayDate, 5, 50, 0)

	accepted, err := svc.Accept(f.driver.ID, order.ID)
	require.NoError(t, err)

	_, err = svc.Accept(f.driver.ID, blocked.ID)
	_, ok := IsCapacityExceeded(err)
	require.True(t, ok)

	result, err := svc.CancelOrder(order.ID, "передумали")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, result.Order.Status)
	assert.Equal(t, "передумали", result.Order.CancellationReason)

	// Вместимость возвращена, плечи отменены
	var trip models.Trip
	require.NoError(t, f.db.First(&trip, accepted.Trip.ID).Error)
	assert.Zero(t, trip.ConsumedPackages)
	assert.Zero(t, trip.ConsumedWeight)

	var legs []models.DeliveryLeg
	require.NoError(t, f.db.Where("delivery_order_id = ?", order.ID).Find(&legs).Error)
	require.Len(t, legs, 2)
	for _, leg := range legs {
		assert.Equal(t, models.LegStatusCancelled, leg.Status)
	}

	// Рейс опустел и отменен по политике по умолчанию
	assert.True(t, result.TripCancelled)
	assert.Equal(t, models.TripStatusCancelled, trip.Status)

	// Освободившееся место доступно новому рейсу
	_, err = svc.Accept(f.driver.ID, blocked.ID)
	require.NoError(t, err)
}

func TestCancelKeepsEmptyTripWhenPolicyDisabled(t *testing.T) {
	f := newFixture(t)
	svc := NewAllocationService(f.db)
	svc.CancelEmptyTrips = false

	order := f.createOrder(t, mondayDate, 2, 20, 0)
	accepted, err := svc.Accept(f.driver.ID, order.ID)
	require.NoError(t, err)

	result, err := svc.CancelOrder(order.ID, "")
	require.NoError(t, err)
	assert.False(t, result.TripCancelled)

	var trip models.Trip
	require.NoError(t, f.db.First(&trip, accepted.Trip.ID).Error)
	assert.Equal(t, models.TripStatusScheduled, trip.Status)
}

func TestCancelTerminalOrderRejected(t *testing.T) {
	f := newFixture(t)
	svc := NewAllocationService(f.db)

	order := f.createOrder(t, mondayDate, 1, 10, 0)
	require.NoError(t, f.db.Model(&order).Update("status", models.OrderStatusCompleted).Error)

	_, err := svc.CancelOrder(order.ID, "")
	ve, ok := IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, ReasonOrderTerminal, ve.Reason)
}

func TestReacceptAfterCancelRejected(t *testing.T) {
	f := newFixture(t)
	svc := NewAllocationService(f.db)

	order := f.createOrder(t, mondayDate, 2, 20, 1)
	_, err := svc.Accept(f.driver.ID, order.ID)
	require.NoError(t, err)

	_, err = svc.CancelOrder(order.ID, "планы изменились")
	require.NoError(t, err)

	// Отмена не очищает trip_id, но повтор принятия не должен вернуть
	// отмененные плечи как успешный идемпотентный ответ
	_, err = svc.Accept(f.driver.ID, order.ID)
	ve, ok := IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, ReasonOrderNotAvailable, ve.Reason)
}

func TestTripUniquePerDriverRouteDate(t *testing.T) {
	f := newFixture(t)

	first := models.Trip{
		DriverID:    f.driver.ID,
		RouteID:     f.route.ID,
		ProfileID:   f.profile.ID,
		TravelDate:  mondayDate,
		Status:      models.TripStatusScheduled,
		MaxPackages: 10,
		MaxWeight:   100,
	}
	require.NoError(t, f.db.Create(&first).Error)

	// Второй действующий рейс на ту же тройку (водитель, маршрут, дата)
	// отклоняет база: гонку двух первых принятий решает индекс, а не чтение
	duplicate := models.Trip{
		DriverID:    f.driver.ID,
		RouteID:     f.route.ID,
		ProfileID:   f.profile.ID,
		TravelDate:  mondayDate,
		Status:      models.TripStatusScheduled,
		MaxPackages: 10,
		MaxWeight:   100,
	}
	require.Error(t, f.db.Create(&duplicate).Error)

	// Отмененный рейс индекс не учитывает: замену создать можно
	require.NoError(t, f.db.Model(&first).Update("status", models.TripStatusCancelled).Error)
	replacement := models.Trip{
		DriverID:    f.driver.ID,
		RouteID:     f.route.ID,
		ProfileID:   f.profile.ID,
		TravelDate:  mondayDate,
		Status:      models.TripStatusScheduled,
		MaxPackages: 10,
		MaxWeight:   100,
	}
	require.NoError(t, f.db.Create(&replacement).Error)
}

func acceptOrder(t *testing.T, svc *AllocationService, driverID uint, f *fixture, stops int) *AcceptResult {
	t.Helper()
	order := f.createOrder(t, mondayDate, 1, 10, stops)
	result, err := svc.Accept(driverID, order.ID)
	require.NoError(t, err)
	return result
}

func TestAdvanceLegFlow(t *testing.T) {
	f := newFixture(t)
	svc := NewAllocationService(f.db)

	result := acceptOrder(t, svc, f.driver.ID, f, 1)
	pickup := result.PickupLeg
	legs := result.DeliveryLegs

	// Доставку нельзя начать, пока забор не завершен
	_, err := svc.AdvanceLeg(f.driver.ID, models.LegKindDelivery, legs[0].ID, models.LegStatusInTransit)
	ve, ok := IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, ReasonPickupNotCompleted, ve.Reason)

	// Забор: pending -> in_transit -> picked_up
	_, err = svc.AdvanceLeg(f.driver.ID, models.LegKindPickup, pickup.ID, models.LegStatusInTransit)
	require.NoError(t, err)
	advanced, err := svc.AdvanceLeg(f.driver.ID, models.LegKindPickup, pickup.ID, models.LegStatusPickedUp)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPickedUp, advanced.OrderStatus)

	// Пропуск шага недопустим: pending -> delivered
	_, err = svc.AdvanceLeg(f.driver.ID, models.LegKindDelivery, legs[0].ID, models.LegStatusDelivered)
	ve, ok = IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, ReasonIllegalTransition, ve.Reason)

	// Первая доставка: in_transit переводит заказ в in_transit
	advanced, err = svc.AdvanceLeg(f.driver.ID, models.LegKindDelivery, legs[0].ID, models.LegStatusInTransit)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusInTransit, advanced.OrderStatus)

	advanced, err = svc.AdvanceLeg(f.driver.ID, models.LegKindDelivery, legs[0].ID, models.LegStatusDelivered)
	require.NoError(t, err)
	// Второе плечо еще не завершено — статус заказа не выводится
	assert.Equal(t, models.OrderStatusInTransit, advanced.OrderStatus)

	// Вторая доставка завершает заказ
	_, err = svc.AdvanceLeg(f.driver.ID, models.LegKindDelivery, legs[1].ID, models.LegStatusInTransit)
	require.NoError(t, err)
	advanced, err = svc.AdvanceLeg(f.driver.ID, models.LegKindDelivery, legs[1].ID, models.LegStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, advanced.OrderStatus)
}

func TestAdvanceLegForbiddenForOtherDriver(t *testing.T) {
	f := newFixture(t)
	svc := NewAllocationService(f.db)

	other := createUser(t, f.db, models.RoleDriver, "Бауыржан")
	result := acceptOrder(t, svc, f.driver.ID, f, 0)

	_, err := svc.AdvanceLeg(other.ID, models.LegKindPickup, result.PickupLeg.ID, models.LegStatusInTransit)
	ve, ok := IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, ReasonForbidden, ve.Reason)
}

func TestPickupFailureFailsDeliveries(t *testing.T) {
	f := newFixture(t)
	svc := NewAllocationService(f.db)

	result := acceptOrder(t, svc, f.driver.ID, f, 2)

	_, err := svc.AdvanceLeg(f.driver.ID, models.LegKindPickup, result.PickupLeg.ID, models.LegStatusInTransit)
	require.NoError(t, err)
	advanced, err := svc.AdvanceLeg(f.driver.ID, models.LegKindPickup, result.PickupLeg.ID, models.LegStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPartiallyDelivered, advanced.OrderStatus)

	// Все плечи доставки провалены вместе с забором
	var legs []models.DeliveryLeg
	require.NoError(t, f.db.Where("delivery_order_id = ?", result.Order.ID).Find(&legs).Error)
	require.Len(t, legs, 3)
	for _, leg := range legs {
		assert.Equal(t, models.LegStatusFailed, leg.Status)
	}
}

func TestPartialDeliveryDerivesOrderStatus(t *testing.T) {
	f := newFixture(t)
	svc := NewAllocationService(f.db)

	result := acceptOrder(t, svc, f.driver.ID, f, 1)
	legs := result.DeliveryLegs

	_, err := svc.AdvanceLeg(f.driver.ID, models.LegKindPickup, result.PickupLeg.ID, models.LegStatusInTransit)
	require.NoError(t, err)
	_, err = svc.AdvanceLeg(f.driver.ID, models.LegKindPickup, result.PickupLeg.ID, models.LegStatusPickedUp)
	require.NoError(t, err)

	_, err = svc.AdvanceLeg(f.driver.ID, models.LegKindDelivery, legs[0].ID, models.LegStatusInTransit)
	require.NoError(t, err)
	_, err = svc.AdvanceLeg(f.driver.ID, models.LegKindDelivery, legs[0].ID, models.LegStatusDelivered)
	require.NoError(t, err)

	_, err = svc.AdvanceLeg(f.driver.ID, models.LegKindDelivery, legs[1].ID, models.LegStatusInTransit)
	require.NoError(t, err)
	advanced, err := svc.AdvanceLeg(f.driver.ID, models.LegKindDelivery, legs[1].ID, models.LegStatusFailed)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPartiallyDelivered, advanced.OrderStatus)
}

func TestConcurrentAcceptRespectsCapacity(t *testing.T) {
	f := newFixture(t)
	svc := NewAllocationService(f.db)

	// Оба заказа по 6 мест на рейс с потолком 10: пройти может ровно один
	first := f.createOrder(t, mondayDate, 6, 60, 0)
	second := f.createOrder(t, mondayDate, 6, 60, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, orderID := range []uint{first.ID, second.ID} {
		wg.Add(1)
		go func(idx int, id uint) {
			defer wg.Done()
			_, errs[idx] = svc.Accept(f.driver.ID, id)
		}(i, orderID)
	}
	wg.Wait()

	var accepted, rejected int
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		if _, ok := IsCapacityExceeded(err); ok {
			rejected++
		}
	}
	assert.Equal(t, 1, accepted, "ровно одно принятие должно пройти")
	assert.Equal(t, 1, rejected, "второе должно упереться в вместимость")

	var trip models.Trip
	require.NoError(t, f.db.Where("driver_id = ?", f.driver.ID).First(&trip).Error)
	assert.Equal(t, 6, trip.ConsumedPackages)
}
