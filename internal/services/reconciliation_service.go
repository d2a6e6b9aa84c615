package services

import (
	"log"
	"math"
	"time"

	"delivery-backend/internal/middleware"
	"delivery-backend/internal/models"

	"gorm.io/gorm"
)

// ReconciliationService периодически сверяет счетчики занятой вместимости
// рейсов с суммой по их неотмененным заказам и проверяет полноту веера
// плеч доставки. Расхождение — нарушение целостности: оно логируется и
// публикуется в метрику, но никогда не чинится автоматически. Починка
// задним числом — именно тот механизм, который исторически плодил
// дубликаты и пропуски плеч.
type ReconciliationService struct {
	db       *gorm.DB
	interval time.Duration
}

func NewReconciliationService(db *gorm.DB, interval time.Duration) *ReconciliationService {
	return &ReconciliationService{
		db:       db,
		interval: interval,
	}
}

// CapacityDrift описывает рейс, чей счетчик разошелся с пересчетом
type CapacityDrift struct {
	TripID           uint
	ConsumedPackages int
	ConsumedWeight   float64
	SumPackages      int
	SumWeight        float64
}

// FanOutViolation описывает заказ с неполным или избыточным веером плеч
type FanOutViolation struct {
	OrderID     uint
	OrderNumber string
	StopCount   int
	LegCount    int
}

// Start запускает периодическую сверку в фоне
func (s *ReconciliationService) Start() {
	log.Printf("Запуск сверки целостности с интервалом %s", s.interval)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			s.runOnce()
			<-ticker.C
		}
	}()
}

func (s *ReconciliationService) runOnce() {
	drifts, err := s.CheckCapacity()
	if err != nil {
		log.Printf("Ошибка сверки вместимости: %v", err)
		return
	}
	for _, d := range drifts {
		log.Printf("НАРУШЕНИЕ ЦЕЛОСТНОСТИ: рейс %d, счетчик %d мест / %.1f кг, сумма заказов %d мест / %.1f кг",
			d.TripID, d.ConsumedPackages, d.ConsumedWeight, d.SumPackages, d.SumWeight)
	}
	middleware.TrackReconciliationDrift(len(drifts))

	violations, err := s.CheckFanOut()
	if err != nil {
		log.Printf("Ошибка сверки веера плеч: %v", err)
		return
	}
	for _, v := range violations {
		log.Printf("НАРУШЕНИЕ ЦЕЛОСТНОСТИ: заказ %s имеет %d остановок, но %d плеч доставки (ожидалось %d)",
			v.OrderNumber, v.StopCount, v.LegCount, v.StopCount+1)
	}
}

// CheckCapacity возвращает рейсы, у которых занятая вместимость не равна
// сумме по неотмененным заказам с их trip_id
func (s *ReconciliationService) CheckCapacity() ([]CapacityDrift, error) {
	var rows []struct {
		TripID           uint
		ConsumedPackages int
		ConsumedWeight   float64
		SumPackages      int
		SumWeight        float64
	}

	err := s.db.Model(&models.Trip{}).
		Select(`trips.id AS trip_id,
			trips.consumed_packages,
			trips.consumed_weight,
			COALESCE(SUM(delivery_orders.package_count), 0) AS sum_packages,
			COALESCE(SUM(delivery_orders.total_weight), 0) AS sum_weight`).
		Joins(`LEFT JOIN delivery_orders ON delivery_orders.trip_id = trips.id
			AND delivery_orders.status != ?`, models.OrderStatusCancelled).
		Where("trips.status != ?", models.TripStatusCancelled).
		Group("trips.id, trips.consumed_packages, trips.consumed_weight").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var drifts []CapacityDrift
	for _, row := range rows {
		if row.ConsumedPackages != row.SumPackages ||
			math.Abs(row.ConsumedWeight-row.SumWeight) > 0.001 {
			drifts = append(drifts, CapacityDrift{
				TripID:           row.TripID,
				ConsumedPackages: row.ConsumedPackages,
				ConsumedWeight:   row.ConsumedWeight,
				SumPackages:      row.SumPackages,
				SumWeight:        row.SumWeight,
			})
		}
	}

	return drifts, nil
}

// CheckFanOut возвращает принятые заказы, у которых число плеч доставки
// не равно числу остановок плюс один (основной получатель)
func (s *ReconciliationService) CheckFanOut() ([]FanOutViolation, error) {
	var rows []struct {
		OrderID     uint
		OrderNumber string
		StopCount   int
		LegCount    int
	}

	err := s.db.Raw(`SELECT o.id AS order_id,
			o.order_number,
			(SELECT COUNT(*) FROM delivery_stops WHERE delivery_order_id = o.id) AS stop_count,
			(SELECT COUNT(*) FROM delivery_legs WHERE delivery_order_id = o.id AND trip_id = o.trip_id) AS leg_count
		FROM delivery_orders o
		WHERE o.trip_id IS NOT NULL AND o.status != ?`, models.OrderStatusCancelled).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var violations []FanOutViolation
	for _, row := range rows {
		if row.LegCount != row.StopCount+1 {
			violations = append(violations, FanOutViolation{
				OrderID:     row.OrderID,
				OrderNumber: row.OrderNumber,
				StopCount:   row.StopCount,
				LegCount:    row.LegCount,
			})
		}
	}

	return violations, nil
}
