package services

import (
	"context"
	"log"
	"math"

	"delivery-backend/internal/models"

	"gorm.io/gorm"
)

// ManifestService отвечает на вопросы "что водителю делать дальше" и
// "в каком состоянии заказ" по уже материализованным плечам, не выводя
// состояние заново при каждом вызове.
type ManifestService struct {
	db    *gorm.DB
	cache *ManifestCache
}

func NewManifestService(db *gorm.DB, cache *ManifestCache) *ManifestService {
	return &ManifestService{
		db:    db,
		cache: cache,
	}
}

// ManifestOrder — плечи одного заказа внутри ведомости рейса
type ManifestOrder struct {
	OrderID      uint                         `json:"order_id"`
	OrderNumber  string                       `json:"order_number"`
	CompanyName  string                       `json:"company_name"`
	Status       models.OrderStatus           `json:"status"`
	PackageCount int                          `json:"package_count"`
	TotalWeight  float64                      `json:"total_weight"`
	PickupLeg    models.PickupLegResponse     `json:"pickup_leg"`
	DeliveryLegs []models.DeliveryLegResponse `json:"delivery_legs"`
}

// TripManifest — полная ведомость рейса: все плечи, сгруппированные по
// заказам в порядке нумерации, плюс пересчитанная занятость для сверки
type TripManifest struct {
	Trip               models.TripResponse `json:"trip"`
	Orders             []ManifestOrder     `json:"orders"`
	RecomputedPackages int                 `json:"recomputed_packages"`
	RecomputedWeight   float64             `json:"recomputed_weight"`
}

// NextAction — следующее незавершенное плечо рейса
type NextAction struct {
	Kind        string                      `json:"kind"` // pickup или delivery
	OrderNumber string                      `json:"order_number"`
	PickupLeg   *models.PickupLegResponse   `json:"pickup_leg,omitempty"`
	DeliveryLeg *models.DeliveryLegResponse `json:"delivery_leg,omitempty"`
}

// GetTripManifest возвращает ведомость рейса, по возможности из кэша
func (s *ManifestService) GetTripManifest(ctx context.Context, tripID uint) (*TripManifest, error) {
	var cached TripManifest
	hit, err := s.cache.Get(ctx, tripID, &cached)
	if err != nil {
		// Кэш не должен ломать чтение: логируем и идем в базу
		log.Printf("Ошибка кэша ведомости рейса %d: %v", tripID, err)
	}
	if hit {
		return &cached, nil
	}

	manifest, err := s.buildManifest(tripID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, tripID, manifest); err != nil {
		log.Printf("Не удалось сохранить ведомость рейса %d в кэш: %v", tripID, err)
	}

	return manifest, nil
}

// InvalidateTrip сбрасывает кэш ведомости после изменения состава рейса
func (s *ManifestService) InvalidateTrip(ctx context.Context, tripID uint) {
	if err := s.cache.Invalidate(ctx, tripID); err != nil {
		log.Printf("Не удалось сбросить кэш ведомости рейса %d: %v", tripID, err)
	}
}

func (s *ManifestService) buildManifest(tripID uint) (*TripManifest, error) {
	var trip models.Trip
	if err := s.db.Preload("Route").Preload("Driver").First(&trip, tripID).Error; err != nil {
		return nil, err
	}

	var deliveryLegs []models.DeliveryLeg
	if err := s.db.Where("trip_id = ?", tripID).
		Order("sequence ASC").Find(&deliveryLegs).Error; err != nil {
		return nil, err
	}

	var pickupLegs []models.PickupLeg
	if err := s.db.Where("trip_id = ?", tripID).Find(&pickupLegs).Error; err != nil {
		return nil, err
	}
	pickupByOrder := make(map[uint]models.PickupLeg, len(pickupLegs))
	for _, leg := range pickupLegs {
		pickupByOrder[leg.DeliveryOrderID] = leg
	}

	var orders []models.DeliveryOrder
	if err := s.db.Preload("Company").Where("trip_id = ?", tripID).Find(&orders).Error; err != nil {
		return nil, err
	}
	orderByID := make(map[uint]models.DeliveryOrder, len(orders))
	for _, order := range orders {
		orderByID[order.ID] = order
	}

	// Группируем плечи по заказам в порядке первого появления в нумерации
	manifest := &TripManifest{Trip: trip.ToResponse()}
	indexByOrder := make(map[uint]int)
	for i := range deliveryLegs {
		leg := deliveryLegs[i]
		idx, ok := indexByOrder[leg.DeliveryOrderID]
		if !ok {
			order := orderByID[leg.DeliveryOrderID]
			pickup := pickupByOrder[leg.DeliveryOrderID]
			manifest.Orders = append(manifest.Orders, ManifestOrder{
				OrderID:      order.ID,
				OrderNumber:  order.OrderNumber,
				CompanyName:  order.Company.FullName(),
				Status:       order.Status,
				PackageCount: order.PackageCount,
				TotalWeight:  order.TotalWeight,
				PickupLeg:    pickup.ToResponse(),
			})
			idx = len(manifest.Orders) - 1
			indexByOrder[leg.DeliveryOrderID] = idx
		}
		manifest.Orders[idx].DeliveryLegs = append(manifest.Orders[idx].DeliveryLegs, leg.ToResponse())
	}

	// Пересчитываем занятость по неотмененным заказам рейса:
	// счетчики рейса обязаны совпадать с этой суммой
	for _, order := range orders {
		if order.Status == models.OrderStatusCancelled {
			continue
		}
		manifest.RecomputedPackages += order.PackageCount
		manifest.RecomputedWeight += order.TotalWeight
	}
	if manifest.RecomputedPackages != trip.ConsumedPackages ||
		math.Abs(manifest.RecomputedWeight-trip.ConsumedWeight) > 0.001 {
		log.Printf("ВНИМАНИЕ: расхождение вместимости рейса %d: счетчик %d мест / %.1f кг, пересчет %d мест / %.1f кг",
			trip.ID, trip.ConsumedPackages, trip.ConsumedWeight,
			manifest.RecomputedPackages, manifest.RecomputedWeight)
	}

	return manifest, nil
}

// GetNextAction возвращает следующее незавершенное плечо рейса по
// возрастанию нумерации. Незавершенный забор предлагается раньше любых
// плеч доставки своего заказа: нельзя доставить то, что не забрано.
// Это защитная проверка на чтении — движок обеспечивает порядок и сам.
func (s *ManifestService) GetNextAction(tripID uint) (*NextAction, error) {
	nonTerminal := []string{
		string(models.LegStatusPending),
		string(models.LegStatusInTransit),
	}

	var deliveryLegs []models.DeliveryLeg
	if err := s.db.Where("trip_id = ? AND status IN ?", tripID, nonTerminal).
		Order("sequence ASC").Find(&deliveryLegs).Error; err != nil {
		return nil, err
	}

	for i := range deliveryLegs {
		leg := deliveryLegs[i]

		var pickupLeg models.PickupLeg
		if err := s.db.First(&pickupLeg, leg.PickupLegID).Error; err != nil {
			return nil, err
		}

		var order models.DeliveryOrder
		if err := s.db.First(&order, leg.DeliveryOrderID).Error; err != nil {
			return nil, err
		}

		// Забор заказа не завершен — он и есть следующее действие
		if !pickupLeg.Status.IsTerminal() {
			resp := pickupLeg.ToResponse()
			return &NextAction{
				Kind:        models.LegKindPickup,
				OrderNumber: order.OrderNumber,
				PickupLeg:   &resp,
			}, nil
		}

		// Забор провален или отменен — доставка невыполнима, пропускаем
		if pickupLeg.Status != models.LegStatusPickedUp {
			continue
		}

		resp := leg.ToResponse()
		return &NextAction{
			Kind:        models.LegKindDelivery,
			OrderNumber: order.OrderNumber,
			DeliveryLeg: &resp,
		}, nil
	}

	// Все плечи завершены
	return nil, nil
}
