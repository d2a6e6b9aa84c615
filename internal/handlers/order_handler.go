package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"delivery-backend/internal/models"
	"delivery-backend/internal/services"
	ws "delivery-backend/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateStopRequest описывает дополнительную точку доставки при создании заказа
type CreateStopRequest struct {
	RecipientName  string `json:"recipient_name" binding:"required"`
	RecipientPhone string `json:"recipient_phone"`
	Address        string `json:"address" binding:"required"`
}

// CreateOrderRequest описывает запрос на создание заказа
type CreateOrderRequest struct {
	RouteID         uint                `json:"route_id" binding:"required"`
	ScheduledDate   string              `json:"scheduled_date" binding:"required"` // Формат YYYY-MM-DD
	PackageCount    int                 `json:"package_count" binding:"required,gt=0"`
	TotalWeight     float64             `json:"total_weight" binding:"required,gt=0"`
	PickupAddress   string              `json:"pickup_address" binding:"required"`
	RecipientName   string              `json:"recipient_name" binding:"required"`
	RecipientPhone  string              `json:"recipient_phone"`
	DeliveryAddress string              `json:"delivery_address" binding:"required"`
	Stops           []CreateStopRequest `json:"stops"`
}

// CreateOrder создает новый заказ вместе со всеми точками доставки.
// Заказ и остановки записываются одной транзакцией в статусе draft,
// перевод в awaiting_driver — последний оператор транзакции: водители
// не могут увидеть заказ с недописанным списком остановок.
func CreateOrder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID := c.MustGet("user_id").(uint)

		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных: " + err.Error()})
			return
		}

		scheduledDate, err := time.Parse("2006-01-02", req.ScheduledDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат даты, ожидается YYYY-MM-DD"})
			return
		}

		var route models.Route
		if err := db.First(&route, req.RouteID).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Маршрут не найден"})
			return
		}

		order := models.DeliveryOrder{
			OrderNumber:     generateOrderNumber(),
			CompanyID:       companyID,
			RouteID:         req.RouteID,
			ScheduledDate:   scheduledDate,
			PackageCount:    req.PackageCount,
			TotalWeight:     req.TotalWeight,
			PickupAddress:   req.PickupAddress,
			RecipientName:   req.RecipientName,
			RecipientPhone:  req.RecipientPhone,
			DeliveryAddress: req.DeliveryAddress,
			Status:          models.OrderStatusDraft,
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&order).Error; err != nil {
				return err
			}

			// Остановки нумеруются с 2: точка 1 — основной получатель
			for i, stop := range req.Stops {
				deliveryStop := models.DeliveryStop{
					DeliveryOrderID: order.ID,
					Sequence:        i + 2,
					RecipientName:   stop.RecipientName,
					RecipientPhone:  stop.RecipientPhone,
					Address:         stop.Address,
				}
				if err := tx.Create(&deliveryStop).Error; err != nil {
					return err
				}
				order.Stops = append(order.Stops, deliveryStop)
			}

			// Публикация заказа — строго последней записью транзакции
			if err := tx.Model(&models.DeliveryOrder{}).
				Where("id = ?", order.ID).
				Update("status", models.OrderStatusAwaitingDriver).Error; err != nil {
				return err
			}
			order.Status = models.OrderStatusAwaitingDriver
			return nil
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось создать заказ"})
			return
		}

		c.JSON(http.StatusCreated, order.ToResponse())
	}
}

// generateOrderNumber генерирует номер заказа вида PED-XXXXXXXX
func generateOrderNumber() string {
	return "PED-" + strings.ToUpper(uuid.New().String()[:8])
}

// GetMyOrders возвращает заказы текущей компании
func GetMyOrders(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		companyID := c.MustGet("user_id").(uint)

		query := db.Preload("Company").
			Preload("Stops", func(db *gorm.DB) *gorm.DB {
				return db.Order("sequence ASC")
			}).
			Where("company_id = ?", companyID)

		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}

		var orders []models.DeliveryOrder
		if err := query.Order("created_at DESC").Find(&orders).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось получить список заказов"})
			return
		}

		response := make([]models.DeliveryOrderResponse, 0, len(orders))
		for i := range orders {
			response = append(response, orders[i].ToResponse())
		}
		c.JSON(http.StatusOK, response)
	}
}

// GetPendingOrders возвращает водителю ленту заказов, ожидающих принятия,
// по маршрутам его активных профилей
func GetPendingOrders(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.MustGet("user_id").(uint)

		var routeIDs []uint
		if err := db.Model(&models.DriverRouteProfile{}).
			Where("driver_id = ? AND active = ?", driverID, true).
			Pluck("route_id", &routeIDs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось получить профили водителя"})
			return
		}
		if len(routeIDs) == 0 {
			c.JSON(http.StatusOK, []models.DeliveryOrderResponse{})
			return
		}

		var orders []models.DeliveryOrder
		if err := db.Preload("Company").
			Preload("Stops", func(db *gorm.DB) *gorm.DB {
				return db.Order("sequence ASC")
			}).
			Where("status = ? AND route_id IN ?", models.OrderStatusAwaitingDriver, routeIDs).
			Order("scheduled_date ASC").
			Find(&orders).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось получить список заказов"})
			return
		}

		response := make([]models.DeliveryOrderResponse, 0, len(orders))
		for i := range orders {
			response = append(response, orders[i].ToResponse())
		}
		c.JSON(http.StatusOK, response)
	}
}

// GetOrder возвращает заказ по ID. Компания видит только свои заказы,
// водитель — заказы своих рейсов.
func GetOrder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet("user_id").(uint)
		role := c.GetString("role")

		orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный ID заказа"})
			return
		}

		var order models.DeliveryOrder
		if err := db.Preload("Company").
			Preload("Stops", func(db *gorm.DB) *gorm.DB {
				return db.Order("sequence ASC")
			}).
			First(&order, orderID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Заказ не найден"})
			return
		}

		if !canViewOrder(db, &order, userID, role) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Нет доступа к заказу"})
			return
		}

		response := gin.H{"order": order.ToResponse()}

		// У принятого заказа показываем его плечи
		if order.TripID != nil {
			var pickupLeg models.PickupLeg
			if err := db.Where("trip_id = ? AND delivery_order_id = ?", *order.TripID, order.ID).
				First(&pickupLeg).Error; err == nil {
				response["pickup_leg"] = pickupLeg.ToResponse()
			}

			var deliveryLegs []models.DeliveryLeg
			if err := db.Where("trip_id = ? AND delivery_order_id = ?", *order.TripID, order.ID).
				Order("sequence ASC").Find(&deliveryLegs).Error; err == nil {
				legs := make([]models.DeliveryLegResponse, 0, len(deliveryLegs))
				for i := range deliveryLegs {
					legs = append(legs, deliveryLegs[i].ToResponse())
				}
				response["delivery_legs"] = legs
			}
		}

		c.JSON(http.StatusOK, response)
	}
}

// canViewOrder проверяет доступ пользователя к заказу
func canViewOrder(db *gorm.DB, order *models.DeliveryOrder, userID uint, role string) bool {
	switch role {
	case models.RoleAdmin:
		return true
	case models.RoleCompany:
		return order.CompanyID == userID
	case models.RoleDriver:
		if order.Status == models.OrderStatusAwaitingDriver {
			return true
		}
		if order.TripID == nil {
			return false
		}
		var trip models.Trip
		if err := db.First(&trip, *order.TripID).Error; err != nil {
			return false
		}
		return trip.DriverID == userID
	}
	return false
}

// AcceptOrder принимает заказ водителем: закрепляет его за рейсом,
// резервирует вместимость и разворачивает в плечи. Операция идемпотентна.
func AcceptOrder(db *gorm.DB, allocator *services.AllocationService, manifests *services.ManifestService, notifier *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.MustGet("user_id").(uint)

		orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный ID заказа"})
			return
		}

		result, err := allocator.Accept(driverID, uint(orderID))
		if err != nil {
			respondAllocationError(c, err)
			return
		}

		// Состав рейса изменился — сбрасываем кэш ведомости
		manifests.InvalidateTrip(context.Background(), result.Trip.ID)

		if !result.AlreadyAccepted {
			ws.SendOrderStatusUpdate(result.Order.CompanyID, result.Order.ID, string(result.Order.Status))
			go notifier.NotifyOrderAccepted(db, &result.Order, &result.Trip)
		}

		deliveryLegs := make([]models.DeliveryLegResponse, 0, len(result.DeliveryLegs))
		for i := range result.DeliveryLegs {
			deliveryLegs = append(deliveryLegs, result.DeliveryLegs[i].ToResponse())
		}

		c.JSON(http.StatusOK, gin.H{
			"order":            result.Order.ToResponse(),
			"trip":             result.Trip.ToResponse(),
			"pickup_leg":       result.PickupLeg.ToResponse(),
			"delivery_legs":    deliveryLegs,
			"already_accepted": result.AlreadyAccepted,
		})
	}
}

// CancelOrderRequest описывает запрос на отмену заказа
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder отменяет заказ: возвращает вместимость рейсу и переводит
// все плечи заказа в cancelled
func CancelOrder(db *gorm.DB, allocator *services.AllocationService, manifests *services.ManifestService, notifier *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet("user_id").(uint)
		role := c.GetString("role")

		orderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный ID заказа"})
			return
		}

		var order models.DeliveryOrder
		if err := db.First(&order, orderID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Заказ не найден"})
			return
		}

		// Отменять заказ может только компания-владелец или администратор
		switch role {
		case models.RoleAdmin:
		case models.RoleCompany:
			if order.CompanyID != userID {
				c.JSON(http.StatusForbidden, gin.H{"error": "Нет доступа к заказу"})
				return
			}
		default:
			c.JSON(http.StatusForbidden, gin.H{"error": "Отменять заказ может только компания-владелец"})
			return
		}

		var req CancelOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных"})
			return
		}

		result, err := allocator.CancelOrder(uint(orderID), req.Reason)
		if err != nil {
			respondAllocationError(c, err)
			return
		}

		if result.Order.TripID != nil {
			manifests.InvalidateTrip(context.Background(), *result.Order.TripID)
		}
		ws.SendOrderStatusUpdate(result.Order.CompanyID, result.Order.ID, string(result.Order.Status))
		go notifier.NotifyOrderCancelled(db, &result.Order)

		c.JSON(http.StatusOK, gin.H{
			"order":          result.Order.ToResponse(),
			"trip_cancelled": result.TripCancelled,
		})
	}
}

// respondAllocationError переводит ошибки движка закрепления в HTTP-ответы
func respondAllocationError(c *gin.Context, err error) {
	if services.IsNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Запись не найдена"})
		return
	}
	if ve, ok := services.IsValidation(err); ok {
		status := http.StatusBadRequest
		if ve.Reason == services.ReasonForbidden {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": ve.Message, "reason": ve.Reason})
		return
	}
	if ce, ok := services.IsCapacityExceeded(err); ok {
		c.JSON(http.StatusConflict, gin.H{
			"error":           ce.Error(),
			"reason":          "capacity_exceeded",
			"free_packages":   ce.FreePackages,
			"free_weight":     ce.FreeWeight,
			"needed_packages": ce.NeededPackages,
			"needed_weight":   ce.NeededWeight,
		})
		return
	}
	if ce, ok := services.IsConflict(err); ok {
		c.JSON(http.StatusConflict, gin.H{"error": ce.Message, "reason": "conflict"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Внутренняя ошибка сервера"})
}
