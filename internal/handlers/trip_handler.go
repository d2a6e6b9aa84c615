package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"delivery-backend/internal/models"
	"delivery-backend/internal/services"
	ws "delivery-backend/internal/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// GetMyTrips возвращает рейсы текущего водителя
func GetMyTrips(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.MustGet("user_id").(uint)

		query := db.Preload("Route").Preload("Driver").
			Where("driver_id = ?", driverID)

		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}
		if date := c.Query("date"); date != "" {
			parsed, err := time.Parse("2006-01-02", date)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат даты, ожидается YYYY-MM-DD"})
				return
			}
			query = query.Where("travel_date = ?", parsed)
		}

		var trips []models.Trip
		if err := query.Order("travel_date DESC").Find(&trips).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось получить список рейсов"})
			return
		}

		response := make([]models.TripResponse, 0, len(trips))
		for i := range trips {
			response = append(response, trips[i].ToResponse())
		}
		c.JSON(http.StatusOK, response)
	}
}

// loadOwnTrip загружает рейс и проверяет, что он принадлежит водителю
func loadOwnTrip(c *gin.Context, db *gorm.DB) (*models.Trip, bool) {
	userID := c.MustGet("user_id").(uint)
	role := c.GetString("role")

	tripID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный ID рейса"})
		return nil, false
	}

	var trip models.Trip
	if err := db.Preload("Route").Preload("Driver").First(&trip, tripID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Рейс не найден"})
		return nil, false
	}

	if role != models.RoleAdmin && trip.DriverID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Нет доступа к рейсу"})
		return nil, false
	}

	return &trip, true
}

// GetTripManifest возвращает полную ведомость рейса: все плечи,
// сгруппированные по заказам в порядке нумерации
func GetTripManifest(db *gorm.DB, manifests *services.ManifestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		trip, ok := loadOwnTrip(c, db)
		if !ok {
			return
		}

		manifest, err := manifests.GetTripManifest(context.Background(), trip.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось построить ведомость рейса"})
			return
		}

		c.JSON(http.StatusOK, manifest)
	}
}

// GetNextAction возвращает следующее незавершенное плечо рейса
func GetNextAction(db *gorm.DB, manifests *services.ManifestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		trip, ok := loadOwnTrip(c, db)
		if !ok {
			return
		}

		action, err := manifests.GetNextAction(trip.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось определить следующее действие"})
			return
		}

		if action == nil {
			c.JSON(http.StatusOK, gin.H{"done": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"done": false, "action": action})
	}
}

// StartTrip переводит рейс в статус in_progress и фиксирует фактическое
// время выезда. Условие на текущий статус защищает от повторного старта.
func StartTrip(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		trip, ok := loadOwnTrip(c, db)
		if !ok {
			return
		}

		now := time.Now()
		res := db.Model(&models.Trip{}).
			Where("id = ? AND status = ?", trip.ID, models.TripStatusScheduled).
			Updates(map[string]interface{}{
				"status":           models.TripStatusInProgress,
				"actual_departure": now,
				"updated_at":       now,
			})
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось начать рейс"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Рейс нельзя начать из текущего статуса", "status": trip.Status})
			return
		}

		trip.Status = models.TripStatusInProgress
		trip.ActualDeparture = &now

		ws.SendTripStatusUpdate(trip.DriverID, trip.ID, string(trip.Status))

		c.JSON(http.StatusOK, trip.ToResponse())
	}
}

// CompleteTrip завершает рейс. Завершить можно только рейс, у которого
// не осталось незавершенных плеч: каждый заказ либо доставлен, либо
// провален, либо отменен.
func CompleteTrip(db *gorm.DB, manifests *services.ManifestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		trip, ok := loadOwnTrip(c, db)
		if !ok {
			return
		}

		nonTerminal := []string{
			string(models.LegStatusPending),
			string(models.LegStatusInTransit),
		}
		var pickupRemaining, deliveryRemaining int64
		if err := db.Model(&models.PickupLeg{}).
			Where("trip_id = ? AND status IN ?", trip.ID, nonTerminal).
			Count(&pickupRemaining).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось проверить плечи рейса"})
			return
		}
		if err := db.Model(&models.DeliveryLeg{}).
			Where("trip_id = ? AND status IN ?", trip.ID, nonTerminal).
			Count(&deliveryRemaining).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось проверить плечи рейса"})
			return
		}
		if pickupRemaining+deliveryRemaining > 0 {
			c.JSON(http.StatusConflict, gin.H{
				"error":          "У рейса остались незавершенные плечи",
				"reason":         services.ReasonTripNotCompletable,
				"remaining_legs": pickupRemaining + deliveryRemaining,
			})
			return
		}

		now := time.Now()
		res := db.Model(&models.Trip{}).
			Where("id = ? AND status = ?", trip.ID, models.TripStatusInProgress).
			Updates(map[string]interface{}{
				"status":         models.TripStatusCompleted,
				"actual_arrival": now,
				"updated_at":     now,
			})
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось завершить рейс"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Рейс нельзя завершить из текущего статуса", "status": trip.Status})
			return
		}

		trip.Status = models.TripStatusCompleted
		trip.ActualArrival = &now

		manifests.InvalidateTrip(context.Background(), trip.ID)
		ws.SendTripStatusUpdate(trip.DriverID, trip.ID, string(trip.Status))

		c.JSON(http.StatusOK, trip.ToResponse())
	}
}
