package handlers

import (
	"context"
	"net/http"
	"strconv"

	"delivery-backend/internal/models"
	"delivery-backend/internal/services"
	ws "delivery-backend/internal/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AdvanceLegRequest описывает запрос на продвижение статуса плеча
type AdvanceLegRequest struct {
	Kind   string `json:"kind" binding:"required"`   // pickup или delivery
	Status string `json:"status" binding:"required"` // Целевой статус
}

// AdvanceLeg продвигает плечо по машине состояний: только вперед,
// без возвратов. Плечо доставки нельзя начать до завершения забора.
func AdvanceLeg(db *gorm.DB, allocator *services.AllocationService, manifests *services.ManifestService) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.MustGet("user_id").(uint)

		legID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный ID плеча"})
			return
		}

		var req AdvanceLegRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных: " + err.Error()})
			return
		}

		result, err := allocator.AdvanceLeg(driverID, req.Kind, uint(legID), models.LegStatus(req.Status))
		if err != nil {
			respondAdvanceError(c, err)
			return
		}

		response := gin.H{
			"kind":         result.Kind,
			"order_status": result.OrderStatus,
		}

		var tripID uint
		var orderID uint
		var legStatus models.LegStatus
		if result.PickupLeg != nil {
			response["pickup_leg"] = result.PickupLeg.ToResponse()
			tripID = result.PickupLeg.TripID
			orderID = result.PickupLeg.DeliveryOrderID
			legStatus = result.PickupLeg.Status
		}
		if result.DeliveryLeg != nil {
			response["delivery_leg"] = result.DeliveryLeg.ToResponse()
			tripID = result.DeliveryLeg.TripID
			orderID = result.DeliveryLeg.DeliveryOrderID
			legStatus = result.DeliveryLeg.Status
		}

		manifests.InvalidateTrip(context.Background(), tripID)

		// Уведомляем компанию о движении ее заказа
		var order models.DeliveryOrder
		if err := db.First(&order, orderID).Error; err == nil {
			ws.SendLegStatusUpdate(order.CompanyID, result.Kind, uint(legID), string(legStatus))
			ws.SendOrderStatusUpdate(order.CompanyID, order.ID, string(result.OrderStatus))
		}

		c.JSON(http.StatusOK, response)
	}
}

// respondAdvanceError переводит ошибки продвижения плеча в HTTP-ответы.
// Недопустимый переход — конфликт состояния, а не ошибка формата запроса.
func respondAdvanceError(c *gin.Context, err error) {
	if ve, ok := services.IsValidation(err); ok {
		switch ve.Reason {
		case services.ReasonIllegalTransition, services.ReasonPickupNotCompleted:
			c.JSON(http.StatusConflict, gin.H{"error": ve.Message, "reason": ve.Reason})
			return
		case services.ReasonForbidden:
			c.JSON(http.StatusForbidden, gin.H{"error": ve.Message, "reason": ve.Reason})
			return
		}
	}
	respondAllocationError(c, err)
}
