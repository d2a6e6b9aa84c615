package handlers

import (
	"net/http"
	"strconv"

	"delivery-backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CreateRouteRequest описывает запрос на создание маршрута
type CreateRouteRequest struct {
	Name     string `json:"name" binding:"required"`
	FromCity string `json:"from_city" binding:"required"`
	ToCity   string `json:"to_city" binding:"required"`
}

// CreateRoute создает новый маршрут (только администратор)
func CreateRoute(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRouteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных: " + err.Error()})
			return
		}

		route := models.Route{
			Name:     req.Name,
			FromCity: req.FromCity,
			ToCity:   req.ToCity,
		}
		if err := db.Create(&route).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось создать маршрут"})
			return
		}

		c.JSON(http.StatusCreated, models.RouteResponse{
			ID:       route.ID,
			Name:     route.Name,
			FromCity: route.FromCity,
			ToCity:   route.ToCity,
		})
	}
}

// GetRoutes возвращает список всех маршрутов
func GetRoutes(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var routes []models.Route
		if err := db.Order("name ASC").Find(&routes).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось получить список маршрутов"})
			return
		}

		response := make([]models.RouteResponse, 0, len(routes))
		for _, route := range routes {
			response = append(response, models.RouteResponse{
				ID:       route.ID,
				Name:     route.Name,
				FromCity: route.FromCity,
				ToCity:   route.ToCity,
			})
		}
		c.JSON(http.StatusOK, response)
	}
}

// DeleteRoute удаляет маршрут. Маршрут с заказами или профилями
// удалить нельзя: на него ссылаются исторические данные.
func DeleteRoute(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		routeID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный ID маршрута"})
			return
		}

		var route models.Route
		if err := db.First(&route, routeID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Маршрут не найден"})
			return
		}

		var orderCount, profileCount int64
		if err := db.Model(&models.DeliveryOrder{}).
			Where("route_id = ?", routeID).Count(&orderCount).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось проверить заказы маршрута"})
			return
		}
		if err := db.Model(&models.DriverRouteProfile{}).
			Where("route_id = ?", routeID).Count(&profileCount).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось проверить профили маршрута"})
			return
		}
		if orderCount > 0 || profileCount > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Маршрут используется заказами или профилями водителей"})
			return
		}

		if err := db.Delete(&route).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось удалить маршрут"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Маршрут удален"})
	}
}
