package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"delivery-backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ProfileRequest описывает запрос на создание или изменение профиля маршрута
type ProfileRequest struct {
	RouteID                   uint    `json:"route_id" binding:"required"`
	DaysOfWeek                string  `json:"days_of_week" binding:"required"` // Номера дней через запятую, 0 = воскресенье
	DepartureTime             string  `json:"departure_time"`
	ArrivalTime               string  `json:"arrival_time"`
	MaxPackages               int     `json:"max_packages" binding:"required,gt=0"`
	MaxWeight                 float64 `json:"max_weight" binding:"required,gt=0"`
	AcceptsMultiplePickups    *bool   `json:"accepts_multiple_pickups"`
	AcceptsMultipleDeliveries *bool   `json:"accepts_multiple_deliveries"`
}

// validateProfileRequest проверяет формат дней недели и времени
func validateProfileRequest(req *ProfileRequest) string {
	for _, part := range strings.Split(req.DaysOfWeek, ",") {
		day, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || day < 0 || day > 6 {
			return "Дни недели — номера от 0 (воскресенье) до 6 через запятую"
		}
	}
	for _, hhmm := range []string{req.DepartureTime, req.ArrivalTime} {
		if hhmm == "" {
			continue
		}
		if _, err := time.Parse("15:04", hhmm); err != nil {
			return "Время указывается в формате HH:MM"
		}
	}
	return ""
}

// CreateProfile создает профиль водителя по маршруту. Один активный
// профиль на пару (водитель, маршрут): повторный запрос отклоняется.
func CreateProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.MustGet("user_id").(uint)

		var req ProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных: " + err.Error()})
			return
		}
		if msg := validateProfileRequest(&req); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		var route models.Route
		if err := db.First(&route, req.RouteID).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Маршрут не найден"})
			return
		}

		var existing int64
		if err := db.Model(&models.DriverRouteProfile{}).
			Where("driver_id = ? AND route_id = ? AND active = ?", driverID, req.RouteID, true).
			Count(&existing).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось проверить профили"})
			return
		}
		if existing > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Активный профиль по этому маршруту уже существует"})
			return
		}

		profile := models.DriverRouteProfile{
			DriverID:                  driverID,
			RouteID:                   req.RouteID,
			DaysOfWeek:                req.DaysOfWeek,
			DepartureTime:             req.DepartureTime,
			ArrivalTime:               req.ArrivalTime,
			MaxPackages:               req.MaxPackages,
			MaxWeight:                 req.MaxWeight,
			AcceptsMultiplePickups:    true,
			AcceptsMultipleDeliveries: true,
			Active:                    true,
		}
		if req.AcceptsMultiplePickups != nil {
			profile.AcceptsMultiplePickups = *req.AcceptsMultiplePickups
		}
		if req.AcceptsMultipleDeliveries != nil {
			profile.AcceptsMultipleDeliveries = *req.AcceptsMultipleDeliveries
		}

		if err := db.Create(&profile).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось создать профиль"})
			return
		}

		c.JSON(http.StatusCreated, profileToResponse(&profile, &route))
	}
}

// GetMyProfiles возвращает профили текущего водителя
func GetMyProfiles(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.MustGet("user_id").(uint)

		var profiles []models.DriverRouteProfile
		if err := db.Preload("Route").
			Where("driver_id = ?", driverID).
			Order("created_at DESC").
			Find(&profiles).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось получить профили"})
			return
		}

		response := make([]models.DriverRouteProfileResponse, 0, len(profiles))
		for i := range profiles {
			response = append(response, profileToResponse(&profiles[i], &profiles[i].Route))
		}
		c.JSON(http.StatusOK, response)
	}
}

// UpdateProfile изменяет профиль водителя. Уже созданные рейсы сохраняют
// потолок вместимости, скопированный при создании: изменение профиля
// влияет только на будущие рейсы.
func UpdateProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.MustGet("user_id").(uint)

		profileID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный ID профиля"})
			return
		}

		var profile models.DriverRouteProfile
		if err := db.Preload("Route").First(&profile, profileID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Профиль не найден"})
			return
		}
		if profile.DriverID != driverID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Нет доступа к профилю"})
			return
		}

		var req ProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат данных: " + err.Error()})
			return
		}
		if msg := validateProfileRequest(&req); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		profile.DaysOfWeek = req.DaysOfWeek
		profile.DepartureTime = req.DepartureTime
		profile.ArrivalTime = req.ArrivalTime
		profile.MaxPackages = req.MaxPackages
		profile.MaxWeight = req.MaxWeight
		if req.AcceptsMultiplePickups != nil {
			profile.AcceptsMultiplePickups = *req.AcceptsMultiplePickups
		}
		if req.AcceptsMultipleDeliveries != nil {
			profile.AcceptsMultipleDeliveries = *req.AcceptsMultipleDeliveries
		}

		if err := db.Save(&profile).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось сохранить профиль"})
			return
		}

		c.JSON(http.StatusOK, profileToResponse(&profile, &profile.Route))
	}
}

// DeactivateProfile деактивирует профиль: новые рейсы по нему больше
// не создаются, существующие рейсы продолжают выполняться
func DeactivateProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID := c.MustGet("user_id").(uint)

		profileID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный ID профиля"})
			return
		}

		var profile models.DriverRouteProfile
		if err := db.First(&profile, profileID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Профиль не найден"})
			return
		}
		if profile.DriverID != driverID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Нет доступа к профилю"})
			return
		}

		if err := db.Model(&profile).Update("active", false).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Не удалось деактивировать профиль"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Профиль деактивирован"})
	}
}

func profileToResponse(p *models.DriverRouteProfile, route *models.Route) models.DriverRouteProfileResponse {
	return models.DriverRouteProfileResponse{
		ID:                        p.ID,
		DriverID:                  p.DriverID,
		RouteID:                   p.RouteID,
		RouteName:                 route.Name,
		DaysOfWeek:                p.DaysOfWeek,
		DepartureTime:             p.DepartureTime,
		ArrivalTime:               p.ArrivalTime,
		MaxPackages:               p.MaxPackages,
		MaxWeight:                 p.MaxWeight,
		AcceptsMultiplePickups:    p.AcceptsMultiplePickups,
		AcceptsMultipleDeliveries: p.AcceptsMultipleDeliveries,
		Active:                    p.Active,
	}
}
