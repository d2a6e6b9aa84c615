package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"delivery-backend/internal/models"

	"gorm.io/gorm"
)

// NotificationService отправляет push-уведомления о событиях заказа
// через FCM. Ошибки доставки уведомлений не влияют на результат операции.
type NotificationService struct {
	serverKey string
}

type NotificationPayload struct {
	To           string                 `json:"to"`
	Notification NotificationContent    `json:"notification"`
	Data         map[string]interface{} `json:"data,omitempty"`
}

type NotificationContent struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func NewNotificationService() *NotificationService {
	return &NotificationService{
		serverKey: os.Getenv("FIREBASE_SERVER_KEY"),
	}
}

func (s *NotificationService) SendNotification(token string, title, body string, data map[string]interface{}) error {
	payload := NotificationPayload{
		To: token,
		Notification: NotificationContent{
			Title: title,
			Body:  body,
		},
		Data: data,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка при маршалинге данных: %v", err)
	}

	req, err := http.NewRequest("POST", "https://fcm.googleapis.com/fcm/send", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("ошибка при создании запроса: %v", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("key=%s", s.serverKey))
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка при отправке запроса: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("неуспешный статус ответа: %d", resp.StatusCode)
	}

	return nil
}

// NotifyUser отправляет уведомление пользователю по его FCM-токену из базы
func (s *NotificationService) NotifyUser(db *gorm.DB, userID uint, title, body string, data map[string]interface{}) {
	var user models.User
	if err := db.First(&user, userID).Error; err != nil || user.FCMToken == "" {
		return
	}
	if err := s.SendNotification(user.FCMToken, title, body, data); err != nil {
		log.Printf("Не удалось отправить уведомление пользователю %d: %v", userID, err)
	}
}

// NotifyOrderAccepted уведомляет компанию о принятии заказа водителем
func (s *NotificationService) NotifyOrderAccepted(db *gorm.DB, order *models.DeliveryOrder, trip *models.Trip) {
	s.NotifyUser(db, order.CompanyID,
		"Заказ принят",
		fmt.Sprintf("Заказ %s принят водителем, рейс на %s", order.OrderNumber, trip.TravelDate.Format("02.01.2006")),
		map[string]interface{}{
			"type":     "order_accepted",
			"order_id": order.ID,
			"trip_id":  trip.ID,
		})
}

// NotifyOrderCancelled уведомляет водителя рейса об отмене заказа
func (s *NotificationService) NotifyOrderCancelled(db *gorm.DB, order *models.DeliveryOrder) {
	if order.TripID == nil {
		return
	}
	var trip models.Trip
	if err := db.First(&trip, *order.TripID).Error; err != nil {
		return
	}
	s.NotifyUser(db, trip.DriverID,
		"Заказ отменен",
		fmt.Sprintf("Заказ %s снят с вашего рейса: %s", order.OrderNumber, order.CancellationReason),
		map[string]interface{}{
			"type":     "order_cancelled",
			"order_id": order.ID,
			"trip_id":  trip.ID,
		})
}
