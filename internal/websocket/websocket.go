package websocket

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

// Константы для типов сообщений WebSocket
const (
	OrderStatusUpdateType = "ORDER_STATUS_UPDATE"
	LegStatusUpdateType   = "LEG_STATUS_UPDATE"
	TripStatusUpdateType  = "TRIP_STATUS_UPDATE"
)

// WebSocketMessage представляет формат сообщения WebSocket
type WebSocketMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketManager управляет всеми подключениями WebSocket
type WebSocketManager struct {
	clients       map[string]map[*websocket.Conn]bool
	clientsByUser map[uint]map[*websocket.Conn]bool
	register      chan *WebSocketClient
	unregister    chan *WebSocketClient
	broadcast     chan *WebSocketMessage
	mutex         sync.RWMutex
}

// WebSocketClient представляет клиентское соединение WebSocket
type WebSocketClient struct {
	conn     *websocket.Conn
	userID   uint
	clientID string
}

// Глобальный менеджер WebSocket
var wsManager = NewWebSocketManager()

// NewWebSocketManager создает новый менеджер WebSocket
func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		clients:       make(map[string]map[*websocket.Conn]bool),
		clientsByUser: make(map[uint]map[*websocket.Conn]bool),
		register:      make(chan *WebSocketClient),
		unregister:    make(chan *WebSocketClient),
		broadcast:     make(chan *WebSocketMessage),
		mutex:         sync.RWMutex{},
	}
}

// StartManager запускает глобальный менеджер WebSocket
func StartManager() {
	wsManager.Start()
}

// Start запускает обработку сообщений WebSocket
func (manager *WebSocketManager) Start() {
	log.Printf("Запуск WebSocket Manager")
	go func() {
		for {
			select {
			case client := <-manager.register:
				log.Printf("Регистрация нового клиента: ID=%s, userID=%v", client.clientID, client.userID)
				manager.mutex.Lock()
				// Регистрация по clientID
				if _, ok := manager.clients[client.clientID]; !ok {
					manager.clients[client.clientID] = make(map[*websocket.Conn]bool)
				}
				manager.clients[client.clientID][client.conn] = true

				// Регистрация по userID если авторизован
				if client.userID > 0 {
					if _, ok := manager.clientsByUser[client.userID]; !ok {
						manager.clientsByUser[client.userID] = make(map[*websocket.Conn]bool)
					}
					manager.clientsByUser[client.userID][client.conn] = true
				}
				manager.mutex.Unlock()

			case client := <-manager.unregister:
				log.Printf("Отмена регистрации клиента: ID=%s, userID=%v", client.clientID, client.userID)
				manager.mutex.Lock()
				// Удаление по clientID
				if _, ok := manager.clients[client.clientID]; ok {
					if _, exists := manager.clients[client.clientID][client.conn]; exists {
						delete(manager.clients[client.clientID], client.conn)
						client.conn.Close()
					}
					if len(manager.clients[client.clientID]) == 0 {
						delete(manager.clients, client.clientID)
					}
				}

				// Удаление по userID
				if client.userID > 0 {
					if _, ok := manager.clientsByUser[client.userID]; ok {
						if _, exists := manager.clientsByUser[client.userID][client.conn]; exists {
							delete(manager.clientsByUser[client.userID], client.conn)
						}
						if len(manager.clientsByUser[client.userID]) == 0 {
							delete(manager.clientsByUser, client.userID)
						}
					}
				}
				manager.mutex.Unlock()

			case message := <-manager.broadcast:
				// Широковещательная рассылка не реализована, т.к. обычно отправляем конкретным пользователям
				log.Printf("Получено сообщение для широковещательной рассылки: %v", message)
			}
		}
	}()
	log.Printf("WebSocket Manager успешно запущен")
}

// BroadcastToUser отправляет сообщение всем подключениям конкретного пользователя
func (manager *WebSocketManager) BroadcastToUser(userID uint, message *WebSocketMessage) {
	manager.mutex.RLock()
	defer manager.mutex.RUnlock()

	// Получаем соединения для указанного пользователя
	connections, exists := manager.clientsByUser[userID]
	if !exists || len(connections) == 0 {
		return
	}

	// Кодируем сообщение в JSON
	jsonMessage, err := json.Marshal(message)
	if err != nil {
		log.Printf("BroadcastToUser: Ошибка при кодировании сообщения: %v", err)
		return
	}

	// Отправляем сообщение по каждому соединению
	for conn := range connections {
		go func(c *websocket.Conn) {
			if err := c.WriteMessage(websocket.TextMessage, jsonMessage); err != nil {
				log.Printf("BroadcastToUser: Ошибка при отправке сообщения: %v", err)
				// Отключаем клиента при ошибке отправки
				manager.unregister <- &WebSocketClient{
					conn:   c,
					userID: userID,
				}
			}
		}(conn)
	}
}

// Handler обрабатывает подключения WebSocket
func Handler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Проверяем, что это действительно запрос на установление WebSocket соединения
		if c.GetHeader("Upgrade") != "websocket" {
			c.String(http.StatusBadRequest, "Требуется WebSocket соединение")
			return
		}

		// Получаем userID из контекста (если пользователь авторизован)
		userID, exists := c.Get("user_id")
		clientID := c.Query("client_id")

		// Если client_id не указан, используем userID в качестве clientID
		if clientID == "" && exists {
			clientID = fmt.Sprintf("user_%v", userID)
		} else if clientID == "" {
			clientID = fmt.Sprintf("anon_%d", time.Now().UnixNano())
		}

		// Настройка для обновления соединения
		wsUpgrader := websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Разрешаем подключения с любых источников
			},
		}

		// Обновляем соединение до WebSocket
		conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("Ошибка обновления соединения до WebSocket: %v", err)
			c.String(http.StatusInternalServerError, "Не удалось установить WebSocket соединение")
			return
		}

		// Создаем нового клиента
		client := &WebSocketClient{
			conn:     conn,
			clientID: clientID,
		}
		if exists {
			client.userID = userID.(uint)
		}

		// Регистрируем клиента
		wsManager.register <- client

		// Запускаем обработку сообщений
		go handleMessages(client)
	}
}

// handleMessages обрабатывает сообщения от клиента
func handleMessages(client *WebSocketClient) {
	defer func() {
		// Когда функция завершается, отменяем регистрацию клиента
		wsManager.unregister <- client
	}()

	// Читаем сообщения от клиента
	for {
		client.conn.SetReadDeadline(time.Now().Add(1 * time.Hour))

		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Ошибка при чтении сообщения от клиента %s: %v", client.clientID, err)
			}
			break
		}

		// Пытаемся разобрать сообщение как JSON
		var data map[string]interface{}
		if err := json.Unmarshal(message, &data); err != nil {
			continue
		}

		// Обрабатываем ping-сообщения
		if msgType, ok := data["type"].(string); ok && msgType == "ping" {
			pongMsg := map[string]interface{}{
				"type": "pong",
				"time": time.Now().Unix(),
			}
			pongJSON, _ := json.Marshal(pongMsg)
			if err := client.conn.WriteMessage(websocket.TextMessage, pongJSON); err != nil {
				log.Printf("Ошибка при отправке pong: %v", err)
			}
		}
	}
}

// SendOrderStatusUpdate отправляет обновление статуса заказа
func SendOrderStatusUpdate(userID uint, orderID uint, status string) {
	payload := map[string]interface{}{
		"order_id": orderID,
		"status":   status,
	}
	message := &WebSocketMessage{
		Type:    OrderStatusUpdateType,
		Payload: payload,
	}
	wsManager.BroadcastToUser(userID, message)
}

// SendLegStatusUpdate отправляет обновление статуса плеча
func SendLegStatusUpdate(userID uint, kind string, legID uint, status string) {
	payload := map[string]interface{}{
		"kind":   kind,
		"leg_id": legID,
		"status": status,
	}
	message := &WebSocketMessage{
		Type:    LegStatusUpdateType,
		Payload: payload,
	}
	wsManager.BroadcastToUser(userID, message)
}

// SendTripStatusUpdate отправляет обновление статуса рейса
func SendTripStatusUpdate(userID uint, tripID uint, status string) {
	payload := map[string]interface{}{
		"trip_id": tripID,
		"status":  status,
	}
	message := &WebSocketMessage{
		Type:    TripStatusUpdateType,
		Payload: payload,
	}
	wsManager.BroadcastToUser(userID, message)
}
