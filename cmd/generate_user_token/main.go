package main

import (
	"flag"
	"fmt"
	"log"

	"delivery-backend/internal/utils"

	"github.com/joho/godotenv"
)

func main() {
	userID := flag.Uint("user", 0, "ID пользователя")
	role := flag.String("role", "company", "Роль пользователя: company или driver")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Файл .env не найден, используем переменные окружения")
	}

	if *userID == 0 {
		log.Fatal("Укажите ID пользователя флагом -user")
	}
	if *role != "company" && *role != "driver" {
		log.Fatalf("Неизвестная роль: %s", *role)
	}

	tokenString, err := utils.GenerateJWT(uint(*userID), *role)
	if err != nil {
		log.Fatalf("Ошибка генерации токена: %v", err)
	}

	fmt.Printf("Generated token for user %d (%s): %s\n", *userID, *role, tokenString)
}
