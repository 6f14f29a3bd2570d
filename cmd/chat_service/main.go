package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"travel_chat_service/internal/chat/app"
	"travel_chat_service/internal/chat/repository"
	"travel_chat_service/internal/chat/router"
	"travel_chat_service/pkg/config"
	"travel_chat_service/pkg/database"
	"travel_chat_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)

	// Mongo 連線 (rooms, messages)
	ctx := context.Background()
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.Mongo.User, cfg.Mongo.Password, cfg.Mongo.Host, cfg.Mongo.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.Mongo.RetryCount,
			RetryInterval: time.Duration(cfg.Mongo.RetryInterval),
		},
		cfg.Mongo.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s]", uri)),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	// Redis 連線 (pub/sub + typing state)
	redisClient, err := database.NewRedisClient(database.RedisConnection{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.RedisDB,
	})
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}

	roomRepo := repository.NewMongoRoomRepository(mongo.Database)
	msgRepo := repository.NewMongoMessageRepository(mongo.Database)
	typingRepo := repository.NewRedisTypingRepository(redisClient)
	bus := repository.NewRedisPubSub(redisClient)

	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	chatHandler := app.NewChatWebsocketHandler(roomRepo, msgRepo, typingRepo, bus)
	chatHandler.SetTypingWindows(
		time.Duration(cfg.Typing.DebounceMS)*time.Millisecond,
		time.Duration(cfg.Typing.StaleMS)*time.Millisecond,
	)
	router.RegisterRoutes(r, chatHandler)

	port := ":" + cfg.Port
	logger.Log.Info(fmt.Sprintf("Chat Service listening on %s", port))
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}
