package main

import (
	"context"
	"log"

	"quizduel/config"
	"quizduel/handlers"
	"quizduel/middleware"
	"quizduel/models"
	"quizduel/routes"
	"quizduel/services"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database models
	err = db.AutoMigrate(
		&models.User{},
		&models.Question{},
		&models.Game{},
		&models.GameRound{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)

	// Initialize services
	authService := services.NewAuthService(db, cfg.JWTSecret)
	questionService := services.NewQuestionService(db)
	gameService := services.NewGameService(db, redisClient, questionService)
	matchmaker := services.NewMatchmaker(gameService)

	// Initialize WebSocket hub and the matchmaking sweep
	hub := services.NewHub(gameService, matchmaker)
	go hub.Run()
	go matchmaker.Run(context.Background())

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	questionHandler := handlers.NewQuestionHandler(questionService)
	gameHandler := handlers.NewGameHandler(gameService, matchmaker)

	// Setup Gin router
	router := gin.Default()
	router.Use(middleware.CORS())

	// Setup routes
	routes.SetupRoutes(router, authHandler, questionHandler, gameHandler, hub, authService)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
