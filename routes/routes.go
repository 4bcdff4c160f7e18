package routes

import (
	"log"
	"net/http"

	"quizduel/handlers"
	"quizduel/middleware"
	"quizduel/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	questionHandler *handlers.QuestionHandler,
	gameHandler *handlers.GameHandler,
	hub *services.Hub,
	authService *services.AuthService,
) {
	api := router.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.JWTAuth(authService))
		{
			protected.GET("/auth/profile", authHandler.GetProfile)
			protected.GET("/users/leaderboard", authHandler.Leaderboard)

			questions := protected.Group("/questions")
			{
				questions.GET("", questionHandler.ListQuestions)
				questions.POST("", questionHandler.CreateQuestion)
				questions.GET("/random", questionHandler.SampleQuestions)
				questions.GET("/:id", questionHandler.GetQuestion)
				questions.PUT("/:id", questionHandler.UpdateQuestion)
				questions.DELETE("/:id", questionHandler.DeleteQuestion)
			}

			games := protected.Group("/games")
			{
				games.POST("", gameHandler.CreateGame)
				games.POST("/join", gameHandler.FindAndJoinGame)
				games.POST("/solo", gameHandler.CreateSoloGame)
				// /recent must precede /:id so it is not read as an id.
				games.GET("/recent", gameHandler.GetRecentGames)
				games.GET("/:id", gameHandler.GetGameDetails)
				games.POST("/:id/answer", gameHandler.SubmitAnswer)
			}
		}
	}

	// WebSocket endpoint; the token travels as a query parameter because
	// browsers cannot set headers on websocket upgrades.
	router.GET("/ws", func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		userID, err := authService.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for user %s: %v", userID, err)
			return
		}

		log.Printf("WebSocket connection established for user %s", userID)
		hub.RegisterClient(conn, userID)
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
