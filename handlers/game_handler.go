package handlers

import (
	"errors"
	"net/http"

	"quizduel/middleware"
	"quizduel/services"

	"github.com/gin-gonic/gin"
)

type GameHandler struct {
	gameService *services.GameService
	matchmaker  *services.Matchmaker
}

func NewGameHandler(gameService *services.GameService, matchmaker *services.Matchmaker) *GameHandler {
	return &GameHandler{gameService: gameService, matchmaker: matchmaker}
}

// CreateGame opens a PENDING game without searching for an opponent.
func (h *GameHandler) CreateGame(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	game, err := h.gameService.CreateGame(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create game"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"game": game})
}

// FindAndJoinGame runs the matchmaking search over HTTP; the realtime flow
// goes through the hub's find_game event instead.
func (h *GameHandler) FindAndJoinGame(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	result, err := h.matchmaker.FindOrCreate(userID)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrNotEnoughQuestions) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	game := result.Game
	if !result.Waiting {
		game = services.WireGame(game, userID)
	}
	c.JSON(http.StatusOK, gin.H{"game": game, "waiting": result.Waiting})
}

type createSoloGameRequest struct {
	Difficulty *string `json:"difficulty" binding:"omitempty,oneof=EASY MEDIUM HARD"`
}

func (h *GameHandler) CreateSoloGame(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req createSoloGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	game, err := h.gameService.CreateSoloGame(userID, req.Difficulty)
	if err != nil {
		if errors.Is(err, services.ErrNotEnoughQuestions) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create solo game"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"game": services.WireGame(game, userID), "is_solo": true})
}

func (h *GameHandler) GetGameDetails(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	game, err := h.gameService.GetGameDetails(c.Param("id"), userID)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, services.ErrNotParticipant) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"game": game})
}

func (h *GameHandler) GetRecentGames(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	games, err := h.gameService.RecentGames(userID, intQuery(c, "limit", 5))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load recent games"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"recent_games": games})
}

type submitAnswerRequest struct {
	RoundNumber    int     `json:"round_number" binding:"required,min=1"`
	SelectedOption *string `json:"selected_option"` // null means timeout
}

// SubmitAnswer is the HTTP variant of the answer protocol, used by solo
// games and as a fallback for duels.
func (h *GameHandler) SubmitAnswer(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.gameService.SubmitAnswer(c.Param("id"), userID, req.RoundNumber, req.SelectedOption)
	if err != nil {
		c.JSON(answerErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	response := gin.H{
		"game":    services.WireGame(result.Game, userID),
		"settled": result.Settled,
	}
	if result.Settled {
		response["round_result"] = result.Result.SelfRelative(result.Game, userID)
		if result.NextQuestion != nil {
			response["next_question"] = result.NextQuestion.Sanitized()
		}
	}

	c.JSON(http.StatusOK, response)
}

func answerErrorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, services.ErrGameNotActive):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}
