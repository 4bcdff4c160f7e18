package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"quizduel/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Rounds per duel and the advisory per-question clock shipped to clients.
const (
	QuestionsPerGame         = 5
	QuestionTimeLimitSeconds = 15
)

var (
	ErrGameUnavailable = errors.New("game no longer available")
	ErrGameNotActive   = errors.New("game not found or not active")
	ErrNotParticipant  = errors.New("you are not part of this game")
	ErrWrongRound      = errors.New("answer is for the wrong round")
	ErrAlreadyAnswered = errors.New("you already answered this round")
	ErrInvalidOption   = errors.New("selected option must be A, B, C or D")
)

type GameService struct {
	db        *gorm.DB
	redis     *redis.Client
	questions *QuestionService

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewGameService(db *gorm.DB, redisClient *redis.Client, questions *QuestionService) *GameService {
	return &GameService{
		db:        db,
		redis:     redisClient,
		questions: questions,
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockGame serializes all state transitions of one game. Two players'
// submissions for the same round interleave at the persistence layer
// otherwise; per-game locking plus the at-most-once answer guard keeps
// settlement deterministic.
func (s *GameService) lockGame(gameID string) func() {
	s.mu.Lock()
	l, ok := s.locks[gameID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[gameID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *GameService) releaseLock(gameID string) {
	s.mu.Lock()
	delete(s.locks, gameID)
	s.mu.Unlock()
}

// CreateGame opens a PENDING two-player game waiting for an opponent.
func (s *GameService) CreateGame(player1ID string) (*models.Game, error) {
	game := models.Game{
		Player1ID: player1ID,
		Status:    models.GamePending,
	}
	if err := s.db.Create(&game).Error; err != nil {
		return nil, err
	}
	if err := s.db.Preload("Player1").First(&game, "id = ?", game.ID).Error; err != nil {
		return nil, err
	}
	return &game, nil
}

// CreateSoloGame starts a single-player game immediately: no PENDING phase,
// rounds materialized up front. Nothing is persisted if the question pool
// cannot cover a full game.
func (s *GameService) CreateSoloGame(player1ID string, difficulty *string) (*models.Game, error) {
	questions, err := s.questions.SampleQuestions(QuestionsPerGame, SampleFilter{Difficulty: difficulty})
	if err != nil {
		return nil, err
	}

	game := models.Game{
		Player1ID:  player1ID,
		Status:     models.GameActive,
		IsSolo:     true,
		Difficulty: difficulty,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&game).Error; err != nil {
			return err
		}
		return createRounds(tx, game.ID, questions)
	})
	if err != nil {
		return nil, err
	}

	full, err := s.loadGame(game.ID)
	if err != nil {
		return nil, err
	}
	s.storeSnapshot(full)
	return full, nil
}

// FindOpenGame returns the oldest joinable game created by someone else,
// or nil when there is none.
func (s *GameService) FindOpenGame(excludePlayerID string) (*models.Game, error) {
	var game models.Game
	err := s.db.Where("status = ? AND player2_id IS NULL AND is_solo = ? AND player1_id <> ?",
		models.GamePending, false, excludePlayerID).
		Order("created_at ASC").
		Preload("Player1").
		First(&game).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// JoinGame seats player2 and activates the game. Questions are sampled only
// if the game has no rounds yet: the question set for a game is decided
// exactly once, so a rejoin race reuses the existing snapshot.
func (s *GameService) JoinGame(gameID, player2ID string) (*models.Game, error) {
	unlock := s.lockGame(gameID)
	defer unlock()

	game, err := s.loadGame(gameID)
	if err != nil {
		return nil, ErrGameUnavailable
	}
	if game.Status != models.GamePending || game.Player2ID != nil || game.IsSolo {
		return nil, ErrGameUnavailable
	}
	if game.Player1ID == player2ID {
		return nil, errors.New("cannot join your own game")
	}

	var questions []models.Question
	if len(game.Rounds) == 0 {
		questions, err = s.questions.SampleQuestions(QuestionsPerGame, SampleFilter{})
		if err != nil {
			if errors.Is(err, ErrNotEnoughQuestions) {
				// Never leave a half-initialized game joinable.
				if cancelErr := s.db.Model(game).Update("status", models.GameCancelled).Error; cancelErr != nil {
					log.Printf("Failed to cancel game %s after sampling failure: %v", gameID, cancelErr)
				}
			}
			return nil, err
		}
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"player2_id":           player2ID,
			"status":               models.GameActive,
			"current_question_idx": 0,
		}
		if err := tx.Model(&models.Game{}).Where("id = ?", gameID).Updates(updates).Error; err != nil {
			return err
		}
		if len(game.Rounds) == 0 {
			return createRounds(tx, gameID, questions)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	full, err := s.loadGame(gameID)
	if err != nil {
		return nil, err
	}
	s.storeSnapshot(full)
	return full, nil
}

func createRounds(tx *gorm.DB, gameID string, questions []models.Question) error {
	for i, q := range questions {
		round := models.GameRound{
			GameID:        gameID,
			RoundNumber:   i + 1,
			QuestionID:    q.ID,
			CorrectOption: q.CorrectOption,
		}
		if err := tx.Create(&round).Error; err != nil {
			return err
		}
	}
	return nil
}

// SubmitResult carries everything the transport needs after an answer:
// the updated game, the absolute round result (nil until the round
// settles), and the prefetched next question when the game continues.
type SubmitResult struct {
	Game         *models.Game
	Result       *RoundResult
	NextQuestion *models.Question
	Settled      bool
	WasTimeout   bool
}

// SubmitAnswer records one player's choice for the current round and, when
// the settlement condition is met, reconciles the round: grading, exclusive
// scoring, pointer advance or game completion. A nil selectedOption is a
// timeout and forces settlement regardless of the opponent's state.
func (s *GameService) SubmitAnswer(gameID, userID string, roundNumber int, selectedOption *string) (*SubmitResult, error) {
	unlock := s.lockGame(gameID)
	defer unlock()

	isTimeout := selectedOption == nil
	if !isTimeout && !validOption(*selectedOption) {
		return nil, ErrInvalidOption
	}

	game, err := s.loadGame(gameID)
	if err != nil || game.Status != models.GameActive {
		return nil, ErrGameNotActive
	}
	if !game.HasPlayer(userID) {
		return nil, ErrNotParticipant
	}
	// roundNumber is 1-based, currentQuestionIdx 0-based. Stale and
	// out-of-order submissions die here.
	if roundNumber-1 != game.CurrentQuestionIdx {
		return nil, ErrWrongRound
	}

	var round *models.GameRound
	for i := range game.Rounds {
		if game.Rounds[i].RoundNumber == roundNumber {
			round = &game.Rounds[i]
			break
		}
	}
	if round == nil {
		return nil, errors.New("round not found")
	}

	isPlayer1 := game.Player1ID == userID

	state := round.Player2State
	if isPlayer1 {
		state = round.Player1State
	}
	if state != models.AnswerPending {
		return nil, ErrAlreadyAnswered
	}

	correct := !isTimeout && *selectedOption == round.CorrectOption
	newState := models.AnswerGiven
	if isTimeout {
		newState = models.AnswerTimedOut
	}

	var updates map[string]interface{}
	if isPlayer1 {
		round.Player1State = newState
		round.Player1Option = selectedOption
		round.Player1Correct = &correct
		updates = map[string]interface{}{
			"player1_state":   newState,
			"player1_option":  selectedOption,
			"player1_correct": correct,
		}
	} else {
		round.Player2State = newState
		round.Player2Option = selectedOption
		round.Player2Correct = &correct
		updates = map[string]interface{}{
			"player2_state":   newState,
			"player2_option":  selectedOption,
			"player2_correct": correct,
		}
	}
	if err := s.db.Model(&models.GameRound{}).Where("id = ?", round.ID).Updates(updates).Error; err != nil {
		return nil, err
	}

	settled := s.isSettled(game, round, isTimeout)
	result := &SubmitResult{Game: game, Settled: settled, WasTimeout: isTimeout}
	if !settled {
		return result, nil
	}

	roundResult := &RoundResult{
		GameID:              game.ID,
		RoundNumber:         round.RoundNumber,
		QuestionID:          round.QuestionID,
		Player1Answer:       round.Player1Option,
		Player2Answer:       round.Player2Option,
		CorrectOption:       round.CorrectOption,
		Player1Correct:      round.Player1Correct,
		Player2Correct:      round.Player2Correct,
		Player1CurrentScore: game.Player1Score,
		Player2CurrentScore: game.Player2Score,
	}

	p1Delta, p2Delta := roundScores(game, round)
	newP1 := game.Player1Score + p1Delta
	newP2 := game.Player2Score + p2Delta
	roundResult.Player1CurrentScore = newP1
	roundResult.Player2CurrentScore = newP2

	gameUpdates := map[string]interface{}{
		"player1_score": newP1,
		"player2_score": newP2,
	}

	var nextQuestion *models.Question
	if game.CurrentQuestionIdx+1 < len(game.Rounds) {
		gameUpdates["current_question_idx"] = game.CurrentQuestionIdx + 1
		next := game.Rounds[game.CurrentQuestionIdx+1]
		nextQuestion = next.Question
	} else {
		gameUpdates["status"] = models.GameFinished
		if winner := finalWinner(game, newP1, newP2); winner != nil {
			gameUpdates["winner_id"] = *winner
		}
		if err := s.creditLifetimeScores(game, newP1, newP2); err != nil {
			log.Printf("Failed to credit lifetime scores for game %s: %v", game.ID, err)
		}
	}

	if err := s.db.Model(&models.Game{}).Where("id = ?", game.ID).Updates(gameUpdates).Error; err != nil {
		return nil, err
	}

	updated, err := s.loadGame(gameID)
	if err != nil {
		return nil, err
	}
	s.storeSnapshot(updated)
	if updated.Status.Terminal() {
		s.releaseLock(gameID)
	}

	result.Game = updated
	result.Result = roundResult
	result.NextQuestion = nextQuestion
	return result, nil
}

// isSettled applies the two settlement conditions: both slots written, or a
// timeout submission, which never waits on the other player. Solo games
// settle on the lone player's submission.
func (s *GameService) isSettled(game *models.Game, round *models.GameRound, isTimeout bool) bool {
	if game.IsSolo {
		return round.Player1State != models.AnswerPending
	}
	if isTimeout {
		return true
	}
	return round.Player1State != models.AnswerPending && round.Player2State != models.AnswerPending
}

// roundScores awards at most one point per round: to the single player who
// was correct while the other was not. Solo games score the lone player on
// correctness alone.
func roundScores(game *models.Game, round *models.GameRound) (p1, p2 int) {
	p1Correct := round.Player1Correct != nil && *round.Player1Correct
	p2Correct := round.Player2Correct != nil && *round.Player2Correct
	if game.IsSolo {
		if p1Correct {
			return 1, 0
		}
		return 0, 0
	}
	switch {
	case p1Correct && !p2Correct:
		return 1, 0
	case p2Correct && !p1Correct:
		return 0, 1
	default:
		return 0, 0
	}
}

func finalWinner(game *models.Game, p1Score, p2Score int) *string {
	if game.IsSolo {
		p1 := game.Player1ID
		return &p1
	}
	if p1Score > p2Score {
		p1 := game.Player1ID
		return &p1
	}
	if p2Score > p1Score {
		return game.Player2ID
	}
	return nil // tie
}

func (s *GameService) creditLifetimeScores(game *models.Game, p1Score, p2Score int) error {
	if err := s.db.Model(&models.User{}).Where("id = ?", game.Player1ID).
		Update("score", gorm.Expr("score + ?", p1Score)).Error; err != nil {
		return err
	}
	if game.Player2ID != nil {
		return s.db.Model(&models.User{}).Where("id = ?", *game.Player2ID).
			Update("score", gorm.Expr("score + ?", p2Score)).Error
	}
	return nil
}

// ForfeitGame cancels a PENDING or ACTIVE game, awarding the win to the
// opponent when both seats are filled. Forfeiting a game that is already
// terminal is a no-op: the disconnect path may race with an explicit leave.
func (s *GameService) ForfeitGame(gameID, forfeitingPlayerID string) (*models.Game, error) {
	unlock := s.lockGame(gameID)
	defer unlock()

	game, err := s.loadGame(gameID)
	if err != nil {
		return nil, errors.New("game not found")
	}
	if game.Status.Terminal() {
		return game, nil
	}

	updates := map[string]interface{}{
		"status": models.GameCancelled,
	}
	if game.Player2ID != nil {
		if game.Player1ID == forfeitingPlayerID {
			updates["winner_id"] = *game.Player2ID
		} else if *game.Player2ID == forfeitingPlayerID {
			updates["winner_id"] = game.Player1ID
		}
	}

	if err := s.db.Model(&models.Game{}).Where("id = ?", gameID).Updates(updates).Error; err != nil {
		return nil, err
	}

	updated, err := s.loadGame(gameID)
	if err != nil {
		return nil, err
	}
	s.storeSnapshot(updated)
	s.releaseLock(gameID)
	return updated, nil
}

// GetGame loads a game with players and ordered rounds.
func (s *GameService) GetGame(gameID string) (*models.Game, error) {
	game, err := s.loadGame(gameID)
	if err != nil {
		return nil, errors.New("game not found")
	}
	return game, nil
}

// GetGameDetails returns the viewer's self-relative game view. Correct
// options stay hidden until the game is over.
func (s *GameService) GetGameDetails(gameID, viewerID string) (*models.Game, error) {
	game, err := s.loadGame(gameID)
	if err != nil {
		return nil, errors.New("game not found")
	}
	if !game.HasPlayer(viewerID) {
		return nil, ErrNotParticipant
	}
	return WireGame(game, viewerID), nil
}

// RecentGames lists a user's latest concluded games, newest first.
func (s *GameService) RecentGames(userID string, limit int) ([]models.Game, error) {
	if limit <= 0 || limit > 50 {
		limit = 5
	}
	var games []models.Game
	err := s.db.Where("(player1_id = ? OR player2_id = ?) AND status IN ?",
		userID, userID, []models.GameStatus{models.GameFinished, models.GameCancelled}).
		Order("updated_at DESC").
		Limit(limit).
		Preload("Player1").Preload("Player2").Preload("Winner").
		Find(&games).Error
	return games, err
}

// GamesInProgressFor returns every non-terminal game the user participates
// in; the disconnect handler forfeits each of them.
func (s *GameService) GamesInProgressFor(userID string) ([]models.Game, error) {
	var games []models.Game
	err := s.db.Where("(player1_id = ? OR player2_id = ?) AND status IN ?",
		userID, userID, []models.GameStatus{models.GamePending, models.GameActive}).
		Find(&games).Error
	return games, err
}

// CancelPendingGamesFor cancels all open games created by the user, so a new
// search never leaves duplicate listings behind.
func (s *GameService) CancelPendingGamesFor(userID string) (int64, error) {
	res := s.db.Model(&models.Game{}).
		Where("player1_id = ? AND status = ? AND player2_id IS NULL", userID, models.GamePending).
		Update("status", models.GameCancelled)
	return res.RowsAffected, res.Error
}

// CancelStaleGames cancels open games nobody joined within the window.
func (s *GameService) CancelStaleGames(window time.Duration) (int64, error) {
	cutoff := time.Now().Add(-window)
	res := s.db.Model(&models.Game{}).
		Where("status = ? AND player2_id IS NULL AND created_at < ?", models.GamePending, cutoff).
		Update("status", models.GameCancelled)
	return res.RowsAffected, res.Error
}

func (s *GameService) loadGame(gameID string) (*models.Game, error) {
	var game models.Game
	err := s.db.Preload("Player1").Preload("Player2").Preload("Winner").
		Preload("Rounds", func(db *gorm.DB) *gorm.DB {
			return db.Order("round_number ASC")
		}).
		Preload("Rounds.Question").
		First(&game, "id = ?", gameID).Error
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// GameSnapshot is the lightweight state cached in Redis for reconnect sync.
type GameSnapshot struct {
	GameID             string            `json:"game_id"`
	Status             models.GameStatus `json:"status"`
	CurrentQuestionIdx int               `json:"current_question_idx"`
	Player1Score       int               `json:"player1_score"`
	Player2Score       int               `json:"player2_score"`
	TotalRounds        int               `json:"total_rounds"`
}

func (s *GameService) storeSnapshot(game *models.Game) {
	if s.redis == nil {
		return
	}
	snapshot := GameSnapshot{
		GameID:             game.ID,
		Status:             game.Status,
		CurrentQuestionIdx: game.CurrentQuestionIdx,
		Player1Score:       game.Player1Score,
		Player2Score:       game.Player2Score,
		TotalRounds:        len(game.Rounds),
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("Failed to marshal snapshot for game %s: %v", game.ID, err)
		return
	}
	if err := s.redis.Set(context.Background(), "game:"+game.ID, data, 2*time.Hour).Err(); err != nil {
		log.Printf("Failed to store snapshot for game %s in Redis: %v", game.ID, err)
	}
}

// Snapshot returns the cached state for a game, falling back to the
// database when Redis has nothing. Losing the cache never loses game state.
func (s *GameService) Snapshot(gameID string) (*GameSnapshot, error) {
	if s.redis != nil {
		data, err := s.redis.Get(context.Background(), "game:"+gameID).Result()
		if err == nil {
			var snapshot GameSnapshot
			if err := json.Unmarshal([]byte(data), &snapshot); err == nil {
				return &snapshot, nil
			}
		} else if err != redis.Nil {
			log.Printf("Redis error reading snapshot for game %s: %v", gameID, err)
		}
	}

	game, err := s.loadGame(gameID)
	if err != nil {
		return nil, fmt.Errorf("game not found: %w", err)
	}
	snapshot := &GameSnapshot{
		GameID:             game.ID,
		Status:             game.Status,
		CurrentQuestionIdx: game.CurrentQuestionIdx,
		Player1Score:       game.Player1Score,
		Player2Score:       game.Player2Score,
		TotalRounds:        len(game.Rounds),
	}
	s.storeSnapshot(game)
	return snapshot, nil
}

func validOption(option string) bool {
	switch option {
	case "A", "B", "C", "D":
		return true
	}
	return false
}
