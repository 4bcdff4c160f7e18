package services

import (
	"fmt"
	"testing"

	"quizduel/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Question{},
		&models.Game{},
		&models.GameRound{},
	)
	if err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func newTestGameService(t *testing.T) (*GameService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	questions := NewQuestionService(db)
	return NewGameService(db, nil, questions), db
}

func createTestUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	user := models.User{
		Name:     name,
		Email:    name + "@example.com",
		Password: "irrelevant-hash",
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return &user
}

// seedQuestions inserts n questions, all with correct option "A".
func seedQuestions(t *testing.T, db *gorm.DB, n int, difficulty string) []models.Question {
	t.Helper()
	questions := make([]models.Question, n)
	for i := 0; i < n; i++ {
		q := models.Question{
			Text:          fmt.Sprintf("Question %s #%d", difficulty, i+1),
			OptionA:       "right",
			OptionB:       "wrong b",
			OptionC:       "wrong c",
			OptionD:       "wrong d",
			CorrectOption: "A",
		}
		if difficulty != "" {
			d := difficulty
			q.Difficulty = &d
		}
		if err := db.Create(&q).Error; err != nil {
			t.Fatalf("seed question %d: %v", i, err)
		}
		questions[i] = q
	}
	return questions
}

func strPtr(s string) *string {
	return &s
}

// answer submits on behalf of a player and fails the test on error.
func answer(t *testing.T, svc *GameService, gameID, userID string, round int, option *string) *SubmitResult {
	t.Helper()
	result, err := svc.SubmitAnswer(gameID, userID, round, option)
	if err != nil {
		t.Fatalf("submit answer round %d for %s: %v", round, userID, err)
	}
	return result
}

// startDuel seeds users and questions, then creates and joins a game.
func startDuel(t *testing.T, svc *GameService, db *gorm.DB) (*models.Game, *models.User, *models.User) {
	t.Helper()
	p1 := createTestUser(t, db, "alice")
	p2 := createTestUser(t, db, "bob")
	seedQuestions(t, db, QuestionsPerGame+3, "")

	created, err := svc.CreateGame(p1.ID)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	game, err := svc.JoinGame(created.ID, p2.ID)
	if err != nil {
		t.Fatalf("join game: %v", err)
	}
	return game, p1, p2
}
