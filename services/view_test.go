package services

import (
	"testing"

	"quizduel/models"
)

func sampleDuelGame() (*models.Game, string, string) {
	p1 := "user-1"
	p2 := "user-2"
	optA := "A"
	optB := "B"
	yes := true
	no := false

	game := &models.Game{
		ID:           "game-1",
		Player1ID:    p1,
		Player2ID:    &p2,
		Status:       models.GameActive,
		Player1Score: 2,
		Player2Score: 1,
		Rounds: []models.GameRound{
			{
				RoundNumber:    1,
				CorrectOption:  "A",
				Player1State:   models.AnswerGiven,
				Player2State:   models.AnswerGiven,
				Player1Option:  &optA,
				Player2Option:  &optB,
				Player1Correct: &yes,
				Player2Correct: &no,
				Question: &models.Question{
					ID:            "q-1",
					Text:          "capital of norway",
					CorrectOption: "A",
				},
			},
		},
	}
	return game, p1, p2
}

func TestRoundResultSelfRelative(t *testing.T) {
	game, p1, p2 := sampleDuelGame()
	optA := "A"
	optB := "B"
	yes := true
	no := false
	result := RoundResult{
		GameID:              game.ID,
		RoundNumber:         1,
		Player1Answer:       &optA,
		Player2Answer:       &optB,
		Player1Correct:      &yes,
		Player2Correct:      &no,
		Player1CurrentScore: 2,
		Player2CurrentScore: 1,
	}

	// Player 1 sees the absolute orientation.
	same := result.SelfRelative(game, p1)
	if *same.Player1Answer != "A" || same.Player1CurrentScore != 2 {
		t.Error("player 1 view must be unchanged")
	}

	// Player 2 sees themselves in the first slot.
	swapped := result.SelfRelative(game, p2)
	if *swapped.Player1Answer != "B" || *swapped.Player2Answer != "A" {
		t.Errorf("answers not swapped: %s / %s", *swapped.Player1Answer, *swapped.Player2Answer)
	}
	if *swapped.Player1Correct || !*swapped.Player2Correct {
		t.Error("correctness flags not swapped")
	}
	if swapped.Player1CurrentScore != 1 || swapped.Player2CurrentScore != 2 {
		t.Errorf("scores not swapped: %d-%d", swapped.Player1CurrentScore, swapped.Player2CurrentScore)
	}
}

func TestSelfRelativeGameSwapsWithoutMutating(t *testing.T) {
	game, _, p2 := sampleDuelGame()

	view := SelfRelativeGame(game, p2)
	if view.Player1ID != p2 || view.Player2ID == nil || *view.Player2ID != "user-1" {
		t.Errorf("seats not swapped: %s / %v", view.Player1ID, view.Player2ID)
	}
	if view.Player1Score != 1 || view.Player2Score != 2 {
		t.Errorf("scores not swapped: %d-%d", view.Player1Score, view.Player2Score)
	}
	if got := view.Rounds[0].Player1Option; got == nil || *got != "B" {
		t.Errorf("round options not swapped: %v", got)
	}

	// The original stays in absolute orientation.
	if game.Player1ID != "user-1" || game.Player1Score != 2 {
		t.Error("projection mutated the source game")
	}
	if got := game.Rounds[0].Player1Option; got == nil || *got != "A" {
		t.Error("projection mutated the source rounds")
	}
}

func TestWireGameHidesCorrectOptionsWhileLive(t *testing.T) {
	game, p1, _ := sampleDuelGame()

	view := WireGame(game, p1)
	if view.Rounds[0].Question.CorrectOption != "" {
		t.Error("live wire view leaked a correct option")
	}
	// Sanitizing must not touch the loaded question.
	if game.Rounds[0].Question.CorrectOption != "A" {
		t.Error("sanitizing mutated the source question")
	}

	game.Status = models.GameFinished
	done := WireGame(game, p1)
	if done.Rounds[0].Question.CorrectOption != "A" {
		t.Error("finished game should reveal correct options")
	}
}
