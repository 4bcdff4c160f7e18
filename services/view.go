package services

import "quizduel/models"

// Every client renders itself as player 1. Payloads that cross the wire are
// therefore self-relative: for the user actually seated as player 2, the
// player1/player2 halves are swapped once, here, and nowhere else.

// RoundResult is the settled outcome of one round, in absolute (database)
// orientation until projected.
type RoundResult struct {
	GameID              string  `json:"gameId"`
	RoundNumber         int     `json:"roundNumber"`
	QuestionID          string  `json:"questionId"`
	Player1Answer       *string `json:"player1Answer"`
	Player2Answer       *string `json:"player2Answer"`
	CorrectOption       string  `json:"correctOption"`
	Player1Correct      *bool   `json:"player1Correct"`
	Player2Correct      *bool   `json:"player2Correct"`
	Player1CurrentScore int     `json:"player1CurrentScore"`
	Player2CurrentScore int     `json:"player2CurrentScore"`
}

// SelfRelative returns the result as seen by viewerID.
func (r RoundResult) SelfRelative(game *models.Game, viewerID string) RoundResult {
	if !isPlayer2(game, viewerID) {
		return r
	}
	r.Player1Answer, r.Player2Answer = r.Player2Answer, r.Player1Answer
	r.Player1Correct, r.Player2Correct = r.Player2Correct, r.Player1Correct
	r.Player1CurrentScore, r.Player2CurrentScore = r.Player2CurrentScore, r.Player1CurrentScore
	return r
}

// SelfRelativeGame returns a copy of game reoriented for viewerID, rounds
// included.
func SelfRelativeGame(game *models.Game, viewerID string) *models.Game {
	view := *game
	if !isPlayer2(game, viewerID) {
		return &view
	}

	p1 := game.Player1ID
	view.Player1ID = *game.Player2ID
	view.Player2ID = &p1
	view.Player1, view.Player2 = game.Player2, game.Player1
	view.Player1Score, view.Player2Score = game.Player2Score, game.Player1Score

	view.Rounds = make([]models.GameRound, len(game.Rounds))
	for i, round := range game.Rounds {
		round.Player1State, round.Player2State = round.Player2State, round.Player1State
		round.Player1Option, round.Player2Option = round.Player2Option, round.Player1Option
		round.Player1Correct, round.Player2Correct = round.Player2Correct, round.Player1Correct
		view.Rounds[i] = round
	}
	return &view
}

// WireGame is the projection applied at the transport boundary: the
// viewer's self-relative copy, with correct options stripped from round
// questions while the game is still live.
func WireGame(game *models.Game, viewerID string) *models.Game {
	view := SelfRelativeGame(game, viewerID)
	if view.Status.Terminal() {
		return view
	}
	rounds := make([]models.GameRound, len(view.Rounds))
	copy(rounds, view.Rounds)
	for i := range rounds {
		if rounds[i].Question != nil {
			sanitized := rounds[i].Question.Sanitized()
			rounds[i].Question = &sanitized
		}
	}
	view.Rounds = rounds
	return view
}

func isPlayer2(game *models.Game, viewerID string) bool {
	return game.Player2ID != nil && *game.Player2ID == viewerID
}
