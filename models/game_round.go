package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AnswerState distinguishes "hasn't answered yet" from "answered" and
// "ran out the clock". A round slot accepts exactly one transition away
// from Pending.
type AnswerState string

const (
	AnswerPending  AnswerState = "PENDING"
	AnswerGiven    AnswerState = "ANSWERED"
	AnswerTimedOut AnswerState = "TIMED_OUT"
)

type GameRound struct {
	ID          string `json:"id" gorm:"primaryKey;size:36"`
	GameID      string `json:"gameId" gorm:"not null;size:36;uniqueIndex:idx_game_round"`
	RoundNumber int    `json:"roundNumber" gorm:"not null;uniqueIndex:idx_game_round"` // 1-based
	QuestionID  string `json:"questionId" gorm:"not null;size:36"`

	// Snapshot of the question's correct option taken when the round is
	// materialized; grading never re-reads the question row.
	CorrectOption string `json:"-" gorm:"not null;size:1"`

	Player1State   AnswerState `json:"player1State" gorm:"not null;default:'PENDING'"`
	Player2State   AnswerState `json:"player2State" gorm:"not null;default:'PENDING'"`
	Player1Option  *string     `json:"player1AnsweredOption" gorm:"size:1"`
	Player2Option  *string     `json:"player2AnsweredOption" gorm:"size:1"`
	Player1Correct *bool       `json:"player1Correct"`
	Player2Correct *bool       `json:"player2Correct"`

	// Relationships
	Question *Question `json:"question,omitempty" gorm:"foreignKey:QuestionID"`
}

func (r *GameRound) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
