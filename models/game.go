package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GameStatus string

const (
	GamePending   GameStatus = "PENDING"
	GameActive    GameStatus = "ACTIVE"
	GameRoundEnd  GameStatus = "ROUND_ENDED" // reserved; rounds settle within ACTIVE
	GameFinished  GameStatus = "FINISHED"
	GameCancelled GameStatus = "CANCELLED"
)

// Terminal reports whether no further mutation of the game is permitted.
func (s GameStatus) Terminal() bool {
	return s == GameFinished || s == GameCancelled
}

type Game struct {
	ID                 string         `json:"id" gorm:"primaryKey;size:36"`
	Player1ID          string         `json:"player1Id" gorm:"not null;size:36;index"`
	Player2ID          *string        `json:"player2Id" gorm:"size:36;index"`
	Status             GameStatus     `json:"status" gorm:"not null;default:'PENDING';index"`
	CurrentQuestionIdx int            `json:"currentQuestionIdx" gorm:"not null;default:0"`
	Player1Score       int            `json:"player1Score" gorm:"not null;default:0"`
	Player2Score       int            `json:"player2Score" gorm:"not null;default:0"`
	WinnerID           *string        `json:"winnerId" gorm:"size:36"`
	IsSolo             bool           `json:"isSolo" gorm:"not null;default:false"`
	Difficulty         *string        `json:"difficulty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	DeletedAt          gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Player1 *User       `json:"player1,omitempty" gorm:"foreignKey:Player1ID"`
	Player2 *User       `json:"player2,omitempty" gorm:"foreignKey:Player2ID"`
	Winner  *User       `json:"winner,omitempty" gorm:"foreignKey:WinnerID"`
	Rounds  []GameRound `json:"rounds,omitempty" gorm:"foreignKey:GameID"`
}

func (g *Game) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

// HasPlayer reports whether userID occupies either seat.
func (g *Game) HasPlayer(userID string) bool {
	if g.Player1ID == userID {
		return true
	}
	return g.Player2ID != nil && *g.Player2ID == userID
}

// OpponentOf returns the other participant's id, if any.
func (g *Game) OpponentOf(userID string) *string {
	if g.Player1ID == userID {
		return g.Player2ID
	}
	if g.Player2ID != nil && *g.Player2ID == userID {
		p1 := g.Player1ID
		return &p1
	}
	return nil
}
