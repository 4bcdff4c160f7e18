package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Question struct {
	ID            string         `json:"id" gorm:"primaryKey;size:36"`
	Text          string         `json:"text" gorm:"not null"`
	OptionA       string         `json:"option_a" gorm:"not null"`
	OptionB       string         `json:"option_b" gorm:"not null"`
	OptionC       string         `json:"option_c" gorm:"not null"`
	OptionD       string         `json:"option_d" gorm:"not null"`
	CorrectOption string         `json:"correct_option,omitempty" gorm:"not null;size:1"` // 'A'..'D'
	Category      *string        `json:"category"`
	Source        *string        `json:"source"`
	Difficulty    *string        `json:"difficulty"` // EASY, MEDIUM, HARD
	AuthorID      *string        `json:"author_id" gorm:"size:36"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

// Sanitized returns a copy safe to send to clients mid-game.
func (q Question) Sanitized() Question {
	q.CorrectOption = ""
	return q
}
