package services

import (
	"errors"
	"math"
	"math/rand"

	"quizduel/models"

	"gorm.io/gorm"
)

// ErrNotEnoughQuestions signals that the pool cannot supply the requested
// sample size; callers should treat it as a retry-later condition.
var ErrNotEnoughQuestions = errors.New("not enough questions available")

type QuestionService struct {
	db *gorm.DB
}

func NewQuestionService(db *gorm.DB) *QuestionService {
	return &QuestionService{db: db}
}

type QuestionRequest struct {
	Text          string  `json:"text" binding:"required"`
	OptionA       string  `json:"option_a" binding:"required"`
	OptionB       string  `json:"option_b" binding:"required"`
	OptionC       string  `json:"option_c" binding:"required"`
	OptionD       string  `json:"option_d" binding:"required"`
	CorrectOption string  `json:"correct_option" binding:"required,oneof=A B C D"`
	Category      *string `json:"category"`
	Source        *string `json:"source"`
	Difficulty    *string `json:"difficulty" binding:"omitempty,oneof=EASY MEDIUM HARD"`
}

func (s *QuestionService) CreateQuestion(authorID string, req *QuestionRequest) (*models.Question, error) {
	question := models.Question{
		Text:          req.Text,
		OptionA:       req.OptionA,
		OptionB:       req.OptionB,
		OptionC:       req.OptionC,
		OptionD:       req.OptionD,
		CorrectOption: req.CorrectOption,
		Category:      req.Category,
		Source:        req.Source,
		Difficulty:    req.Difficulty,
		AuthorID:      &authorID,
	}
	if err := s.db.Create(&question).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

func (s *QuestionService) GetQuestion(id string) (*models.Question, error) {
	var question models.Question
	if err := s.db.First(&question, "id = ?", id).Error; err != nil {
		return nil, errors.New("question not found")
	}
	return &question, nil
}

type QuestionPage struct {
	Questions   []models.Question `json:"questions"`
	Total       int64             `json:"total"`
	TotalPages  int               `json:"total_pages"`
	CurrentPage int               `json:"current_page"`
}

func (s *QuestionService) ListQuestions(page, limit int, category string) (*QuestionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	query := s.db.Model(&models.Question{})
	if category != "" {
		query = query.Where("LOWER(category) LIKE LOWER(?)", "%"+category+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	var questions []models.Question
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&questions).Error; err != nil {
		return nil, err
	}

	return &QuestionPage{
		Questions:   questions,
		Total:       total,
		TotalPages:  int(math.Ceil(float64(total) / float64(limit))),
		CurrentPage: page,
	}, nil
}

func (s *QuestionService) UpdateQuestion(id string, req *QuestionRequest) (*models.Question, error) {
	question, err := s.GetQuestion(id)
	if err != nil {
		return nil, err
	}

	question.Text = req.Text
	question.OptionA = req.OptionA
	question.OptionB = req.OptionB
	question.OptionC = req.OptionC
	question.OptionD = req.OptionD
	question.CorrectOption = req.CorrectOption
	question.Category = req.Category
	question.Source = req.Source
	question.Difficulty = req.Difficulty

	if err := s.db.Save(question).Error; err != nil {
		return nil, err
	}
	return question, nil
}

// DeleteQuestion refuses to delete questions referenced by live games;
// rounds of terminal games are detached first.
func (s *QuestionService) DeleteQuestion(id string) error {
	var count int64
	err := s.db.Model(&models.GameRound{}).
		Joins("JOIN games ON games.id = game_rounds.game_id").
		Where("game_rounds.question_id = ? AND games.status IN ?", id,
			[]models.GameStatus{models.GamePending, models.GameActive}).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("question is used by active games")
	}

	if err := s.db.Where("question_id = ?", id).Delete(&models.GameRound{}).Error; err != nil {
		return err
	}
	return s.db.Delete(&models.Question{}, "id = ?", id).Error
}

// SampleFilter narrows the random-question pool.
type SampleFilter struct {
	Difficulty *string
	Category   *string
	ExcludeIDs []string
}

// SampleQuestions returns count questions drawn uniformly from the filtered
// pool, in shuffled order. It fails with ErrNotEnoughQuestions rather than
// returning a short set, so no game is ever created with fewer rounds than
// promised.
func (s *QuestionService) SampleQuestions(count int, filter SampleFilter) ([]models.Question, error) {
	query := s.db.Model(&models.Question{})
	if filter.Difficulty != nil && *filter.Difficulty != "" {
		query = query.Where("difficulty = ?", *filter.Difficulty)
	}
	if filter.Category != nil && *filter.Category != "" {
		query = query.Where("category = ?", *filter.Category)
	}
	if len(filter.ExcludeIDs) > 0 {
		query = query.Where("id NOT IN ?", filter.ExcludeIDs)
	}

	var available int64
	if err := query.Count(&available).Error; err != nil {
		return nil, err
	}
	if available < int64(count) {
		return nil, ErrNotEnoughQuestions
	}

	var pool []models.Question
	if err := query.Find(&pool).Error; err != nil {
		return nil, err
	}

	// Fisher-Yates over the whole pool, then take the prefix.
	for i := len(pool) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:count], nil
}
