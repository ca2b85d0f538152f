package memory

import (
	"context"

	"github.com/Davidcode-png/QuizBlitz/internal/domain"
)

// StaticQuestionSource serves question sets from an in-memory map (useful
// for tests/demos and when Postgres is not configured).
type StaticQuestionSource struct {
	sets map[string][]domain.Question
}

func NewStaticQuestionSource(sets map[string][]domain.Question) *StaticQuestionSource {
	return &StaticQuestionSource{sets: sets}
}

func (s *StaticQuestionSource) QuestionSet(_ context.Context, setID string) ([]domain.Question, error) {
	if qs, ok := s.sets[setID]; ok {
		return qs, nil
	}
	return nil, domain.ErrNoQuestions
}

// DefaultQuestions is the bundled demo set used when no question store is
// configured.
func DefaultQuestions() map[string][]domain.Question {
	return map[string][]domain.Question{
		"default": {
			{
				Text:      "What is the capital of France?",
				Options:   []string{"Berlin", "Madrid", "Paris", "Rome"},
				Answer:    2,
				TimeLimit: 30,
			},
			{
				Text:      "Which planet is known as the Red Planet?",
				Options:   []string{"Venus", "Mars", "Jupiter", "Saturn"},
				Answer:    1,
				TimeLimit: 30,
			},
			{
				Text:      "What is 7 x 8?",
				Options:   []string{"54", "56", "63", "64"},
				Answer:    1,
				TimeLimit: 20,
			},
			{
				Text:      "Which ocean is the largest?",
				Options:   []string{"Atlantic", "Indian", "Arctic", "Pacific"},
				Answer:    3,
				TimeLimit: 30,
			},
		},
	}
}
