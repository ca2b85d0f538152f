package memory

import (
	"context"
	"sync"

	"github.com/Davidcode-png/QuizBlitz/internal/app"
	"github.com/Davidcode-png/QuizBlitz/internal/domain"
)

// GameRepository is an in-memory implementation of app.GameRepository,
// useful for tests and running without Postgres.
type GameRepository struct {
	mu    sync.RWMutex
	games map[string]*domain.GameRecord
}

func NewGameRepository() *GameRepository {
	return &GameRepository{games: make(map[string]*domain.GameRecord)}
}

func (r *GameRepository) Insert(_ context.Context, rec domain.GameRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := cloneRecord(rec)
	r.games[rec.Pin] = &cp
	return nil
}

func (r *GameRepository) Find(_ context.Context, pin string) (domain.GameRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.games[pin]
	if !ok {
		return domain.GameRecord{}, domain.ErrGameNotFound
	}
	return cloneRecord(*rec), nil
}

func (r *GameRepository) Exists(_ context.Context, pin string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.games[pin]
	return ok, nil
}

func (r *GameRepository) Update(_ context.Context, pin string, upd app.GameUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.games[pin]
	if !ok {
		return domain.ErrGameNotFound
	}
	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	if upd.CurrentQuestion != nil {
		rec.CurrentQuestion = *upd.CurrentQuestion
	}
	if upd.QuestionStartedAt != nil {
		t := *upd.QuestionStartedAt
		rec.QuestionStartedAt = &t
	}
	if upd.HostConnected != nil {
		rec.HostConnected = *upd.HostConnected
	}
	return nil
}

func (r *GameRepository) AddPlayer(_ context.Context, pin string, p domain.PlayerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.games[pin]
	if !ok {
		return domain.ErrGameNotFound
	}
	for i := range rec.Players {
		if rec.Players[i].Nickname == p.Nickname {
			rec.Players[i].Connected = p.Connected
			return nil
		}
	}
	rec.Players = append(rec.Players, p)
	return nil
}

func (r *GameRepository) UpdatePlayer(_ context.Context, pin, nickname string, upd app.PlayerUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.games[pin]
	if !ok {
		return domain.ErrGameNotFound
	}
	for i := range rec.Players {
		if rec.Players[i].Nickname != nickname {
			continue
		}
		if upd.Score != nil {
			rec.Players[i].Score = *upd.Score
		}
		if upd.Connected != nil {
			rec.Players[i].Connected = *upd.Connected
		}
		return nil
	}
	return domain.ErrPlayerNotFound
}

func (r *GameRepository) List(_ context.Context) ([]domain.GameSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.GameSummary, 0, len(r.games))
	for _, rec := range r.games {
		out = append(out, domain.GameSummary{
			Pin:             rec.Pin,
			Status:          rec.Status,
			PlayerCount:     len(rec.Players),
			CurrentQuestion: rec.CurrentQuestion,
		})
	}
	return out, nil
}

func cloneRecord(rec domain.GameRecord) domain.GameRecord {
	cp := rec
	cp.Questions = append([]domain.Question(nil), rec.Questions...)
	cp.Players = append([]domain.PlayerRecord(nil), rec.Players...)
	if rec.QuestionStartedAt != nil {
		t := *rec.QuestionStartedAt
		cp.QuestionStartedAt = &t
	}
	return cp
}
