package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/Davidcode-png/QuizBlitz/internal/app"
	"github.com/Davidcode-png/QuizBlitz/internal/domain"
)

// GameRepository persists games in Postgres: one row per game plus a
// game_players row per roster entry, read back in join order.
type GameRepository struct {
	pool *pgxpool.Pool
}

func NewGameRepository(pool *pgxpool.Pool) *GameRepository {
	return &GameRepository{pool: pool}
}

func (r *GameRepository) Insert(ctx context.Context, rec domain.GameRecord) error {
	questions, err := json.Marshal(rec.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO games (pin, status, current_question_index, question_started_at, host_connected, questions, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.Pin, string(rec.Status), rec.CurrentQuestion, rec.QuestionStartedAt, rec.HostConnected, questions, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	return nil
}

func (r *GameRepository) Find(ctx context.Context, pin string) (domain.GameRecord, error) {
	var (
		rec          domain.GameRecord
		status       string
		questionsRaw []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT pin, status, current_question_index, question_started_at, host_connected, questions, created_at
		 FROM games WHERE pin=$1`, pin).
		Scan(&rec.Pin, &status, &rec.CurrentQuestion, &rec.QuestionStartedAt, &rec.HostConnected, &questionsRaw, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GameRecord{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.GameRecord{}, fmt.Errorf("find game: %w", err)
	}
	rec.Status = domain.Status(status)
	if err := json.Unmarshal(questionsRaw, &rec.Questions); err != nil {
		return domain.GameRecord{}, fmt.Errorf("unmarshal questions: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT nickname, score, connected, joined_at
		 FROM game_players WHERE game_pin=$1 ORDER BY joined_at, nickname`, pin)
	if err != nil {
		return domain.GameRecord{}, fmt.Errorf("find players: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.PlayerRecord
		if err := rows.Scan(&p.Nickname, &p.Score, &p.Connected, &p.JoinedAt); err != nil {
			return domain.GameRecord{}, fmt.Errorf("scan player: %w", err)
		}
		rec.Players = append(rec.Players, p)
	}
	if err := rows.Err(); err != nil {
		return domain.GameRecord{}, fmt.Errorf("read players: %w", err)
	}
	return rec, nil
}

func (r *GameRepository) Exists(ctx context.Context, pin string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM games WHERE pin=$1)`, pin).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check game: %w", err)
	}
	return exists, nil
}

func (r *GameRepository) Update(ctx context.Context, pin string, upd app.GameUpdate) error {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.CurrentQuestion != nil {
		add("current_question_index", *upd.CurrentQuestion)
	}
	if upd.QuestionStartedAt != nil {
		add("question_started_at", *upd.QuestionStartedAt)
	}
	if upd.HostConnected != nil {
		add("host_connected", *upd.HostConnected)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, pin)
	query := fmt.Sprintf(`UPDATE games SET %s WHERE pin=$%d`, strings.Join(sets, ", "), len(args))
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGameNotFound
	}
	return nil
}

func (r *GameRepository) AddPlayer(ctx context.Context, pin string, p domain.PlayerRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO game_players (game_pin, nickname, score, connected, joined_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (game_pin, nickname) DO UPDATE SET connected=EXCLUDED.connected`,
		pin, p.Nickname, p.Score, p.Connected, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("add player: %w", err)
	}
	return nil
}

func (r *GameRepository) UpdatePlayer(ctx context.Context, pin, nickname string, upd app.PlayerUpdate) error {
	sets := make([]string, 0, 2)
	args := make([]any, 0, 4)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if upd.Score != nil {
		add("score", *upd.Score)
	}
	if upd.Connected != nil {
		add("connected", *upd.Connected)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, pin, nickname)
	query := fmt.Sprintf(`UPDATE game_players SET %s WHERE game_pin=$%d AND nickname=$%d`,
		strings.Join(sets, ", "), len(args)-1, len(args))
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

func (r *GameRepository) List(ctx context.Context) ([]domain.GameSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT g.pin, g.status, g.current_question_index, count(p.nickname)
		 FROM games g
		 LEFT JOIN game_players p ON p.game_pin = g.pin
		 GROUP BY g.pin, g.status, g.current_question_index, g.created_at
		 ORDER BY g.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var out []domain.GameSummary
	for rows.Next() {
		var (
			sum    domain.GameSummary
			status string
		)
		if err := rows.Scan(&sum.Pin, &status, &sum.CurrentQuestion, &sum.PlayerCount); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		sum.Status = domain.Status(status)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read games: %w", err)
	}
	return out, nil
}
