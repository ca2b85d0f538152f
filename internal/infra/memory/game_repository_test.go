package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/Davidcode-png/QuizBlitz/internal/app"
	"github.com/Davidcode-png/QuizBlitz/internal/domain"
)

func waitingGame(pin string) domain.GameRecord {
	return domain.GameRecord{
		Pin:       pin,
		Status:    domain.StatusWaiting,
		Questions: DefaultQuestions()["default"],
	}
}

func TestInsertAndFind(t *testing.T) {
	repo := NewGameRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, waitingGame("ABC234")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rec, err := repo.Find(ctx, "ABC234")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if rec.Pin != "ABC234" || rec.Status != domain.StatusWaiting {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if _, err := repo.Find(ctx, "MISSING"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestExists(t *testing.T) {
	repo := NewGameRepository()
	ctx := context.Background()

	ok, err := repo.Exists(ctx, "ABC234")
	if err != nil || ok {
		t.Fatalf("expected absent pin, got ok=%v err=%v", ok, err)
	}
	if err := repo.Insert(ctx, waitingGame("ABC234")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	ok, err = repo.Exists(ctx, "ABC234")
	if err != nil || !ok {
		t.Fatalf("expected present pin, got ok=%v err=%v", ok, err)
	}
}

func TestPartialUpdateTouchesOnlySetFields(t *testing.T) {
	repo := NewGameRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, waitingGame("ABC234")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	status := domain.StatusInProgress
	if err := repo.Update(ctx, "ABC234", app.GameUpdate{Status: &status}); err != nil {
		t.Fatalf("update: %v", err)
	}

	rec, _ := repo.Find(ctx, "ABC234")
	if rec.Status != domain.StatusInProgress {
		t.Fatalf("expected status updated, got %s", rec.Status)
	}
	if rec.CurrentQuestion != 0 || rec.HostConnected {
		t.Fatalf("untouched fields changed: %+v", rec)
	}

	if err := repo.Update(ctx, "MISSING", app.GameUpdate{Status: &status}); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestAddPlayerUpsertsByNickname(t *testing.T) {
	repo := NewGameRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, waitingGame("ABC234")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.AddPlayer(ctx, "ABC234", domain.PlayerRecord{Nickname: "Ann", Connected: true}); err != nil {
		t.Fatalf("add player: %v", err)
	}
	// Same nickname again flips connectivity instead of duplicating the row.
	if err := repo.AddPlayer(ctx, "ABC234", domain.PlayerRecord{Nickname: "Ann", Connected: false}); err != nil {
		t.Fatalf("re-add player: %v", err)
	}

	rec, _ := repo.Find(ctx, "ABC234")
	if len(rec.Players) != 1 {
		t.Fatalf("expected 1 player, got %d", len(rec.Players))
	}
	if rec.Players[0].Connected {
		t.Fatal("expected connected flag updated on re-add")
	}
}

func TestUpdatePlayerScore(t *testing.T) {
	repo := NewGameRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, waitingGame("ABC234")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.AddPlayer(ctx, "ABC234", domain.PlayerRecord{Nickname: "Ann", Connected: true}); err != nil {
		t.Fatalf("add player: %v", err)
	}

	score := 750
	if err := repo.UpdatePlayer(ctx, "ABC234", "Ann", app.PlayerUpdate{Score: &score}); err != nil {
		t.Fatalf("update player: %v", err)
	}
	rec, _ := repo.Find(ctx, "ABC234")
	if rec.Players[0].Score != 750 || !rec.Players[0].Connected {
		t.Fatalf("unexpected player state: %+v", rec.Players[0])
	}

	if err := repo.UpdatePlayer(ctx, "ABC234", "Zed", app.PlayerUpdate{Score: &score}); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestFindReturnsCopies(t *testing.T) {
	repo := NewGameRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, waitingGame("ABC234")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.AddPlayer(ctx, "ABC234", domain.PlayerRecord{Nickname: "Ann"}); err != nil {
		t.Fatalf("add player: %v", err)
	}

	rec, _ := repo.Find(ctx, "ABC234")
	rec.Players[0].Score = 9999
	rec.Questions[0].Answer = 0

	again, _ := repo.Find(ctx, "ABC234")
	if again.Players[0].Score != 0 {
		t.Fatal("mutating a returned record leaked into the store")
	}
	if again.Questions[0].Answer != 2 {
		t.Fatal("mutating returned questions leaked into the store")
	}
}

func TestListSummaries(t *testing.T) {
	repo := NewGameRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, waitingGame("AAA234")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.Insert(ctx, waitingGame("BBB234")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.AddPlayer(ctx, "BBB234", domain.PlayerRecord{Nickname: "Ann"}); err != nil {
		t.Fatalf("add player: %v", err)
	}

	sums, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(sums))
	}
	byPin := make(map[string]domain.GameSummary, len(sums))
	for _, s := range sums {
		byPin[s.Pin] = s
	}
	if byPin["BBB234"].PlayerCount != 1 || byPin["AAA234"].PlayerCount != 0 {
		t.Fatalf("unexpected player counts: %v", byPin)
	}
}
