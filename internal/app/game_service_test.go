package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Davidcode-png/QuizBlitz/internal/app"
	"github.com/Davidcode-png/QuizBlitz/internal/domain"
	"github.com/Davidcode-png/QuizBlitz/internal/infra/memory"
	"github.com/Davidcode-png/QuizBlitz/internal/registry"
)

type stubSocket struct {
	mu     sync.Mutex
	alive  bool
	frames []any
}

func newStubSocket() *stubSocket { return &stubSocket{alive: true} }

func (s *stubSocket) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, v)
	return nil
}

func (s *stubSocket) Ping() error { return nil }

func (s *stubSocket) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func (s *stubSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alive = false
	return nil
}

func (s *stubSocket) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alive = false
}

// framesOfType decodes recorded frames through JSON and returns those whose
// "type" field matches.
func (s *stubSocket) framesOfType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, f := range s.frames {
		data, err := json.Marshal(f)
		if err != nil {
			t.Fatalf("marshal frame: %v", err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func newTestService(t *testing.T, questions []domain.Question) (*app.GameService, *memory.GameRepository) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	reg, err := registry.New(context.Background(), client, registry.Options{})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	repo := memory.NewGameRepository()
	source := memory.NewStaticQuestionSource(map[string][]domain.Question{"default": questions})
	return app.NewGameService(repo, source, reg, "default"), repo
}

func singleQuestion() []domain.Question {
	return []domain.Question{
		{
			Text:      "Pick C",
			Options:   []string{"A", "B", "C", "D"},
			Answer:    2,
			TimeLimit: 20,
		},
	}
}

func TestCreateGameRequiresQuestions(t *testing.T) {
	svc, _ := newTestService(t, nil)
	if _, err := svc.CreateGame(context.Background()); !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
}

func TestCreateGamePersistsWaitingGame(t *testing.T) {
	svc, repo := newTestService(t, singleQuestion())
	ctx := context.Background()

	pin, err := svc.CreateGame(ctx)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if len(pin) != 6 {
		t.Fatalf("expected 6-char pin, got %q", pin)
	}

	rec, err := repo.Find(ctx, pin)
	if err != nil {
		t.Fatalf("find game: %v", err)
	}
	if rec.Status != domain.StatusWaiting || rec.CurrentQuestion != 0 || len(rec.Players) != 0 {
		t.Fatalf("unexpected initial record: %+v", rec)
	}
}

func TestStartQuizRequiresHost(t *testing.T) {
	svc, _ := newTestService(t, singleQuestion())
	ctx := context.Background()

	pin, err := svc.CreateGame(ctx)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if err := svc.StartQuiz(ctx, pin); !errors.Is(err, domain.ErrNoHostConnected) {
		t.Fatalf("expected ErrNoHostConnected, got %v", err)
	}
}

func TestUnknownPinRejected(t *testing.T) {
	svc, _ := newTestService(t, singleQuestion())
	if err := svc.ConnectHost(context.Background(), "NOPE99", newStubSocket()); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

// Full single-question round: Ann answers option 2 after 5 of 20 seconds and
// earns 1000*(20-5)/20 = 750; her second submission is ignored; advancing
// past the last question ends the game with Ann ranked first.
func TestSingleQuestionRound(t *testing.T) {
	svc, repo := newTestService(t, singleQuestion())
	ctx := context.Background()

	pin, err := svc.CreateGame(ctx)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	host := newStubSocket()
	if err := svc.ConnectHost(ctx, pin, host); err != nil {
		t.Fatalf("connect host: %v", err)
	}
	ann := newStubSocket()
	if err := svc.ConnectPlayer(ctx, pin, "Ann", ann); err != nil {
		t.Fatalf("connect player: %v", err)
	}

	if err := svc.StartQuiz(ctx, pin); err != nil {
		t.Fatalf("start quiz: %v", err)
	}
	questions := ann.framesOfType(t, "question")
	if len(questions) != 1 {
		t.Fatalf("expected 1 question frame, got %d", len(questions))
	}
	if _, ok := questions[0]["correct_answer"]; ok {
		t.Fatalf("player frame must not carry the correct answer")
	}
	hostQuestions := host.framesOfType(t, "current_question_host")
	if len(hostQuestions) != 1 || hostQuestions[0]["correct_answer"].(float64) != 2 {
		t.Fatalf("expected host frame with correct answer, got %v", hostQuestions)
	}

	if err := svc.SubmitAnswer(ctx, pin, ann, 2, 5); err != nil {
		t.Fatalf("submit answer: %v", err)
	}
	reveals := ann.framesOfType(t, "answer_reveal")
	if len(reveals) != 1 {
		t.Fatalf("expected 1 answer reveal, got %d", len(reveals))
	}
	if reveals[0]["is_correct"] != true || reveals[0]["new_score"].(float64) != 750 {
		t.Fatalf("expected correct answer worth 750, got %v", reveals[0])
	}
	answered := host.framesOfType(t, "player_answered")
	if len(answered) != 1 || answered[0]["score_added"].(float64) != 750 {
		t.Fatalf("expected host answer detail with 750 points, got %v", answered)
	}

	// First answer wins; the resubmission changes nothing.
	if err := svc.SubmitAnswer(ctx, pin, ann, 0, 1); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if got := len(ann.framesOfType(t, "answer_reveal")); got != 1 {
		t.Fatalf("expected resubmission to be ignored, got %d reveals", got)
	}

	if err := svc.NextQuestion(ctx, pin); err != nil {
		t.Fatalf("next question: %v", err)
	}
	over := ann.framesOfType(t, "game_over")
	if len(over) != 1 {
		t.Fatalf("expected game over frame, got %d", len(over))
	}
	results := over[0]["results"].([]any)
	first := results[0].(map[string]any)
	if first["nickname"] != "Ann" || first["score"].(float64) != 750 {
		t.Fatalf("expected Ann first with 750, got %v", first)
	}

	rec, err := repo.Find(ctx, pin)
	if err != nil {
		t.Fatalf("find game: %v", err)
	}
	if rec.Status != domain.StatusFinished {
		t.Fatalf("expected finished status persisted, got %s", rec.Status)
	}
	if rec.Players[0].Score != 750 {
		t.Fatalf("expected persisted score 750, got %d", rec.Players[0].Score)
	}
}

func TestLateAnswerScoresZero(t *testing.T) {
	svc, _ := newTestService(t, singleQuestion())
	ctx := context.Background()

	pin, _ := svc.CreateGame(ctx)
	host := newStubSocket()
	if err := svc.ConnectHost(ctx, pin, host); err != nil {
		t.Fatalf("connect host: %v", err)
	}
	ann := newStubSocket()
	if err := svc.ConnectPlayer(ctx, pin, "Ann", ann); err != nil {
		t.Fatalf("connect player: %v", err)
	}
	if err := svc.StartQuiz(ctx, pin); err != nil {
		t.Fatalf("start quiz: %v", err)
	}

	if err := svc.SubmitAnswer(ctx, pin, ann, 2, 25); err != nil {
		t.Fatalf("submit: %v", err)
	}
	reveals := ann.framesOfType(t, "answer_reveal")
	if reveals[0]["is_correct"] != true || reveals[0]["new_score"].(float64) != 0 {
		t.Fatalf("expected correct but zero-score answer, got %v", reveals[0])
	}
}

func TestSubmitRequiresPlayerClaim(t *testing.T) {
	svc, _ := newTestService(t, singleQuestion())
	ctx := context.Background()

	pin, _ := svc.CreateGame(ctx)
	host := newStubSocket()
	if err := svc.ConnectHost(ctx, pin, host); err != nil {
		t.Fatalf("connect host: %v", err)
	}
	if err := svc.ConnectPlayer(ctx, pin, "Ann", newStubSocket()); err != nil {
		t.Fatalf("connect player: %v", err)
	}
	if err := svc.StartQuiz(ctx, pin); err != nil {
		t.Fatalf("start quiz: %v", err)
	}

	stranger := newStubSocket()
	if err := svc.SubmitAnswer(ctx, pin, stranger, 2, 5); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestSubmitOutsideInProgress(t *testing.T) {
	svc, _ := newTestService(t, singleQuestion())
	ctx := context.Background()

	pin, _ := svc.CreateGame(ctx)
	ann := newStubSocket()
	if err := svc.ConnectPlayer(ctx, pin, "Ann", ann); err != nil {
		t.Fatalf("connect player: %v", err)
	}
	if err := svc.SubmitAnswer(ctx, pin, ann, 2, 5); !errors.Is(err, domain.ErrGameNotInProgress) {
		t.Fatalf("expected ErrGameNotInProgress, got %v", err)
	}
}

func TestTimeoutDoesNotTouchLedger(t *testing.T) {
	svc, _ := newTestService(t, singleQuestion())
	ctx := context.Background()

	pin, _ := svc.CreateGame(ctx)
	host := newStubSocket()
	if err := svc.ConnectHost(ctx, pin, host); err != nil {
		t.Fatalf("connect host: %v", err)
	}
	ann := newStubSocket()
	if err := svc.ConnectPlayer(ctx, pin, "Ann", ann); err != nil {
		t.Fatalf("connect player: %v", err)
	}
	if err := svc.StartQuiz(ctx, pin); err != nil {
		t.Fatalf("start quiz: %v", err)
	}

	if err := svc.HandleTimeout(ctx, pin, ann); err != nil {
		t.Fatalf("timeout: %v", err)
	}
	reveals := ann.framesOfType(t, "answer_reveal")
	if len(reveals) != 1 || reveals[0]["is_correct"] != false {
		t.Fatalf("expected time's-up reveal, got %v", reveals)
	}
	if _, ok := reveals[0]["time_taken"]; ok {
		t.Fatalf("timeout reveal must not carry time_taken")
	}
	if got := len(host.framesOfType(t, "player_timeout")); got != 1 {
		t.Fatalf("expected host timeout event, got %d", got)
	}

	// The ledger has no entry, so Ann can still answer.
	if err := svc.SubmitAnswer(ctx, pin, ann, 2, 5); err != nil {
		t.Fatalf("submit after timeout: %v", err)
	}
	if got := len(ann.framesOfType(t, "answer_reveal")); got != 2 {
		t.Fatalf("expected submission after timeout to count, got %d reveals", got)
	}
}

func TestSecondHostRejected(t *testing.T) {
	svc, _ := newTestService(t, singleQuestion())
	ctx := context.Background()

	pin, _ := svc.CreateGame(ctx)
	if err := svc.ConnectHost(ctx, pin, newStubSocket()); err != nil {
		t.Fatalf("first host: %v", err)
	}
	if err := svc.ConnectHost(ctx, pin, newStubSocket()); !errors.Is(err, domain.ErrHostAlreadyConnected) {
		t.Fatalf("expected ErrHostAlreadyConnected, got %v", err)
	}
}

func TestPlayerReconnectionKeepsRoster(t *testing.T) {
	svc, repo := newTestService(t, singleQuestion())
	ctx := context.Background()

	pin, _ := svc.CreateGame(ctx)
	host := newStubSocket()
	if err := svc.ConnectHost(ctx, pin, host); err != nil {
		t.Fatalf("connect host: %v", err)
	}

	bob := newStubSocket()
	if err := svc.ConnectPlayer(ctx, pin, "Bob", bob); err != nil {
		t.Fatalf("first join: %v", err)
	}
	bob.drop()
	svc.DisconnectPlayer(ctx, pin, "Bob")

	bob2 := newStubSocket()
	if err := svc.ConnectPlayer(ctx, pin, "Bob", bob2); err != nil {
		t.Fatalf("reconnect: %v", err)
	}

	if got := len(host.framesOfType(t, "player_joined")); got != 2 {
		t.Fatalf("expected host notified on join and rejoin, got %d", got)
	}
	rec, err := repo.Find(ctx, pin)
	if err != nil {
		t.Fatalf("find game: %v", err)
	}
	if len(rec.Players) != 1 {
		t.Fatalf("expected roster size 1 after reconnect, got %d", len(rec.Players))
	}
}

func TestSecondLiveSocketForNicknameRejected(t *testing.T) {
	svc, _ := newTestService(t, singleQuestion())
	ctx := context.Background()

	pin, _ := svc.CreateGame(ctx)
	if err := svc.ConnectPlayer(ctx, pin, "Bob", newStubSocket()); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if err := svc.ConnectPlayer(ctx, pin, "Bob", newStubSocket()); !errors.Is(err, domain.ErrNicknameTaken) {
		t.Fatalf("expected ErrNicknameTaken, got %v", err)
	}
}

func TestHostRosterReplayOnReconnect(t *testing.T) {
	svc, _ := newTestService(t, singleQuestion())
	ctx := context.Background()

	pin, _ := svc.CreateGame(ctx)
	host := newStubSocket()
	if err := svc.ConnectHost(ctx, pin, host); err != nil {
		t.Fatalf("connect host: %v", err)
	}
	if err := svc.ConnectPlayer(ctx, pin, "Ann", newStubSocket()); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := svc.ConnectPlayer(ctx, pin, "Bob", newStubSocket()); err != nil {
		t.Fatalf("join: %v", err)
	}

	host.drop()
	svc.DisconnectHost(ctx, pin)

	host2 := newStubSocket()
	if err := svc.ConnectHost(ctx, pin, host2); err != nil {
		t.Fatalf("host reconnect: %v", err)
	}
	if got := len(host2.framesOfType(t, "player_joined")); got != 2 {
		t.Fatalf("expected roster replay of 2 players, got %d", got)
	}
}

func TestFinalRankingKeepsJoinOrderOnTies(t *testing.T) {
	questions := []domain.Question{
		{Text: "Q1", Options: []string{"A", "B"}, Answer: 0, TimeLimit: 20},
	}
	svc, _ := newTestService(t, questions)
	ctx := context.Background()

	pin, _ := svc.CreateGame(ctx)
	host := newStubSocket()
	if err := svc.ConnectHost(ctx, pin, host); err != nil {
		t.Fatalf("connect host: %v", err)
	}
	sockets := map[string]*stubSocket{}
	for _, name := range []string{"Ann", "Bob", "Cid"} {
		s := newStubSocket()
		sockets[name] = s
		if err := svc.ConnectPlayer(ctx, pin, name, s); err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
	}
	if err := svc.StartQuiz(ctx, pin); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Bob scores; Ann and Cid tie at zero and must keep join order.
	if err := svc.SubmitAnswer(ctx, pin, sockets["Bob"], 0, 5); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.NextQuestion(ctx, pin); err != nil {
		t.Fatalf("next: %v", err)
	}

	over := host.framesOfType(t, "game_over")
	if len(over) != 1 {
		t.Fatalf("expected game over, got %d", len(over))
	}
	results := over[0]["results"].([]any)
	order := make([]string, 0, len(results))
	for _, r := range results {
		order = append(order, r.(map[string]any)["nickname"].(string))
	}
	if order[0] != "Bob" || order[1] != "Ann" || order[2] != "Cid" {
		t.Fatalf("expected [Bob Ann Cid], got %v", order)
	}
}

func TestStatusProjection(t *testing.T) {
	svc, _ := newTestService(t, singleQuestion())
	ctx := context.Background()

	pin, _ := svc.CreateGame(ctx)
	if err := svc.ConnectPlayer(ctx, pin, "Ann", newStubSocket()); err != nil {
		t.Fatalf("join: %v", err)
	}

	sum, err := svc.Status(ctx, pin)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if sum.Status != domain.StatusWaiting || sum.PlayerCount != 1 || sum.CurrentQuestion != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	if _, err := svc.Status(ctx, "NOPE99"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}
