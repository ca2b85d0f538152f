package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/Davidcode-png/QuizBlitz/internal/domain"
	"github.com/Davidcode-png/QuizBlitz/internal/registry"
)

// GameRepository abstracts the document store holding games. Updates are
// partial: nil fields are left untouched. Semantics are at-least-once; the
// runtime logs and degrades on update failures rather than aborting play.
type GameRepository interface {
	Insert(ctx context.Context, rec domain.GameRecord) error
	Find(ctx context.Context, pin string) (domain.GameRecord, error)
	Exists(ctx context.Context, pin string) (bool, error)
	Update(ctx context.Context, pin string, upd GameUpdate) error
	AddPlayer(ctx context.Context, pin string, p domain.PlayerRecord) error
	UpdatePlayer(ctx context.Context, pin, nickname string, upd PlayerUpdate) error
	List(ctx context.Context) ([]domain.GameSummary, error)
}

// GameUpdate is a partial update of a game's durable fields.
type GameUpdate struct {
	Status            *domain.Status
	CurrentQuestion   *int
	QuestionStartedAt *time.Time
	HostConnected     *bool
}

// PlayerUpdate is a partial update of one player's durable fields.
type PlayerUpdate struct {
	Score     *int
	Connected *bool
}

// QuestionSource loads question sets (from cache/backing store).
type QuestionSource interface {
	QuestionSet(ctx context.Context, setID string) ([]domain.Question, error)
}

// ConnectionRegistry is the registry surface the runtime drives; satisfied
// by *registry.Registry.
type ConnectionRegistry interface {
	ClaimHost(ctx context.Context, pin string, s registry.Socket) error
	ClaimPlayer(ctx context.Context, pin, nickname string, s registry.Socket)
	ReleaseHost(pin string)
	ReleasePlayer(pin, nickname string)
	Host(pin string) registry.Socket
	Player(pin, nickname string) registry.Socket
	NicknameFor(pin string, s registry.Socket) (string, bool)
	ToHost(pin string, msg any)
	ToPlayers(pin string, msg any, exclude string)
	ToAll(pin string, msg any)
	Roster(ctx context.Context, pin string) []string
	HasClaims(pin string) bool
	CleanupGame(pin string)
}

const (
	pinAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no I, O, 0, 1
	pinLength   = 6
	pinAttempts = 10

	leaderboardSize = 10
	maxScore        = 1000

	// answerGraceSeconds absorbs network latency before the server clock
	// overrides a client-reported answer time.
	answerGraceSeconds = 2.0
)

// GameService orchestrates game sessions: admission, question advancement,
// answer scoring, and end-of-game tally. One instance per process, built at
// startup and handed to every connection handler.
type GameService struct {
	repo       GameRepository
	questions  QuestionSource
	conns      ConnectionRegistry
	defaultSet string
	now        func() time.Time

	mu       sync.RWMutex
	resident map[string]*session
}

func NewGameService(repo GameRepository, questions QuestionSource, conns ConnectionRegistry, defaultSet string) *GameService {
	return &GameService{
		repo:       repo,
		questions:  questions,
		conns:      conns,
		defaultSet: defaultSet,
		now:        time.Now,
		resident:   make(map[string]*session),
	}
}

// CreateGame persists a new waiting game under a fresh pin and returns the
// pin. No session state is kept in memory yet; the first connection event
// hydrates it.
func (s *GameService) CreateGame(ctx context.Context) (string, error) {
	questions, err := s.questions.QuestionSet(ctx, s.defaultSet)
	if err != nil {
		return "", err
	}
	valid := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if q.Valid() {
			valid = append(valid, q)
		} else {
			log.Printf("game: dropping malformed question %q from set %s", q.Text, s.defaultSet)
		}
	}
	if len(valid) == 0 {
		return "", domain.ErrNoQuestions
	}

	pin, err := s.uniquePin(ctx)
	if err != nil {
		return "", err
	}

	rec := domain.GameRecord{
		Pin:             pin,
		Status:          domain.StatusWaiting,
		CurrentQuestion: 0,
		Questions:       valid,
		CreatedAt:       s.now(),
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		return "", fmt.Errorf("persist game: %w", err)
	}
	log.Printf("game: created game %s with %d questions", pin, len(valid))
	return pin, nil
}

// uniquePin generates random pins until one is free. A collision triggers
// regeneration, not failure; the attempt cap only guards a broken store.
func (s *GameService) uniquePin(ctx context.Context) (string, error) {
	for i := 0; i < pinAttempts; i++ {
		pin, err := generatePin()
		if err != nil {
			return "", err
		}
		taken, err := s.repo.Exists(ctx, pin)
		if err != nil {
			return "", fmt.Errorf("check pin: %w", err)
		}
		if !taken {
			return pin, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique game pin")
}

func generatePin() (string, error) {
	buf := make([]byte, pinLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = pinAlphabet[int(b)%len(pinAlphabet)]
	}
	return string(buf), nil
}

// hydrate returns the resident session for a pin, loading it from storage on
// first touch.
func (s *GameService) hydrate(ctx context.Context, pin string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.resident[pin]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}

	rec, err := s.repo.Find(ctx, pin)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.resident[pin]; ok {
		return sess, nil
	}
	sess = sessionFromRecord(rec)
	s.resident[pin] = sess
	return sess, nil
}

func (s *GameService) isResident(pin string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.resident[pin]
	return ok
}

// evictIfIdle drops the resident session once no host or player claim
// remains. Called after every claim release; the durable record stays
// queryable in storage.
func (s *GameService) evictIfIdle(pin string) {
	if s.conns.HasClaims(pin) {
		return
	}
	s.mu.Lock()
	if _, ok := s.resident[pin]; ok {
		delete(s.resident, pin)
		log.Printf("game: evicted idle session %s", pin)
	}
	s.mu.Unlock()
}

// ConnectHost admits a host socket. The host seat is exclusive while a live
// claim exists, but survives disconnects: a returning host reclaims it and
// gets the roster replayed so its view reconstructs.
func (s *GameService) ConnectHost(ctx context.Context, pin string, sock registry.Socket) error {
	if _, err := s.hydrate(ctx, pin); err != nil {
		return err
	}
	if err := s.conns.ClaimHost(ctx, pin, sock); err != nil {
		return err
	}

	// The shared store answers "who is in this game" even for players whose
	// sockets live on another process.
	for _, nickname := range s.conns.Roster(ctx, pin) {
		if err := sock.Send(playerJoinedFrame{Type: "player_joined", Nickname: nickname}); err != nil {
			log.Printf("game: roster replay to host of %s failed: %v", pin, err)
			break
		}
	}

	connected := true
	if err := s.repo.Update(ctx, pin, GameUpdate{HostConnected: &connected}); err != nil {
		log.Printf("game: marking host connected for %s failed: %v", pin, err)
	}
	return nil
}

// ConnectPlayer admits a player socket. A known nickname without a live
// claim reconnects in place; a known nickname with a live claim is rejected
// rather than silently taken over; a new nickname joins with score 0.
func (s *GameService) ConnectPlayer(ctx context.Context, pin, nickname string, sock registry.Socket) error {
	sess, err := s.hydrate(ctx, pin)
	if err != nil {
		return err
	}

	// Check and insert under one lock: two racing joins with the same new
	// nickname must not both append a roster entry. The loser observes the
	// winner's entry and falls through to the reconnection path.
	sess.mu.Lock()
	p, known := sess.byNickname[nickname]
	if !known {
		p = &playerState{nickname: nickname, score: 0, connected: true}
		sess.players = append(sess.players, p)
		sess.byNickname[nickname] = p
	}
	sess.mu.Unlock()

	if known {
		if live := s.conns.Player(pin, nickname); live != nil {
			return domain.ErrNicknameTaken
		}
		s.conns.ClaimPlayer(ctx, pin, nickname, sock)
		sess.mu.Lock()
		p.connected = true
		sess.mu.Unlock()
		yes := true
		if err := s.repo.UpdatePlayer(ctx, pin, nickname, PlayerUpdate{Connected: &yes}); err != nil {
			log.Printf("game: marking player %s reconnected in %s failed: %v", nickname, pin, err)
		}
		s.conns.ToHost(pin, playerJoinedFrame{Type: "player_joined", Nickname: nickname})
		_ = sock.Send(joinedFrame{Type: "joined", Nickname: nickname, GamePin: pin})
		log.Printf("game: player %s reconnected to %s", nickname, pin)
		return nil
	}

	s.conns.ClaimPlayer(ctx, pin, nickname, sock)

	if err := s.repo.AddPlayer(ctx, pin, domain.PlayerRecord{
		Nickname:  nickname,
		Score:     0,
		Connected: true,
		JoinedAt:  s.now(),
	}); err != nil {
		log.Printf("game: persisting player %s in %s failed: %v", nickname, pin, err)
	}

	s.conns.ToHost(pin, playerJoinedFrame{Type: "player_joined", Nickname: nickname})
	s.conns.ToPlayers(pin, playerJoinedFrame{Type: "player_joined", Nickname: nickname}, nickname)
	_ = sock.Send(joinedFrame{Type: "joined", Nickname: nickname, GamePin: pin})
	return nil
}

// StartQuiz moves a waiting game to in_progress and sends the first
// question. Requires a live host claim.
func (s *GameService) StartQuiz(ctx context.Context, pin string) error {
	sess, err := s.hydrate(ctx, pin)
	if err != nil {
		return err
	}
	if s.conns.Host(pin) == nil {
		return domain.ErrNoHostConnected
	}

	sess.mu.Lock()
	if sess.status != domain.StatusWaiting {
		sess.mu.Unlock()
		return domain.ErrQuizAlreadyStarted
	}
	sess.status = domain.StatusInProgress
	sess.cursor = 0
	sess.mu.Unlock()

	status := domain.StatusInProgress
	cursor := 0
	if err := s.repo.Update(ctx, pin, GameUpdate{Status: &status, CurrentQuestion: &cursor}); err != nil {
		log.Printf("game: persisting quiz start for %s failed: %v", pin, err)
	}
	return s.advance(ctx, sess)
}

// advance sends the question under the cursor, or ends the game when the
// cursor is exhausted. Players get the question without the answer; the host
// additionally gets the correct index and progress counters.
func (s *GameService) advance(ctx context.Context, sess *session) error {
	sess.mu.Lock()
	if sess.cursor >= len(sess.questions) {
		sess.mu.Unlock()
		return s.finish(ctx, sess)
	}
	q := sess.questions[sess.cursor]
	startedAt := s.now()
	sess.questionStartedAt = &startedAt
	sess.answers[sess.cursor] = make(map[string]int)
	number := sess.cursor + 1
	total := len(sess.questions)
	sess.mu.Unlock()

	if err := s.repo.Update(ctx, sess.pin, GameUpdate{QuestionStartedAt: &startedAt}); err != nil {
		log.Printf("game: persisting question start for %s failed: %v", sess.pin, err)
	}

	s.conns.ToPlayers(sess.pin, questionFrame{
		Type:      "question",
		Question:  q.Text,
		Options:   q.Options,
		TimeLimit: q.Limit(),
	}, "")
	s.conns.ToHost(sess.pin, hostQuestionFrame{
		Type:           "current_question_host",
		Question:       q.Text,
		Options:        q.Options,
		QuestionNumber: number,
		TotalQuestions: total,
		TimeLimit:      q.Limit(),
		CorrectAnswer:  q.Answer,
	})
	return nil
}

// SubmitAnswer records one player's answer for the current question. The
// player is resolved by socket identity; the first recorded answer per
// nickname and question wins, a late resubmission is a silent no-op.
func (s *GameService) SubmitAnswer(ctx context.Context, pin string, sock registry.Socket, optionIndex int, timeTaken float64) error {
	sess, err := s.hydrate(ctx, pin)
	if err != nil {
		return err
	}
	nickname, ok := s.conns.NicknameFor(pin, sock)
	if !ok {
		return domain.ErrPlayerNotFound
	}

	sess.mu.Lock()
	if sess.status != domain.StatusInProgress {
		sess.mu.Unlock()
		return domain.ErrGameNotInProgress
	}
	if sess.cursor >= len(sess.questions) {
		sess.mu.Unlock()
		return domain.ErrInvalidQuestionIndex
	}
	p := sess.byNickname[nickname]
	if p == nil {
		sess.mu.Unlock()
		return domain.ErrPlayerNotFound
	}
	ledger := sess.answers[sess.cursor]
	if ledger == nil {
		ledger = make(map[string]int)
		sess.answers[sess.cursor] = ledger
	}
	if _, already := ledger[nickname]; already {
		sess.mu.Unlock()
		return nil // first answer wins
	}
	ledger[nickname] = optionIndex

	q := sess.questions[sess.cursor]
	correct := optionIndex == q.Answer
	added := 0
	if correct {
		added = scoreFor(q.Limit(), effectiveTaken(sess.questionStartedAt, s.now(), timeTaken))
		p.score += added
	}
	newScore := p.score
	questionIndex := sess.cursor
	top := sess.rankedLocked(leaderboardSize)
	sess.mu.Unlock()

	if correct {
		score := newScore
		if err := s.repo.UpdatePlayer(ctx, pin, nickname, PlayerUpdate{Score: &score}); err != nil {
			log.Printf("game: persisting score for %s in %s failed: %v", nickname, pin, err)
		}
	}

	taken := timeTaken
	if err := sock.Send(answerRevealFrame{
		Type:      "answer_reveal",
		IsCorrect: correct,
		NewScore:  newScore,
		TimeTaken: &taken,
	}); err != nil {
		log.Printf("game: answer reveal to %s in %s failed: %v", nickname, pin, err)
	}
	s.conns.ToPlayers(pin, leaderboardFrame{Type: "leaderboard_update", TopPlayers: top}, "")
	s.conns.ToHost(pin, playerAnsweredFrame{
		Type:          "player_answered",
		Nickname:      nickname,
		QuestionIndex: questionIndex,
		AnswerIndex:   optionIndex,
		IsCorrect:     correct,
		ScoreAdded:    added,
		NewScore:      newScore,
	})
	return nil
}

// effectiveTaken floors the client-reported answer time with the
// server-observed elapsed time, less a latency grace, so understating
// time_taken cannot earn extra credit.
func effectiveTaken(startedAt *time.Time, now time.Time, taken float64) float64 {
	if startedAt == nil {
		return taken
	}
	elapsed := now.Sub(*startedAt).Seconds() - answerGraceSeconds
	if elapsed > taken {
		return elapsed
	}
	return taken
}

// scoreFor maps time taken to points: the full window decreases linearly
// from 1000 to 0, clamped at zero for late or over-time submissions.
func scoreFor(timeLimit int, timeTaken float64) int {
	if timeLimit <= 0 {
		return 0
	}
	remaining := (float64(timeLimit) - timeTaken) / float64(timeLimit)
	if remaining < 0 {
		remaining = 0
	}
	return int(math.Round(maxScore * remaining))
}

// HandleTimeout reports a client-side "time's up" for a player who has not
// answered the current question. The answer ledger is left untouched; a
// timeout is distinguishable from a wrong answer only by the missing entry.
func (s *GameService) HandleTimeout(ctx context.Context, pin string, sock registry.Socket) error {
	sess, err := s.hydrate(ctx, pin)
	if err != nil {
		return err
	}
	nickname, ok := s.conns.NicknameFor(pin, sock)
	if !ok {
		return domain.ErrPlayerNotFound
	}

	sess.mu.Lock()
	if sess.status != domain.StatusInProgress || sess.cursor >= len(sess.questions) {
		sess.mu.Unlock()
		return nil // a straggling time_up after the game moved on is normal
	}
	_, answered := sess.answers[sess.cursor][nickname]
	score := 0
	if p := sess.byNickname[nickname]; p != nil {
		score = p.score
	}
	questionIndex := sess.cursor
	sess.mu.Unlock()

	if answered {
		return nil
	}
	if err := sock.Send(answerRevealFrame{Type: "answer_reveal", IsCorrect: false, NewScore: score}); err != nil {
		log.Printf("game: timeout reveal to %s in %s failed: %v", nickname, pin, err)
	}
	s.conns.ToHost(pin, playerTimeoutFrame{Type: "player_timeout", Nickname: nickname, QuestionIndex: questionIndex})
	return nil
}

// NextQuestion advances the cursor and either sends the next question or
// ends the game when the list is exhausted.
func (s *GameService) NextQuestion(ctx context.Context, pin string) error {
	sess, err := s.hydrate(ctx, pin)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.status != domain.StatusInProgress {
		sess.mu.Unlock()
		return domain.ErrGameNotInProgress
	}
	sess.cursor++
	cursor := sess.cursor
	sess.mu.Unlock()

	if err := s.repo.Update(ctx, pin, GameUpdate{CurrentQuestion: &cursor}); err != nil {
		log.Printf("game: persisting cursor for %s failed: %v", pin, err)
	}
	return s.advance(ctx, sess)
}

// EndGame lets the host end a game early.
func (s *GameService) EndGame(ctx context.Context, pin string) error {
	sess, err := s.hydrate(ctx, pin)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	finished := sess.status == domain.StatusFinished
	sess.mu.Unlock()
	if finished {
		return nil
	}
	return s.finish(ctx, sess)
}

// finish marks the game finished, broadcasts the final ranking, releases
// every claim, and evicts the session. The persisted terminal state remains
// queryable after eviction.
func (s *GameService) finish(ctx context.Context, sess *session) error {
	sess.mu.Lock()
	sess.status = domain.StatusFinished
	results := sess.rankedLocked(0)
	pin := sess.pin
	sess.mu.Unlock()

	status := domain.StatusFinished
	if err := s.repo.Update(ctx, pin, GameUpdate{Status: &status}); err != nil {
		log.Printf("game: persisting finish for %s failed: %v", pin, err)
	}

	s.conns.ToAll(pin, gameOverFrame{Type: "game_over", Results: results})
	s.conns.CleanupGame(pin)
	s.evictIfIdle(pin)
	log.Printf("game: finished game %s with %d players", pin, len(results))
	return nil
}

// DisconnectHost releases the host claim. The seat persists in storage so a
// returning host can reclaim it.
func (s *GameService) DisconnectHost(ctx context.Context, pin string) {
	s.conns.ReleaseHost(pin)
	connected := false
	if err := s.repo.Update(ctx, pin, GameUpdate{HostConnected: &connected}); err != nil {
		log.Printf("game: marking host disconnected for %s failed: %v", pin, err)
	}
	s.conns.ToPlayers(pin, hostDisconnectedFrame{Type: "host_disconnected"}, "")
	s.evictIfIdle(pin)
}

// DisconnectPlayer releases a player's claim and marks the roster entry
// disconnected; the entry itself is never deleted.
func (s *GameService) DisconnectPlayer(ctx context.Context, pin, nickname string) {
	s.conns.ReleasePlayer(pin, nickname)

	s.mu.RLock()
	sess := s.resident[pin]
	s.mu.RUnlock()
	if sess != nil {
		sess.mu.Lock()
		if p := sess.byNickname[nickname]; p != nil {
			p.connected = false
		}
		sess.mu.Unlock()
	}

	no := false
	if err := s.repo.UpdatePlayer(ctx, pin, nickname, PlayerUpdate{Connected: &no}); err != nil {
		log.Printf("game: marking player %s disconnected in %s failed: %v", nickname, pin, err)
	}

	s.conns.ToHost(pin, playerLeftFrame{Type: "player_left", Nickname: nickname})
	s.conns.ToPlayers(pin, playerLeftFrame{Type: "player_left", Nickname: nickname}, nickname)
	s.evictIfIdle(pin)
}

// Status is a pure read projection over the game, served from the resident
// session when present and from storage otherwise, so it keeps working after
// eviction.
func (s *GameService) Status(ctx context.Context, pin string) (domain.GameSummary, error) {
	s.mu.RLock()
	sess := s.resident[pin]
	s.mu.RUnlock()
	if sess != nil {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return domain.GameSummary{
			Pin:             pin,
			Status:          sess.status,
			PlayerCount:     len(sess.players),
			CurrentQuestion: sess.cursor,
		}, nil
	}

	rec, err := s.repo.Find(ctx, pin)
	if err != nil {
		return domain.GameSummary{}, err
	}
	return domain.GameSummary{
		Pin:             rec.Pin,
		Status:          rec.Status,
		PlayerCount:     len(rec.Players),
		CurrentQuestion: rec.CurrentQuestion,
	}, nil
}

// ListGames lists all games known to the store.
func (s *GameService) ListGames(ctx context.Context) ([]domain.GameSummary, error) {
	return s.repo.List(ctx)
}
