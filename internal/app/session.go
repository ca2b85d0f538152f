package app

import (
	"sort"
	"sync"
	"time"

	"github.com/Davidcode-png/QuizBlitz/internal/domain"
)

// session is the resident in-memory state of one game, hydrated lazily from
// storage and evicted once no connection claim remains. All mutation happens
// under mu; two players answering the same question race only up to the lock.
type session struct {
	pin string

	mu                sync.Mutex
	status            domain.Status
	cursor            int
	questionStartedAt *time.Time
	questions         []domain.Question
	players           []*playerState // join order, the tie-breaker for rankings
	byNickname        map[string]*playerState
	answers           map[int]map[string]int // question index -> nickname -> option
}

type playerState struct {
	nickname  string
	score     int
	connected bool
}

func sessionFromRecord(rec domain.GameRecord) *session {
	s := &session{
		pin:               rec.Pin,
		status:            rec.Status,
		cursor:            rec.CurrentQuestion,
		questionStartedAt: rec.QuestionStartedAt,
		questions:         rec.Questions,
		byNickname:        make(map[string]*playerState, len(rec.Players)),
		answers:           make(map[int]map[string]int),
	}
	for _, p := range rec.Players {
		ps := &playerState{nickname: p.Nickname, score: p.Score, connected: p.Connected}
		s.players = append(s.players, ps)
		s.byNickname[p.Nickname] = ps
	}
	return s
}

// rankedLocked returns up to limit players sorted by score descending.
// The sort is stable over join order, so equal scores keep their relative
// join positions. limit <= 0 means everyone.
func (s *session) rankedLocked(limit int) []domain.RankedPlayer {
	ranked := make([]domain.RankedPlayer, 0, len(s.players))
	for _, p := range s.players {
		ranked = append(ranked, domain.RankedPlayer{Nickname: p.nickname, Score: p.score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
