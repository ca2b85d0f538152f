package domain

import "time"

// Status is the lifecycle state of a game. Transitions are monotonic:
// waiting -> in_progress -> finished, and finished is terminal.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

// DefaultTimeLimit is applied when a stored question omits its time limit.
const DefaultTimeLimit = 30

// Question is an immutable multiple-choice question. Answer is the index
// of the correct option.
type Question struct {
	Text      string   `json:"question"`
	Options   []string `json:"options"`
	Answer    int      `json:"answer"`
	TimeLimit int      `json:"time_limit"` // seconds, zero means DefaultTimeLimit
}

// Valid reports whether the question satisfies its invariants:
// at least two options and 0 <= Answer < len(Options).
func (q Question) Valid() bool {
	return len(q.Options) >= 2 && q.Answer >= 0 && q.Answer < len(q.Options)
}

// Limit returns the effective per-question time limit in seconds.
func (q Question) Limit() int {
	if q.TimeLimit <= 0 {
		return DefaultTimeLimit
	}
	return q.TimeLimit
}

// PlayerRecord holds the durable fields of a player. Transport handles live
// in the connection registry, never here.
type PlayerRecord struct {
	Nickname  string    `json:"nickname"`
	Score     int       `json:"score"`
	Connected bool      `json:"connected"`
	JoinedAt  time.Time `json:"joined_at"`
}

// GameRecord is the persisted shape of one game, keyed by pin. Players keep
// join order; end-of-game ties are broken by that order.
type GameRecord struct {
	Pin               string         `json:"game_pin"`
	Status            Status         `json:"game_status"`
	CurrentQuestion   int            `json:"current_question_index"`
	QuestionStartedAt *time.Time     `json:"current_question_start_time,omitempty"`
	HostConnected     bool           `json:"host_connected"`
	Questions         []Question     `json:"questions"`
	Players           []PlayerRecord `json:"players"`
	CreatedAt         time.Time      `json:"created_at"`
}

// GameSummary is the read projection exposed by the status endpoint.
type GameSummary struct {
	Pin             string `json:"game_pin"`
	Status          Status `json:"status"`
	PlayerCount     int    `json:"player_count"`
	CurrentQuestion int    `json:"current_question_index"`
}

// RankedPlayer is one row of the final results, best score first.
type RankedPlayer struct {
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
}
