package app

import "github.com/Davidcode-png/QuizBlitz/internal/domain"

// One JSON object per websocket frame. Players never receive the correct
// answer; only the host frames carry it.

type questionFrame struct {
	Type      string   `json:"type"` // "question"
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	TimeLimit int      `json:"time_limit"`
}

type hostQuestionFrame struct {
	Type           string   `json:"type"` // "current_question_host"
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	QuestionNumber int      `json:"question_number"`
	TotalQuestions int      `json:"total_questions"`
	TimeLimit      int      `json:"time_limit"`
	CorrectAnswer  int      `json:"correct_answer"`
}

type answerRevealFrame struct {
	Type      string   `json:"type"` // "answer_reveal"
	IsCorrect bool     `json:"is_correct"`
	NewScore  int      `json:"new_score"`
	TimeTaken *float64 `json:"time_taken,omitempty"` // absent on timeout
}

type leaderboardFrame struct {
	Type       string                `json:"type"` // "leaderboard_update"
	TopPlayers []domain.RankedPlayer `json:"top_players"`
}

type playerJoinedFrame struct {
	Type     string `json:"type"` // "player_joined"
	Nickname string `json:"nickname"`
}

type playerLeftFrame struct {
	Type     string `json:"type"` // "player_left"
	Nickname string `json:"nickname"`
}

type joinedFrame struct {
	Type     string `json:"type"` // "joined"
	Nickname string `json:"nickname"`
	GamePin  string `json:"game_pin"`
}

type playerAnsweredFrame struct {
	Type          string `json:"type"` // "player_answered"
	Nickname      string `json:"nickname"`
	QuestionIndex int    `json:"question_index"`
	AnswerIndex   int    `json:"answer_index"`
	IsCorrect     bool   `json:"is_correct"`
	ScoreAdded    int    `json:"score_added"`
	NewScore      int    `json:"new_score"`
}

type playerTimeoutFrame struct {
	Type          string `json:"type"` // "player_timeout"
	Nickname      string `json:"nickname"`
	QuestionIndex int    `json:"question_index"`
}

type gameOverFrame struct {
	Type    string                `json:"type"` // "game_over"
	Results []domain.RankedPlayer `json:"results"`
}

type hostDisconnectedFrame struct {
	Type string `json:"type"` // "host_disconnected"
}
