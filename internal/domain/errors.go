package domain

import "errors"

var (
	// ErrGameNotFound is returned when no game exists for a pin.
	ErrGameNotFound = errors.New("game not found")
	// ErrHostAlreadyConnected rejects a second live host socket for a game.
	ErrHostAlreadyConnected = errors.New("host already connected")
	// ErrNoHostConnected is returned when an operation needs a live host claim.
	ErrNoHostConnected = errors.New("no host connected")
	// ErrNicknameTaken rejects a join for a nickname with a live connection.
	ErrNicknameTaken = errors.New("nickname already taken")
	// ErrNoQuestions aborts game creation when the question set is empty.
	ErrNoQuestions = errors.New("no questions available")
	// ErrGameNotInProgress rejects quiz operations outside in_progress.
	ErrGameNotInProgress = errors.New("game is not in progress")
	// ErrQuizAlreadyStarted rejects start_quiz once the game has left waiting.
	ErrQuizAlreadyStarted = errors.New("quiz already started")
	// ErrInvalidQuestionIndex indicates the question cursor has moved on.
	ErrInvalidQuestionIndex = errors.New("invalid question index")
	// ErrPlayerNotFound indicates the socket holds no player claim for the game.
	ErrPlayerNotFound = errors.New("player not found in game")
)
