package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/Davidcode-png/QuizBlitz/internal/app"
	"github.com/Davidcode-png/QuizBlitz/internal/domain"
)

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type hostAction struct {
	Action string `json:"action"`
}

type playerAction struct {
	Action      string  `json:"action"`
	AnswerIndex *int    `json:"answer_index"`
	TimeTaken   float64 `json:"time_taken"`
}

type errorFrame struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

// HostWS drives a host connection: claim the seat, then loop on actions
// until the socket drops.
func (h *WSHandler) HostWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	pin := ps.ByName("pin")
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: host upgrade for game %s failed: %v", pin, err)
		return
	}
	sock := newSocket(conn)
	defer sock.Close()

	if err := h.service.ConnectHost(r.Context(), pin, sock); err != nil {
		_ = sock.Send(errorFrame{Type: "error", Message: err.Error()})
		if errors.Is(err, domain.ErrHostAlreadyConnected) {
			closePolicy(conn, "host already connected")
		}
		return
	}
	// Cleanup uses a fresh context; the request context dies with the socket.
	defer h.service.DisconnectHost(context.Background(), pin)

	for {
		var act hostAction
		if err := conn.ReadJSON(&act); err != nil {
			log.Printf("ws: host read for game %s ended: %v", pin, err)
			return
		}
		var opErr error
		switch act.Action {
		case "start_quiz":
			opErr = h.service.StartQuiz(r.Context(), pin)
		case "next_question":
			opErr = h.service.NextQuestion(r.Context(), pin)
		case "end_game":
			opErr = h.service.EndGame(r.Context(), pin)
		case "":
			// ping/pong frames carry no action
		default:
			opErr = errors.New("unsupported action")
		}
		if opErr != nil {
			_ = sock.Send(errorFrame{Type: "error", Message: opErr.Error()})
		}
	}
}

// PlayerWS drives a player connection. The first inbound frame is the
// nickname; everything after is an action.
func (h *WSHandler) PlayerWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	pin := ps.ByName("pin")
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: player upgrade for game %s failed: %v", pin, err)
		return
	}
	sock := newSocket(conn)
	defer sock.Close()

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return
	}
	nickname := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if nickname == "" {
		_ = sock.Send(errorFrame{Type: "error", Message: "nickname required"})
		closePolicy(conn, "nickname required")
		return
	}

	if err := h.service.ConnectPlayer(r.Context(), pin, nickname, sock); err != nil {
		_ = sock.Send(errorFrame{Type: "error", Message: err.Error()})
		closePolicy(conn, err.Error())
		return
	}
	defer h.service.DisconnectPlayer(context.Background(), pin, nickname)

	for {
		var act playerAction
		if err := conn.ReadJSON(&act); err != nil {
			log.Printf("ws: player %s read for game %s ended: %v", nickname, pin, err)
			return
		}
		var opErr error
		switch act.Action {
		case "submit_answer":
			if act.AnswerIndex == nil {
				opErr = errors.New("answer_index required")
				break
			}
			opErr = h.service.SubmitAnswer(r.Context(), pin, sock, *act.AnswerIndex, act.TimeTaken)
		case "time_up":
			opErr = h.service.HandleTimeout(r.Context(), pin, sock)
		case "":
			// ping/pong frames carry no action
		default:
			opErr = errors.New("unsupported action")
		}
		if opErr != nil {
			_ = sock.Send(errorFrame{Type: "error", Message: opErr.Error()})
		}
	}
}
