package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Davidcode-png/QuizBlitz/internal/app"
	"github.com/Davidcode-png/QuizBlitz/internal/domain"
)

const qrSize = 256

// APIHandler serves the REST surface: game creation, listing, the status
// projection, and a QR code for the player join URL.
type APIHandler struct {
	service   *app.GameService
	publicURL string
}

func NewAPIHandler(service *app.GameService, publicURL string) *APIHandler {
	return &APIHandler{service: service, publicURL: strings.TrimRight(publicURL, "/")}
}

func (h *APIHandler) CreateGame(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pin, err := h.service.CreateGame(r.Context())
	if err != nil {
		log.Printf("api: create game failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"game_pin": pin})
}

func (h *APIHandler) ListGames(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	games, err := h.service.ListGames(r.Context())
	if err != nil {
		log.Printf("api: list games failed: %v", err)
		writeError(w, http.StatusInternalServerError, "could not list games")
		return
	}
	if games == nil {
		games = []domain.GameSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games})
}

func (h *APIHandler) GameStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sum, err := h.service.Status(r.Context(), ps.ByName("pin"))
	if errors.Is(err, domain.ErrGameNotFound) {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	if err != nil {
		log.Printf("api: game status failed: %v", err)
		writeError(w, http.StatusInternalServerError, "could not read game")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// JoinQR renders the join URL for a game as a PNG QR code.
func (h *APIHandler) JoinQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	pin := ps.ByName("pin")
	if _, err := h.service.Status(r.Context(), pin); err != nil {
		if errors.Is(err, domain.ErrGameNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		log.Printf("api: qr lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "could not read game")
		return
	}

	url := fmt.Sprintf("%s/join/%s", h.publicURL, pin)
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		log.Printf("api: qr encode for game %s failed: %v", pin, err)
		writeError(w, http.StatusInternalServerError, "could not generate qr code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
