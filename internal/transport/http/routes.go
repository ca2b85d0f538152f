package http

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// NewRouter wires the REST and websocket endpoints.
func NewRouter(api *APIHandler, ws *WSHandler) *httprouter.Router {
	router := httprouter.New()

	router.POST("/api/host/new", api.CreateGame)
	router.GET("/api/host/list-games", api.ListGames)
	router.GET("/api/games/:pin", api.GameStatus)
	router.GET("/api/games/:pin/qr", api.JoinQR)

	router.GET("/ws/host/:pin", ws.HostWS)
	router.GET("/ws/join/:pin", ws.PlayerWS)

	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Write([]byte("ok"))
	})

	return router
}
