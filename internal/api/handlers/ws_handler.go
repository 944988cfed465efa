package handlers

import (
	"net/http"

	"github.com/branchcanvas/engine/internal/api/ws"
)

// Websocket hands an authenticated request to the hub.
func Websocket(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUserID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		hub.ServeUser(w, r, userID)
	}
}
