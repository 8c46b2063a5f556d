package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// portfolioPushInterval is how often an open stream re-values the portfolio.
const portfolioPushInterval = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// PortfolioStream upgrades the connection and pushes the caller's portfolio
// valuation on an interval until the client disconnects. Browsers cannot set
// an Authorization header on websocket dials, so the token rides the query
// string.
func (h *Handler) PortfolioStream(w http.ResponseWriter, r *http.Request) {
	userID, err := h.Auth.UserIDFromToken(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Errorw("failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	// Drain client frames so close frames are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(portfolioPushInterval)
	defer ticker.Stop()

	for {
		portfolio, err := h.Engine.Portfolio(r.Context(), userID)
		if err != nil {
			h.Log.Errorw("portfolio stream read failed", "user_id", userID, "error", err)
			return
		}
		if err := conn.WriteJSON(portfolio); err != nil {
			return
		}

		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
