package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/stockfolio/stockfolio/internal/auth"
	"github.com/stockfolio/stockfolio/internal/db"
	"github.com/stockfolio/stockfolio/internal/engine"
	"github.com/stockfolio/stockfolio/internal/quotes"
)

type ctxKey int

const userIDKey ctxKey = iota

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Engine *engine.Engine
	Auth   *auth.AuthService
	Log    *zap.SugaredLogger
}

// NewHandler creates a new handler
func NewHandler(eng *engine.Engine, authService *auth.AuthService, log *zap.SugaredLogger) *Handler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Handler{Engine: eng, Auth: authService, Log: log}
}

// UserIDFromContext returns the authenticated user set by the middleware
func UserIDFromContext(ctx context.Context) (int, bool) {
	userID, ok := ctx.Value(userIDKey).(int)
	return userID, ok
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Register handles user registration. The new user is logged in right away,
// so the response carries a session token alongside the account.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.Auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, db.ErrDuplicateUsername):
			writeError(w, http.StatusConflict, "Username already exists")
		default:
			h.Log.Errorw("register failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to register user")
		}
		return
	}

	token, err := h.Auth.GenerateToken(user)
	if err != nil {
		h.Log.Errorw("token generation failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
		"token":    token,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := h.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.Log.Errorw("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies session tokens and attaches the user identity
// to the request context. Unauthenticated requests are refused here; no
// protected handler runs without an identity.
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		userID, err := h.Auth.UserIDFromToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetQuote looks up a single symbol
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "Symbol required")
		return
	}

	quote, err := h.Engine.GetQuote(r.Context(), symbol)
	if err != nil {
		h.writeTradeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// Buy executes a buy trade for the authenticated user
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.Engine.Buy)
}

// Sell executes a sell trade for the authenticated user
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.Engine.Sell)
}

func (h *Handler) trade(w http.ResponseWriter, r *http.Request, exec func(context.Context, int, string, int64) (*engine.Receipt, error)) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req struct {
		Symbol string `json:"symbol"`
		Shares int64  `json:"shares"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	receipt, err := exec(r.Context(), userID, req.Symbol, req.Shares)
	if err != nil {
		h.writeTradeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// writeTradeError maps engine and store errors to HTTP responses. Expected
// rejections get their own message; infrastructure failures are logged and
// surfaced generically.
func (h *Handler) writeTradeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidQuantity),
		errors.Is(err, quotes.ErrUnknownSymbol),
		errors.Is(err, db.ErrInsufficientFunds),
		errors.Is(err, db.ErrInsufficientShares):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, quotes.ErrUnavailable):
		h.Log.Errorw("quote provider unavailable", "error", err)
		writeError(w, http.StatusBadGateway, "Quote provider unavailable")
	default:
		h.Log.Errorw("trade failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

// GetPortfolio returns the authenticated user's holdings valued at current
// quotes, plus cash and totals
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	portfolio, err := h.Engine.Portfolio(r.Context(), userID)
	if err != nil {
		h.Log.Errorw("portfolio read failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve portfolio")
		return
	}
	writeJSON(w, http.StatusOK, portfolio)
}

// GetHistory returns the authenticated user's transaction log
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	txns, err := h.Engine.History(r.Context(), userID)
	if err != nil {
		h.Log.Errorw("history read failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve history")
		return
	}
	writeJSON(w, http.StatusOK, txns)
}
