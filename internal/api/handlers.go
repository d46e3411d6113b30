package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xtrntr/papertrade/internal/apperr"
	"github.com/xtrntr/papertrade/internal/auth"
	"github.com/xtrntr/papertrade/internal/ledger"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/report"
	"github.com/xtrntr/papertrade/internal/trading"
)

// QuoteFetcher resolves a symbol and says why when it cannot
type QuoteFetcher interface {
	Fetch(ctx context.Context, symbol string) (*models.Quote, error)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Store       ledger.Store
	Engine      *trading.Engine
	Reporter    *report.Reporter
	Quotes      QuoteFetcher
	AuthService *auth.AuthService
	Log         *slog.Logger

	// SecureCookie marks the session cookie Secure (HTTPS deployments)
	SecureCookie bool
}

// NewHandler creates a new handler
func NewHandler(store ledger.Store, engine *trading.Engine, reporter *report.Reporter, quotes QuoteFetcher, authService *auth.AuthService, logger *slog.Logger) *Handler {
	return &Handler{
		Store:       store,
		Engine:      engine,
		Reporter:    reporter,
		Quotes:      quotes,
		AuthService: authService,
		Log:         logger,
	}
}

// Routes returns the application router. Callers may add routes to it.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.RequestLogger)
	r.Use(h.Recoverer)
	r.Use(NoCache)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})

	// Public endpoints
	r.Post("/register", h.Register)
	r.Get("/login", h.LoginHint)
	r.Post("/login", h.Login)
	r.Get("/logout", h.Logout)
	r.Post("/logout", h.Logout)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Protected endpoints (require a session)
	r.Group(func(r chi.Router) {
		r.Use(h.RequireSession)
		r.Get("/", h.Portfolio)
		r.Post("/buy", h.Buy)
		r.Post("/sell", h.Sell)
		r.Get("/quote", h.Quote)
		r.Get("/history", h.History)
		r.Get("/leaderboard", h.Leaderboard)
	})
	return r
}

func (h *Handler) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		Experience string `json:"experience"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.InvalidInput, "Invalid request body"))
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Username, req.Password, req.Experience)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         user.ID,
		"username":   user.Username,
		"experience": user.Experience,
		"cash":       newAmount(user.Cash),
	})
}

// LoginHint is where unauthenticated requests are redirected
func (h *Handler) LoginHint(w http.ResponseWriter, r *http.Request) {
	clearSession(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "POST username and password to /login"})
}

// Login handles user login; the token is returned and set as the session cookie.
// A failed attempt also ends any session the client already had.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		clearSession(w)
		writeError(w, apperr.New(apperr.InvalidInput, "Invalid request body"))
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		clearSession(w)
		h.fail(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Logout drops the session cookie
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	clearSession(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Portfolio shows cash and holdings valued at live prices
func (h *Handler) Portfolio(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())

	p, err := h.Reporter.Portfolio(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPortfolioView(p))
}

// tradeRequest accepts quantity as a JSON number or a numeric string, as form posts send it
type tradeRequest struct {
	Symbol   string          `json:"symbol"`
	Quantity json.RawMessage `json:"quantity"`
}

// decodeTrade reads a trade request; quantity must be a whole number
func decodeTrade(r *http.Request) (string, int, error) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", 0, apperr.New(apperr.InvalidInput, "Invalid request body")
	}
	if strings.TrimSpace(req.Symbol) == "" {
		return "", 0, apperr.New(apperr.InvalidInput, "must provide stock symbol")
	}
	raw := string(req.Quantity)
	if s, err := strconv.Unquote(raw); err == nil {
		raw = s
	}
	qty, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || qty <= 0 {
		return "", 0, apperr.New(apperr.InvalidInput, "quantity invalid")
	}
	return req.Symbol, qty, nil
}

// Buy purchases shares at the current price
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.Engine.Buy)
}

// Sell disposes of owned shares at the current price
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.Engine.Sell)
}

func (h *Handler) trade(w http.ResponseWriter, r *http.Request, exec func(context.Context, int, string, int) (models.Transaction, error)) {
	userID, _ := UserIDFrom(r.Context())

	symbol, qty, err := decodeTrade(r)
	if err != nil {
		writeError(w, err)
		return
	}

	txn, err := exec(r.Context(), userID, symbol, qty)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "Trade executed",
		"transaction": newTransactionView(txn),
	})
}

// Quote looks up the current price of a symbol
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		writeError(w, apperr.New(apperr.InvalidInput, "must provide stock symbol"))
		return
	}

	q, err := h.Quotes.Fetch(r.Context(), symbol)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":   q.Name,
		"symbol": q.Symbol,
		"price":  newAmount(q.Price),
	})
}

// History lists the user's transactions, newest first
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())

	txns, err := h.Store.Transactions(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	views := make([]transactionView, 0, len(txns))
	for _, t := range txns {
		views = append(views, newTransactionView(t))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": views})
}

// Leaderboard ranks the user's experience tier by profit
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())

	board, err := h.Reporter.Leaderboard(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLeaderboardView(board))
}

// fail writes err to the client, logging it when it is not a user error
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.KindOf(err) == apperr.Internal {
		h.logger().Error("request failed",
			"method", r.Method, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	writeError(w, err)
}
