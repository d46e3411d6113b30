package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/papertrade/internal/apperr"
	"github.com/xtrntr/papertrade/internal/models"
)

// account is one user's ledger; mu serializes WithUser calls for that user
type account struct {
	mu       sync.Mutex
	user     models.User
	holdings map[string]models.Holding
	txns     []models.Transaction
	profit   decimal.Decimal
}

// MemoryStore keeps everything in process memory. It implements Store and Users.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[int]*account
	byName   map[string]int
	lastUser int
	lastTx   int

	// Now stamps appended transactions that carry no date
	Now func() time.Time
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Users = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[int]*account),
		byName:   make(map[string]int),
		Now:      time.Now,
	}
}

// CreateUser adds a user with the given starting cash
func (s *MemoryStore) CreateUser(ctx context.Context, username, passwordHash, experience string, cash decimal.Decimal) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[username]; ok {
		return nil, apperr.New(apperr.DuplicateUsername, "username already taken")
	}
	s.lastUser++
	acct := &account{
		user: models.User{
			ID:           s.lastUser,
			Username:     username,
			PasswordHash: passwordHash,
			Cash:         cash,
			Experience:   experience,
			CreatedAt:    s.Now(),
		},
		holdings: make(map[string]models.Holding),
	}
	s.accounts[acct.user.ID] = acct
	s.byName[username] = acct.user.ID

	u := acct.user
	return &u, nil
}

// UserByUsername looks a user up by name
func (s *MemoryStore) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := s.accounts[id].user
	return &u, nil
}

// User looks a user up by id
func (s *MemoryStore) User(ctx context.Context, userID int) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := acct.user
	return &u, nil
}

// Holdings returns the user's holdings ordered by symbol
func (s *MemoryStore) Holdings(ctx context.Context, userID int) ([]models.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	holdings := make([]models.Holding, 0, len(acct.holdings))
	for _, h := range acct.holdings {
		holdings = append(holdings, h)
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Symbol < holdings[j].Symbol })
	return holdings, nil
}

// Transactions returns the user's transactions, newest first
func (s *MemoryStore) Transactions(ctx context.Context, userID int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	txns := append([]models.Transaction(nil), acct.txns...)
	sortNewestFirst(txns)
	return txns, nil
}

func sortNewestFirst(txns []models.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		if txns[i].Date.Equal(txns[j].Date) {
			return txns[i].ID > txns[j].ID
		}
		return txns[i].Date.After(txns[j].Date)
	})
}

// LeaderboardByExperience lists the tier's users by recorded profit
func (s *MemoryStore) LeaderboardByExperience(ctx context.Context, experience string) ([]models.LeaderboardRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []models.LeaderboardRow
	for _, acct := range s.accounts {
		if acct.user.Experience != experience {
			continue
		}
		rows = append(rows, models.LeaderboardRow{
			UserID:   acct.user.ID,
			Username: acct.user.Username,
			Profit:   acct.profit,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Profit.Equal(rows[j].Profit) {
			return rows[i].Username < rows[j].Username
		}
		return rows[i].Profit.GreaterThan(rows[j].Profit)
	})
	return rows, nil
}

// SetProfit records the leaderboard aggregate for a user
func (s *MemoryStore) SetProfit(ctx context.Context, userID int, profit decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return ErrUserNotFound
	}
	acct.profit = profit
	return nil
}

// WithUser stages fn's writes and applies them only if fn succeeds
func (s *MemoryStore) WithUser(ctx context.Context, userID int, fn func(Tx) error) error {
	s.mu.RLock()
	acct, ok := s.accounts[userID]
	s.mu.RUnlock()
	if !ok {
		return ErrUserNotFound
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	s.mu.RLock()
	tx := &memTx{
		store:    s,
		cash:     acct.user.Cash,
		holdings: make(map[string]models.Holding, len(acct.holdings)),
		userID:   userID,
	}
	for sym, h := range acct.holdings {
		tx.holdings[sym] = h
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	acct.user.Cash = tx.cash
	acct.holdings = tx.holdings
	acct.txns = append(acct.txns, tx.appended...)
	s.mu.Unlock()
	return nil
}

type memTx struct {
	store    *MemoryStore
	userID   int
	cash     decimal.Decimal
	holdings map[string]models.Holding
	appended []models.Transaction
}

func (t *memTx) Cash(ctx context.Context) (decimal.Decimal, error) {
	return t.cash, nil
}

func (t *memTx) SetCash(ctx context.Context, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("cash cannot be negative: %s", amount)
	}
	t.cash = amount
	return nil
}

func (t *memTx) Holding(ctx context.Context, symbol string) (models.Holding, error) {
	h, ok := t.holdings[symbol]
	if !ok {
		return models.Holding{}, ErrNoHolding
	}
	return h, nil
}

func (t *memTx) UpsertHolding(ctx context.Context, symbol string, volume int, price decimal.Decimal) error {
	if volume <= 0 {
		return fmt.Errorf("holding volume must be positive, got %d", volume)
	}
	t.holdings[symbol] = models.Holding{UserID: t.userID, Symbol: symbol, Volume: volume, Price: price}
	return nil
}

func (t *memTx) DeleteHolding(ctx context.Context, symbol string) error {
	delete(t.holdings, symbol)
	return nil
}

func (t *memTx) AppendTransaction(ctx context.Context, txn models.Transaction) (models.Transaction, error) {
	t.store.mu.Lock()
	t.store.lastTx++
	txn.ID = t.store.lastTx
	if txn.Date.IsZero() {
		txn.Date = t.store.Now()
	}
	t.store.mu.Unlock()

	txn.UserID = t.userID
	t.appended = append(t.appended, txn)
	return txn, nil
}
