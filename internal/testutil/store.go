// Package testutil provides in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/narvelay/daily-tasks-bot/internal/domain"
	"github.com/narvelay/daily-tasks-bot/internal/repository"
)

// LedgerEntry mirrors a ledger_entries row.
type LedgerEntry struct {
	UserID    int64
	Amount    int64
	Kind      domain.LedgerKind
	InvoiceID int64
	CreatedAt time.Time
}

// MemoryStore is an in-memory implementation of the user, invoice and task repositories
// with the same conditional-update semantics as the SQL versions.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[int64]domain.User
	invoices map[int64]domain.Invoice
	ledger   []LedgerEntry
	tasks    []string
	nextID   int64

	// FailFind, when set, is returned by FindByID.
	FailFind error
	// FailSettle, when set, is returned by Settle.
	FailSettle error
}

var (
	_ repository.UserRepository    = memoryUsers{}
	_ repository.InvoiceRepository = memoryInvoices{}
	_ repository.TaskRepository    = (*MemoryStore)(nil)
)

type memoryUsers struct{ *MemoryStore }

func (m memoryUsers) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	return m.FindUser(ctx, id)
}

func (m memoryUsers) Create(_ context.Context, user *domain.User) (bool, error) {
	return m.insertUser(user), nil
}

type memoryInvoices struct{ *MemoryStore }

func (m memoryInvoices) FindByID(ctx context.Context, id int64) (*domain.Invoice, error) {
	return m.FindInvoice(ctx, id)
}

func (m memoryInvoices) Create(ctx context.Context, inv *domain.Invoice) error {
	return m.CreateInvoice(ctx, inv)
}

// Users returns the store as a repository.UserRepository.
func (s *MemoryStore) Users() repository.UserRepository {
	return memoryUsers{s}
}

// InvoiceRepo returns the store as a repository.InvoiceRepository.
func (s *MemoryStore) InvoiceRepo() repository.InvoiceRepository {
	return memoryInvoices{s}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[int64]domain.User),
		invoices: make(map[int64]domain.Invoice),
	}
}

// WithTasks seeds the task table.
func (s *MemoryStore) WithTasks(texts ...string) *MemoryStore {
	s.tasks = append(s.tasks, texts...)
	return s
}

func (s *MemoryStore) FindUser(_ context.Context, id int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailFind != nil {
		return nil, s.FailFind
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// CreateUser seeds a user; an existing id is left untouched.
func (s *MemoryStore) CreateUser(_ context.Context, user *domain.User) error {
	s.insertUser(user)
	return nil
}

func (s *MemoryStore) insertUser(user *domain.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return false
	}
	u := *user
	u.Balance = 0
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = u
	return true
}

func (s *MemoryStore) ClaimReward(_ context.Context, id, amount int64, now time.Time, cooldown time.Duration) (repository.RewardClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return repository.RewardClaim{}, repository.ErrNotFound
	}

	at := now
	u.LastTaskAt = &at

	claim := repository.RewardClaim{}
	if u.LastRewardAt == nil || !u.LastRewardAt.After(now.Add(-cooldown)) {
		if err := s.creditLocked(&u, amount); err != nil {
			return repository.RewardClaim{}, err
		}
		rewarded := now
		u.LastRewardAt = &rewarded
		s.ledger = append(s.ledger, LedgerEntry{UserID: id, Amount: amount, Kind: domain.LedgerReward, CreatedAt: now})
		claim.Granted = true
	}
	claim.Balance = u.Balance
	claim.LastRewardAt = u.LastRewardAt
	s.users[id] = u

	return claim, nil
}

func (s *MemoryStore) creditLocked(u *domain.User, amount int64) error {
	if u.Balance+amount < 0 {
		return errors.New("balance check constraint violated")
	}
	u.Balance += amount
	return nil
}

func (s *MemoryStore) CreateInvoice(_ context.Context, inv *domain.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[inv.UserID]; !ok {
		return fmt.Errorf("insert invoice: user %d does not exist", inv.UserID)
	}
	for _, existing := range s.invoices {
		if existing.ExternalID == inv.ExternalID {
			return fmt.Errorf("insert invoice: duplicate external id %d", inv.ExternalID)
		}
	}

	s.nextID++
	inv.ID = s.nextID
	if inv.Status == "" {
		inv.Status = domain.InvoicePending
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	s.invoices[inv.ID] = *inv
	return nil
}

func (s *MemoryStore) FindInvoice(_ context.Context, id int64) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &inv, nil
}

func (s *MemoryStore) ListPending(_ context.Context, since time.Time, limit int) ([]domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Invoice
	for _, inv := range s.invoices {
		if inv.Status == domain.InvoicePending && !inv.CreatedAt.Before(since) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountPendingBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, inv := range s.invoices {
		if inv.Status == domain.InvoicePending && inv.CreatedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Settle(_ context.Context, id int64, at time.Time) (repository.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSettle != nil {
		return repository.Settlement{}, s.FailSettle
	}

	inv, ok := s.invoices[id]
	if !ok || inv.Status != domain.InvoicePending {
		return repository.Settlement{}, nil
	}
	for _, e := range s.ledger {
		if e.InvoiceID == id {
			return repository.Settlement{}, fmt.Errorf("ledger: duplicate invoice %d", id)
		}
	}

	u := s.users[inv.UserID]
	if err := s.creditLocked(&u, inv.Coins); err != nil {
		return repository.Settlement{}, err
	}
	paidAt := at
	inv.Status = domain.InvoicePaid
	inv.PaidAt = &paidAt
	s.invoices[id] = inv
	s.users[u.ID] = u
	s.ledger = append(s.ledger, LedgerEntry{UserID: u.ID, Amount: inv.Coins, Kind: domain.LedgerPurchase, InvoiceID: id, CreatedAt: at})

	return repository.Settlement{Settled: true, UserID: u.ID, Coins: inv.Coins, Balance: u.Balance}, nil
}

func (s *MemoryStore) MarkNotified(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return repository.ErrNotFound
	}
	notified := at
	inv.NotifiedAt = &notified
	inv.NotifyAttempts++
	inv.NotifyError = ""
	s.invoices[id] = inv
	return nil
}

func (s *MemoryStore) RecordNotifyFailure(_ context.Context, id int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return repository.ErrNotFound
	}
	inv.NotifyAttempts++
	inv.NotifyError = reason
	s.invoices[id] = inv
	return nil
}

func (s *MemoryStore) ListUndelivered(_ context.Context, paidBefore time.Time, maxAttempts, limit int) ([]repository.Undelivered, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var paid []domain.Invoice
	for _, inv := range s.invoices {
		if inv.Status == domain.InvoicePaid && inv.NotifiedAt == nil && inv.PaidAt != nil &&
			inv.PaidAt.Before(paidBefore) && inv.NotifyAttempts < maxAttempts {
			paid = append(paid, inv)
		}
	}
	sort.Slice(paid, func(i, j int) bool {
		if paid[i].PaidAt.Equal(*paid[j].PaidAt) {
			return paid[i].ID < paid[j].ID
		}
		return paid[i].PaidAt.Before(*paid[j].PaidAt)
	})
	if limit > 0 && len(paid) > limit {
		paid = paid[:limit]
	}

	out := make([]repository.Undelivered, 0, len(paid))
	for _, inv := range paid {
		out = append(out, repository.Undelivered{
			InvoiceID:  inv.ID,
			ExternalID: inv.ExternalID,
			UserID:     inv.UserID,
			Coins:      inv.Coins,
			Balance:    s.users[inv.UserID].Balance,
		})
	}
	return out, nil
}

func (s *MemoryStore) Stats(_ context.Context) (domain.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := domain.Stats{Users: int64(len(s.users))}
	for _, inv := range s.invoices {
		switch inv.Status {
		case domain.InvoicePending:
			stats.PendingInvoices++
		case domain.InvoicePaid:
			stats.PaidInvoices++
			stats.CoinsSold += inv.Coins
		}
	}
	return stats, nil
}

func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tasks...), nil
}

// Ledger returns a copy of every recorded credit.
func (s *MemoryStore) Ledger() []LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LedgerEntry(nil), s.ledger...)
}

// Invoices returns a copy of every stored invoice ordered by id.
func (s *MemoryStore) Invoices() []domain.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
