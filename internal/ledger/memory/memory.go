package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"spendwise/internal/core"
	"spendwise/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

type Store struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]core.Expense
}

func New() *Store {
	return &Store{nextID: 1, items: make(map[int64]core.Expense)}
}

// NewFromFiles seeds the store from base/seed_expenses.txt when present.
// Each non-comment line is "user|amount|category|YYYY-MM-DD|note".
func NewFromFiles(base string) *Store {
	s := New()
	for _, line := range readLines(filepath.Join(base, "seed_expenses.txt")) {
		e, err := parseSeedLine(line)
		if err != nil {
			continue
		}
		_, _ = s.CreateExpense(context.Background(), e)
	}
	return s
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	e.Amount = core.RoundAmount(e.Amount)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextID
	s.nextID++
	s.items[e.ID] = e
	return e, nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	e.Amount = core.RoundAmount(e.Amount)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[e.ID]; !ok {
		return core.Expense{}, ledger.ErrNotFound
	}
	s.items[e.ID] = e
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ledger.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *Store) GetExpense(_ context.Context, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return core.Expense{}, ledger.ErrNotFound
	}
	return e, nil
}

func (s *Store) GetExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	return s.ListExpenses(ctx, userID, core.ExpenseFilter{})
}

func (s *Store) ListExpenses(_ context.Context, userID string, f core.ExpenseFilter) ([]core.Expense, error) {
	s.mu.Lock()
	out := make([]core.Expense, 0)
	for _, e := range s.items {
		if e.UserID == userID && f.Matches(e) {
			out = append(out, e)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func parseSeedLine(line string) (core.Expense, error) {
	parts := strings.Split(line, "|")
	if len(parts) < 4 {
		return core.Expense{}, fmt.Errorf("seed line needs at least 4 fields: %q", line)
	}
	amount, err := core.ParseAmount(parts[1])
	if err != nil {
		return core.Expense{}, err
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(parts[3]))
	if err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{
		UserID:      strings.TrimSpace(parts[0]),
		Amount:      amount,
		Category:    core.Category(strings.TrimSpace(parts[2])),
		PaymentType: core.PaymentManual,
		Date:        date,
	}
	if len(parts) > 4 {
		e.Note = strings.TrimSpace(parts[4])
	}
	return e, nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
