package dashboard

import (
	"context"
	"strings"
	"sync"

	"github.com/viktsys/pnldash/models"
)

// MemoryStore keeps trades in process. Like the database store, a fill is
// stored once per fingerprint.
type MemoryStore struct {
	mu     sync.RWMutex
	trades []models.Trade
	seen   map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]bool)}
}

func (m *MemoryStore) SaveTrades(_ context.Context, trades []models.Trade) (int64, error) {
	rows := append([]models.Trade(nil), trades...)
	models.AssignFingerprints(rows)

	m.mu.Lock()
	defer m.mu.Unlock()

	var saved int64
	for _, t := range rows {
		if m.seen[t.Fingerprint] {
			continue
		}
		m.seen[t.Fingerprint] = true
		m.trades = append(m.trades, t)
		saved++
	}
	return saved, nil
}

func (m *MemoryStore) LoadTrades(_ context.Context, pairs []string) ([]models.Trade, error) {
	want := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		if p = strings.TrimSpace(p); p != "" {
			want[strings.ToUpper(p)] = true
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Trade, 0, len(m.trades))
	for _, t := range m.trades {
		if len(want) > 0 && !want[strings.ToUpper(t.Pair)] {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Len is the number of stored trades.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trades)
}
