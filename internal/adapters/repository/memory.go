package repository

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/okian/nback/internal/domain/model"
	"github.com/okian/nback/pkg/metrics"
)

// MemoryLog is an append-only in-process log. Contents are lost on restart.
type MemoryLog struct {
	mu       sync.RWMutex
	sessions []model.ScoredSession
	closed   bool
	cfg      settings
}

// NewMemoryLog returns an empty in-memory log.
func NewMemoryLog(opts ...Option) *MemoryLog {
	return &MemoryLog{cfg: applyOptions(opts)}
}

func (m *MemoryLog) Driver() string { return DriverMemory }

func (m *MemoryLog) Append(ctx context.Context, s model.ScoredSession) (model.ScoredSession, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryAppendLatency(float64(time.Since(start).Milliseconds())) }()

	if err := ctx.Err(); err != nil {
		return model.ScoredSession{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return model.ScoredSession{}, ErrClosed
	}

	if s.ID == "" {
		s.ID = m.cfg.newID()
	}
	s.Seq = int64(len(m.sessions)) + 1
	s.Points = new(big.Int).Set(s.PointsOrZero())
	m.sessions = append(m.sessions, s)
	return s, nil
}

func (m *MemoryLog) Scan(ctx context.Context, f Filter, fn func(model.ScoredSession) error) error {
	start := time.Now()

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	// Rows are immutable once appended; a prefix snapshot is enough.
	snapshot := m.sessions[:len(m.sessions):len(m.sessions)]
	m.mu.RUnlock()

	rows := 0
	defer func() { metrics.RecordRepositoryScanLatency(float64(time.Since(start).Milliseconds()), rows) }()

	for _, s := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !f.match(s) {
			continue
		}
		rows++
		s.Points = new(big.Int).Set(s.PointsOrZero())
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

// Migrate is a no-op for the in-memory log.
func (m *MemoryLog) Migrate(context.Context) (int, error) { return 0, nil }

func (m *MemoryLog) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *MemoryLog) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len reports the number of stored sessions.
func (m *MemoryLog) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
