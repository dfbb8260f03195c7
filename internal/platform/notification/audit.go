package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospital/booking/internal/platform/db"
)

// MemoryAuditLog keeps entries in process memory.
type MemoryAuditLog struct {
	mu      sync.RWMutex
	entries []*Entry
}

func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (l *MemoryAuditLog) Record(_ context.Context, e *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *e
	l.entries = append(l.entries, &cp)
	return nil
}

// ListByPhone returns the newest entries first.
func (l *MemoryAuditLog) ListByPhone(_ context.Context, phone string, limit int) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var result []*Entry
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Phone != phone {
			continue
		}
		result = append(result, l.entries[i])
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Stats counts entries by "kind:status".
func (l *MemoryAuditLog) Stats(_ context.Context) (map[string]int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stats := make(map[string]int)
	for _, e := range l.entries {
		stats[string(e.Kind)+":"+e.Status]++
	}
	return stats, nil
}

// Entries returns a snapshot in insertion order.
func (l *MemoryAuditLog) Entries() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Entry, len(l.entries))
	copy(out, l.entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PGAuditLog writes entries to notification_log.
type PGAuditLog struct {
	pool *pgxpool.Pool
}

func NewPGAuditLog(pool *pgxpool.Pool) *PGAuditLog {
	return &PGAuditLog{pool: pool}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (l *PGAuditLog) Record(ctx context.Context, e *Entry) error {
	_, err := db.Conn(ctx, l.pool).Exec(ctx, `
		INSERT INTO notification_log (id, phone, kind, channel, status, response, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Phone, string(e.Kind), string(e.Channel), e.Status, nullable(e.Response), nullable(e.Error), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification_log: %w", err)
	}
	return nil
}

func (l *PGAuditLog) ListByPhone(ctx context.Context, phone string, limit int) ([]*Entry, error) {
	rows, err := db.Conn(ctx, l.pool).Query(ctx, `
		SELECT id::text, phone, kind, channel, status, COALESCE(response, ''), COALESCE(error, ''), created_at
		FROM notification_log WHERE phone = $1 ORDER BY created_at DESC LIMIT $2`, phone, limit)
	if err != nil {
		return nil, fmt.Errorf("query notification_log: %w", err)
	}
	defer rows.Close()
	var result []*Entry
	for rows.Next() {
		var (
			e             Entry
			kind, channel string
		)
		if err := rows.Scan(&e.ID, &e.Phone, &kind, &channel, &e.Status, &e.Response, &e.Error, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind, e.Channel = Kind(kind), Channel(channel)
		result = append(result, &e)
	}
	return result, rows.Err()
}

func (l *PGAuditLog) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := db.Conn(ctx, l.pool).Query(ctx,
		`SELECT kind || ':' || status, COUNT(*) FROM notification_log GROUP BY kind, status`)
	if err != nil {
		return nil, fmt.Errorf("query notification stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[string]int)
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		stats[key] = n
	}
	return stats, rows.Err()
}
