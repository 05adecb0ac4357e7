package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/syncqueue"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/db"
)

type mutationRepository struct {
	db     *db.Database
	logger *logrus.Logger
}

// NewMutationRepository creates the durable record store behind the sync queue.
func NewMutationRepository(database *db.Database, logger *logrus.Logger) ports.MutationRepository {
	return &mutationRepository{db: database, logger: logger}
}

type mutationRow struct {
	ID         uuid.UUID `db:"id"`
	URL        string    `db:"url"`
	Method     string    `db:"method"`
	Headers    string    `db:"headers"`
	Body       []byte    `db:"body"`
	EnqueuedAt int64     `db:"enqueued_at"`
}

func (row mutationRow) toDomain() (*syncqueue.Mutation, error) {
	m := &syncqueue.Mutation{
		ID:         row.ID,
		URL:        row.URL,
		Method:     row.Method,
		Body:       row.Body,
		EnqueuedAt: time.UnixMilli(row.EnqueuedAt).UTC(),
	}
	if row.Headers != "" {
		if err := json.Unmarshal([]byte(row.Headers), &m.Headers); err != nil {
			return nil, fmt.Errorf("decode headers of %s: %w", row.ID, err)
		}
	}
	return m, nil
}

// Add inserts a mutation record
func (r *mutationRepository) Add(ctx context.Context, m *syncqueue.Mutation) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	headers := m.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return err
	}

	query := r.db.DB.Rebind(`
		INSERT INTO sync_queue (id, url, method, headers, body, enqueued_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err = r.db.DB.ExecContext(ctx, query, m.ID, m.URL, m.Method, string(headersJSON), m.Body, m.EnqueuedAt.UnixMilli())
	if err != nil {
		if r.logger != nil {
			r.logger.WithFields(logrus.Fields{"mutation_id": m.ID, "url": m.URL, "method": m.Method}).WithError(err).Error("db: failed to insert mutation")
		}
		return err
	}
	if r.logger != nil {
		r.logger.WithFields(logrus.Fields{"mutation_id": m.ID, "url": m.URL}).Debug("db: mutation inserted")
	}
	return nil
}

// GetAll returns every pending mutation in enqueue order
func (r *mutationRepository) GetAll(ctx context.Context) ([]*syncqueue.Mutation, error) {
	var rows []mutationRow
	query := `SELECT id, url, method, headers, body, enqueued_at FROM sync_queue ORDER BY seq ASC`
	if err := r.db.DB.SelectContext(ctx, &rows, query); err != nil {
		if r.logger != nil {
			r.logger.WithError(err).Error("db: failed to list mutations")
		}
		return nil, err
	}
	out := make([]*syncqueue.Mutation, 0, len(rows))
	for _, row := range rows {
		m, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// DeleteMatching removes records identified by (url, enqueuedAt)
func (r *mutationRepository) DeleteMatching(ctx context.Context, url string, enqueuedAt time.Time) (int64, error) {
	query := r.db.DB.Rebind(`DELETE FROM sync_queue WHERE url = ? AND enqueued_at = ?`)
	res, err := r.db.DB.ExecContext(ctx, query, url, enqueuedAt.UnixMilli())
	if err != nil {
		if r.logger != nil {
			r.logger.WithField("url", url).WithError(err).Error("db: failed to delete mutation")
		}
		return 0, err
	}
	return res.RowsAffected()
}
