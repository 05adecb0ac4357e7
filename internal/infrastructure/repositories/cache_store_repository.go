package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/db"
)

type sqlCacheStore struct {
	db     *db.Database
	logger *logrus.Logger
}

// NewCacheStoreRepository creates a CacheStore backed by the cache_partitions
// and cache_entries tables.
func NewCacheStoreRepository(database *db.Database, logger *logrus.Logger) ports.CacheStore {
	return &sqlCacheStore{db: database, logger: logger}
}

// Open returns a handle on the partition, registering it first if it is new.
// Opening an existing partition only reads.
func (s *sqlCacheStore) Open(ctx context.Context, name string) (ports.CachePartition, error) {
	var exists bool
	lookup := s.db.DB.Rebind(`SELECT EXISTS (SELECT 1 FROM cache_partitions WHERE name = ?)`)
	if err := s.db.DB.GetContext(ctx, &exists, lookup, name); err != nil {
		if s.logger != nil {
			s.logger.WithField("partition", name).WithError(err).Error("db: failed to look up partition")
		}
		return nil, err
	}
	if exists {
		return &sqlPartition{store: s, name: name}, nil
	}

	query := s.db.DB.Rebind(`INSERT INTO cache_partitions (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`)
	if _, err := s.db.DB.ExecContext(ctx, query, name, time.Now().UnixMilli()); err != nil {
		if s.logger != nil {
			s.logger.WithField("partition", name).WithError(err).Error("db: failed to create partition")
		}
		return nil, err
	}
	return &sqlPartition{store: s, name: name}, nil
}

// Partitions lists partition names in creation order
func (s *sqlCacheStore) Partitions(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.DB.SelectContext(ctx, &names, `SELECT name FROM cache_partitions ORDER BY created_at ASC, name ASC`); err != nil {
		return nil, err
	}
	return names, nil
}

// Drop deletes a partition with all of its entries in one transaction
func (s *sqlCacheStore) Drop(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM cache_entries WHERE partition_name = ?`), name); err != nil {
		return false, fmt.Errorf("delete entries of %s: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM cache_partitions WHERE name = ?`), name)
	if err != nil {
		return false, fmt.Errorf("delete partition %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	if s.logger != nil && n > 0 {
		s.logger.WithField("partition", name).Info("db: partition dropped")
	}
	return n > 0, nil
}

type sqlPartition struct {
	store *sqlCacheStore
	name  string
}

type entryRow struct {
	Key      string `db:"cache_key"`
	Status   int    `db:"status"`
	Headers  string `db:"headers"`
	Body     []byte `db:"body"`
	StoredAt int64  `db:"stored_at"`
}

func (p *sqlPartition) Name() string { return p.name }

func (p *sqlPartition) Get(ctx context.Context, key string) (*cache.Entry, bool, error) {
	var row entryRow
	query := p.store.db.DB.Rebind(`
		SELECT cache_key, status, headers, body, stored_at
		FROM cache_entries WHERE partition_name = ? AND cache_key = ?`)
	err := p.store.db.DB.GetContext(ctx, &row, query, p.name, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	header := http.Header{}
	if row.Headers != "" {
		if err := json.Unmarshal([]byte(row.Headers), &header); err != nil {
			return nil, false, fmt.Errorf("decode headers of %s: %w", key, err)
		}
	}
	return &cache.Entry{
		Key:      row.Key,
		Payload:  cache.Payload{Status: row.Status, Header: header, Body: row.Body},
		StoredAt: time.UnixMilli(row.StoredAt).UTC(),
	}, true, nil
}

// Put upserts the entry. The row id survives the upsert, so an overwritten
// key keeps its enumeration position.
func (p *sqlPartition) Put(ctx context.Context, key string, entry *cache.Entry) error {
	header := entry.Payload.Header
	if header == nil {
		header = http.Header{}
	}
	headersJSON, err := json.Marshal(header)
	if err != nil {
		return err
	}
	query := p.store.db.DB.Rebind(`
		INSERT INTO cache_entries (partition_name, cache_key, status, headers, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (partition_name, cache_key) DO UPDATE SET
			status = excluded.status,
			headers = excluded.headers,
			body = excluded.body,
			stored_at = excluded.stored_at`)
	_, err = p.store.db.DB.ExecContext(ctx, query, p.name, key, entry.Payload.Status, string(headersJSON), entry.Payload.Body, entry.StoredAt.UnixMilli())
	if err != nil && p.store.logger != nil {
		p.store.logger.WithFields(logrus.Fields{"partition": p.name, "key": key}).WithError(err).Error("db: failed to store cache entry")
	}
	return err
}

func (p *sqlPartition) Delete(ctx context.Context, key string) (bool, error) {
	query := p.store.db.DB.Rebind(`DELETE FROM cache_entries WHERE partition_name = ? AND cache_key = ?`)
	res, err := p.store.db.DB.ExecContext(ctx, query, p.name, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *sqlPartition) Keys(ctx context.Context) ([]string, error) {
	keys := []string{}
	query := p.store.db.DB.Rebind(`SELECT cache_key FROM cache_entries WHERE partition_name = ? ORDER BY id ASC`)
	if err := p.store.db.DB.SelectContext(ctx, &keys, query, p.name); err != nil {
		return nil, err
	}
	return keys, nil
}
