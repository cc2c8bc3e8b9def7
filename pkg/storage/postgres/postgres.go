// Package postgres provides a PostgreSQL implementation of storage.Store.
// It uses pgx/v5 for connection pooling, JSONB for property data and
// links, and real database transactions for changesets.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/odin/pkg/api"
	"github.com/rhuss/odin/pkg/debug"
	"github.com/rhuss/odin/pkg/storage"
	"github.com/rhuss/odin/pkg/transport"
)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type openTx struct {
	tx     pgx.Tx
	tenant string
}

// Store is a PostgreSQL-backed storage.Store.
type Store struct {
	pool *pgxpool.Pool

	mu  sync.Mutex
	txs map[string]*openTx
}

var _ storage.Store = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool, txs: make(map[string]*openTx)}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Name implements storage.Store.
func (s *Store) Name() string { return "postgres" }

// conn returns the transaction named in ctx, or the pool.
func (s *Store) conn(ctx context.Context) (querier, error) {
	id := transport.TransactionFromContext(ctx)
	if id == "" {
		return s.pool, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok || t.tenant != storage.TenantFromContext(ctx) {
		return nil, storage.ErrTxNotFound
	}
	return t.tx, nil
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

const selectColumns = `
	SELECT id, entity_set, etag, data, links, media_type, media, media_etag, streams, created_at, updated_at
	FROM odin_records`

// streamJSON is the JSONB form of a stream property.
type streamJSON struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

func scanRecord(row pgx.Row) (*storage.Record, error) {
	var (
		rec       storage.Record
		links     []byte
		mediaType *string
		media     []byte
		streams   []byte
	)
	err := row.Scan(&rec.ID, &rec.Set, &rec.ETag, &rec.Data, &links,
		&mediaType, &media, &rec.MediaETag, &streams, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(links, &rec.Links); err != nil {
		return nil, fmt.Errorf("unmarshaling links of %s: %w", rec.ID, err)
	}
	if mediaType != nil {
		rec.Media = &api.Media{ContentType: *mediaType, Data: media}
	}
	var sj map[string]streamJSON
	if err := json.Unmarshal(streams, &sj); err != nil {
		return nil, fmt.Errorf("unmarshaling streams of %s: %w", rec.ID, err)
	}
	if len(sj) > 0 {
		rec.Streams = make(map[string]*api.Media, len(sj))
		for name, v := range sj {
			rec.Streams[name] = &api.Media{ContentType: v.ContentType, Data: v.Data}
		}
	}
	return &rec, nil
}

// columns renders the JSONB and media columns of rec.
func columns(rec *storage.Record) (data, links, streams []byte, mediaType *string, media []byte, err error) {
	data = rec.Data
	if len(data) == 0 {
		data = []byte("{}")
	}
	l := rec.Links
	if l == nil {
		l = map[string][]string{}
	}
	if links, err = json.Marshal(l); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshaling links: %w", err)
	}
	sj := make(map[string]streamJSON, len(rec.Streams))
	for name, m := range rec.Streams {
		sj[name] = streamJSON{ContentType: m.ContentType, Data: m.Data}
	}
	if streams, err = json.Marshal(sj); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshaling streams: %w", err)
	}
	if rec.Media != nil {
		ct := rec.Media.ContentType
		mediaType = &ct
		media = rec.Media.Data
	}
	return data, links, streams, mediaType, media, nil
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, id string) (*storage.Record, error) {
	q, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := scanRecord(q.QueryRow(ctx, selectColumns+` WHERE tenant_id = $1 AND id = $2`,
		storage.TenantFromContext(ctx), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying record: %w", classify(err))
	}
	return rec, nil
}

// List implements storage.Store.
func (s *Store) List(ctx context.Context, set string) ([]*storage.Record, error) {
	q, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, selectColumns+` WHERE tenant_id = $1 AND entity_set = $2 ORDER BY seq`,
		storage.TenantFromContext(ctx), set)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", classify(err))
	}
	defer rows.Close()

	var out []*storage.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing records: %w", classify(err))
	}
	return out, nil
}

// Insert implements storage.Store.
func (s *Store) Insert(ctx context.Context, rec *storage.Record) error {
	q, err := s.conn(ctx)
	if err != nil {
		return err
	}
	data, links, streams, mediaType, media, err := columns(rec)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	created, updated := rec.CreatedAt, rec.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = created
	}

	_, err = q.Exec(ctx, `
		INSERT INTO odin_records (
			tenant_id, id, entity_set, etag, data, links,
			media_type, media, media_etag, streams, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		storage.TenantFromContext(ctx), rec.ID, rec.Set, rec.ETag, data, links,
		mediaType, media, rec.MediaETag, streams, created, updated,
	)
	if err != nil {
		return fmt.Errorf("inserting record: %w", classify(err))
	}
	return nil
}

// Update implements storage.Store.
func (s *Store) Update(ctx context.Context, rec *storage.Record, etag string) error {
	q, err := s.conn(ctx)
	if err != nil {
		return err
	}
	data, links, streams, mediaType, media, err := columns(rec)
	if err != nil {
		return err
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	tenant := storage.TenantFromContext(ctx)
	tag, err := q.Exec(ctx, `
		UPDATE odin_records
		SET entity_set = $3, etag = $4, data = $5, links = $6,
		    media_type = $7, media = $8, media_etag = $9, streams = $10, updated_at = $11
		WHERE tenant_id = $1 AND id = $2 AND ($12 = '' OR etag = $12)
	`,
		tenant, rec.ID, rec.Set, rec.ETag, data, links,
		mediaType, media, rec.MediaETag, streams, updated, etag,
	)
	if err != nil {
		return fmt.Errorf("updating record: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return s.missOrMismatch(ctx, q, tenant, rec.ID)
	}
	return nil
}

// Delete implements storage.Store.
func (s *Store) Delete(ctx context.Context, id, etag string) error {
	q, err := s.conn(ctx)
	if err != nil {
		return err
	}
	tenant := storage.TenantFromContext(ctx)
	tag, err := q.Exec(ctx,
		`DELETE FROM odin_records WHERE tenant_id = $1 AND id = $2 AND ($3 = '' OR etag = $3)`,
		tenant, id, etag)
	if err != nil {
		return fmt.Errorf("deleting record: %w", classify(err))
	}
	if tag.RowsAffected() == 0 {
		return s.missOrMismatch(ctx, q, tenant, id)
	}
	return nil
}

// missOrMismatch explains a conditional write that touched no row.
func (s *Store) missOrMismatch(ctx context.Context, q querier, tenant, id string) error {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM odin_records WHERE tenant_id = $1 AND id = $2)`,
		tenant, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking record: %w", classify(err))
	}
	if exists {
		return storage.ErrPreconditionFailed
	}
	return storage.ErrNotFound
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

// Begin implements storage.Store. Changesets run with repeatable-read
// isolation; serialization failures surface as storage.ErrConflict.
func (s *Store) Begin(ctx context.Context) (string, error) {
	tx, err := s.pool.BeginTx(context.WithoutCancel(ctx), pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.txs[id] = &openTx{tx: tx, tenant: storage.TenantFromContext(ctx)}
	s.mu.Unlock()
	debug.Log(debug.Storage, "postgres transaction started", "tx", id)
	return id, nil
}

func (s *Store) take(id string) (*openTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok {
		return nil, storage.ErrTxNotFound
	}
	delete(s.txs, id)
	return t, nil
}

// Commit implements storage.Store.
func (s *Store) Commit(ctx context.Context, txID string) error {
	t, err := s.take(txID)
	if err != nil {
		return err
	}
	if err := t.tx.Commit(ctx); err != nil {
		// The transaction is finished either way; keep it addressable so
		// the caller's rollback succeeds.
		s.mu.Lock()
		s.txs[txID] = t
		s.mu.Unlock()
		return fmt.Errorf("committing transaction: %w", classify(err))
	}
	return nil
}

// Rollback implements storage.Store.
func (s *Store) Rollback(ctx context.Context, txID string) error {
	t, err := s.take(txID)
	if err != nil {
		return err
	}
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close rolls back open transactions and releases the connection pool.
func (s *Store) Close() error {
	s.mu.Lock()
	for id, t := range s.txs {
		_ = t.tx.Rollback(context.Background())
		delete(s.txs, id)
	}
	s.mu.Unlock()
	s.pool.Close()
	return nil
}

// classify maps PostgreSQL error codes to storage sentinels.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", storage.ErrConflict, pgErr.Message)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", storage.ErrConflict, pgErr.Message)
		}
	}
	return err
}
