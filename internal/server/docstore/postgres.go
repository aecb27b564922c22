package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/dbx"
	"github.com/dmitrijs2005/learnkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	uniqueIndexPrefix      = "documents_"
	uniqueIndexSuffix      = "_uq"
)

// PostgresStore keeps documents in a single JSONB table.
type PostgresStore struct {
	db dbx.DBTX
}

func NewPostgresStore(db dbx.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, doc *models.Document) error {
	data, lookup, err := marshalDoc(doc.Data, doc.Lookup)
	if err != nil {
		return err
	}

	query :=
		`INSERT INTO documents (collection, id, data, lookup, created_at)
		 VALUES ($1, $2, $3::jsonb, $4::jsonb, $5)`

	_, err = s.db.ExecContext(ctx, query, doc.Collection, doc.ID, data, lookup, doc.CreatedAt)
	if err != nil {
		return mapError(doc.Collection, err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, collection string, f Filter) ([]*models.Document, error) {
	query :=
		`SELECT id, data, lookup, created_at FROM documents
		 WHERE collection = $1 AND lookup @> jsonb_build_object($2::text, $3::text)
		 ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, collection, f.Field, f.Hash)
	if err != nil {
		return nil, mapError(collection, err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var (
			doc          = &models.Document{Collection: collection}
			data, lookup []byte
		)
		if err := rows.Scan(&doc.ID, &data, &lookup, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if err := json.Unmarshal(data, &doc.Data); err != nil {
			return nil, fmt.Errorf("corrupt document %s/%s: %w", collection, doc.ID, err)
		}
		if err := json.Unmarshal(lookup, &doc.Lookup); err != nil {
			return nil, fmt.Errorf("corrupt document %s/%s: %w", collection, doc.ID, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(collection, err)
	}

	return docs, nil
}

func (s *PostgresStore) Update(ctx context.Context, collection string, f Filter, p models.Patch) (int64, error) {
	data, lookup, err := marshalDoc(p.Data, p.Lookup)
	if err != nil {
		return 0, err
	}

	query :=
		`UPDATE documents
		 SET data = data || $4::jsonb, lookup = (lookup || $5::jsonb) - $6::text[]
		 WHERE collection = $1 AND lookup @> jsonb_build_object($2::text, $3::text)`

	res, err := s.db.ExecContext(ctx, query, collection, f.Field, f.Hash, data, lookup, textArray(p.UnsetLookup))
	if err != nil {
		return 0, mapError(collection, err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) Delete(ctx context.Context, collection string, f Filter) (int64, error) {
	query :=
		`DELETE FROM documents
		 WHERE collection = $1 AND lookup @> jsonb_build_object($2::text, $3::text)`

	res, err := s.db.ExecContext(ctx, query, collection, f.Field, f.Hash)
	if err != nil {
		return 0, mapError(collection, err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) DeleteCreatedBefore(ctx context.Context, collection string, cutoff time.Time) (int64, error) {
	query := `DELETE FROM documents WHERE collection = $1 AND created_at < $2`

	res, err := s.db.ExecContext(ctx, query, collection, cutoff)
	if err != nil {
		return 0, mapError(collection, err)
	}
	return res.RowsAffected()
}

func marshalDoc(data map[string]models.StoredField, lookup map[string]string) (string, string, error) {
	if data == nil {
		data = map[string]models.StoredField{}
	}
	if lookup == nil {
		lookup = map[string]string{}
	}
	d, err := json.Marshal(data)
	if err != nil {
		return "", "", err
	}
	l, err := json.Marshal(lookup)
	if err != nil {
		return "", "", err
	}
	return string(d), string(l), nil
}

// textArray renders keys as a Postgres array literal. Keys are schema field
// names, which never need quoting.
func textArray(keys []string) string {
	return "{" + strings.Join(keys, ",") + "}"
}

// mapError translates native constraint and serialization errors.
func mapError(collection string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return common.DuplicateKey(collection, fieldFromIndex(collection, pgErr.ConstraintName))
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return fmt.Errorf("db error: %w", err)
}

func fieldFromIndex(collection, index string) string {
	prefix := uniqueIndexPrefix + collection + "_"
	if strings.HasPrefix(index, prefix) && strings.HasSuffix(index, uniqueIndexSuffix) {
		return strings.TrimSuffix(strings.TrimPrefix(index, prefix), uniqueIndexSuffix)
	}
	return index
}

// PostgresBackend runs PostgresStore over a *sql.DB opened with the pgx
// stdlib driver.
type PostgresBackend struct {
	db *sql.DB
}

// OpenPostgres opens dsn with the pgx driver.
func OpenPostgres(dsn string) (*PostgresBackend, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	return NewPostgresBackend(db), nil
}

func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Store() Store {
	return NewPostgresStore(b.db)
}

// WithTx runs fn at SERIALIZABLE isolation. A serialization failure raised
// by any statement or by COMMIT comes back as ErrConflict.
func (b *PostgresBackend) WithTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}

	err := dbx.WithTx(ctx, b.db, opts, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, NewPostgresStore(tx))
	})
	if err == nil || errors.Is(err, ErrConflict) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected) {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
	}
	return err
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded goose migrations.
func (b *PostgresBackend) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, b.db, "."); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *PostgresBackend) Close() error {
	return b.db.Close()
}
