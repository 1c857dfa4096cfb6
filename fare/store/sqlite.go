package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/farecast/fare"
	"github.com/YuminosukeSato/farecast/pkg/errors"
	"github.com/YuminosukeSato/farecast/pkg/log"
	_ "modernc.org/sqlite"
)

// BundleInfo summarizes one stored bundle.
type BundleInfo struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// SQLiteStore keeps every bundle as one row of the bundles table. All four
// artifacts of a version are written in a single INSERT.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the catalogue at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create database dir for %s", dbPath)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// writes are serialized by SQLite anyway
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bundles (
		version TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		model BLOB,
		scaler BLOB,
		encoders BLOB,
		metadata TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_bundles_created_at ON bundles(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save inserts b and returns its version.
func (s *SQLiteStore) Save(ctx context.Context, b *fare.Bundle) (string, error) {
	a, err := encodeBundle(b)
	if err != nil {
		return "", err
	}

	createdAt := b.Metadata.TrainedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bundles (version, created_at, model, scaler, encoders, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		b.Version, createdAt.UTC(), a.Model, a.Scaler, a.Encoders, string(a.Metadata),
	)
	if err != nil {
		return "", errors.Wrapf(err, "insert bundle %s", b.Version)
	}

	log.GetLoggerWithName("fare.store").Info("Bundle saved",
		log.OperationKey, log.OperationSave,
		log.ModelVersionKey, b.Version,
		"store.kind", "sqlite",
	)
	return b.Version, nil
}

// Load reads the bundle with the given version.
func (s *SQLiteStore) Load(ctx context.Context, version string) (*fare.Bundle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT model, scaler, encoders, metadata FROM bundles WHERE version = ?`, version)
	return s.scanBundle(row, version)
}

// LoadLatest reads the most recently created bundle.
func (s *SQLiteStore) LoadLatest(ctx context.Context) (*fare.Bundle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT model, scaler, encoders, metadata FROM bundles ORDER BY created_at DESC, rowid DESC LIMIT 1`)
	return s.scanBundle(row, "latest")
}

func (s *SQLiteStore) scanBundle(row *sql.Row, ref string) (*fare.Bundle, error) {
	var a artifacts
	var meta sql.NullString
	if err := row.Scan(&a.Model, &a.Scaler, &a.Encoders, &meta); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewArtifactMismatchError("bundle "+ref, "not found", err)
		}
		return nil, errors.Wrapf(err, "read bundle %s", ref)
	}
	if meta.Valid {
		a.Metadata = []byte(meta.String)
	}
	return decodeBundle(a)
}

// List returns stored bundles, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]BundleInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, created_at FROM bundles ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "list bundles")
	}
	defer rows.Close()

	var infos []BundleInfo
	for rows.Next() {
		var info BundleInfo
		if err := rows.Scan(&info.Version, &info.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan bundle row")
		}
		infos = append(infos, info)
	}
	return infos, errors.Wrap(rows.Err(), "iterate bundle rows")
}
