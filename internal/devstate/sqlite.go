package devstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alphaq-labs/helixr/internal/domain"
	"github.com/alphaq-labs/helixr/internal/shared"
)

// SQLiteStore implements Store over a SQLite database with one JSON
// payload column per snapshot document.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed state store.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency between the sensor producer and
	// the orchestrator.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS state_documents (
		doc_id TEXT PRIMARY KEY,
		ts INTEGER NOT NULL,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_state_documents_ts ON state_documents(ts DESC);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// payload is the JSON document body stored per snapshot.
type payload struct {
	Sensors   domain.SensorData `json:"sensors"`
	Actuators map[int]int       `json:"actuators"`
}

// Latest returns the most recently timestamped snapshot.
func (s *SQLiteStore) Latest(ctx context.Context) (*domain.StateDocument, error) {
	query := `
		SELECT doc_id, ts, payload
		FROM state_documents
		ORDER BY ts DESC
		LIMIT 1`

	row := s.db.QueryRowContext(ctx, query)

	var (
		docID string
		ts    int64
		body  string
	)
	err := row.Scan(&docID, &ts, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoDocument
	}
	if err != nil {
		return nil, fmt.Errorf("scan state document: %w", err)
	}

	var p payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("decode state document %s: %w", docID, err)
	}

	return &domain.StateDocument{
		ID:        docID,
		Timestamp: time.Unix(ts, 0),
		Sensors:   p.Sensors,
		Actuators: p.Actuators,
	}, nil
}

// SetActuator conditionally sets one actuator field on the document with
// the given id. The WHERE clause excludes rows whose value already equals
// the target, so the returned count mirrors a document store's modified
// count: 0 when the value was already set or the document vanished.
func (s *SQLiteStore) SetActuator(ctx context.Context, docID string, device, value int) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// JSON object keys are strings, matching the payload encoding of the
	// actuator map.
	path := fmt.Sprintf(`$.actuators."%d"`, device)
	query := `
		UPDATE state_documents
		SET payload = json_set(payload, ?, ?)
		WHERE doc_id = ?
		  AND (json_extract(payload, ?) IS NULL OR json_extract(payload, ?) != ?)`

	res, err := s.db.ExecContext(ctx, query, path, value, docID, path, path, value)
	if shared.IsSQLiteConflictError(err) {
		res, err = s.db.ExecContext(ctx, query, path, value, docID, path, path, value)
	}
	if err != nil {
		return 0, fmt.Errorf("update actuator %d on %s: %w", device, docID, err)
	}

	modified, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return modified, nil
}

// Insert stores a new snapshot document.
func (s *SQLiteStore) Insert(ctx context.Context, doc *domain.StateDocument) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	body, err := json.Marshal(payload{Sensors: doc.Sensors, Actuators: doc.Actuators})
	if err != nil {
		return fmt.Errorf("encode state document: %w", err)
	}

	query := `INSERT INTO state_documents (doc_id, ts, payload) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, doc.ID, doc.Timestamp.Unix(), string(body)); err != nil {
		return fmt.Errorf("insert state document: %w", err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
