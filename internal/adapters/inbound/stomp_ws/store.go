package stomp_ws

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/charleschow/live-scoring/internal/telemetry"

	_ "modernc.org/sqlite"
)

const (
	defaultStoreBytes int64 = 256 << 20
	evictBatchSize          = 100
	vacuumInterval          = 50
)

// Store persists raw push bodies in a FIFO SQLite database. Oldest rows are
// evicted once the byte budget is exceeded.
type Store struct {
	db       *sql.DB
	maxBytes int64
	wg       sync.WaitGroup

	mu           sync.Mutex
	cachedSize   int64
	evictCounter int
}

func OpenStore(path string, maxBytes int64) (*Store, error) {
	if maxBytes <= 0 {
		maxBytes = defaultStoreBytes
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	var avMode int
	if err := db.QueryRow(`PRAGMA auto_vacuum`).Scan(&avMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("read auto_vacuum: %w", err)
	}
	if avMode != 2 { // 2 = INCREMENTAL
		if _, err := db.Exec(`PRAGMA auto_vacuum = INCREMENTAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("set auto_vacuum: %w", err)
		}
		if _, err := db.Exec(`VACUUM`); err != nil {
			telemetry.Warnf("archive: VACUUM to enable auto_vacuum failed: %v", err)
		}
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS push_frames (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			topic     TEXT    NOT NULL,
			msg_type  TEXT    NOT NULL,
			received  TEXT    NOT NULL,
			byte_size INTEGER NOT NULL,
			raw       BLOB    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pf_topic ON push_frames(topic)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init archive schema: %w", err)
		}
	}

	var size int64
	if err := db.QueryRow(`SELECT COALESCE(SUM(byte_size), 0) FROM push_frames`).Scan(&size); err != nil {
		db.Close()
		return nil, fmt.Errorf("read archive size: %w", err)
	}

	telemetry.Infof("archive: opened %s (%s of %s used)", path, humanize.Bytes(uint64(size)), humanize.Bytes(uint64(maxBytes)))
	return &Store{db: db, maxBytes: maxBytes, cachedSize: size}, nil
}

// Insert stores a raw push body asynchronously.
func (s *Store) Insert(topic, msgType string, raw []byte) {
	if s == nil {
		return
	}
	rawCopy := append([]byte(nil), raw...)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.mu.Lock()
		defer s.mu.Unlock()

		_, err := s.db.Exec(
			`INSERT INTO push_frames (topic, msg_type, received, byte_size, raw) VALUES (?, ?, ?, ?, ?)`,
			topic, msgType, time.Now().UTC().Format(time.RFC3339Nano), len(rawCopy), rawCopy,
		)
		if err != nil {
			telemetry.Warnf("archive: insert failed: %v", err)
			return
		}
		telemetry.Metrics.FramesArchived.Inc()

		s.cachedSize += int64(len(rawCopy))
		if s.cachedSize > s.maxBytes {
			s.evict()
		}
	}()
}

func (s *Store) evict() {
	for s.cachedSize > s.maxBytes {
		var freed int64
		err := s.db.QueryRow(
			`WITH deleted AS (
				DELETE FROM push_frames
				WHERE id IN (SELECT id FROM push_frames ORDER BY id ASC LIMIT ?)
				RETURNING byte_size
			)
			SELECT COALESCE(SUM(byte_size), 0) FROM deleted`,
			evictBatchSize,
		).Scan(&freed)
		if err != nil {
			telemetry.Warnf("archive: eviction query failed: %v", err)
			return
		}
		if freed == 0 {
			return
		}
		s.cachedSize -= freed
		s.evictCounter++
		telemetry.Debugf("archive: evicted %s", humanize.Bytes(uint64(freed)))

		if s.evictCounter%vacuumInterval == 0 {
			if _, err := s.db.Exec(`PRAGMA incremental_vacuum`); err != nil {
				telemetry.Warnf("archive: incremental_vacuum failed: %v", err)
			}
		}
	}
}

// Stats returns the row count and stored bytes after pending inserts land.
func (s *Store) Stats() (rows int, bytes int64, err error) {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(byte_size), 0) FROM push_frames`).Scan(&rows, &bytes)
	return rows, bytes, err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.wg.Wait()
	return s.db.Close()
}
