package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wrongjunior/eventbridge/internal/domain"
)

// DownloadRecord is a stored DownloadFileInfo with its arrival time.
type DownloadRecord struct {
	domain.DownloadFileInfo
	ReceivedAt time.Time `json:"received_at"`
}

// DownloadRepository stores download infos posted to the backend.
type DownloadRepository interface {
	SaveDownload(ctx context.Context, info domain.DownloadFileInfo) error
	ListDownloads(ctx context.Context, limit int) ([]DownloadRecord, error)
}

// MessageJournal records every payload the backend emitted.
type MessageJournal interface {
	SaveMessage(ctx context.Context, event domain.Event) error
}

// SQLiteRepository implements both stores on a single SQLite database.
type SQLiteRepository struct {
	DB  *sql.DB
	now func() time.Time
}

// Open opens the database at path. Use ":memory:" for a throwaway store.
func Open(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// a pooled second connection to ":memory:" would see an empty database
	db.SetMaxOpenConns(1)
	return NewSQLiteRepository(db), nil
}

// NewSQLiteRepository wraps an already opened database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{DB: db, now: time.Now}
}

// Init creates the tables if they do not exist yet.
func (repo *SQLiteRepository) Init() error {
	query := `
        CREATE TABLE IF NOT EXISTS downloads (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            url TEXT NOT NULL,
            hash TEXT NOT NULL,
            remote_id INTEGER NOT NULL,
            received_at DATETIME NOT NULL
        );
        CREATE TABLE IF NOT EXISTS messages (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            event TEXT NOT NULL,
            payload TEXT NOT NULL,
            emitted_at DATETIME NOT NULL
        );
    `
	_, err := repo.DB.Exec(query)
	return err
}

func (repo *SQLiteRepository) SaveDownload(ctx context.Context, info domain.DownloadFileInfo) error {
	query := `INSERT INTO downloads (url, hash, remote_id, received_at) VALUES (?, ?, ?, ?);`
	if _, err := repo.DB.ExecContext(ctx, query, info.URL, info.Hash, info.RemoteID, repo.now().UTC()); err != nil {
		return fmt.Errorf("save download: %w", err)
	}
	return nil
}

// ListDownloads returns up to limit records, most recent first.
func (repo *SQLiteRepository) ListDownloads(ctx context.Context, limit int) ([]DownloadRecord, error) {
	query := `SELECT url, hash, remote_id, received_at FROM downloads ORDER BY id DESC LIMIT ?;`
	rows, err := repo.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	defer rows.Close()

	records := make([]DownloadRecord, 0)
	for rows.Next() {
		var rec DownloadRecord
		if err := rows.Scan(&rec.URL, &rec.Hash, &rec.RemoteID, &rec.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (repo *SQLiteRepository) SaveMessage(ctx context.Context, event domain.Event) error {
	query := `INSERT INTO messages (event, payload, emitted_at) VALUES (?, ?, ?);`
	if _, err := repo.DB.ExecContext(ctx, query, event.Name, event.Payload, repo.now().UTC()); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// CountMessages reports how many payloads were journaled for event.
func (repo *SQLiteRepository) CountMessages(ctx context.Context, event string) (int, error) {
	var count int
	err := repo.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE event = ?;`, event).Scan(&count)
	return count, err
}

func (repo *SQLiteRepository) Close() error {
	return repo.DB.Close()
}
