// Package journal сохраняет исходы попыток в SQLite
package journal

import (
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"ftp_bounce/models"
)

const schema = `CREATE TABLE IF NOT EXISTS attempt (
  campaign TEXT,
  idx INTEGER,
  path TEXT,
  filename TEXT,
  response TEXT,
  error TEXT,
  received BOOL,
  size INTEGER,
  timestamp TIMESTAMP
)`

// Journal запись попыток кампании
type Journal struct {
	db   *sql.DB
	stmt *sql.Stmt
	mu   sync.Mutex
}

// Open открывает или создаёт базу по пути path
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, "opening journal %s", path)
	}
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating journal schema")
	} else if _, err = db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "setting journal mode")
	}
	stmt, err := db.Prepare("INSERT INTO attempt(campaign, idx, path, filename, response, error, received, size, timestamp) VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)")
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "preparing journal insert")
	}
	return &Journal{db: db, stmt: stmt}, nil
}

// Record сохраняет попытку
func (j *Journal) Record(campaign string, a *models.Attempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.stmt.Exec(campaign, a.Index, a.Path, a.Filename, a.Response, a.Error, a.Received, a.Size, a.Started)
	return errors.Wrap(err, "recording attempt")
}

// Attempts возвращает попытки кампании в порядке словаря
func (j *Journal) Attempts(campaign string) ([]models.Attempt, error) {
	rows, err := j.db.Query("SELECT idx, path, filename, response, error, received, size, timestamp FROM attempt WHERE campaign = $1 ORDER BY idx", campaign)
	if err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	defer rows.Close()
	var out []models.Attempt
	for rows.Next() {
		var a models.Attempt
		if err := rows.Scan(&a.Index, &a.Path, &a.Filename, &a.Response, &a.Error, &a.Received, &a.Size, &a.Started); err != nil {
			return nil, errors.Wrap(err, "scanning attempt")
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "iterating attempts")
}

// Close закрывает базу
func (j *Journal) Close() error {
	j.stmt.Close()
	return j.db.Close()
}
