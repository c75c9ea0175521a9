// Package sqlite opens an embedded SQLite database through the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/config"
	"modernc.org/sqlite"
)

const (
	codeBusy   = 5
	codeLocked = 6
)

type Client struct {
	DB *sql.DB
}

// New opens cfg.Path. An empty path or ":memory:" opens a private in-memory
// database held by a single connection.
func New(cfg config.SQLiteConfig) (*Client, error) {
	path := cfg.Path
	memory := path == "" || path == ":memory:"
	if memory {
		path = ":memory:"
	} else if !strings.Contains(path, "?") {
		path += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}
	return &Client{DB: db}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// IsBusy reports SQLITE_BUSY and SQLITE_LOCKED, including extended codes.
func IsBusy(err error) bool {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return false
	}
	primary := sqlErr.Code() & 0xff
	return primary == codeBusy || primary == codeLocked
}
