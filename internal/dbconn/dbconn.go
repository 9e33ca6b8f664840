// Package dbconn opens the SQLite database holding the deployment history.
package dbconn

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DBConf struct {
	URL         string
	MaxIdle     int
	MaxOpen     int
	MaxLifetime time.Duration
	LogLevel    logger.LogLevel
}

type DBOpts func(*DBConf)

func NewConf() *DBConf {
	return &DBConf{
		URL:         "file:history.db",
		MaxIdle:     1,
		MaxOpen:     1,
		MaxLifetime: 300 * time.Second,
		LogLevel:    logger.Silent,
	}
}

func WithURL(url string) DBOpts {
	return func(d *DBConf) {
		d.URL = url
	}
}

// WithPath points the connection at a database file, creating its directory.
func WithPath(path string) DBOpts {
	return func(d *DBConf) {
		d.URL = "file:" + path
	}
}

func WithMaxOpen(open int) DBOpts {
	return func(d *DBConf) {
		d.MaxOpen = open
	}
}

func WithLogLevel(level logger.LogLevel) DBOpts {
	return func(d *DBConf) {
		d.LogLevel = level
	}
}

// Open connects to the database and verifies the connection. The caller owns
// the returned handle and must Close it.
func Open(options ...DBOpts) (*gorm.DB, error) {
	conf := NewConf()
	for _, o := range options {
		o(conf)
	}

	if path := filePath(conf.URL); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(conf.URL), &gorm.Config{
		Logger: logger.Default.LogMode(conf.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sdb, err := db.DB()
	if err != nil {
		return nil, err
	}

	sdb.SetMaxIdleConns(conf.MaxIdle)
	sdb.SetMaxOpenConns(conf.MaxOpen)
	sdb.SetConnMaxLifetime(conf.MaxLifetime)

	if err := sdb.Ping(); err != nil {
		sdb.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// Migrate creates or updates the tables for models.
func Migrate(db *gorm.DB, models ...any) error {
	if db == nil {
		return fmt.Errorf("db is not defined")
	}
	return db.AutoMigrate(models...)
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sdb, err := db.DB()
	if err != nil {
		return err
	}
	return sdb.Close()
}

// filePath extracts the on-disk path of a "file:" URL, ignoring in-memory databases.
func filePath(url string) string {
	path := strings.TrimPrefix(url, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		if strings.Contains(path[i:], "mode=memory") {
			return ""
		}
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return path
}
