package journal

import (
	"database/sql"
	"time"
)

// SetOpenDB replaces the database opener for tests.
func SetOpenDB(fn func(driver, dsn string) (*sql.DB, error)) (restore func()) {
	prev := openDB
	openDB = fn
	return func() { openDB = prev }
}

// SetTimeNow pins the clock for tests.
func SetTimeNow(fn func() time.Time) (restore func()) {
	prev := timeNow
	timeNow = fn
	return func() { timeNow = prev }
}

// DB exposes the internal *sql.DB for test helpers in journal_test.
func (j *Journal) DB() *sql.DB {
	return j.db
}
