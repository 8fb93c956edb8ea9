// Package db wires GORM to the control plane's single-file SQLite store
// and carries the persistence-layer contracts (lambda-update, migrations)
// named in the component design.
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"moul.io/zapgorm2"
)

type patchedLogger struct {
	zapgorm2.Logger
}

// Trace suppresses ErrRecordNotFound noise; callers handle that case in
// application logic and it isn't worth a log line, let alone a Sentry event.
func (l *patchedLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if err == gorm.ErrRecordNotFound {
		return
	}
	l.Logger.Trace(ctx, begin, fc, err)
}

// New opens the instances database at path, a single SQLite file under
// DataRoot, through gorm.io/driver/sqlite, which is backed by the
// mattn/go-sqlite3 driver and therefore needs cgo.
func New(logger *zap.Logger, path string) (*gorm.DB, error) {
	gLogger := zapgorm2.Logger{
		ZapLogger:        logger,
		LogLevel:         gormlogger.Warn,
		SlowThreshold:    time.Second,
		SkipCallerLookup: false,
	}
	database, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: &patchedLogger{Logger: gLogger},
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot open instances database")
	}
	pool, err := database.DB()
	if err != nil {
		return nil, errors.Wrap(err, "cannot get the connection pool")
	}
	// SQLite tolerates exactly one writer; a single connection avoids
	// SQLITE_BUSY under concurrent instance writes instead of papering
	// over it with busy_timeout retries.
	pool.SetMaxOpenConns(1)
	pool.SetMaxIdleConns(1)
	pool.SetConnMaxLifetime(0)
	return database, nil
}

// LambdaUpdate is the serialization primitive §4.7 names for lifecycle
// writes: lock the row, hand the caller a pointer to decide against, save
// only if it asks to. Runs inside a SERIALIZABLE transaction so concurrent
// lifecycle operations against the same instance cannot interleave.
func LambdaUpdate(gdb *gorm.DB, id string, fn func(*Instance) (bool, error)) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		var inst Instance
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&inst, "id = ?", id).Error; err != nil {
			return err
		}
		shouldSave, err := fn(&inst)
		if err != nil {
			return err
		}
		if !shouldSave {
			return nil
		}
		return tx.Save(&inst).Error
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
}
