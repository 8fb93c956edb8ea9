// Package migrations embeds the ordinal SQL migration set and applies it
// against the instances database, tracking applied ordinals in a
// schema_migrations table per the persistence store's contract.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var sqlFS embed.FS

type migration struct {
	ordinal int
	name    string
	up      string
	down    string
}

func loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(sqlFS, "sql")
	if err != nil {
		return nil, errors.Wrap(err, "reading embedded migrations")
	}

	byOrdinal := map[int]*migration{}
	for _, e := range entries {
		name := e.Name()
		ordinalStr, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		ordinal, err := strconv.Atoi(ordinalStr)
		if err != nil {
			continue
		}
		contents, err := sqlFS.ReadFile("sql/" + name)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", name)
		}
		m := byOrdinal[ordinal]
		if m == nil {
			m = &migration{ordinal: ordinal, name: strings.TrimSuffix(strings.TrimSuffix(rest, ".up.sql"), ".down.sql")}
			byOrdinal[ordinal] = m
		}
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			m.up = string(contents)
		case strings.HasSuffix(name, ".down.sql"):
			m.down = string(contents)
		}
	}

	out := make([]migration, 0, len(byOrdinal))
	for _, m := range byOrdinal {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ordinal < out[j].ordinal })
	return out, nil
}

const createTrackingTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    ordinal INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// Up applies every migration with an ordinal greater than the highest
// recorded one, in ascending order, each in its own transaction.
func Up(sqlDB *sql.DB, logger *zap.Logger) error {
	if _, err := sqlDB.Exec(createTrackingTable); err != nil {
		return errors.Wrap(err, "creating schema_migrations table")
	}

	applied, err := appliedOrdinals(sqlDB)
	if err != nil {
		return err
	}

	all, err := loadMigrations()
	if err != nil {
		return err
	}

	for _, m := range all {
		if applied[m.ordinal] {
			continue
		}
		if err := applyOne(sqlDB, m, true); err != nil {
			return errors.Wrapf(err, "applying migration %04d_%s", m.ordinal, m.name)
		}
		logger.Info("applied migration", zap.Int("ordinal", m.ordinal), zap.String("name", m.name))
	}
	return nil
}

// Down reverts the single most recently applied migration.
func Down(sqlDB *sql.DB, logger *zap.Logger) error {
	applied, err := appliedOrdinals(sqlDB)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return nil
	}
	highest := 0
	for ord := range applied {
		if ord > highest {
			highest = ord
		}
	}

	all, err := loadMigrations()
	if err != nil {
		return err
	}
	var target *migration
	for i := range all {
		if all[i].ordinal == highest {
			target = &all[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migrations: no source found for applied ordinal %d", highest)
	}
	if err := applyOne(sqlDB, *target, false); err != nil {
		return errors.Wrapf(err, "reverting migration %04d_%s", target.ordinal, target.name)
	}
	logger.Info("reverted migration", zap.Int("ordinal", target.ordinal), zap.String("name", target.name))
	return nil
}

func applyOne(sqlDB *sql.DB, m migration, up bool) error {
	tx, err := sqlDB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	script := m.down
	if up {
		script = m.up
	}
	for _, stmt := range splitStatements(script) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return errors.Wrapf(err, "executing statement: %s", stmt)
		}
	}

	if up {
		if _, err := tx.Exec(`INSERT INTO schema_migrations (ordinal, name) VALUES (?, ?)`, m.ordinal, m.name); err != nil {
			return err
		}
	} else {
		if _, err := tx.Exec(`DELETE FROM schema_migrations WHERE ordinal = ?`, m.ordinal); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func appliedOrdinals(sqlDB *sql.DB) (map[int]bool, error) {
	rows, err := sqlDB.Query(`SELECT ordinal FROM schema_migrations`)
	if err != nil {
		return nil, errors.Wrap(err, "reading schema_migrations")
	}
	defer rows.Close()

	out := map[int]bool{}
	for rows.Next() {
		var ordinal int
		if err := rows.Scan(&ordinal); err != nil {
			return nil, err
		}
		out[ordinal] = true
	}
	return out, rows.Err()
}

func splitStatements(script string) []string {
	lines := strings.Split(script, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		filtered = append(filtered, line)
	}
	return strings.Split(strings.Join(filtered, "\n"), ";")
}
