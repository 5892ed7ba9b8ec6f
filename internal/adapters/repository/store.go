// Package repository persists vote history, shots, the roster and the loop
// checkpoint in SQLite or Postgres.
package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	_ "modernc.org/sqlite"             // sqlite driver

	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/pkg/logger"
	"github.com/okian/mafiabot/pkg/metrics"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// Dialect selects the SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DefaultSQLitePath is used when no path is configured.
const DefaultSQLitePath = "data/mafiabot.sqlite"

const checkpointRow = 1

var (
	historyCols = []string{"seq", "id", "voter", "voter_alias", "target", "target_name", "post_id", "post_time", "cycle", "unvoted_at"}
	shotCols    = []string{"seq", "attacker", "victim", "post_id", "cycle", "victim_died"}
	playerCols  = []string{"seq", "player_key", "name", "alive", "attack", "defense", "last_shot", "role", "team", "replaced_by", "replaced_at"}
	checkCols   = []string{"id", "cycle", "day", "day_start_post", "last_tally_post", "last_tally_final", "last_report_post", "updated_at"}
)

// Store is the SQL-backed game store. Every write replaces a whole table
// inside one transaction, so a crash leaves either the old or the new state.
type Store struct {
	dialect    Dialect
	sqlitePath string
	dsn        string
	db         *sql.DB

	logger logger.Logger
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, opts ...Option) (*Store, error) {
	s := &Store{
		dialect:    DialectSQLite,
		sqlitePath: DefaultSQLitePath,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrGet(s.logger).Named("repository")

	var driver, dsn string
	switch s.dialect {
	case DialectSQLite:
		driver, dsn = "sqlite", s.sqlitePath
		if err := os.MkdirAll(filepath.Dir(s.sqlitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	case DialectPostgres:
		driver, dsn = "pgx", s.dsn
		if dsn == "" {
			return nil, ErrMissingDSN
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, s.dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", s.dialect, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", s.dialect, err)
	}

	s.db = db
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info(ctx, "database ready", logger.String("dialect", string(s.dialect)))
	return s, nil
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) bind(pos int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", pos)
	}
	return "?"
}

func (s *Store) insertQuery(table string, cols []string) string {
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = s.bind(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(ph, ", "))
}

func (s *Store) migrate(ctx context.Context) error {
	create := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[string]bool{}
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema migration: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate schema migrations: %w", err)
	}
	rows.Close()

	files, err := fs.Glob(migrationFS, fmt.Sprintf("migrations/%s/*.sql", s.dialect))
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)
	for _, file := range files {
		base := filepath.Base(file)
		if applied[base] {
			continue
		}
		body, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		err = s.inTx(ctx, "migrate", func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return fmt.Errorf("apply migration %s: %w", file, err)
			}
			q := s.insertQuery("schema_migrations", []string{"version", "applied_at"})
			if _, err := tx.ExecContext(ctx, q, base, time.Now().UTC()); err != nil {
				return fmt.Errorf("record migration %s: %w", file, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.logger.Info(ctx, "migration applied", logger.String("version", base))
	}
	return nil
}

// inTx runs fn in a transaction and records latency and failures under op.
func (s *Store) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.RecordStoreError(op)
		return fmt.Errorf("begin %s tx: %w", op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		metrics.RecordStoreError(op)
		return err
	}
	if err := tx.Commit(); err != nil {
		metrics.RecordStoreError(op)
		return fmt.Errorf("commit %s tx: %w", op, err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, op, q string, scan func(*sql.Rows) error) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
	}()

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		metrics.RecordStoreError(op)
		return fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			metrics.RecordStoreError(op)
			return fmt.Errorf("%s: scan: %w", op, err)
		}
	}
	if err := rows.Err(); err != nil {
		metrics.RecordStoreError(op)
		return fmt.Errorf("%s: iterate: %w", op, err)
	}
	return nil
}

// LoadHistory returns every history row in the order it was recorded.
func (s *Store) LoadHistory(ctx context.Context) ([]model.HistoryEntry, error) {
	var out []model.HistoryEntry
	q := "SELECT " + strings.Join(historyCols[1:], ", ") + " FROM vote_history ORDER BY seq"
	err := s.query(ctx, "load_history", q, func(rows *sql.Rows) error {
		var h model.HistoryEntry
		var postTime int64
		if err := rows.Scan(&h.ID, &h.Voter, &h.VoterAlias, &h.Target, &h.TargetName,
			&h.PostID, &postTime, &h.Cycle, &h.UnvotedAt); err != nil {
			return err
		}
		h.PostTime = postTime
		out = append(out, h)
		return nil
	})
	return out, err
}

// LoadShots returns every resolved shot in resolution order.
func (s *Store) LoadShots(ctx context.Context) ([]model.ShotEntry, error) {
	var out []model.ShotEntry
	q := "SELECT " + strings.Join(shotCols[1:], ", ") + " FROM shots ORDER BY seq"
	err := s.query(ctx, "load_shots", q, func(rows *sql.Rows) error {
		var sh model.ShotEntry
		var died int
		if err := rows.Scan(&sh.Attacker, &sh.Victim, &sh.PostID, &sh.Cycle, &died); err != nil {
			return err
		}
		sh.VictimDied = died != 0
		out = append(out, sh)
		return nil
	})
	return out, err
}

// LoadRoster returns every player record, dead ones included.
func (s *Store) LoadRoster(ctx context.Context) ([]model.Player, error) {
	var out []model.Player
	q := "SELECT " + strings.Join(playerCols[1:], ", ") + " FROM players ORDER BY seq"
	err := s.query(ctx, "load_roster", q, func(rows *sql.Rows) error {
		var p model.Player
		var alive int
		if err := rows.Scan(&p.Key, &p.Name, &alive, &p.Attack, &p.Defense, &p.LastShot,
			&p.Role, &p.Team, &p.ReplacedBy, &p.ReplacedAt); err != nil {
			return err
		}
		p.Alive = alive != 0
		out = append(out, p)
		return nil
	})
	return out, err
}

// LoadCheckpoint returns the saved loop state. ok is false before the
// first flush.
func (s *Store) LoadCheckpoint(ctx context.Context) (cp model.Checkpoint, ok bool, err error) {
	var final int
	q := fmt.Sprintf("SELECT cycle, day, day_start_post, last_tally_post, last_tally_final, last_report_post FROM checkpoint WHERE id = %s", s.bind(1))
	err = s.db.QueryRowContext(ctx, q, checkpointRow).Scan(
		&cp.Cycle, &cp.Day, &cp.DayStartPost, &cp.LastTally.PostID, &final, &cp.LastReport)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Checkpoint{}, false, nil
	}
	if err != nil {
		metrics.RecordStoreError("load_checkpoint")
		return model.Checkpoint{}, false, fmt.Errorf("load checkpoint: %w", err)
	}
	cp.LastTally.Final = final != 0
	return cp, true, nil
}

// LastCycle returns the highest cycle id found in any table.
func (s *Store) LastCycle(ctx context.Context) (int, bool, error) {
	var last sql.NullInt64
	q := `SELECT MAX(c) FROM (
		SELECT cycle AS c FROM vote_history
		UNION ALL SELECT cycle FROM shots
		UNION ALL SELECT cycle FROM checkpoint
	) AS cycles`
	if err := s.db.QueryRowContext(ctx, q).Scan(&last); err != nil {
		metrics.RecordStoreError("last_cycle")
		return 0, false, fmt.Errorf("last cycle: %w", err)
	}
	return int(last.Int64), last.Valid, nil
}

// SaveHistory replaces the history table.
func (s *Store) SaveHistory(ctx context.Context, rows []model.HistoryEntry) error {
	return s.inTx(ctx, "save_history", func(tx *sql.Tx) error {
		return s.writeHistory(ctx, tx, rows)
	})
}

// SaveShots replaces the shot table.
func (s *Store) SaveShots(ctx context.Context, rows []model.ShotEntry) error {
	return s.inTx(ctx, "save_shots", func(tx *sql.Tx) error {
		return s.writeShots(ctx, tx, rows)
	})
}

// SaveRoster replaces the player table.
func (s *Store) SaveRoster(ctx context.Context, players []model.Player) error {
	return s.inTx(ctx, "save_roster", func(tx *sql.Tx) error {
		return s.writePlayers(ctx, tx, players)
	})
}

// Flush writes everything a cycle produced in one transaction.
func (s *Store) Flush(ctx context.Context, f model.Flush) error {
	err := s.inTx(ctx, "flush", func(tx *sql.Tx) error {
		if err := s.writeHistory(ctx, tx, f.History); err != nil {
			return err
		}
		if err := s.writeShots(ctx, tx, f.Shots); err != nil {
			return err
		}
		if err := s.writePlayers(ctx, tx, f.Players); err != nil {
			return err
		}
		return s.writeCheckpoint(ctx, tx, f.Checkpoint)
	})
	if err != nil {
		return err
	}
	s.logger.Debug(ctx, "state flushed",
		logger.Int("history", len(f.History)),
		logger.Int("shots", len(f.Shots)),
		logger.Int("players", len(f.Players)),
		logger.Int("cycle", f.Checkpoint.Cycle),
	)
	return nil
}

func (s *Store) writeHistory(ctx context.Context, tx *sql.Tx, rows []model.HistoryEntry) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM vote_history"); err != nil {
		return fmt.Errorf("clear vote_history: %w", err)
	}
	q := s.insertQuery("vote_history", historyCols)
	for i, h := range rows {
		if _, err := tx.ExecContext(ctx, q, i, h.ID, h.Voter, h.VoterAlias, h.Target, h.TargetName,
			h.PostID, h.PostTime, h.Cycle, h.UnvotedAt); err != nil {
			return fmt.Errorf("insert vote_history: %w", err)
		}
	}
	return nil
}

func (s *Store) writeShots(ctx context.Context, tx *sql.Tx, rows []model.ShotEntry) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM shots"); err != nil {
		return fmt.Errorf("clear shots: %w", err)
	}
	q := s.insertQuery("shots", shotCols)
	for i, sh := range rows {
		if _, err := tx.ExecContext(ctx, q, i, sh.Attacker, sh.Victim, sh.PostID, sh.Cycle, boolInt(sh.VictimDied)); err != nil {
			return fmt.Errorf("insert shots: %w", err)
		}
	}
	return nil
}

func (s *Store) writePlayers(ctx context.Context, tx *sql.Tx, players []model.Player) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM players"); err != nil {
		return fmt.Errorf("clear players: %w", err)
	}
	q := s.insertQuery("players", playerCols)
	for i, p := range players {
		if _, err := tx.ExecContext(ctx, q, i, p.Key, p.Name, boolInt(p.Alive), p.Attack, p.Defense,
			p.LastShot, p.Role, p.Team, p.ReplacedBy, p.ReplacedAt); err != nil {
			return fmt.Errorf("insert players: %w", err)
		}
	}
	return nil
}

func (s *Store) writeCheckpoint(ctx context.Context, tx *sql.Tx, cp model.Checkpoint) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM checkpoint"); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	q := s.insertQuery("checkpoint", checkCols)
	if _, err := tx.ExecContext(ctx, q, checkpointRow, cp.Cycle, cp.Day, cp.DayStartPost,
		cp.LastTally.PostID, boolInt(cp.LastTally.Final), cp.LastReport, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
