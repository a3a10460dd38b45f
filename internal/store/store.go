// Package store persists the entity graph to an embedded SQLite database
// between runs: the singleton logical-time/version row, the region and
// exe tables, the exe/region join table, and the per-pair Markov chain
// state with its two binary-blob fields.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ja7ad/prefetchd/internal/graph"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store wraps the on-disk database connection used to load and save the
// entity graph across restarts.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if absent) the SQLite database at path and applies
// any embedded migrations that have not yet run.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers

	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMigrate, err)
	}

	dbDriver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMigrate, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", dbDriver)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMigrate, err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("%w: %v", ErrMigrate, err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads the persisted graph state into a freshly constructed Graph.
// It does not run a process scan: recomputing which exes are currently
// running, and each chain's state from the refreshed running bits (a
// direct assignment via Graph.ResyncChainStates, not a weighted markov
// transition), is the caller's responsibility (the event loop, which owns
// the process scanner) so that this package has no OS dependency.
func Load(s *Store) (*graph.Graph, error) {
	g := graph.New()

	version, logicalTime, err := loadState(s.db)
	if err != nil {
		return nil, err
	}
	if version != "" {
		newer, mismatch := majorMismatch(version, Version)
		switch {
		case mismatch && newer:
			slog.Warn("state file is of a newer version", "stored", version, "running", Version)
		case mismatch:
			slog.Warn("state file is of an older version, continuing best-effort", "stored", version, "running", Version)
		}
	}
	g.Time = logicalTime

	seqToRegion, err := loadMaps(s.db, g)
	if err != nil {
		return nil, err
	}

	if err := loadBadExes(s.db, g); err != nil {
		return nil, err
	}

	seqToExe, err := loadExes(s.db, g)
	if err != nil {
		return nil, err
	}

	if err := loadExeMaps(s.db, g, seqToExe, seqToRegion); err != nil {
		return nil, err
	}

	if err := loadMarkovStates(s.db, g, seqToExe); err != nil {
		return nil, err
	}

	return g, nil
}

func loadState(db *sql.DB) (version string, logicalTime float64, err error) {
	row := db.QueryRow(`SELECT version, time FROM states WHERE id = 1`)
	err = row.Scan(&version, &logicalTime)
	if err == sql.ErrNoRows {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("%w: read states: %v", ErrOpen, err)
	}
	return version, logicalTime, nil
}

func loadMaps(db *sql.DB, g *graph.Graph) (map[int64]int, error) {
	rows, err := db.Query(`SELECT seq, update_time, offset, length, uri FROM maps`)
	if err != nil {
		return nil, fmt.Errorf("%w: read maps: %v", ErrOpen, err)
	}
	defer rows.Close()

	seqToRegion := map[int64]int{}
	for rows.Next() {
		var seq int64
		var updateTime float64
		var offset, length int64
		var uri string
		if err := rows.Scan(&seq, &updateTime, &offset, &length, &uri); err != nil {
			slog.Error("store: skipping malformed maps row", "err", err)
			continue
		}

		key := graph.RegionKey{Path: fromURI(uri), Offset: offset, Length: length}
		idx, err := g.RegisterRegion(key)
		if err != nil {
			slog.Error("store: skipping duplicate region", "uri", uri, "err", err)
			continue
		}
		g.Region(idx).UpdateTime = updateTime
		g.Region(idx).Seq = seq
		seqToRegion[seq] = idx
	}
	return seqToRegion, rows.Err()
}

func loadBadExes(db *sql.DB, g *graph.Graph) error {
	rows, err := db.Query(`SELECT update_time, uri FROM badexes`)
	if err != nil {
		return fmt.Errorf("%w: read badexes: %v", ErrOpen, err)
	}
	defer rows.Close()

	for rows.Next() {
		var updateTime float64
		var uri string
		if err := rows.Scan(&updateTime, &uri); err != nil {
			slog.Error("store: skipping malformed badexes row", "err", err)
			continue
		}
		g.BadExes[fromURI(uri)] = int64(updateTime)
	}
	return rows.Err()
}

func loadExes(db *sql.DB, g *graph.Graph) (map[int64]int, error) {
	rows, err := db.Query(`SELECT seq, update_time, time, uri FROM exes`)
	if err != nil {
		return nil, fmt.Errorf("%w: read exes: %v", ErrOpen, err)
	}
	defer rows.Close()

	seqToExe := map[int64]int{}
	for rows.Next() {
		var seq int64
		var updateTime, t float64
		var uri string
		if err := rows.Scan(&seq, &updateTime, &t, &uri); err != nil {
			slog.Error("store: skipping malformed exes row", "err", err)
			continue
		}

		e := &graph.Exe{Path: fromURI(uri), Time: t, UpdateTime: updateTime}
		idx, err := g.RegisterExe(e, false, 0)
		if err != nil {
			slog.Error("store: skipping duplicate exe", "uri", uri, "err", err)
			continue
		}
		g.Exe(idx).Seq = seq
		seqToExe[seq] = idx
	}
	return seqToExe, rows.Err()
}

func loadExeMaps(db *sql.DB, g *graph.Graph, seqToExe, seqToRegion map[int64]int) error {
	rows, err := db.Query(`SELECT seq, map_seq, prob FROM exemaps`)
	if err != nil {
		return fmt.Errorf("%w: read exemaps: %v", ErrOpen, err)
	}
	defer rows.Close()

	for rows.Next() {
		var seq, mapSeq int64
		var prob float64
		if err := rows.Scan(&seq, &mapSeq, &prob); err != nil {
			slog.Error("store: skipping malformed exemaps row", "err", err)
			continue
		}

		exeIdx, ok := seqToExe[seq]
		if !ok {
			continue // join miss: exe row absent or skipped
		}
		regionIdx, ok := seqToRegion[mapSeq]
		if !ok {
			continue // join miss: map row absent or skipped
		}

		g.AddExeMap(exeIdx, regionIdx, prob)
	}
	return rows.Err()
}

func loadMarkovStates(db *sql.DB, g *graph.Graph, seqToExe map[int64]int) error {
	rows, err := db.Query(`SELECT a_seq, b_seq, time, time_to_leave, weight FROM markovstates`)
	if err != nil {
		return fmt.Errorf("%w: read markovstates: %v", ErrOpen, err)
	}
	defer rows.Close()

	for rows.Next() {
		var aSeq, bSeq int64
		var t float64
		var ttlBlob, weightBlob []byte
		if err := rows.Scan(&aSeq, &bSeq, &t, &ttlBlob, &weightBlob); err != nil {
			slog.Error("store: skipping malformed markovstates row", "err", err)
			continue
		}

		aIdx, ok := seqToExe[aSeq]
		if !ok {
			continue // join miss
		}
		bIdx, ok := seqToExe[bSeq]
		if !ok {
			continue // join miss
		}

		ttl, err := decodeTimeToLeave(ttlBlob)
		if err != nil {
			slog.Error("store: skipping markovstates row with bad time_to_leave blob", "err", err)
			continue
		}
		weight, err := decodeWeight(weightBlob)
		if err != nil {
			slog.Error("store: skipping markovstates row with bad weight blob", "err", err)
			continue
		}

		g.RestoreChain(aIdx, bIdx, t, ttl, weight)
	}
	return rows.Err()
}

// Save writes the current graph to the database: the singleton state row,
// then maps, badexes, exes, and for each exe its exemaps and chains. Each
// table is written in its own transaction so that a later table's failure
// does not roll back an earlier table's committed rows; the first error
// encountered is returned to the caller after every table that could
// commit has been attempted.
func Save(s *Store, g *graph.Graph) error {
	var firstErr error
	record := func(step string, err error) {
		if err == nil {
			return
		}
		slog.Error("store: save step failed", "step", step, "err", err)
		if firstErr == nil {
			firstErr = fmt.Errorf("store: %s: %w", step, err)
		}
	}

	record("state", saveState(s.db, g))
	record("maps", saveMaps(s.db, g))
	record("badexes", saveBadExes(s.db, g))
	record("exes", saveExes(s.db, g))
	record("exemaps", saveExeMaps(s.db, g))
	record("markovstates", saveMarkovStates(s.db, g))

	if firstErr == nil {
		g.Dirty = false
		g.BadExes = map[string]int64{}
	}
	return firstErr
}

func saveState(db *sql.DB, g *graph.Graph) error {
	_, err := db.Exec(`INSERT INTO states (id, version, time) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version, time = excluded.time`,
		Version, g.Time)
	return err
}

func saveMaps(db *sql.DB, g *graph.Graph) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM maps`); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO maps (seq, update_time, offset, length, uri) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, idx := range g.Regions() {
		r := g.Region(idx)
		if _, err := stmt.Exec(r.Seq, r.UpdateTime, r.Offset, r.Length, toURI(r.Path)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func saveBadExes(db *sql.DB, g *graph.Graph) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM badexes`); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO badexes (update_time, uri) VALUES (?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for path, ts := range g.BadExes {
		if _, err := stmt.Exec(ts, toURI(path)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func saveExes(db *sql.DB, g *graph.Graph) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM exes`); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO exes (seq, update_time, time, uri) VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, idx := range g.Exes() {
		e := g.Exe(idx)
		if _, err := stmt.Exec(e.Seq, e.UpdateTime, e.Time, toURI(e.Path)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func saveExeMaps(db *sql.DB, g *graph.Graph) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM exemaps`); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO exemaps (seq, map_seq, prob) VALUES (?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, idx := range g.Exes() {
		e := g.Exe(idx)
		for _, em := range e.Maps {
			r := g.Region(em.RegionIdx)
			if r == nil {
				continue
			}
			if _, err := stmt.Exec(e.Seq, r.Seq, em.Prob); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}
	return tx.Commit()
}

func saveMarkovStates(db *sql.DB, g *graph.Graph) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM markovstates`); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO markovstates (a_seq, b_seq, time, time_to_leave, weight) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	seen := map[int]bool{}
	for _, idx := range g.Exes() {
		e := g.Exe(idx)
		for _, cidx := range e.Chains {
			if seen[cidx] {
				continue
			}
			seen[cidx] = true

			c := g.Chain(cidx)
			aSeq := g.Exe(c.A).Seq
			bSeq := g.Exe(c.B).Seq
			ttl := encodeTimeToLeave(c.TimeToLeave)
			weight := encodeWeight(c.Weight)
			if _, err := stmt.Exec(aSeq, bSeq, c.Time, ttl, weight); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}
	return tx.Commit()
}
