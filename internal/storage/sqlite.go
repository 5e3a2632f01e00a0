package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding profiles, corpora, jobs and turns.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "learnbot.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// One connection: an in-memory database is per-connection, and a single
	// writer avoids "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate applies embedded SQL migrations that are not yet recorded in schema_version.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}
		if err := s.applyMigration(version, entry.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(version int, name string) error {
	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
		return fmt.Errorf("checking migration %d: %w", version, err)
	}
	if exists > 0 {
		return nil
	}

	content, err := migrationsFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("reading migration %s: %w", name, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("applying migration %d: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("recording migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %d: %w", version, err)
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Profile keys ---

// SetProfileKeys writes all pairs into scope in a single transaction.
// Keys not in kv are left alone.
func (s *Store) SetProfileKeys(scope string, kv map[string]string) error {
	if len(kv) == 0 {
		return nil
	}
	return s.writeProfileKeys(scope, kv, false)
}

// ReplaceProfileKeys makes kv the entire content of scope in a single
// transaction. An empty kv clears the scope.
func (s *Store) ReplaceProfileKeys(scope string, kv map[string]string) error {
	return s.writeProfileKeys(scope, kv, true)
}

func (s *Store) writeProfileKeys(scope string, kv map[string]string, replace bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning profile transaction: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.Exec("DELETE FROM profile_kv WHERE scope = ?", scope); err != nil {
			return fmt.Errorf("clearing %s: %w", scope, err)
		}
	}

	stmt, err := tx.Prepare(`
		INSERT INTO profile_kv (scope, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing profile upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := stmt.Exec(scope, k, kv[k], now); err != nil {
			return fmt.Errorf("writing %s/%s: %w", scope, k, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetProfileKey(scope, key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM profile_kv WHERE scope = ? AND key = ?", scope, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

func (s *Store) GetAllProfileKeys(scope string) (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM profile_kv WHERE scope = ?", scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}

// --- Corpora ---

func (s *Store) SaveCorpus(c Corpus) error {
	_, err := s.db.Exec(`
		INSERT INTO corpora (id, bot, category, title, source, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Bot, c.Category, c.Title, c.Source, c.Content,
		c.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetCorpus(id string) (Corpus, error) {
	var c Corpus
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, bot, category, title, source, content, created_at
		FROM corpora WHERE id = ?`, id,
	).Scan(&c.ID, &c.Bot, &c.Category, &c.Title, &c.Source, &c.Content, &createdAt)
	if err == sql.ErrNoRows {
		return Corpus{}, ErrNotFound
	}
	if err != nil {
		return Corpus{}, err
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Corpus{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return c, nil
}

// ListCorpora returns the newest corpora for bot. An empty bot lists all bots.
func (s *Store) ListCorpora(bot string, limit int) ([]Corpus, error) {
	rows, err := s.db.Query(`
		SELECT id, bot, category, title, source, content, created_at
		FROM corpora WHERE (? = '' OR bot = ?)
		ORDER BY created_at DESC LIMIT ?`, bot, bot, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Corpus
	for rows.Next() {
		var c Corpus
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Bot, &c.Category, &c.Title, &c.Source, &c.Content, &createdAt); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// --- Turns ---

func (s *Store) SaveTurn(t Turn) error {
	skipped := 0
	if t.Skipped {
		skipped = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO turns (id, created_at, user_name, bot_name, category, reply, skipped, answered, question)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.CreatedAt.UTC().Format(time.RFC3339), t.User, t.Bot, t.Category,
		t.Reply, skipped, t.Answered, t.Question,
	)
	return err
}

// GetRecentTurns returns up to limit turns for the user/bot pair, newest first.
func (s *Store) GetRecentTurns(user, bot string, limit int) ([]Turn, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, user_name, bot_name, category, reply, skipped, answered, question
		FROM turns WHERE user_name = ? AND bot_name = ?
		ORDER BY seq DESC LIMIT ?`, user, bot, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Turn
	for rows.Next() {
		var t Turn
		var createdAt string
		var skipped int
		if err := rows.Scan(&t.ID, &createdAt, &t.User, &t.Bot, &t.Category, &t.Reply, &skipped, &t.Answered, &t.Question); err != nil {
			return nil, err
		}
		t.Skipped = skipped != 0
		if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, t)
	}
	return results, rows.Err()
}

// --- Jobs ---

func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

// GetJob returns a job by ID, used to report the status of asynchronous learning.
func (s *Store) GetJob(id string) (Job, error) {
	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err := s.db.QueryRow(`
		SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError)
	if err == sql.ErrNoRows {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	j.LastError = lastError.String
	if err := parseJobTimes(&j, runAfter, createdAt, updatedAt); err != nil {
		return Job{}, err
	}
	return j, nil
}

func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]any, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	} else if n != 1 {
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if err := parseJobTimes(&j, runAfter, createdAt, now); err != nil {
		return nil, err
	}
	return &j, nil
}

func parseJobTimes(j *Job, runAfter, createdAt, updatedAt string) error {
	var err error
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return nil
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob records a failed attempt. The job is rescheduled with exponential
// backoff until max_attempts is reached, then marked failed.
func (s *Store) FailJob(id string, errMsg string) error {
	return s.failJob(id, errMsg, false)
}

// FailJobPermanently marks the job failed without further retries.
func (s *Store) FailJobPermanently(id string, errMsg string) error {
	return s.failJob(id, errMsg, true)
}

func (s *Store) failJob(id, errMsg string, permanent bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if permanent || attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Add(backoff).Format(time.RFC3339), now.Format(time.RFC3339), id)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}
