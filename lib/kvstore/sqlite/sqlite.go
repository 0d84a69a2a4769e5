// Loader backed by SQLite.
//
// All namespaces share a single table keyed by (scope, name).
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ccontavalli/nativestore/lib/kflags"
	"github.com/ccontavalli/nativestore/lib/kvstore"
	"github.com/ccontavalli/nativestore/lib/kvstore/directory"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
  scope TEXT NOT NULL,
  name TEXT NOT NULL,
  data BLOB,
  PRIMARY KEY (scope, name)
);
`

const defaultBusyTimeout = 5000

var _ kvstore.Loader = (*Loader)(nil)

type SQLite struct {
	db *sql.DB
}

// Flags configures a SQLite database from the command line.
type Flags struct {
	Path         string
	JournalMode  string
	Synchronous  string
	BusyTimeout  int
	MaxOpenConns int
	MaxIdleConns int
}

// DefaultFlags returns flags selecting WAL journaling, which allows readers
// to proceed while a write is in progress.
func DefaultFlags() *Flags {
	return &Flags{
		JournalMode: "WAL",
		Synchronous: "NORMAL",
		BusyTimeout: defaultBusyTimeout,
	}
}

// Register registers the SQLite flags with the provided FlagSet.
func (f *Flags) Register(set kflags.FlagSet, prefix string) *Flags {
	set.StringVar(&f.Path, prefix+"sqlite-path", f.Path, "Path of the SQLite database (defaults to the user config dir)")
	set.StringVar(&f.JournalMode, prefix+"sqlite-journal-mode", f.JournalMode, "SQLite journal_mode pragma (DELETE, WAL, MEMORY, ...)")
	set.StringVar(&f.Synchronous, prefix+"sqlite-synchronous", f.Synchronous, "SQLite synchronous pragma (OFF, NORMAL, FULL)")
	set.IntVar(&f.BusyTimeout, prefix+"sqlite-busy-timeout", f.BusyTimeout, "Milliseconds to wait on a locked database before failing")
	set.IntVar(&f.MaxOpenConns, prefix+"sqlite-max-open-conns", f.MaxOpenConns, "Maximum number of open connections (0 means unlimited)")
	set.IntVar(&f.MaxIdleConns, prefix+"sqlite-max-idle-conns", f.MaxIdleConns, "Maximum number of idle connections (0 keeps the database/sql default)")
	return f
}

type options struct {
	dsn          string
	journalMode  string
	synchronous  string
	busyTimeout  int
	maxOpenConns int
	maxIdleConns int
	err          error
}

type Modifier func(*options)

// WithDSN specifies the SQLite data source name. Pragmas are appended to it.
func WithDSN(dsn string) Modifier {
	return func(o *options) {
		o.dsn = dsn
	}
}

// WithPath specifies a filesystem path to the SQLite database.
func WithPath(path string) Modifier {
	return func(o *options) {
		o.dsn = path
	}
}

// WithJournalMode sets the journal_mode pragma.
func WithJournalMode(mode string) Modifier {
	return func(o *options) {
		o.journalMode = mode
	}
}

// WithSynchronous sets the synchronous pragma.
func WithSynchronous(mode string) Modifier {
	return func(o *options) {
		o.synchronous = mode
	}
}

// WithBusyTimeout sets the busy_timeout pragma, in milliseconds.
func WithBusyTimeout(ms int) Modifier {
	return func(o *options) {
		o.busyTimeout = ms
	}
}

// WithMaxOpenConns limits the number of open connections.
func WithMaxOpenConns(n int) Modifier {
	return func(o *options) {
		o.maxOpenConns = n
	}
}

// WithMaxIdleConns limits the number of idle connections.
func WithMaxIdleConns(n int) Modifier {
	return func(o *options) {
		o.maxIdleConns = n
	}
}

// FromFlags applies flags, computing the default path for app and namespaces
// if no path was set.
func FromFlags(flags *Flags, app string, namespaces ...string) Modifier {
	return func(o *options) {
		if flags == nil {
			return
		}
		o.dsn = flags.Path
		if o.dsn == "" {
			o.dsn, o.err = DefaultPath(app, namespaces...)
		}
		o.journalMode = flags.JournalMode
		o.synchronous = flags.Synchronous
		o.busyTimeout = flags.BusyTimeout
		o.maxOpenConns = flags.MaxOpenConns
		o.maxIdleConns = flags.MaxIdleConns
	}
}

func (o *options) source() string {
	var pragmas []string
	if o.busyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("_pragma=busy_timeout(%d)", o.busyTimeout))
	}
	if o.journalMode != "" {
		pragmas = append(pragmas, fmt.Sprintf("_pragma=journal_mode(%s)", o.journalMode))
	}
	if o.synchronous != "" {
		pragmas = append(pragmas, fmt.Sprintf("_pragma=synchronous(%s)", o.synchronous))
	}
	if len(pragmas) == 0 {
		return o.dsn
	}
	separator := "?"
	if strings.Contains(o.dsn, "?") {
		separator = "&"
	}
	return o.dsn + separator + strings.Join(pragmas, "&")
}

// New opens a SQLite database and ensures the schema is ready.
func New(mods ...Modifier) (*SQLite, error) {
	opts := options{busyTimeout: defaultBusyTimeout}
	for _, m := range mods {
		m(&opts)
	}
	if opts.err != nil {
		return nil, opts.err
	}
	if opts.dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	if !strings.HasPrefix(opts.dsn, "file:") && !strings.HasPrefix(opts.dsn, ":memory:") {
		if err := os.MkdirAll(filepath.Dir(opts.dsn), 0770); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", opts.source())
	if err != nil {
		return nil, err
	}
	if opts.maxOpenConns > 0 {
		db.SetMaxOpenConns(opts.maxOpenConns)
	}
	if opts.maxIdleConns > 0 {
		db.SetMaxIdleConns(opts.maxIdleConns)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// DefaultPath returns the default sqlite database path for an app/namespace.
func DefaultPath(app string, namespaces ...string) (string, error) {
	dir, err := directory.GetConfigDir(app, namespaces...)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "store.db"), nil
}

// Close releases the underlying database resources.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Open returns a loader scoped to the provided app and namespaces.
func (s *SQLite) Open(app string, namespaces ...string) (kvstore.Loader, error) {
	return &Loader{db: s.db, scope: kvstore.Scope(app, namespaces...)}, nil
}

type Loader struct {
	db    *sql.DB
	scope string
}

func (l *Loader) List() ([]string, error) {
	rows, err := l.db.Query(`SELECT name FROM records WHERE scope = ? ORDER BY name`, l.scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func (l *Loader) Read(name string) ([]byte, error) {
	var data []byte
	err := l.db.QueryRow(`SELECT data FROM records WHERE scope = ? AND name = ?`, l.scope, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite read %q: %w", name, os.ErrNotExist)
	}
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (l *Loader) Write(name string, data []byte) error {
	_, err := l.db.Exec(
		`INSERT INTO records (scope, name, data) VALUES (?, ?, ?)
		 ON CONFLICT(scope, name) DO UPDATE SET data = excluded.data`,
		l.scope, name, data,
	)
	return err
}

func (l *Loader) Delete(name string) error {
	result, err := l.db.Exec(`DELETE FROM records WHERE scope = ? AND name = ?`, l.scope, name)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlite delete %q: %w", name, os.ErrNotExist)
	}
	return nil
}

func (l *Loader) Clear() error {
	_, err := l.db.Exec(`DELETE FROM records WHERE scope = ?`, l.scope)
	return err
}
