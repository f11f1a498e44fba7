// Package catalog is the SQL view of the host platform: installed plugins
// and themes, tenants, users, runtime facts and the pending update sets.
// SQLite (modernc.org/sqlite) and PostgreSQL (pgx stdlib) are supported.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"webmaster-monitor/internal/host"
)

type Options struct {
	Driver string // "sqlite" or "pgx"
	DSN    string
	Prefix string
	SiteID int64
	// SiteURL and HomeURL back the core info when the sites table has no row
	// for SiteID.
	SiteURL string
	HomeURL string
	Logger  *zap.Logger
}

type UpdateFilter func(ctx context.Context, set *host.UpdateSet) error

type DetailsProvider func(ctx context.Context) (*host.Details, error)

type Catalog struct {
	db      *sql.DB
	dialect dialect
	prefix  string
	siteID  int64
	siteURL string
	homeURL string
	logger  *zap.Logger

	mu      sync.RWMutex
	nextID  int
	filters map[host.Kind][]filterEntry
	details map[string]DetailsProvider
	checked map[host.Kind]time.Time
	now     func() time.Time
}

type filterEntry struct {
	id int
	fn UpdateFilter
}

func Open(ctx context.Context, opts Options) (*Catalog, error) {
	var d dialect
	dsn := opts.DSN
	switch opts.Driver {
	case "", "sqlite":
		d = sqliteDialect{}
		if !strings.Contains(dsn, "_pragma=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	case "pgx":
		d = postgresDialect{}
	default:
		return nil, fmt.Errorf("catalog: unsupported driver %q", opts.Driver)
	}

	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", d.name(), err)
	}
	if d.name() == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: ping %s: %w", d.name(), err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	siteID := opts.SiteID
	if siteID <= 0 {
		siteID = 1
	}
	c := &Catalog{
		db:      db,
		dialect: d,
		prefix:  opts.Prefix,
		siteID:  siteID,
		siteURL: opts.SiteURL,
		homeURL: opts.HomeURL,
		logger:  logger.Named("catalog"),
		filters: make(map[host.Kind][]filterEntry),
		details: make(map[string]DetailsProvider),
		checked: make(map[host.Kind]time.Time),
		now:     time.Now,
	}
	if err := c.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	c.logger.Info("catalog opened", zap.String("driver", d.name()), zap.String("prefix", c.prefix))
	return c, nil
}

func (c *Catalog) Close() error { return c.db.Close() }

// Ping runs the health round trip used by the /health endpoint.
func (c *Catalog) Ping(ctx context.Context) error {
	var one int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return err
	}
	if one != 1 {
		return fmt.Errorf("catalog: unexpected ping result %d", one)
	}
	return nil
}

func (c *Catalog) SiteID() int64 { return c.siteID }

// t returns the prefixed table name.
func (c *Catalog) t(name string) string { return c.prefix + name }

func (c *Catalog) query(q string) string { return c.dialect.rebind(q) }

func (c *Catalog) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + c.t("meta") + ` (
			meta_key TEXT PRIMARY KEY,
			meta_value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + c.t("network") + ` (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			domain TEXT NOT NULL,
			path TEXT NOT NULL,
			main_site_id BIGINT NOT NULL,
			subdomain_install INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS ` + c.t("sites") + ` (
			blog_id BIGINT PRIMARY KEY,
			domain TEXT NOT NULL,
			path TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			site_url TEXT NOT NULL DEFAULT '',
			home_url TEXT NOT NULL DEFAULT '',
			registered TEXT NOT NULL DEFAULT '',
			last_updated TEXT NOT NULL DEFAULT '',
			public INTEGER NOT NULL DEFAULT 1,
			archived INTEGER NOT NULL DEFAULT 0,
			spam INTEGER NOT NULL DEFAULT 0,
			deleted INTEGER NOT NULL DEFAULT 0,
			active_theme TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS ` + c.t("plugins") + ` (
			file TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			version TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			network_active INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS ` + c.t("plugin_activations") + ` (
			site_id BIGINT NOT NULL,
			file TEXT NOT NULL,
			PRIMARY KEY (site_id, file)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + c.t("themes") + ` (
			stylesheet TEXT PRIMARY KEY,
			template TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			version TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS ` + c.t("users") + ` (
			id BIGINT PRIMARY KEY,
			login TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			registered TEXT NOT NULL DEFAULT '',
			last_login TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS ` + c.t("user_roles") + ` (
			user_id BIGINT NOT NULL,
			site_id BIGINT NOT NULL,
			role TEXT NOT NULL,
			PRIMARY KEY (user_id, site_id, role)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + c.t("posts") + ` (
			id BIGINT NOT NULL,
			site_id BIGINT NOT NULL,
			status TEXT NOT NULL,
			PRIMARY KEY (site_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + c.t("update_offers") + ` (
			kind TEXT NOT NULL,
			identifier TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			payload TEXT NOT NULL,
			PRIMARY KEY (kind, identifier)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + c.t("pending_updates") + ` (
			kind TEXT NOT NULL,
			identifier TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			payload TEXT NOT NULL,
			PRIMARY KEY (kind, identifier)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("catalog: migrate: %w", err)
		}
	}
	return nil
}

type dialect interface {
	name() string
	driverName() string
	rebind(query string) string
	// tableCountQuery takes the table prefix twice.
	tableCountQuery() string
	sizeQuery() string
	versionQuery() string
	charsetQuery() string
	collationQuery() string
	engine() string
}

type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite" }
func (sqliteDialect) driverName() string { return "sqlite" }
func (sqliteDialect) rebind(query string) string { return query }
func (sqliteDialect) tableCountQuery() string {
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND substr(name, 1, length(?)) = ?`
}
func (sqliteDialect) sizeQuery() string {
	return `SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`
}
func (sqliteDialect) versionQuery() string { return `SELECT sqlite_version()` }
func (sqliteDialect) charsetQuery() string { return `PRAGMA encoding` }
func (sqliteDialect) collationQuery() string { return `SELECT 'BINARY'` }
func (sqliteDialect) engine() string { return "SQLite" }

type postgresDialect struct{}

func (postgresDialect) name() string { return "postgres" }
func (postgresDialect) driverName() string { return "pgx" }

// rebind rewrites ? placeholders to $1, $2, ...
func (postgresDialect) rebind(query string) string {
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
func (postgresDialect) tableCountQuery() string {
	return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND left(table_name, length(?::text)) = ?`
}
func (postgresDialect) sizeQuery() string { return `SELECT pg_database_size(current_database())` }
func (postgresDialect) versionQuery() string { return `SHOW server_version` }
func (postgresDialect) charsetQuery() string { return `SHOW server_encoding` }
func (postgresDialect) collationQuery() string {
	return `SELECT datcollate FROM pg_database WHERE datname = current_database()`
}
func (postgresDialect) engine() string { return "PostgreSQL" }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
