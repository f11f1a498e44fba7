package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"webmaster-monitor/internal/host"
)

// Meta keys describing the host runtime and core settings.
const (
	MetaCoreVersion      = "core_version"
	MetaAdminEmail       = "admin_email"
	MetaLanguage         = "language"
	MetaTimezone         = "timezone"
	MetaPermalink        = "permalink_structure"
	MetaBlogPublic       = "blog_public"
	MetaSiteHealthStatus = "site_health_status"
	MetaDBVersion        = "db_version"
	MetaDBCollate        = "db_collate"
	MetaServerSoftware   = "server_software"
	MetaServerAddr       = "server_addr"
	MetaDocumentRoot     = "document_root"
	MetaHTTPS            = "https"
	MetaRuntimeVersion   = "php_version"
	MetaRuntimeSAPI      = "php_sapi"
	MetaConstantPrefix   = "const_"
	MetaRuntimeIniPrefix = "php_ini_"
	MetaRuntimeExtPrefix = "php_ext_"
)

func (c *Catalog) Meta(ctx context.Context) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT meta_key, meta_value FROM `+c.t("meta"))
	if err != nil {
		return nil, fmt.Errorf("catalog: meta: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("catalog: meta scan: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (c *Catalog) metaValue(ctx context.Context, key string) (string, error) {
	var v string
	err := c.db.QueryRowContext(ctx, c.query(`SELECT meta_value FROM `+c.t("meta")+` WHERE meta_key = ?`), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("catalog: meta %s: %w", key, err)
	}
	return v, nil
}

func (c *Catalog) Core(ctx context.Context) (host.Core, error) {
	meta, err := c.Meta(ctx)
	if err != nil {
		return host.Core{}, err
	}
	core := host.Core{
		Version:            meta[MetaCoreVersion],
		AdminEmail:         meta[MetaAdminEmail],
		Language:           meta[MetaLanguage],
		Timezone:           meta[MetaTimezone],
		PermalinkStructure: meta[MetaPermalink],
		BlogPublic:         meta[MetaBlogPublic],
		SiteURL:            c.siteURL,
		HomeURL:            c.homeURL,
	}
	if core.Language == "" {
		core.Language = "en_US"
	}
	if core.Timezone == "" {
		core.Timezone = "UTC"
	}

	net, ok, err := c.Network(ctx)
	if err != nil {
		return host.Core{}, err
	}
	core.Multisite = ok
	core.SubdomainInstall = ok && net.SubdomainInstall

	var siteURL, homeURL string
	err = c.db.QueryRowContext(ctx, c.query(`SELECT site_url, home_url FROM `+c.t("sites")+` WHERE blog_id = ?`), c.siteID).Scan(&siteURL, &homeURL)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return host.Core{}, fmt.Errorf("catalog: current site: %w", err)
	default:
		if siteURL != "" {
			core.SiteURL = siteURL
		}
		if homeURL != "" {
			core.HomeURL = homeURL
		}
	}
	return core, nil
}

// Plugins lists installed plugins ordered by basename. Active covers both
// activation on the current site and network activation.
func (c *Catalog) Plugins(ctx context.Context) ([]host.Package, error) {
	q := c.query(`SELECT p.file, p.name, p.version, p.author, p.network_active,
		CASE WHEN a.file IS NULL THEN 0 ELSE 1 END
		FROM ` + c.t("plugins") + ` p
		LEFT JOIN ` + c.t("plugin_activations") + ` a ON a.file = p.file AND a.site_id = ?
		ORDER BY p.file`)
	rows, err := c.db.QueryContext(ctx, q, c.siteID)
	if err != nil {
		return nil, fmt.Errorf("catalog: plugins: %w", err)
	}
	defer rows.Close()

	var out []host.Package
	for rows.Next() {
		var p host.Package
		var network, active int
		if err := rows.Scan(&p.File, &p.Name, &p.Version, &p.Author, &network, &active); err != nil {
			return nil, fmt.Errorf("catalog: plugins scan: %w", err)
		}
		p.NetworkActive = network != 0
		p.Active = active != 0 || p.NetworkActive
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *Catalog) activeTheme(ctx context.Context, siteID int64) (string, error) {
	var stylesheet string
	err := c.db.QueryRowContext(ctx, c.query(`SELECT active_theme FROM `+c.t("sites")+` WHERE blog_id = ?`), siteID).Scan(&stylesheet)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("catalog: active theme: %w", err)
	}
	return stylesheet, nil
}

func (c *Catalog) Themes(ctx context.Context) ([]host.Theme, error) {
	active, err := c.activeTheme(ctx, c.siteID)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, `SELECT stylesheet, template, name, version, author FROM `+c.t("themes")+` ORDER BY stylesheet`)
	if err != nil {
		return nil, fmt.Errorf("catalog: themes: %w", err)
	}
	defer rows.Close()

	var out []host.Theme
	for rows.Next() {
		var th host.Theme
		if err := rows.Scan(&th.Stylesheet, &th.Template, &th.Name, &th.Version, &th.Author); err != nil {
			return nil, fmt.Errorf("catalog: themes scan: %w", err)
		}
		th.Active = th.Stylesheet == active
		out = append(out, th)
	}
	return out, rows.Err()
}

// Users returns users holding at least one role on the current site.
func (c *Catalog) Users(ctx context.Context) ([]host.User, error) {
	q := c.query(`SELECT u.id, u.login, u.email, u.registered, u.last_login, r.role
		FROM ` + c.t("users") + ` u
		JOIN ` + c.t("user_roles") + ` r ON r.user_id = u.id AND r.site_id = ?
		ORDER BY u.id, r.role`)
	rows, err := c.db.QueryContext(ctx, q, c.siteID)
	if err != nil {
		return nil, fmt.Errorf("catalog: users: %w", err)
	}
	defer rows.Close()

	var out []host.User
	for rows.Next() {
		var u host.User
		var role string
		if err := rows.Scan(&u.ID, &u.Login, &u.Email, &u.Registered, &u.LastLogin, &role); err != nil {
			return nil, fmt.Errorf("catalog: users scan: %w", err)
		}
		if n := len(out); n > 0 && out[n-1].ID == u.ID {
			out[n-1].Roles = append(out[n-1].Roles, role)
			continue
		}
		u.Roles = []string{role}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Network reports ok=false for single-site installs.
func (c *Catalog) Network(ctx context.Context) (host.Network, bool, error) {
	var n host.Network
	var subdomain int
	err := c.db.QueryRowContext(ctx, `SELECT id, name, domain, path, main_site_id, subdomain_install FROM `+c.t("network")+` ORDER BY id LIMIT 1`).
		Scan(&n.ID, &n.Name, &n.Domain, &n.Path, &n.MainSiteID, &subdomain)
	if errors.Is(err, sql.ErrNoRows) {
		return host.Network{}, false, nil
	}
	if err != nil {
		return host.Network{}, false, fmt.Errorf("catalog: network: %w", err)
	}
	n.SubdomainInstall = subdomain != 0
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.t("sites")).Scan(&n.SiteCount); err != nil {
		return host.Network{}, false, fmt.Errorf("catalog: site count: %w", err)
	}
	return n, true, nil
}

// IsMainSite reports whether the current site is the network's primary one.
func (c *Catalog) IsMainSite(ctx context.Context) (bool, error) {
	n, ok, err := c.Network(ctx)
	if err != nil || !ok {
		return false, err
	}
	return n.MainSiteID == c.siteID, nil
}

// Sites lists every tenant with per-tenant post, user, plugin and theme
// figures.
func (c *Catalog) Sites(ctx context.Context) ([]host.Site, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT blog_id, domain, path, name, site_url, home_url, registered, last_updated,
		public, archived, spam, deleted, active_theme FROM `+c.t("sites")+` ORDER BY blog_id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: sites: %w", err)
	}
	var out []host.Site
	for rows.Next() {
		var s host.Site
		var public, archived, spam, deleted int
		if err := rows.Scan(&s.BlogID, &s.Domain, &s.Path, &s.Name, &s.SiteURL, &s.HomeURL, &s.Registered, &s.LastUpdated,
			&public, &archived, &spam, &deleted, &s.ActiveTheme); err != nil {
			rows.Close()
			return nil, fmt.Errorf("catalog: sites scan: %w", err)
		}
		s.Public, s.Archived, s.Spam, s.Deleted = public != 0, archived != 0, spam != 0, deleted != 0
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("catalog: sites: %w", err)
	}
	rows.Close()

	themeNames, err := c.themeNames(ctx)
	if err != nil {
		return nil, err
	}
	for i := range out {
		s := &out[i]
		if err := c.countInto(ctx, &s.PostCount, `SELECT COUNT(*) FROM `+c.t("posts")+` WHERE site_id = ? AND status = 'publish'`, s.BlogID); err != nil {
			return nil, err
		}
		if err := c.countInto(ctx, &s.UsersCount, `SELECT COUNT(DISTINCT user_id) FROM `+c.t("user_roles")+` WHERE site_id = ?`, s.BlogID); err != nil {
			return nil, err
		}
		if err := c.countInto(ctx, &s.ActivePlugins, `SELECT COUNT(*) FROM `+c.t("plugin_activations")+` WHERE site_id = ?`, s.BlogID); err != nil {
			return nil, err
		}
		if name, ok := themeNames[s.ActiveTheme]; ok {
			s.ActiveTheme = name
		}
	}
	return out, nil
}

func (c *Catalog) countInto(ctx context.Context, dst *int, q string, args ...any) error {
	if err := c.db.QueryRowContext(ctx, c.query(q), args...).Scan(dst); err != nil {
		return fmt.Errorf("catalog: count: %w", err)
	}
	return nil
}

func (c *Catalog) themeNames(ctx context.Context) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT stylesheet, name FROM `+c.t("themes"))
	if err != nil {
		return nil, fmt.Errorf("catalog: theme names: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("catalog: theme names scan: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// NetworkPlugins returns the network-activated plugins.
func (c *Catalog) NetworkPlugins(ctx context.Context) ([]host.Package, error) {
	all, err := c.Plugins(ctx)
	if err != nil {
		return nil, err
	}
	var out []host.Package
	for _, p := range all {
		if p.NetworkActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *Catalog) DatabaseStats(ctx context.Context) (host.DatabaseStats, error) {
	stats := host.DatabaseStats{Engine: c.dialect.engine(), Prefix: c.prefix}

	if err := c.db.QueryRowContext(ctx, c.dialect.versionQuery()).Scan(&stats.Version); err != nil {
		return host.DatabaseStats{}, fmt.Errorf("catalog: db version: %w", err)
	}
	if err := c.db.QueryRowContext(ctx, c.query(c.dialect.tableCountQuery()), c.prefix, c.prefix).Scan(&stats.Tables); err != nil {
		return host.DatabaseStats{}, fmt.Errorf("catalog: table count: %w", err)
	}

	// Size, charset and collation are informational; absent values stay empty.
	if err := c.db.QueryRowContext(ctx, c.dialect.sizeQuery()).Scan(&stats.SizeBytes); err != nil {
		c.logger.Debug("database size unavailable")
	}
	if err := c.db.QueryRowContext(ctx, c.dialect.charsetQuery()).Scan(&stats.Charset); err != nil {
		c.logger.Debug("database charset unavailable")
	}
	if err := c.db.QueryRowContext(ctx, c.dialect.collationQuery()).Scan(&stats.Collation); err != nil {
		c.logger.Debug("database collation unavailable")
	}
	if v, err := c.metaValue(ctx, MetaDBCollate); err == nil && v != "" {
		stats.Collation = v
	}
	return stats, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
