package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"webmaster-monitor/internal/host"
)

func (c *Catalog) SetMeta(ctx context.Context, key, value string) error {
	q := `INSERT INTO ` + c.t("meta") + ` (meta_key, meta_value) VALUES (?, ?)
		ON CONFLICT (meta_key) DO UPDATE SET meta_value = excluded.meta_value`
	if _, err := c.db.ExecContext(ctx, c.query(q), key, value); err != nil {
		return fmt.Errorf("catalog: set meta %s: %w", key, err)
	}
	return nil
}

// UpsertPlugin stores p and, when p.Active is set, activates it on the
// current site.
func (c *Catalog) UpsertPlugin(ctx context.Context, p host.Package) error {
	q := `INSERT INTO ` + c.t("plugins") + ` (file, name, version, author, network_active) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (file) DO UPDATE SET name = excluded.name, version = excluded.version,
		author = excluded.author, network_active = excluded.network_active`
	if _, err := c.db.ExecContext(ctx, c.query(q), p.File, p.Name, p.Version, p.Author, boolInt(p.NetworkActive)); err != nil {
		return fmt.Errorf("catalog: upsert plugin %s: %w", p.File, err)
	}
	if p.Active {
		return c.Activate(ctx, host.KindPlugin, p.File)
	}
	return nil
}

// ActivatePluginOn activates file on a specific tenant.
func (c *Catalog) ActivatePluginOn(ctx context.Context, siteID int64, file string) error {
	q := `INSERT INTO ` + c.t("plugin_activations") + ` (site_id, file) VALUES (?, ?) ON CONFLICT (site_id, file) DO NOTHING`
	if _, err := c.db.ExecContext(ctx, c.query(q), siteID, file); err != nil {
		return fmt.Errorf("catalog: activate %s on %d: %w", file, siteID, err)
	}
	return nil
}

func (c *Catalog) UpsertTheme(ctx context.Context, th host.Theme) error {
	q := `INSERT INTO ` + c.t("themes") + ` (stylesheet, template, name, version, author) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (stylesheet) DO UPDATE SET template = excluded.template, name = excluded.name,
		version = excluded.version, author = excluded.author`
	if _, err := c.db.ExecContext(ctx, c.query(q), th.Stylesheet, th.Template, th.Name, th.Version, th.Author); err != nil {
		return fmt.Errorf("catalog: upsert theme %s: %w", th.Stylesheet, err)
	}
	return nil
}

// UpsertSite stores a tenant. Count fields on s are ignored; they are derived
// from posts, roles and activations.
func (c *Catalog) UpsertSite(ctx context.Context, s host.Site) error {
	q := `INSERT INTO ` + c.t("sites") + ` (blog_id, domain, path, name, site_url, home_url, registered, last_updated,
		public, archived, spam, deleted, active_theme) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (blog_id) DO UPDATE SET domain = excluded.domain, path = excluded.path, name = excluded.name,
		site_url = excluded.site_url, home_url = excluded.home_url, registered = excluded.registered,
		last_updated = excluded.last_updated, public = excluded.public, archived = excluded.archived,
		spam = excluded.spam, deleted = excluded.deleted, active_theme = excluded.active_theme`
	_, err := c.db.ExecContext(ctx, c.query(q), s.BlogID, s.Domain, s.Path, s.Name, s.SiteURL, s.HomeURL, s.Registered, s.LastUpdated,
		boolInt(s.Public), boolInt(s.Archived), boolInt(s.Spam), boolInt(s.Deleted), s.ActiveTheme)
	if err != nil {
		return fmt.Errorf("catalog: upsert site %d: %w", s.BlogID, err)
	}
	return nil
}

// SetNetwork turns the install into a multi-tenant network.
func (c *Catalog) SetNetwork(ctx context.Context, n host.Network) error {
	q := `INSERT INTO ` + c.t("network") + ` (id, name, domain, path, main_site_id, subdomain_install) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, domain = excluded.domain, path = excluded.path,
		main_site_id = excluded.main_site_id, subdomain_install = excluded.subdomain_install`
	if _, err := c.db.ExecContext(ctx, c.query(q), n.ID, n.Name, n.Domain, n.Path, n.MainSiteID, boolInt(n.SubdomainInstall)); err != nil {
		return fmt.Errorf("catalog: set network: %w", err)
	}
	return nil
}

// UpsertUser stores u and replaces its roles on siteID.
func (c *Catalog) UpsertUser(ctx context.Context, siteID int64, u host.User) (err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	q := `INSERT INTO ` + c.t("users") + ` (id, login, email, registered, last_login) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET login = excluded.login, email = excluded.email,
		registered = excluded.registered, last_login = excluded.last_login`
	if _, err = tx.ExecContext(ctx, c.query(q), u.ID, u.Login, u.Email, u.Registered, u.LastLogin); err != nil {
		return fmt.Errorf("catalog: upsert user %d: %w", u.ID, err)
	}
	if _, err = tx.ExecContext(ctx, c.query(`DELETE FROM `+c.t("user_roles")+` WHERE user_id = ? AND site_id = ?`), u.ID, siteID); err != nil {
		return fmt.Errorf("catalog: clear roles: %w", err)
	}
	for _, role := range u.Roles {
		if _, err = tx.ExecContext(ctx, c.query(`INSERT INTO `+c.t("user_roles")+` (user_id, site_id, role) VALUES (?, ?, ?)`), u.ID, siteID, role); err != nil {
			return fmt.Errorf("catalog: add role: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	return nil
}

func (c *Catalog) AddPost(ctx context.Context, siteID, postID int64, status string) error {
	q := `INSERT INTO ` + c.t("posts") + ` (id, site_id, status) VALUES (?, ?, ?)
		ON CONFLICT (site_id, id) DO UPDATE SET status = excluded.status`
	if _, err := c.db.ExecContext(ctx, c.query(q), postID, siteID, status); err != nil {
		return fmt.Errorf("catalog: add post: %w", err)
	}
	return nil
}

// PutOffer publishes an update offer from the host's upstream feed. position
// orders core candidates, best first.
func (c *Catalog) PutOffer(ctx context.Context, o host.Offer, position int) error {
	if o.Identifier == "" {
		return fmt.Errorf("catalog: offer identifier required")
	}
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("catalog: encode offer: %w", err)
	}
	q := `INSERT INTO ` + c.t("update_offers") + ` (kind, identifier, position, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, identifier) DO UPDATE SET position = excluded.position, payload = excluded.payload`
	if _, err := c.db.ExecContext(ctx, c.query(q), string(o.Kind), o.Identifier, position, string(payload)); err != nil {
		return fmt.Errorf("catalog: put offer: %w", err)
	}
	return nil
}
