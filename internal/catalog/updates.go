package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"webmaster-monitor/internal/host"
)

// RegisterUpdateFilter adds fn to the check cycle for kind. Filters run in
// registration order after the stored offers have been applied.
func (c *Catalog) RegisterUpdateFilter(kind host.Kind, fn UpdateFilter) (unregister func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.filters[kind] = append(c.filters[kind], filterEntry{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		list := c.filters[kind]
		for i, f := range list {
			if f.id == id {
				c.filters[kind] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// RegisterDetailsProvider serves package details for slug, replacing any
// previous provider.
func (c *Catalog) RegisterDetailsProvider(slug string, fn DetailsProvider) (unregister func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.details[slug] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.details, slug)
	}
}

// Details answers from a registered provider, then from the plugin table.
// A nil result means the slug is unknown.
func (c *Catalog) Details(ctx context.Context, slug string) (*host.Details, error) {
	c.mu.RLock()
	provider := c.details[slug]
	c.mu.RUnlock()
	if provider != nil {
		return provider(ctx)
	}

	plugins, err := c.Plugins(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range plugins {
		if p.Slug() == slug || p.File == slug {
			return &host.Details{Name: p.Name, Slug: p.Slug(), Version: p.Version, Author: p.Author}, nil
		}
	}
	return nil, nil
}

func (c *Catalog) filtersFor(kind host.Kind) []filterEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]filterEntry(nil), c.filters[kind]...)
}

// LastChecked returns when RefreshUpdates last completed for kind.
func (c *Catalog) LastChecked(kind host.Kind) time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checked[kind]
}

// RefreshUpdates runs a full check cycle for kind: stored offers are compared
// with installed versions, registered filters amend the set, and the result
// replaces the pending updates for kind.
func (c *Catalog) RefreshUpdates(ctx context.Context, kind host.Kind) (*host.UpdateSet, error) {
	set := host.NewUpdateSet(kind)

	installed, err := c.installedVersions(ctx, kind)
	if err != nil {
		return nil, err
	}
	for id, v := range installed {
		set.Checked[id] = v
	}

	offers, err := c.loadOffers(ctx, "update_offers", kind)
	if err != nil {
		return nil, err
	}

	if kind == host.KindCore {
		current := installed[string(host.KindCore)]
		for _, o := range offers {
			if isNewer(o.NewVersion, current) {
				o.Response = "upgrade"
			} else {
				o.Response = host.CoreResponseLatest
			}
			set.Core = append(set.Core, o)
		}
		if len(set.Core) == 0 {
			set.Core = []host.Offer{{Kind: host.KindCore, Identifier: "latest", NewVersion: current, Response: host.CoreResponseLatest}}
		}
	} else {
		for _, o := range offers {
			current, ok := installed[o.Identifier]
			if !ok {
				continue
			}
			if isNewer(o.NewVersion, current) {
				set.Response[o.Identifier] = o
			} else {
				set.NoUpdate[o.Identifier] = o
			}
		}
		for id := range installed {
			if _, ok := set.Response[id]; ok {
				continue
			}
			if _, ok := set.NoUpdate[id]; !ok {
				set.NoUpdate[id] = host.Offer{Kind: kind, Identifier: id, NewVersion: installed[id]}
			}
		}
	}

	for _, f := range c.filtersFor(kind) {
		if err := f.fn(ctx, set); err != nil {
			c.logger.Warn("update filter failed", zap.String("kind", string(kind)), zap.Error(err))
		}
	}

	if err := c.storePending(ctx, set); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.checked[kind] = c.now()
	c.mu.Unlock()
	return set, nil
}

// PendingUpdates returns the result of the last check cycle without running
// a new one.
func (c *Catalog) PendingUpdates(ctx context.Context, kind host.Kind) (*host.UpdateSet, error) {
	offers, err := c.loadOffers(ctx, "pending_updates", kind)
	if err != nil {
		return nil, err
	}
	set := host.NewUpdateSet(kind)
	if kind == host.KindCore {
		set.Core = offers
		return set, nil
	}
	for _, o := range offers {
		set.Response[o.Identifier] = o
	}
	return set, nil
}

// InvalidateUpdateCache drops the pending updates for kind so the next
// reader sees an empty set until a check cycle runs.
func (c *Catalog) InvalidateUpdateCache(ctx context.Context, kind host.Kind) error {
	if _, err := c.db.ExecContext(ctx, c.query(`DELETE FROM `+c.t("pending_updates")+` WHERE kind = ?`), string(kind)); err != nil {
		return fmt.Errorf("catalog: invalidate %s updates: %w", kind, err)
	}
	c.mu.Lock()
	delete(c.checked, kind)
	c.mu.Unlock()
	return nil
}

func (c *Catalog) storePending(ctx context.Context, set *host.UpdateSet) (err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, c.query(`DELETE FROM `+c.t("pending_updates")+` WHERE kind = ?`), string(set.Kind)); err != nil {
		return fmt.Errorf("catalog: clear pending: %w", err)
	}

	var offers []host.Offer
	if set.Kind == host.KindCore {
		offers = set.Core
	} else {
		for _, id := range sortedKeys(set.Response) {
			offers = append(offers, set.Response[id])
		}
	}

	insert := c.query(`INSERT INTO ` + c.t("pending_updates") + ` (kind, identifier, position, payload) VALUES (?, ?, ?, ?)`)
	for i, o := range offers {
		if o.Identifier == "" {
			o.Identifier = fmt.Sprintf("%s-%d", set.Kind, i)
		}
		payload, mErr := json.Marshal(o)
		if mErr != nil {
			return fmt.Errorf("catalog: encode offer: %w", mErr)
		}
		if _, err = tx.ExecContext(ctx, insert, string(set.Kind), o.Identifier, i, string(payload)); err != nil {
			return fmt.Errorf("catalog: store pending: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	return nil
}

func (c *Catalog) loadOffers(ctx context.Context, table string, kind host.Kind) ([]host.Offer, error) {
	rows, err := c.db.QueryContext(ctx, c.query(`SELECT payload FROM `+c.t(table)+` WHERE kind = ? ORDER BY position, identifier`), string(kind))
	if err != nil {
		return nil, fmt.Errorf("catalog: load %s: %w", table, err)
	}
	defer rows.Close()

	var out []host.Offer
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("catalog: scan %s: %w", table, err)
		}
		var o host.Offer
		if err := json.Unmarshal([]byte(payload), &o); err != nil {
			c.logger.Warn("skipping malformed offer", zap.String("table", table), zap.Error(err))
			continue
		}
		o.Kind = kind
		out = append(out, o)
	}
	return out, rows.Err()
}

func (c *Catalog) installedVersions(ctx context.Context, kind host.Kind) (map[string]string, error) {
	out := make(map[string]string)
	switch kind {
	case host.KindPlugin:
		plugins, err := c.Plugins(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range plugins {
			out[p.File] = p.Version
		}
	case host.KindTheme:
		themes, err := c.Themes(ctx)
		if err != nil {
			return nil, err
		}
		for _, th := range themes {
			out[th.Stylesheet] = th.Version
		}
	case host.KindCore:
		v, err := c.metaValue(ctx, MetaCoreVersion)
		if err != nil {
			return nil, err
		}
		out[string(host.KindCore)] = v
	default:
		return nil, fmt.Errorf("catalog: unknown kind %q", kind)
	}
	return out, nil
}

// InstalledVersion returns "" when the artifact is unknown.
func (c *Catalog) InstalledVersion(ctx context.Context, kind host.Kind, identifier string) (string, error) {
	var q string
	switch kind {
	case host.KindPlugin:
		q = `SELECT version FROM ` + c.t("plugins") + ` WHERE file = ?`
	case host.KindTheme:
		q = `SELECT version FROM ` + c.t("themes") + ` WHERE stylesheet = ?`
	case host.KindCore:
		return c.metaValue(ctx, MetaCoreVersion)
	default:
		return "", fmt.Errorf("catalog: unknown kind %q", kind)
	}
	var v string
	err := c.db.QueryRowContext(ctx, c.query(q), identifier).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("catalog: installed version: %w", err)
	}
	return v, nil
}

// RecordInstalled stores the version read back from a freshly installed
// artifact and clears its pending update. An empty version leaves the stored
// version untouched.
func (c *Catalog) RecordInstalled(ctx context.Context, kind host.Kind, identifier, version string) error {
	if version != "" {
		var q string
		var args []any
		switch kind {
		case host.KindPlugin:
			q, args = `UPDATE `+c.t("plugins")+` SET version = ? WHERE file = ?`, []any{version, identifier}
		case host.KindTheme:
			q, args = `UPDATE `+c.t("themes")+` SET version = ? WHERE stylesheet = ?`, []any{version, identifier}
		case host.KindCore:
			if err := c.SetMeta(ctx, MetaCoreVersion, version); err != nil {
				return err
			}
		default:
			return fmt.Errorf("catalog: unknown kind %q", kind)
		}
		if q != "" {
			if _, err := c.db.ExecContext(ctx, c.query(q), args...); err != nil {
				return fmt.Errorf("catalog: record installed: %w", err)
			}
		}
	}

	if kind == host.KindCore {
		return c.InvalidateUpdateCache(ctx, kind)
	}
	if _, err := c.db.ExecContext(ctx, c.query(`DELETE FROM `+c.t("pending_updates")+` WHERE kind = ? AND identifier = ?`), string(kind), identifier); err != nil {
		return fmt.Errorf("catalog: clear pending: %w", err)
	}
	return nil
}

func (c *Catalog) IsActive(ctx context.Context, kind host.Kind, identifier string) (bool, error) {
	switch kind {
	case host.KindPlugin:
		var n int
		q := `SELECT COUNT(*) FROM ` + c.t("plugins") + ` p
			LEFT JOIN ` + c.t("plugin_activations") + ` a ON a.file = p.file AND a.site_id = ?
			WHERE p.file = ? AND (p.network_active <> 0 OR a.file IS NOT NULL)`
		if err := c.db.QueryRowContext(ctx, c.query(q), c.siteID, identifier).Scan(&n); err != nil {
			return false, fmt.Errorf("catalog: is active: %w", err)
		}
		return n > 0, nil
	case host.KindTheme:
		active, err := c.activeTheme(ctx, c.siteID)
		return active == identifier, err
	case host.KindCore:
		return true, nil
	default:
		return false, fmt.Errorf("catalog: unknown kind %q", kind)
	}
}

func (c *Catalog) Activate(ctx context.Context, kind host.Kind, identifier string) error {
	switch kind {
	case host.KindPlugin:
		q := `INSERT INTO ` + c.t("plugin_activations") + ` (site_id, file) VALUES (?, ?) ON CONFLICT (site_id, file) DO NOTHING`
		if _, err := c.db.ExecContext(ctx, c.query(q), c.siteID, identifier); err != nil {
			return fmt.Errorf("catalog: activate %s: %w", identifier, err)
		}
	case host.KindTheme:
		if _, err := c.db.ExecContext(ctx, c.query(`UPDATE `+c.t("sites")+` SET active_theme = ? WHERE blog_id = ?`), identifier, c.siteID); err != nil {
			return fmt.Errorf("catalog: activate theme %s: %w", identifier, err)
		}
	}
	return nil
}

// Deactivate only applies to plugins; a site always keeps a theme.
func (c *Catalog) Deactivate(ctx context.Context, kind host.Kind, identifier string) error {
	if kind != host.KindPlugin {
		return nil
	}
	if _, err := c.db.ExecContext(ctx, c.query(`DELETE FROM `+c.t("plugin_activations")+` WHERE site_id = ? AND file = ?`), c.siteID, identifier); err != nil {
		return fmt.Errorf("catalog: deactivate %s: %w", identifier, err)
	}
	return nil
}

// isNewer reports whether candidate is a higher version than current.
// Unparseable versions fall back to plain inequality.
func isNewer(candidate, current string) bool {
	if candidate == "" {
		return false
	}
	cv, err1 := semver.NewVersion(strings.TrimPrefix(candidate, "v"))
	iv, err2 := semver.NewVersion(strings.TrimPrefix(current, "v"))
	if err1 != nil || err2 != nil {
		return candidate != current
	}
	return cv.GreaterThan(iv)
}
