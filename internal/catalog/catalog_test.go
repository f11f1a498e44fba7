package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"webmaster-monitor/internal/host"
)

func openTest(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(context.Background(), Options{
		Driver:  "sqlite",
		DSN:     filepath.Join(t.TempDir(), "catalog.db"),
		Prefix:  "wp_",
		SiteID:  1,
		SiteURL: "https://example.test",
		HomeURL: "https://example.test",
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

const testInventory = `
meta:
  core_version: "6.4.3"
  admin_email: admin@example.test
network:
  name: Example Network
  domain: example.test
  path: /
  main_site: 1
sites:
  - blog_id: 1
    domain: example.test
    path: /
    name: Main
    site_url: https://example.test
    home_url: https://example.test
    theme: child
    plugins: [akismet/akismet.php]
    published_posts: 3
  - blog_id: 2
    domain: example.test
    path: /shop/
    name: Shop
    theme: parent
    published_posts: 1
  - blog_id: 3
    domain: example.test
    path: /old/
    name: Old
    archived: true
plugins:
  - file: akismet/akismet.php
    name: Akismet
    version: "5.0"
    author: Automattic
  - file: hello.php
    name: Hello Dolly
    version: "1.7.2"
  - file: network-tool/network-tool.php
    name: Network Tool
    version: "2.0.0"
    network_active: true
themes:
  - stylesheet: parent
    name: Parent
    version: "1.0"
  - stylesheet: child
    template: parent
    name: Child
    version: "1.1"
users:
  - id: 1
    login: admin
    email: admin@example.test
    roles:
      1: [administrator]
      2: [administrator]
  - id: 2
    login: editor
    roles:
      1: [editor]
offers:
  - kind: plugin
    identifier: akismet/akismet.php
    version: "5.3"
    package: https://downloads.example.test/akismet.zip
  - kind: plugin
    identifier: hello.php
    version: "1.7.2"
  - kind: theme
    identifier: parent
    version: "2.0"
  - kind: core
    identifier: "6.5.0"
    version: "6.5.0"
`

func seed(t *testing.T, c *Catalog) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	if err := os.WriteFile(path, []byte(testInventory), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	inv, err := LoadInventory(path)
	if err != nil {
		t.Fatalf("LoadInventory: %v", err)
	}
	if err := c.Import(context.Background(), inv); err != nil {
		t.Fatalf("Import: %v", err)
	}
}

func TestCatalog_Inventory(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)
	seed(t, c)

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	core, err := c.Core(ctx)
	if err != nil {
		t.Fatalf("Core: %v", err)
	}
	if core.Version != "6.4.3" || !core.Multisite || core.AdminEmail != "admin@example.test" {
		t.Fatalf("unexpected core %+v", core)
	}

	plugins, err := c.Plugins(ctx)
	if err != nil {
		t.Fatalf("Plugins: %v", err)
	}
	if len(plugins) != 3 {
		t.Fatalf("expected 3 plugins, got %d", len(plugins))
	}
	active := map[string]bool{}
	for _, p := range plugins {
		active[p.File] = p.Active
	}
	if !active["akismet/akismet.php"] || active["hello.php"] || !active["network-tool/network-tool.php"] {
		t.Fatalf("unexpected activation %v", active)
	}

	themes, err := c.Themes(ctx)
	if err != nil {
		t.Fatalf("Themes: %v", err)
	}
	var child host.Theme
	for _, th := range themes {
		if th.Stylesheet == "child" {
			child = th
		}
	}
	if !child.Active || !child.IsChild() {
		t.Fatalf("expected active child theme, got %+v", child)
	}

	users, err := c.Users(ctx)
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if len(users) != 2 || !users[0].HasRole("administrator") {
		t.Fatalf("unexpected users %+v", users)
	}

	main, err := c.IsMainSite(ctx)
	if err != nil || !main {
		t.Fatalf("expected main site, got %v %v", main, err)
	}
}

func TestCatalog_SitesScopeCountsPerTenant(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)
	seed(t, c)

	sites, err := c.Sites(ctx)
	if err != nil {
		t.Fatalf("Sites: %v", err)
	}
	if len(sites) != 3 {
		t.Fatalf("expected 3 sites, got %d", len(sites))
	}
	if sites[0].PostCount != 3 || sites[1].PostCount != 1 || sites[2].PostCount != 0 {
		t.Fatalf("post counts not scoped: %d %d %d", sites[0].PostCount, sites[1].PostCount, sites[2].PostCount)
	}
	if sites[0].UsersCount != 2 || sites[1].UsersCount != 1 {
		t.Fatalf("unexpected user counts: %d %d", sites[0].UsersCount, sites[1].UsersCount)
	}
	if sites[0].ActivePlugins != 1 || sites[0].ActiveTheme != "Child" {
		t.Fatalf("unexpected site 1: %+v", sites[0])
	}
	if !sites[2].Archived {
		t.Fatalf("expected archived flag on site 3")
	}
}

func TestCatalog_RefreshUpdatesAppliesOffersAndFilters(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)
	seed(t, c)

	var seen int
	unregister := c.RegisterUpdateFilter(host.KindPlugin, func(ctx context.Context, set *host.UpdateSet) error {
		seen = len(set.Checked)
		set.Response["network-tool/network-tool.php"] = host.Offer{Kind: host.KindPlugin, Identifier: "network-tool/network-tool.php", NewVersion: "2.1.0"}
		return nil
	})
	c.RegisterUpdateFilter(host.KindPlugin, func(ctx context.Context, set *host.UpdateSet) error {
		return errors.New("upstream down")
	})

	set, err := c.RefreshUpdates(ctx, host.KindPlugin)
	if err != nil {
		t.Fatalf("RefreshUpdates: %v", err)
	}
	if seen != 3 {
		t.Fatalf("expected filter to see 3 checked plugins, got %d", seen)
	}
	if _, ok := set.Response["akismet/akismet.php"]; !ok {
		t.Fatalf("expected akismet update")
	}
	if _, ok := set.Response["hello.php"]; ok {
		t.Fatalf("same version must not be offered")
	}
	if _, ok := set.NoUpdate["hello.php"]; !ok {
		t.Fatalf("expected hello.php in no-update")
	}
	if c.LastChecked(host.KindPlugin).IsZero() {
		t.Fatalf("expected last checked time")
	}

	pending, err := c.PendingUpdates(ctx, host.KindPlugin)
	if err != nil {
		t.Fatalf("PendingUpdates: %v", err)
	}
	if len(pending.Response) != 2 {
		t.Fatalf("expected 2 pending updates, got %d", len(pending.Response))
	}

	unregister()
	set, err = c.RefreshUpdates(ctx, host.KindPlugin)
	if err != nil {
		t.Fatalf("RefreshUpdates: %v", err)
	}
	if _, ok := set.Response["network-tool/network-tool.php"]; ok {
		t.Fatalf("unregistered filter must not run")
	}

	if err := c.InvalidateUpdateCache(ctx, host.KindPlugin); err != nil {
		t.Fatalf("InvalidateUpdateCache: %v", err)
	}
	pending, _ = c.PendingUpdates(ctx, host.KindPlugin)
	if len(pending.Response) != 0 {
		t.Fatalf("expected empty pending set after invalidation")
	}
}

func TestCatalog_CoreUpdates(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)
	seed(t, c)

	set, err := c.RefreshUpdates(ctx, host.KindCore)
	if err != nil {
		t.Fatalf("RefreshUpdates: %v", err)
	}
	if len(set.Core) != 1 || set.Core[0].Response != "upgrade" || set.Core[0].NewVersion != "6.5.0" {
		t.Fatalf("unexpected core candidates %+v", set.Core)
	}

	if err := c.RecordInstalled(ctx, host.KindCore, "core", "6.5.0"); err != nil {
		t.Fatalf("RecordInstalled: %v", err)
	}
	set, err = c.RefreshUpdates(ctx, host.KindCore)
	if err != nil {
		t.Fatalf("RefreshUpdates: %v", err)
	}
	if set.Core[0].Response != host.CoreResponseLatest {
		t.Fatalf("expected latest after install, got %+v", set.Core[0])
	}
}

func TestCatalog_ActivationAndInstalledVersion(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)
	seed(t, c)

	ok, err := c.IsActive(ctx, host.KindPlugin, "akismet/akismet.php")
	if err != nil || !ok {
		t.Fatalf("expected akismet active, got %v %v", ok, err)
	}
	if err := c.Deactivate(ctx, host.KindPlugin, "akismet/akismet.php"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if ok, _ := c.IsActive(ctx, host.KindPlugin, "akismet/akismet.php"); ok {
		t.Fatalf("expected akismet inactive")
	}
	if err := c.Activate(ctx, host.KindPlugin, "akismet/akismet.php"); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if ok, _ := c.IsActive(ctx, host.KindPlugin, "akismet/akismet.php"); !ok {
		t.Fatalf("expected akismet active again")
	}

	if err := c.RecordInstalled(ctx, host.KindPlugin, "akismet/akismet.php", "5.3"); err != nil {
		t.Fatalf("RecordInstalled: %v", err)
	}
	v, err := c.InstalledVersion(ctx, host.KindPlugin, "akismet/akismet.php")
	if err != nil || v != "5.3" {
		t.Fatalf("unexpected version %q %v", v, err)
	}
	v, err = c.InstalledVersion(ctx, host.KindTheme, "missing")
	if err != nil || v != "" {
		t.Fatalf("expected empty version for unknown theme, got %q %v", v, err)
	}
}

func TestCatalog_Details(t *testing.T) {
	ctx := context.Background()
	c := openTest(t)
	seed(t, c)

	d, err := c.Details(ctx, "akismet")
	if err != nil || d == nil || d.Name != "Akismet" {
		t.Fatalf("unexpected details %+v %v", d, err)
	}

	unregister := c.RegisterDetailsProvider("akismet", func(ctx context.Context) (*host.Details, error) {
		return &host.Details{Name: "Provided", Slug: "akismet"}, nil
	})
	d, _ = c.Details(ctx, "akismet")
	if d.Name != "Provided" {
		t.Fatalf("expected provider to win, got %q", d.Name)
	}
	unregister()

	d, err = c.Details(ctx, "unknown")
	if err != nil || d != nil {
		t.Fatalf("expected nil details, got %+v %v", d, err)
	}
}

func TestCatalog_DatabaseStats(t *testing.T) {
	c := openTest(t)
	stats, err := c.DatabaseStats(context.Background())
	if err != nil {
		t.Fatalf("DatabaseStats: %v", err)
	}
	if stats.Engine != "SQLite" || stats.Version == "" || stats.Prefix != "wp_" {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.Tables != 11 {
		t.Fatalf("expected 11 prefixed tables, got %d", stats.Tables)
	}
}

func TestCatalog_DatabaseStatsMatchesPrefixLiterally(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	for _, name := range []string{"wpx_decoy", "WP_upper", "wp"} {
		if _, err := c.db.ExecContext(ctx, `CREATE TABLE "`+name+`" (id INTEGER)`); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	stats, err := c.DatabaseStats(ctx)
	if err != nil {
		t.Fatalf("DatabaseStats: %v", err)
	}
	if stats.Tables != 11 {
		t.Fatalf("expected only wp_ tables counted, got %d", stats.Tables)
	}
}

func TestPostgresTableCountQuery(t *testing.T) {
	got := postgresDialect{}.rebind(postgresDialect{}.tableCountQuery())
	want := `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND left(table_name, length($1::text)) = $2`
	if got != want {
		t.Fatalf("unexpected query %q", got)
	}
}

func TestPostgresRebind(t *testing.T) {
	got := postgresDialect{}.rebind("SELECT a FROM t WHERE x = ? AND y = ?")
	if got != "SELECT a FROM t WHERE x = $1 AND y = $2" {
		t.Fatalf("unexpected rebind %q", got)
	}
}

func TestIsNewer(t *testing.T) {
	cases := []struct {
		candidate, current string
		want               bool
	}{
		{"1.0.3", "1.0.2", true},
		{"1.0.2", "1.0.2", false},
		{"1.0.1", "1.0.2", false},
		{"v2.0", "1.9", true},
		{"", "1.0", false},
		{"nightly", "1.0", true},
	}
	for _, tc := range cases {
		if got := isNewer(tc.candidate, tc.current); got != tc.want {
			t.Fatalf("isNewer(%q, %q) = %v", tc.candidate, tc.current, got)
		}
	}
}
