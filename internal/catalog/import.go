package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"webmaster-monitor/internal/host"
)

// Inventory is the YAML document accepted by Import. It mirrors what the
// host reports about itself.
type Inventory struct {
	Meta    map[string]string `yaml:"meta"`
	Network *InventoryNetwork `yaml:"network"`
	Sites   []InventorySite   `yaml:"sites"`
	Plugins []InventoryPlugin `yaml:"plugins"`
	Themes  []InventoryTheme  `yaml:"themes"`
	Users   []InventoryUser   `yaml:"users"`
	Offers  []InventoryOffer  `yaml:"offers"`
}

type InventoryNetwork struct {
	ID        int64  `yaml:"id"`
	Name      string `yaml:"name"`
	Domain    string `yaml:"domain"`
	Path      string `yaml:"path"`
	MainSite  int64  `yaml:"main_site"`
	Subdomain bool   `yaml:"subdomain"`
}

type InventorySite struct {
	BlogID         int64    `yaml:"blog_id"`
	Domain         string   `yaml:"domain"`
	Path           string   `yaml:"path"`
	Name           string   `yaml:"name"`
	SiteURL        string   `yaml:"site_url"`
	HomeURL        string   `yaml:"home_url"`
	Registered     string   `yaml:"registered"`
	LastUpdated    string   `yaml:"last_updated"`
	Public         *bool    `yaml:"public"`
	Archived       bool     `yaml:"archived"`
	Spam           bool     `yaml:"spam"`
	Deleted        bool     `yaml:"deleted"`
	Theme          string   `yaml:"theme"`
	Plugins        []string `yaml:"plugins"`
	PublishedPosts int      `yaml:"published_posts"`
}

type InventoryPlugin struct {
	File          string `yaml:"file"`
	Name          string `yaml:"name"`
	Version       string `yaml:"version"`
	Author        string `yaml:"author"`
	NetworkActive bool   `yaml:"network_active"`
}

type InventoryTheme struct {
	Stylesheet string `yaml:"stylesheet"`
	Template   string `yaml:"template"`
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
	Author     string `yaml:"author"`
}

type InventoryUser struct {
	ID         int64              `yaml:"id"`
	Login      string             `yaml:"login"`
	Email      string             `yaml:"email"`
	Registered string             `yaml:"registered"`
	LastLogin  string             `yaml:"last_login"`
	Roles      map[int64][]string `yaml:"roles"`
}

type InventoryOffer struct {
	Kind        string            `yaml:"kind"`
	Identifier  string            `yaml:"identifier"`
	Version     string            `yaml:"version"`
	Package     string            `yaml:"package"`
	URL         string            `yaml:"url"`
	Tested      string            `yaml:"tested"`
	Requires    string            `yaml:"requires"`
	RequiresPHP string            `yaml:"requires_php"`
	Icons       map[string]string `yaml:"icons"`
	Banners     map[string]string `yaml:"banners"`
}

func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read inventory: %w", err)
	}
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("catalog: parse inventory: %w", err)
	}
	return &inv, nil
}

// Import writes inv into the catalog. Existing rows with the same keys are
// overwritten.
func (c *Catalog) Import(ctx context.Context, inv *Inventory) error {
	for _, k := range sortedKeys(inv.Meta) {
		if err := c.SetMeta(ctx, k, inv.Meta[k]); err != nil {
			return err
		}
	}
	if n := inv.Network; n != nil {
		id := n.ID
		if id == 0 {
			id = 1
		}
		main := n.MainSite
		if main == 0 {
			main = 1
		}
		if err := c.SetNetwork(ctx, host.Network{ID: id, Name: n.Name, Domain: n.Domain, Path: n.Path, MainSiteID: main, SubdomainInstall: n.Subdomain}); err != nil {
			return err
		}
	}
	for _, p := range inv.Plugins {
		if err := c.UpsertPlugin(ctx, host.Package{File: p.File, Name: p.Name, Version: p.Version, Author: p.Author, NetworkActive: p.NetworkActive}); err != nil {
			return err
		}
	}
	for _, th := range inv.Themes {
		if err := c.UpsertTheme(ctx, host.Theme{Stylesheet: th.Stylesheet, Template: th.Template, Name: th.Name, Version: th.Version, Author: th.Author}); err != nil {
			return err
		}
	}
	for _, s := range inv.Sites {
		public := true
		if s.Public != nil {
			public = *s.Public
		}
		site := host.Site{
			BlogID: s.BlogID, Domain: s.Domain, Path: s.Path, Name: s.Name,
			SiteURL: s.SiteURL, HomeURL: s.HomeURL, Registered: s.Registered, LastUpdated: s.LastUpdated,
			Public: public, Archived: s.Archived, Spam: s.Spam, Deleted: s.Deleted, ActiveTheme: s.Theme,
		}
		if err := c.UpsertSite(ctx, site); err != nil {
			return err
		}
		for _, file := range s.Plugins {
			if err := c.ActivatePluginOn(ctx, s.BlogID, file); err != nil {
				return err
			}
		}
		for i := 0; i < s.PublishedPosts; i++ {
			if err := c.AddPost(ctx, s.BlogID, int64(i+1), "publish"); err != nil {
				return err
			}
		}
	}
	for _, u := range inv.Users {
		for siteID, roles := range u.Roles {
			user := host.User{ID: u.ID, Login: u.Login, Email: u.Email, Registered: u.Registered, LastLogin: u.LastLogin, Roles: roles}
			if err := c.UpsertUser(ctx, siteID, user); err != nil {
				return err
			}
		}
	}
	for i, o := range inv.Offers {
		kind, ok := host.ParseKind(o.Kind)
		if !ok {
			return fmt.Errorf("catalog: offer %s: unknown kind %q", o.Identifier, o.Kind)
		}
		offer := host.Offer{
			Kind: kind, Identifier: o.Identifier, Slug: host.SlugOf(o.Identifier), NewVersion: o.Version,
			Package: o.Package, URL: o.URL, Tested: o.Tested, Requires: o.Requires, RequiresPHP: o.RequiresPHP,
			Icons: o.Icons, Banners: o.Banners,
		}
		if err := c.PutOffer(ctx, offer, i); err != nil {
			return err
		}
	}
	return nil
}
