package collect

import (
	"context"

	"webmaster-monitor/internal/model"
)

type TenantCollector struct {
	Host Host
}

// Collect reports the network layout. The subsite roster and network plugins
// are only disclosed from the network's primary site.
func (c *TenantCollector) Collect(ctx context.Context) (model.TenantInfo, error) {
	out := model.TenantInfo{
		Subsites:       []model.Subsite{},
		NetworkPlugins: []model.NetworkPlugin{},
	}

	network, ok, err := c.Host.Network(ctx)
	if err != nil {
		return model.TenantInfo{}, unavailable("network", err)
	}
	if !ok {
		return out, nil
	}
	main, err := c.Host.IsMainSite(ctx)
	if err != nil {
		return model.TenantInfo{}, unavailable("main site", err)
	}

	installType := "subdirectory"
	if network.SubdomainInstall {
		installType = "subdomain"
	}
	out.IsMultisite = true
	out.IsMainSite = main
	out.Network = model.NetworkInfo{
		IsMultisite:      true,
		IsMainSite:       main,
		NetworkID:        &network.ID,
		NetworkName:      &network.Name,
		NetworkDomain:    &network.Domain,
		NetworkPath:      &network.Path,
		SiteCount:        network.SiteCount,
		InstallationType: &installType,
	}
	if !main {
		return out, nil
	}

	sites, err := c.Host.Sites(ctx)
	if err != nil {
		return model.TenantInfo{}, unavailable("sites", err)
	}
	for _, s := range sites {
		if s.Archived || s.Spam || s.Deleted {
			continue
		}
		out.Subsites = append(out.Subsites, model.Subsite{
			BlogID:             s.BlogID,
			Domain:             s.Domain,
			Path:               s.Path,
			SiteName:           s.Name,
			SiteURL:            s.SiteURL,
			HomeURL:            s.HomeURL,
			Registered:         s.Registered,
			LastUpdated:        s.LastUpdated,
			Public:             s.Public,
			Archived:           s.Archived,
			Spam:               s.Spam,
			Deleted:            s.Deleted,
			PostCount:          s.PostCount,
			IsMainSite:         s.BlogID == network.MainSiteID,
			UsersCount:         s.UsersCount,
			ActivePluginsCount: s.ActivePlugins,
			ActiveTheme:        s.ActiveTheme,
		})
	}

	plugins, err := c.Host.NetworkPlugins(ctx)
	if err != nil {
		return model.TenantInfo{}, unavailable("network plugins", err)
	}
	for _, p := range plugins {
		out.NetworkPlugins = append(out.NetworkPlugins, model.NetworkPlugin{
			Name:          p.Name,
			Slug:          p.Slug(),
			Version:       p.Version,
			NetworkActive: true,
		})
	}
	return out, nil
}
