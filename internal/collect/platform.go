package collect

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"webmaster-monitor/internal/catalog"
	"webmaster-monitor/internal/host"
	"webmaster-monitor/internal/model"
)

// Constant defaults reported when the host does not define the constant.
var constantDefaults = map[string]any{
	"WP_DEBUG":            false,
	"WP_DEBUG_LOG":        false,
	"WP_DEBUG_DISPLAY":    true,
	"SCRIPT_DEBUG":        false,
	"WP_CACHE":            false,
	"CONCATENATE_SCRIPTS": true,
	"COMPRESS_SCRIPTS":    false,
	"COMPRESS_CSS":        false,
	"WP_AUTO_UPDATE_CORE": "minor",
	"DISALLOW_FILE_EDIT":  false,
	"DISALLOW_FILE_MODS":  false,
	"WP_MEMORY_LIMIT":     "40M",
	"WP_MAX_MEMORY_LIMIT": "256M",
}

const healthUnknown = "unknown"

type PlatformCollector struct {
	Host Host
}

func (c *PlatformCollector) Collect(ctx context.Context) (model.PlatformInfo, error) {
	meta, err := c.Host.Meta(ctx)
	if err != nil {
		return model.PlatformInfo{}, unavailable("meta", err)
	}
	core, err := c.core(ctx)
	if err != nil {
		return model.PlatformInfo{}, err
	}
	plugins, err := c.plugins(ctx)
	if err != nil {
		return model.PlatformInfo{}, err
	}
	themes, err := c.themes(ctx)
	if err != nil {
		return model.PlatformInfo{}, err
	}
	users, err := c.users(ctx)
	if err != nil {
		return model.PlatformInfo{}, err
	}

	health := model.SiteHealth{Status: meta[catalog.MetaSiteHealthStatus], Tests: []string{}}
	if health.Status == "" {
		health.Status = healthUnknown
	}
	return model.PlatformInfo{
		Core:       core,
		Plugins:    plugins,
		Themes:     themes,
		Users:      users,
		SiteHealth: health,
		Constants:  constants(meta),
	}, nil
}

func (c *PlatformCollector) pending(ctx context.Context, kind host.Kind) (*host.UpdateSet, error) {
	set, err := c.Host.PendingUpdates(ctx, kind)
	if err != nil {
		return nil, unavailable("pending "+string(kind)+" updates", err)
	}
	if set == nil {
		set = host.NewUpdateSet(kind)
	}
	return set, nil
}

func (c *PlatformCollector) core(ctx context.Context) (model.CoreInfo, error) {
	core, err := c.Host.Core(ctx)
	if err != nil {
		return model.CoreInfo{}, unavailable("core", err)
	}
	set, err := c.pending(ctx, host.KindCore)
	if err != nil {
		return model.CoreInfo{}, err
	}
	info := model.CoreInfo{
		Version:            core.Version,
		LatestVersion:      core.Version,
		Multisite:          core.Multisite,
		SiteURL:            core.SiteURL,
		HomeURL:            core.HomeURL,
		AdminEmail:         core.AdminEmail,
		Language:           core.Language,
		Timezone:           core.Timezone,
		PermalinkStructure: core.PermalinkStructure,
		BlogPublic:         core.BlogPublic,
	}
	if len(set.Core) > 0 && set.Core[0].Response != host.CoreResponseLatest && set.Core[0].NewVersion != "" {
		info.UpdateAvailable = true
		info.LatestVersion = set.Core[0].NewVersion
	}
	return info, nil
}

func (c *PlatformCollector) plugins(ctx context.Context) (model.PluginSummary, error) {
	all, err := c.Host.Plugins(ctx)
	if err != nil {
		return model.PluginSummary{}, unavailable("plugins", err)
	}
	set, err := c.pending(ctx, host.KindPlugin)
	if err != nil {
		return model.PluginSummary{}, err
	}

	out := model.PluginSummary{Total: len(all), List: make([]model.PluginEntry, 0, len(all))}
	for _, p := range all {
		entry := model.PluginEntry{
			Name:    p.Name,
			Slug:    p.Slug(),
			Version: p.Version,
			Author:  p.Author,
			Active:  p.Active,
		}
		if p.Active {
			out.Active++
		}
		if offer, ok := set.Response[p.File]; ok {
			v := offer.NewVersion
			entry.UpdateAvailable = true
			entry.NewVersion = &v
			out.UpdatesAvailable++
		}
		out.List = append(out.List, entry)
	}
	out.Inactive = out.Total - out.Active
	return out, nil
}

func (c *PlatformCollector) themes(ctx context.Context) (model.ThemeSummary, error) {
	all, err := c.Host.Themes(ctx)
	if err != nil {
		return model.ThemeSummary{}, unavailable("themes", err)
	}
	set, err := c.pending(ctx, host.KindTheme)
	if err != nil {
		return model.ThemeSummary{}, err
	}

	names := make(map[string]string, len(all))
	for _, th := range all {
		names[th.Stylesheet] = th.Name
	}

	out := model.ThemeSummary{Total: len(all), List: make([]model.ThemeEntry, 0, len(all))}
	for _, th := range all {
		if th.Active {
			out.Active = model.ActiveTheme{
				Name:       th.Name,
				Version:    th.Version,
				Author:     th.Author,
				Template:   th.Template,
				Stylesheet: th.Stylesheet,
				IsChild:    th.IsChild(),
			}
			if th.IsChild() {
				parent := th.Template
				if name, ok := names[th.Template]; ok {
					parent = name
				}
				out.Active.Parent = &parent
			}
		}
		entry := model.ThemeEntry{
			Name:    th.Name,
			Slug:    th.Stylesheet,
			Version: th.Version,
			Active:  th.Active,
		}
		if offer, ok := set.Response[th.Stylesheet]; ok {
			v := offer.NewVersion
			entry.UpdateAvailable = true
			entry.NewVersion = &v
			out.UpdatesAvailable++
		}
		out.List = append(out.List, entry)
	}
	return out, nil
}

func (c *PlatformCollector) users(ctx context.Context) (model.UserSummary, error) {
	all, err := c.Host.Users(ctx)
	if err != nil {
		return model.UserSummary{}, unavailable("users", err)
	}
	out := model.UserSummary{
		Total:          len(all),
		ByRole:         make(map[string]int),
		Administrators: make([]model.Administrator, 0),
	}
	for _, u := range all {
		for _, r := range u.Roles {
			out.ByRole[r]++
		}
		if u.HasRole("administrator") {
			out.Administrators = append(out.Administrators, model.Administrator{
				ID:         u.ID,
				Username:   u.Login,
				Email:      u.Email,
				Registered: u.Registered,
				LastLogin:  u.LastLogin,
			})
		}
	}
	sort.Slice(out.Administrators, func(i, j int) bool { return out.Administrators[i].ID < out.Administrators[j].ID })
	return out, nil
}

// constants overlays host-defined values onto the defaults. Booleans and
// integers are decoded; anything else is reported as the raw string.
func constants(meta map[string]string) map[string]any {
	out := make(map[string]any, len(constantDefaults))
	for k, v := range constantDefaults {
		out[k] = v
	}
	for k, raw := range meta {
		name, ok := strings.CutPrefix(k, catalog.MetaConstantPrefix)
		if !ok || name == "" {
			continue
		}
		out[strings.ToUpper(name)] = decodeConstant(raw)
	}
	return out
}

func decodeConstant(raw string) any {
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}
