// Package selfupdate polls the monitoring platform for newer agent releases
// and feeds them into the host's update pipeline.
package selfupdate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"webmaster-monitor/internal/catalog"
	"webmaster-monitor/internal/host"
	"webmaster-monitor/internal/hub"
	"webmaster-monitor/internal/install"
	"webmaster-monitor/internal/metrics"
	"webmaster-monitor/internal/settings"
)

// CacheKey holds the last fetched RemoteVersionInfo.
const CacheKey = "wm_monitor_update_info"

const (
	maxMetadataBytes = 1 << 20
	defaultName      = "Webmaster Monitor"
)

var ErrRemoteUnavailable = errors.New("remote version info unavailable")

type RemoteVersionInfo struct {
	Name          string            `json:"name,omitempty"`
	Version       string            `json:"version"`
	DownloadURL   string            `json:"download_url,omitempty"`
	Homepage      string            `json:"homepage,omitempty"`
	Author        string            `json:"author,omitempty"`
	AuthorProfile string            `json:"author_profile,omitempty"`
	Sections      map[string]string `json:"sections,omitempty"`
	Requires      string            `json:"requires,omitempty"`
	Tested        string            `json:"tested,omitempty"`
	RequiresPHP   string            `json:"requires_php,omitempty"`
	Icons         map[string]string `json:"icons,omitempty"`
	Banners       map[string]string `json:"banners,omitempty"`
	FetchedAt     time.Time         `json:"fetched_at"`
}

// Host is the part of the platform catalog the poller hooks into.
type Host interface {
	RegisterUpdateFilter(kind host.Kind, fn catalog.UpdateFilter) (unregister func())
	RegisterDetailsProvider(slug string, fn catalog.DetailsProvider) (unregister func())
	RefreshUpdates(ctx context.Context, kind host.Kind) (*host.UpdateSet, error)
	InvalidateUpdateCache(ctx context.Context, kind host.Kind) error
	InstalledVersion(ctx context.Context, kind host.Kind, identifier string) (string, error)
	IsActive(ctx context.Context, kind host.Kind, identifier string) (bool, error)
	Activate(ctx context.Context, kind host.Kind, identifier string) error
}

type HookRegistrar interface {
	RegisterPostInstallHook(fn install.PostInstallHook) (unregister func())
}

type Publisher interface {
	Publish(topic string, data any) error
}

type Options struct {
	MetadataURL    string
	Slug           string
	Basename       string
	CurrentVersion string
	HostName       string
	HomeURL        string
	PluginsDir     string
	TTL            time.Duration
	Timeout        time.Duration
}

type Poller struct {
	Settings settings.Store
	Host     Host
	Client   *http.Client
	Opts     Options
	Metrics  *metrics.Metrics
	Events   Publisher
	Logger   *zap.Logger
	Now      func() time.Time
}

func NewPoller(st settings.Store, h Host, opts Options, m *metrics.Metrics, events Publisher, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Poller{
		Settings: st,
		Host:     h,
		Client:   &http.Client{Timeout: opts.Timeout},
		Opts:     opts,
		Metrics:  m,
		Events:   events,
		Logger:   logger.Named("selfupdate"),
		Now:      time.Now,
	}
}

// Check returns the remote release record, serving it from the settings
// cache unless force is set or the entry has expired.
func (p *Poller) Check(ctx context.Context, force bool) (*RemoteVersionInfo, error) {
	if !force {
		if info, ok := p.cached(ctx); ok {
			p.Metrics.UpdateCheck("hit")
			return info, nil
		}
	}

	info, err := p.fetch(ctx)
	if err != nil {
		p.Logger.Warn("remote version check failed", zap.String("url", p.Opts.MetadataURL), zap.Error(err))
		p.Metrics.UpdateCheck("unavailable")
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	p.Metrics.UpdateCheck("fetched")

	raw, err := json.Marshal(info)
	if err == nil {
		err = p.Settings.SetWithTTL(ctx, CacheKey, string(raw), p.Opts.TTL)
	}
	if err != nil {
		p.Logger.Warn("cache version info failed", zap.Error(err))
	}
	p.publish("fetched", info.Version)
	return info, nil
}

func (p *Poller) cached(ctx context.Context) (*RemoteVersionInfo, bool) {
	raw, ok, err := p.Settings.Get(ctx, CacheKey)
	if err != nil {
		p.Logger.Warn("read cached version info failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var info RemoteVersionInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil || info.Version == "" {
		return nil, false
	}
	// Stores without native expiry still never serve a stale record.
	if !info.FetchedAt.IsZero() && p.Now().Sub(info.FetchedAt) >= p.Opts.TTL {
		return nil, false
	}
	return &info, true
}

func (p *Poller) fetch(ctx context.Context) (*RemoteVersionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Opts.MetadataURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", p.userAgent(ctx))

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxMetadataBytes))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var info RemoteVersionInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBytes)).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if strings.TrimSpace(info.Version) == "" {
		return nil, errors.New("metadata has no version")
	}
	info.FetchedAt = p.Now().UTC()
	return &info, nil
}

func (p *Poller) userAgent(ctx context.Context) string {
	version, err := p.Host.InstalledVersion(ctx, host.KindCore, "")
	if err != nil {
		version = ""
	}
	return p.Opts.HostName + "/" + version + "; " + p.Opts.HomeURL
}

// Invalidate drops the cached release record.
func (p *Poller) Invalidate(ctx context.Context) error {
	return p.Settings.Delete(ctx, CacheKey)
}

// CompareAndRegister is the plugin update filter. It marks the agent as
// updatable when the remote release is strictly newer, and as up to date
// otherwise. Sets outside a check cycle are left alone.
func (p *Poller) CompareAndRegister(ctx context.Context, set *host.UpdateSet) error {
	if set == nil || len(set.Checked) == 0 {
		return nil
	}
	info, err := p.Check(ctx, false)
	if err != nil {
		return nil
	}

	current := p.Opts.CurrentVersion
	if v := set.Checked[p.Opts.Basename]; v != "" {
		current = v
	}
	newer, err := isOlder(current, info.Version)
	if err != nil {
		p.Logger.Warn("unparseable version", zap.String("current", current), zap.String("remote", info.Version), zap.Error(err))
	}

	if newer {
		set.Response[p.Opts.Basename] = host.Offer{
			Kind:        host.KindPlugin,
			Identifier:  p.Opts.Basename,
			Slug:        p.Opts.Slug,
			NewVersion:  info.Version,
			Package:     info.DownloadURL,
			URL:         info.Homepage,
			Tested:      info.Tested,
			Requires:    info.Requires,
			RequiresPHP: info.RequiresPHP,
			Icons:       info.Icons,
			Banners:     info.Banners,
		}
		delete(set.NoUpdate, p.Opts.Basename)
		p.publish("update_available", info.Version)
		return nil
	}
	set.NoUpdate[p.Opts.Basename] = host.Offer{
		Kind:       host.KindPlugin,
		Identifier: p.Opts.Basename,
		Slug:       p.Opts.Slug,
		NewVersion: current,
	}
	return nil
}

func isOlder(current, remote string) (bool, error) {
	cv, err := semver.NewVersion(strings.TrimPrefix(current, "v"))
	if err != nil {
		return false, err
	}
	rv, err := semver.NewVersion(strings.TrimPrefix(remote, "v"))
	if err != nil {
		return false, err
	}
	return cv.LessThan(rv), nil
}

// Details backs the package information popup for the agent's own slug. A
// nil result lets the host fall back to its own data.
func (p *Poller) Details(ctx context.Context) (*host.Details, error) {
	info, err := p.Check(ctx, false)
	if err != nil {
		return nil, nil
	}
	name := info.Name
	if name == "" {
		name = defaultName
	}
	return &host.Details{
		Name:          name,
		Slug:          p.Opts.Slug,
		Version:       info.Version,
		Author:        info.Author,
		AuthorProfile: info.AuthorProfile,
		Homepage:      info.Homepage,
		Requires:      info.Requires,
		Tested:        info.Tested,
		RequiresPHP:   info.RequiresPHP,
		DownloadLink:  info.DownloadURL,
		LastUpdated:   p.Now().UTC().Format(time.DateTime),
		Sections:      info.Sections,
		Banners:       info.Banners,
		Icons:         info.Icons,
	}, nil
}

// AfterInstall normalizes the agent's install directory to its canonical
// slug path. Installs of anything else pass through untouched.
func (p *Poller) AfterInstall(ctx context.Context, extra host.HookExtra) (string, error) {
	if extra.Kind != host.KindPlugin || extra.Identifier != p.Opts.Basename {
		return "", nil
	}

	target := filepath.Join(p.Opts.PluginsDir, p.Opts.Slug)
	if extra.Destination != "" && filepath.Clean(extra.Destination) != filepath.Clean(target) {
		if err := install.Move(extra.Destination, target); err != nil {
			return "", fmt.Errorf("normalize agent directory: %w", err)
		}
		p.Logger.Info("agent directory normalized", zap.String("from", extra.Destination), zap.String("to", target))
	}

	if extra.WasActive {
		active, err := p.Host.IsActive(ctx, host.KindPlugin, p.Opts.Basename)
		if err == nil && !active {
			err = p.Host.Activate(ctx, host.KindPlugin, p.Opts.Basename)
		}
		if err != nil {
			p.Logger.Warn("reactivate agent failed", zap.Error(err))
		}
	}

	if err := p.Invalidate(ctx); err != nil {
		p.Logger.Warn("invalidate version cache failed", zap.Error(err))
	}
	p.publish("installed", "")
	return target, nil
}

// ForceCheck drops both caches and runs a host check cycle right away.
func (p *Poller) ForceCheck(ctx context.Context) (*host.UpdateSet, error) {
	if err := p.Invalidate(ctx); err != nil {
		return nil, fmt.Errorf("invalidate version cache: %w", err)
	}
	if err := p.Host.InvalidateUpdateCache(ctx, host.KindPlugin); err != nil {
		return nil, err
	}
	return p.Host.RefreshUpdates(ctx, host.KindPlugin)
}

// Registration holds the handles returned by Register.
type Registration struct {
	Filter  func()
	Details func()
	Hook    func()
}

func (r Registration) Unregister() {
	for _, fn := range []func(){r.Filter, r.Details, r.Hook} {
		if fn != nil {
			fn()
		}
	}
}

// Register wires the update filter, the details provider and the
// post-install hook.
func (p *Poller) Register(hooks HookRegistrar) Registration {
	return Registration{
		Filter:  p.Host.RegisterUpdateFilter(host.KindPlugin, p.CompareAndRegister),
		Details: p.Host.RegisterDetailsProvider(p.Opts.Slug, p.Details),
		Hook:    hooks.RegisterPostInstallHook(p.AfterInstall),
	}
}

type pollerEvent struct {
	Event   string `json:"event"`
	Version string `json:"version,omitempty"`
}

func (p *Poller) publish(event, version string) {
	if p.Events == nil {
		return
	}
	if err := p.Events.Publish(hub.TopicSelfUpdate, pollerEvent{Event: event, Version: version}); err != nil {
		p.Logger.Debug("publish failed", zap.Error(err))
	}
}
