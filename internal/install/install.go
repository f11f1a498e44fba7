// Package install fetches an update package and swaps it into place,
// restoring the previous copy when any step fails.
package install

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"webmaster-monitor/internal/host"
)

// Catalog is the activation and version bookkeeping the pipeline updates.
type Catalog interface {
	IsActive(ctx context.Context, kind host.Kind, identifier string) (bool, error)
	Activate(ctx context.Context, kind host.Kind, identifier string) error
	Deactivate(ctx context.Context, kind host.Kind, identifier string) error
	RecordInstalled(ctx context.Context, kind host.Kind, identifier, version string) error
}

type Layout struct {
	PluginsDir string
	ThemesDir  string
	CoreDir    string
	StagingDir string
}

// PostInstallHook runs after the package is in place. A non-empty return
// value replaces the destination seen by later hooks and the version probe.
type PostInstallHook func(ctx context.Context, extra host.HookExtra) (destination string, err error)

var ErrNoPackage = errors.New("update has no package url")

type Pipeline struct {
	Catalog Catalog
	Layout  Layout
	Client  *http.Client
	Logger  *zap.Logger

	mu     sync.RWMutex
	nextID int
	hooks  []hookEntry
}

type hookEntry struct {
	id int
	fn PostInstallHook
}

func NewPipeline(cat Catalog, layout Layout, timeout time.Duration, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		Catalog: cat,
		Layout:  layout,
		Client:  &http.Client{Timeout: timeout},
		Logger:  logger.Named("install"),
	}
}

func (p *Pipeline) RegisterPostInstallHook(fn PostInstallHook) (unregister func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.hooks = append(p.hooks, hookEntry{id: id, fn: fn})
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, h := range p.hooks {
			if h.id == id {
				p.hooks = append(p.hooks[:i:i], p.hooks[i+1:]...)
				return
			}
		}
	}
}

func (p *Pipeline) hookList() []hookEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]hookEntry(nil), p.hooks...)
}

// Destination returns where an artifact of kind lives on disk.
func (p *Pipeline) Destination(kind host.Kind, identifier string) (string, error) {
	switch kind {
	case host.KindPlugin:
		return filepath.Join(p.Layout.PluginsDir, host.SlugOf(identifier)), nil
	case host.KindTheme:
		return filepath.Join(p.Layout.ThemesDir, identifier), nil
	case host.KindCore:
		return p.Layout.CoreDir, nil
	default:
		return "", fmt.Errorf("unknown kind %q", kind)
	}
}

// Install applies offer. It reports (false, err) on any failure after
// restoring the previously installed copy.
func (p *Pipeline) Install(ctx context.Context, offer host.Offer) (bool, error) {
	if offer.Package == "" {
		return false, ErrNoPackage
	}
	dest, err := p.Destination(offer.Kind, offer.Identifier)
	if err != nil {
		return false, err
	}

	runID := uuid.NewString()
	work := filepath.Join(p.Layout.StagingDir, runID)
	if err := os.MkdirAll(work, 0o755); err != nil {
		return false, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(work) }()

	log := p.Logger.With(zap.String("kind", string(offer.Kind)), zap.String("identifier", offer.Identifier), zap.String("run", runID))
	log.Info("installing", zap.String("version", offer.NewVersion))

	archive := filepath.Join(work, "package.zip")
	if err := download(ctx, p.Client, offer.Package, archive); err != nil {
		return false, err
	}
	source, err := extract(archive, filepath.Join(work, "source"))
	if err != nil {
		return false, err
	}
	if offer.Kind == host.KindPlugin && isSingleFile(offer.Identifier) {
		if source, err = singleFile(source, offer.Identifier); err != nil {
			return false, err
		}
	}

	wasActive, err := p.Catalog.IsActive(ctx, offer.Kind, offer.Identifier)
	if err != nil {
		return false, err
	}
	if wasActive && offer.Kind == host.KindPlugin {
		if err := p.Catalog.Deactivate(ctx, offer.Kind, offer.Identifier); err != nil {
			return false, err
		}
	}

	swap := &swapper{dest: dest, backup: filepath.Join(work, "backup")}
	if offer.Kind == host.KindCore {
		swap.overlay = &overlay{src: source, dst: dest, backup: swap.backup}
	}
	if err := swap.apply(source); err != nil {
		p.restore(ctx, log, swap, offer, wasActive)
		return false, fmt.Errorf("move package into place: %w", err)
	}

	extra := host.HookExtra{Kind: offer.Kind, Identifier: offer.Identifier, Destination: dest, WasActive: wasActive}
	for _, h := range p.hookList() {
		moved, err := h.fn(ctx, extra)
		if err != nil {
			swap.dest = extra.Destination
			p.restore(ctx, log, swap, offer, wasActive)
			return false, fmt.Errorf("post-install: %w", err)
		}
		if moved != "" {
			extra.Destination = moved
		}
	}

	if wasActive {
		active, err := p.Catalog.IsActive(ctx, offer.Kind, offer.Identifier)
		if err == nil && !active {
			err = p.Catalog.Activate(ctx, offer.Kind, offer.Identifier)
		}
		if err != nil {
			log.Warn("reactivation failed", zap.Error(err))
		}
	}

	version := ReadVersion(offer.Kind, extra.Destination, offer.Identifier)
	if err := p.Catalog.RecordInstalled(ctx, offer.Kind, offer.Identifier, version); err != nil {
		log.Warn("record installed version failed", zap.Error(err))
	}
	log.Info("installed", zap.String("version", version))
	return true, nil
}

// isSingleFile reports whether a plugin basename names a file directly in
// the plugins directory, like "hello.php".
func isSingleFile(identifier string) bool {
	return path.Dir(identifier) == "."
}

// singleFile locates the plugin file inside an extracted package.
func singleFile(source, identifier string) (string, error) {
	file := filepath.Join(source, path.Base(identifier))
	info, err := os.Stat(file)
	if err != nil {
		return "", fmt.Errorf("package has no %s: %w", path.Base(identifier), err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("package entry %s is not a file", path.Base(identifier))
	}
	return file, nil
}

func (p *Pipeline) restore(ctx context.Context, log *zap.Logger, swap *swapper, offer host.Offer, wasActive bool) {
	if err := swap.undo(); err != nil {
		log.Error("rollback failed", zap.Error(err))
	} else {
		log.Warn("rolled back")
	}
	if wasActive && offer.Kind == host.KindPlugin {
		if err := p.Catalog.Activate(ctx, offer.Kind, offer.Identifier); err != nil {
			log.Error("reactivation after rollback failed", zap.Error(err))
		}
	}
}

// swapper replaces dest with a new tree, keeping the old one under backup.
type swapper struct {
	dest     string
	backup   string
	original string
	hadOld   bool
	applied  bool
	overlay  *overlay
}

func (s *swapper) apply(source string) error {
	s.original = s.dest
	if s.overlay != nil {
		s.applied = true
		return s.overlay.apply()
	}
	if _, err := os.Stat(s.dest); err == nil {
		if err := os.MkdirAll(filepath.Dir(s.backup), 0o755); err != nil {
			return err
		}
		if err := os.Rename(s.dest, s.backup); err != nil {
			return err
		}
		s.hadOld = true
	}
	if err := os.MkdirAll(filepath.Dir(s.dest), 0o755); err != nil {
		return err
	}
	if err := os.Rename(source, s.dest); err != nil {
		return err
	}
	s.applied = true
	return nil
}

func (s *swapper) undo() error {
	if s.overlay != nil {
		return s.overlay.undo()
	}
	if s.applied {
		if err := os.RemoveAll(s.dest); err != nil {
			return err
		}
	}
	if s.hadOld {
		return os.Rename(s.backup, s.original)
	}
	return nil
}
