// Package collect builds read-only snapshots of server, platform and tenant
// state. Collectors never write to the host.
package collect

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"strconv"

	"webmaster-monitor/internal/host"
)

// ErrUnavailable marks a host query that failed hard, typically because the
// catalog database could not be reached.
var ErrUnavailable = errors.New("host state unavailable")

// Host is the host state the collectors read.
type Host interface {
	Meta(ctx context.Context) (map[string]string, error)
	Core(ctx context.Context) (host.Core, error)
	Plugins(ctx context.Context) ([]host.Package, error)
	Themes(ctx context.Context) ([]host.Theme, error)
	Users(ctx context.Context) ([]host.User, error)
	Network(ctx context.Context) (host.Network, bool, error)
	IsMainSite(ctx context.Context) (bool, error)
	Sites(ctx context.Context) ([]host.Site, error)
	NetworkPlugins(ctx context.Context) ([]host.Package, error)
	DatabaseStats(ctx context.Context) (host.DatabaseStats, error)
	PendingUpdates(ctx context.Context, kind host.Kind) (*host.UpdateSet, error)
}

func unavailable(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, what, err)
}

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatBytes renders n with 1024-based units, two decimals at most.
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(byteUnits)-1 {
		v /= 1024
		i++
	}
	return strconv.FormatFloat(round2(v), 'f', -1, 64) + " " + byteUnits[i]
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// DirSize sums the sizes of regular files under root. Unreadable entries are
// skipped; a missing root yields 0.
func DirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}
