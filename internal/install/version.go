package install

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"webmaster-monitor/internal/host"
)

const headerScanBytes = 8 << 10

var (
	headerVersion = regexp.MustCompile(`(?mi)^[ \t/*#@]*Version:[ \t]*(.+)$`)
	coreVersion   = regexp.MustCompile(`\$wp_version\s*=\s*['"]([^'"]+)['"]`)
)

// ReadVersion re-reads the version of an installed artifact from its files.
// For a single-file plugin dir may be the plugin file itself.
// It returns "" when the version cannot be determined.
func ReadVersion(kind host.Kind, dir, identifier string) string {
	switch kind {
	case host.KindPlugin:
		if info, err := os.Stat(dir); err == nil && !info.IsDir() {
			return headerField(dir)
		}
		return headerField(filepath.Join(dir, path.Base(identifier)))
	case host.KindTheme:
		return headerField(filepath.Join(dir, "style.css"))
	case host.KindCore:
		data, err := readHead(filepath.Join(dir, "wp-includes", "version.php"))
		if err != nil {
			return ""
		}
		if m := coreVersion.FindSubmatch(data); m != nil {
			return string(m[1])
		}
	}
	return ""
}

func headerField(file string) string {
	data, err := readHead(file)
	if err != nil {
		return ""
	}
	m := headerVersion.FindSubmatch(data)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(string(m[1])), "*/"))
}

func readHead(file string) ([]byte, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, headerScanBytes))
}
