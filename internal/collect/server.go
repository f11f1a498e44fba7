package collect

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
	gohost "github.com/shirou/gopsutil/v4/host"
	"go.uber.org/zap"

	"webmaster-monitor/internal/catalog"
	"webmaster-monitor/internal/model"
)

// RuntimeExtensions are the host runtime extensions reported as loaded or not.
var RuntimeExtensions = []string{
	"curl", "gd", "imagick", "json", "mbstring", "mysqli", "openssl",
	"xml", "zip", "zlib", "intl", "soap", "opcache",
}

// DiskUsage is the filesystem capacity backing a path.
type DiskUsage struct {
	Total uint64
	Free  uint64
}

// SystemInfo describes the machine the agent runs on.
type SystemInfo struct {
	Hostname string
	OS       string
	Detail   string
}

type ServerCollector struct {
	Host        Host
	SiteURL     string
	ContentRoot string
	UploadsDir  string
	Logger      *zap.Logger

	// DiskUsage and System default to gopsutil probes.
	DiskUsage func(ctx context.Context, path string) (DiskUsage, error)
	System    func(ctx context.Context) SystemInfo
}

func NewServerCollector(h Host, siteURL, contentRoot, uploadsDir string, logger *zap.Logger) *ServerCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServerCollector{
		Host:        h,
		SiteURL:     siteURL,
		ContentRoot: contentRoot,
		UploadsDir:  uploadsDir,
		Logger:      logger.Named("collect"),
		DiskUsage:   probeDisk,
		System:      probeSystem,
	}
}

func (c *ServerCollector) Collect(ctx context.Context) (model.ServerInfo, error) {
	meta, err := c.Host.Meta(ctx)
	if err != nil {
		return model.ServerInfo{}, unavailable("meta", err)
	}
	db, err := c.database(ctx, meta)
	if err != nil {
		return model.ServerInfo{}, err
	}
	return model.ServerInfo{
		PHP:      runtimeInfo(meta),
		Agent:    agentRuntime(),
		Database: db,
		Server:   c.server(ctx, meta),
		Disk:     c.disk(ctx),
	}, nil
}

func runtimeInfo(meta map[string]string) model.RuntimeInfo {
	ini := func(name string) string { return meta[catalog.MetaRuntimeIniPrefix+name] }
	info := model.RuntimeInfo{
		Version:           meta[catalog.MetaRuntimeVersion],
		MemoryLimit:       ini("memory_limit"),
		MaxExecutionTime:  ini("max_execution_time"),
		MaxInputTime:      ini("max_input_time"),
		MaxInputVars:      ini("max_input_vars"),
		PostMaxSize:       ini("post_max_size"),
		UploadMaxFilesize: ini("upload_max_filesize"),
		SAPI:              meta[catalog.MetaRuntimeSAPI],
		Extensions:        make(map[string]bool, len(RuntimeExtensions)),
	}
	for _, ext := range RuntimeExtensions {
		loaded, _ := strconv.ParseBool(meta[catalog.MetaRuntimeExtPrefix+ext])
		info.Extensions[ext] = loaded
	}
	return info
}

func agentRuntime() model.AgentRuntime {
	return model.AgentRuntime{
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		NumCPU:     runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
	}
}

func (c *ServerCollector) database(ctx context.Context, meta map[string]string) (model.DatabaseInfo, error) {
	stats, err := c.Host.DatabaseStats(ctx)
	if err != nil {
		return model.DatabaseInfo{}, unavailable("database stats", err)
	}
	info := model.DatabaseInfo{
		Type:           stats.Engine,
		Version:        stats.Version,
		Charset:        stats.Charset,
		Collate:        stats.Collation,
		Prefix:         stats.Prefix,
		TablesCount:    stats.Tables,
		TotalSize:      FormatBytes(stats.SizeBytes),
		TotalSizeBytes: stats.SizeBytes,
	}
	// A host-reported server version wins over the catalog's own engine.
	if v := meta[catalog.MetaDBVersion]; v != "" {
		info.Version = v
		info.Type = "MySQL"
		if strings.Contains(strings.ToLower(v), "mariadb") {
			info.Type = "MariaDB"
		}
	}
	return info, nil
}

func (c *ServerCollector) server(ctx context.Context, meta map[string]string) model.ServerBlock {
	sys := c.System(ctx)
	software := meta[catalog.MetaServerSoftware]
	if software == "" {
		software = "Unknown"
	}
	docRoot := meta[catalog.MetaDocumentRoot]
	if docRoot == "" {
		docRoot, _ = filepath.Abs(c.ContentRoot)
	}
	https, err := strconv.ParseBool(meta[catalog.MetaHTTPS])
	if err != nil {
		https = strings.HasPrefix(strings.ToLower(c.SiteURL), "https://")
	}
	ip := meta[catalog.MetaServerAddr]
	if ip == "" {
		ip = firstAddress()
	}
	return model.ServerBlock{
		Software:     software,
		OS:           sys.OS,
		OSDetail:     sys.Detail,
		Hostname:     sys.Hostname,
		IP:           ip,
		DocumentRoot: docRoot,
		HTTPS:        https,
		WebServer:    ClassifyWebServer(software),
	}
}

// ClassifyWebServer maps a server software banner to a known family.
func ClassifyWebServer(software string) string {
	s := strings.ToLower(software)
	switch {
	case strings.Contains(s, "apache"):
		return "Apache"
	case strings.Contains(s, "nginx"):
		return "Nginx"
	case strings.Contains(s, "litespeed"):
		return "LiteSpeed"
	case strings.Contains(s, "iis"):
		return "IIS"
	default:
		return "Other"
	}
}

func (c *ServerCollector) disk(ctx context.Context) model.DiskInfo {
	var info model.DiskInfo
	usage, err := c.DiskUsage(ctx, c.ContentRoot)
	if err != nil {
		c.Logger.Debug("disk usage unavailable", zap.Error(err))
	}
	if err == nil && usage.Total > 0 {
		used := usage.Total - min(usage.Free, usage.Total)
		info.Total, info.TotalBytes = FormatBytes(int64(usage.Total)), usage.Total
		info.Free, info.FreeBytes = FormatBytes(int64(usage.Free)), usage.Free
		info.Used, info.UsedBytes = FormatBytes(int64(used)), used
		info.UsedPercentage = round2(float64(used) / float64(usage.Total) * 100)
	} else {
		info.Total, info.Free, info.Used = FormatBytes(0), FormatBytes(0), FormatBytes(0)
	}

	wp := DirSize(c.ContentRoot)
	info.WordPressSize, info.WordPressSizeBytes = FormatBytes(wp), wp
	uploads := DirSize(c.UploadsDir)
	info.UploadsSize, info.UploadsSizeBytes = FormatBytes(uploads), uploads
	return info
}

func probeDisk(ctx context.Context, path string) (DiskUsage, error) {
	stat, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return DiskUsage{}, err
	}
	return DiskUsage{Total: stat.Total, Free: stat.Free}, nil
}

func probeSystem(ctx context.Context) SystemInfo {
	sys := SystemInfo{OS: runtime.GOOS}
	sys.Hostname, _ = os.Hostname()

	info, err := gohost.InfoWithContext(ctx)
	if err != nil {
		return sys
	}
	if info.Hostname != "" {
		sys.Hostname = info.Hostname
	}
	if info.OS != "" {
		sys.OS = info.OS
	}
	parts := []string{sys.OS, sys.Hostname, info.KernelVersion, info.KernelArch}
	if info.Platform != "" {
		parts = append(parts, strings.TrimSpace(info.Platform+" "+info.PlatformVersion))
	}
	var detail []string
	for _, p := range parts {
		if p != "" {
			detail = append(detail, p)
		}
	}
	sys.Detail = strings.Join(detail, " ")
	return sys
}

func firstAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.IsLinkLocalUnicast() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}
