package model

type RuntimeInfo struct {
	Version           string          `json:"version"`
	MemoryLimit       string          `json:"memory_limit"`
	MaxExecutionTime  string          `json:"max_execution_time"`
	MaxInputTime      string          `json:"max_input_time"`
	MaxInputVars      string          `json:"max_input_vars"`
	PostMaxSize       string          `json:"post_max_size"`
	UploadMaxFilesize string          `json:"upload_max_filesize"`
	SAPI              string          `json:"sapi"`
	Extensions        map[string]bool `json:"extensions"`
}

type AgentRuntime struct {
	GoVersion  string `json:"go_version"`
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	NumCPU     int    `json:"num_cpu"`
	Goroutines int    `json:"goroutines"`
}

type DatabaseInfo struct {
	Type           string `json:"type"`
	Version        string `json:"version"`
	Charset        string `json:"charset"`
	Collate        string `json:"collate"`
	Prefix         string `json:"prefix"`
	TablesCount    int    `json:"tables_count"`
	TotalSize      string `json:"total_size"`
	TotalSizeBytes int64  `json:"total_size_bytes"`
}

type ServerBlock struct {
	Software     string `json:"software"`
	OS           string `json:"os"`
	OSDetail     string `json:"os_detail"`
	Hostname     string `json:"hostname"`
	IP           string `json:"ip"`
	DocumentRoot string `json:"document_root"`
	HTTPS        bool   `json:"https"`
	WebServer    string `json:"web_server"`
}

type DiskInfo struct {
	Total              string  `json:"total"`
	TotalBytes         uint64  `json:"total_bytes"`
	Free               string  `json:"free"`
	FreeBytes          uint64  `json:"free_bytes"`
	Used               string  `json:"used"`
	UsedBytes          uint64  `json:"used_bytes"`
	UsedPercentage     float64 `json:"used_percentage"`
	WordPressSize      string  `json:"wordpress_size"`
	WordPressSizeBytes int64   `json:"wordpress_size_bytes"`
	UploadsSize        string  `json:"uploads_size"`
	UploadsSizeBytes   int64   `json:"uploads_size_bytes"`
}

type ServerInfo struct {
	PHP      RuntimeInfo  `json:"php"`
	Agent    AgentRuntime `json:"agent"`
	Database DatabaseInfo `json:"database"`
	Server   ServerBlock  `json:"server"`
	Disk     DiskInfo     `json:"disk"`
}

type CoreInfo struct {
	Version            string `json:"version"`
	UpdateAvailable    bool   `json:"update_available"`
	LatestVersion      string `json:"latest_version"`
	Multisite          bool   `json:"multisite"`
	SiteURL            string `json:"site_url"`
	HomeURL            string `json:"home_url"`
	AdminEmail         string `json:"admin_email"`
	Language           string `json:"language"`
	Timezone           string `json:"timezone"`
	PermalinkStructure string `json:"permalink_structure"`
	BlogPublic         string `json:"blog_public"`
}

type PluginEntry struct {
	Name            string  `json:"name"`
	Slug            string  `json:"slug"`
	Version         string  `json:"version"`
	Author          string  `json:"author"`
	Active          bool    `json:"active"`
	UpdateAvailable bool    `json:"update_available"`
	NewVersion      *string `json:"new_version"`
}

type PluginSummary struct {
	Total            int           `json:"total"`
	Active           int           `json:"active"`
	Inactive         int           `json:"inactive"`
	UpdatesAvailable int           `json:"updates_available"`
	List             []PluginEntry `json:"list"`
}

type ActiveTheme struct {
	Name       string  `json:"name"`
	Version    string  `json:"version"`
	Author     string  `json:"author"`
	Template   string  `json:"template"`
	Stylesheet string  `json:"stylesheet"`
	IsChild    bool    `json:"is_child"`
	Parent     *string `json:"parent,omitempty"`
}

type ThemeEntry struct {
	Name            string  `json:"name"`
	Slug            string  `json:"slug"`
	Version         string  `json:"version"`
	Active          bool    `json:"active"`
	UpdateAvailable bool    `json:"update_available"`
	NewVersion      *string `json:"new_version"`
}

type ThemeSummary struct {
	Total            int          `json:"total"`
	Active           ActiveTheme  `json:"active"`
	UpdatesAvailable int          `json:"updates_available"`
	List             []ThemeEntry `json:"list"`
}

type Administrator struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Registered string `json:"registered"`
	LastLogin  string `json:"last_login"`
}

type UserSummary struct {
	Total          int             `json:"total"`
	ByRole         map[string]int  `json:"by_role"`
	Administrators []Administrator `json:"administrators"`
}

type SiteHealth struct {
	Status string   `json:"status"`
	Tests  []string `json:"tests"`
}

type PlatformInfo struct {
	Core       CoreInfo       `json:"core"`
	Plugins    PluginSummary  `json:"plugins"`
	Themes     ThemeSummary   `json:"themes"`
	Users      UserSummary    `json:"users"`
	SiteHealth SiteHealth     `json:"site_health"`
	Constants  map[string]any `json:"constants"`
}

type NetworkInfo struct {
	IsMultisite      bool    `json:"is_multisite"`
	IsMainSite       bool    `json:"is_main_site"`
	NetworkID        *int64  `json:"network_id"`
	NetworkName      *string `json:"network_name"`
	NetworkDomain    *string `json:"network_domain"`
	NetworkPath      *string `json:"network_path"`
	SiteCount        int     `json:"site_count"`
	InstallationType *string `json:"installation_type"`
}

type Subsite struct {
	BlogID             int64  `json:"blog_id"`
	Domain             string `json:"domain"`
	Path               string `json:"path"`
	SiteName           string `json:"site_name"`
	SiteURL            string `json:"site_url"`
	HomeURL            string `json:"home_url"`
	Registered         string `json:"registered"`
	LastUpdated        string `json:"last_updated"`
	Public             bool   `json:"public"`
	Archived           bool   `json:"archived"`
	Spam               bool   `json:"spam"`
	Deleted            bool   `json:"deleted"`
	PostCount          int    `json:"post_count"`
	IsMainSite         bool   `json:"is_main_site"`
	UsersCount         int    `json:"users_count"`
	ActivePluginsCount int    `json:"active_plugins_count"`
	ActiveTheme        string `json:"active_theme"`
}

type NetworkPlugin struct {
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	Version       string `json:"version"`
	NetworkActive bool   `json:"network_active"`
}

type TenantInfo struct {
	IsMultisite    bool            `json:"is_multisite"`
	IsMainSite     bool            `json:"is_main_site"`
	Network        NetworkInfo     `json:"network"`
	Subsites       []Subsite       `json:"subsites"`
	NetworkPlugins []NetworkPlugin `json:"network_plugins"`
}

// UpdateResult is the outcome of an apply-update call.
type UpdateResult struct {
	Success    bool    `json:"success"`
	NewVersion *string `json:"new_version"`
	Error      string  `json:"error,omitempty"`
}

type HealthChecks struct {
	Database   bool `json:"database"`
	Filesystem bool `json:"filesystem"`
	Cron       bool `json:"cron"`
}

// HealthReport is served unauthenticated. Status is "error" when the
// database or filesystem check fails.
type HealthReport struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	Checks    HealthChecks `json:"checks"`
}

type PingResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	PluginVersion string `json:"plugin_version"`
	Timestamp     string `json:"timestamp"`
	SiteURL       string `json:"site_url"`
}
