// Package host holds the value types shared between the platform catalog,
// the collectors and the update machinery.
package host

import (
	"path"
	"strings"
)

type Kind string

const (
	KindPlugin Kind = "plugin"
	KindTheme  Kind = "theme"
	KindCore   Kind = "core"
)

// ParseKind accepts the wire names plus the generic aliases "package" and
// "extension".
func ParseKind(raw string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "plugin", "package":
		return KindPlugin, true
	case "theme", "extension":
		return KindTheme, true
	case "core":
		return KindCore, true
	default:
		return "", false
	}
}

type Core struct {
	Version            string
	SiteURL            string
	HomeURL            string
	AdminEmail         string
	Language           string
	Timezone           string
	PermalinkStructure string
	BlogPublic         string
	Multisite          bool
	SubdomainInstall   bool
}

// Package is an installed plugin. File is the basename relative to the
// plugins directory, e.g. "akismet/akismet.php".
type Package struct {
	File          string
	Name          string
	Version       string
	Author        string
	Active        bool
	NetworkActive bool
}

func (p Package) Slug() string { return SlugOf(p.File) }

// SlugOf returns the directory part of a plugin basename, or the basename
// itself for single-file plugins.
func SlugOf(file string) string {
	dir := path.Dir(file)
	if dir == "." || dir == "/" {
		return file
	}
	return dir
}

type Theme struct {
	Stylesheet string
	Template   string
	Name       string
	Version    string
	Author     string
	Active     bool
}

func (t Theme) IsChild() bool { return t.Template != "" && t.Template != t.Stylesheet }

type User struct {
	ID         int64
	Login      string
	Email      string
	Registered string
	LastLogin  string
	Roles      []string
}

func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Network struct {
	ID               int64
	Name             string
	Domain           string
	Path             string
	SiteCount        int
	MainSiteID       int64
	SubdomainInstall bool
}

type Site struct {
	BlogID        int64
	Domain        string
	Path          string
	Name          string
	SiteURL       string
	HomeURL       string
	Registered    string
	LastUpdated   string
	Public        bool
	Archived      bool
	Spam          bool
	Deleted       bool
	PostCount     int
	UsersCount    int
	ActivePlugins int
	ActiveTheme   string
}

type DatabaseStats struct {
	Engine    string
	Version   string
	Charset   string
	Collation string
	Prefix    string
	Tables    int
	SizeBytes int64
}

// Offer is a pending update for one artifact as published by the host's
// update pipeline.
type Offer struct {
	Kind        Kind              `json:"kind"`
	Identifier  string            `json:"identifier"`
	Slug        string            `json:"slug,omitempty"`
	NewVersion  string            `json:"new_version"`
	Package     string            `json:"package,omitempty"`
	URL         string            `json:"url,omitempty"`
	Tested      string            `json:"tested,omitempty"`
	Requires    string            `json:"requires,omitempty"`
	RequiresPHP string            `json:"requires_php,omitempty"`
	Icons       map[string]string `json:"icons,omitempty"`
	Banners     map[string]string `json:"banners,omitempty"`
	// Response is only meaningful for core offers: "latest" or "upgrade".
	Response string `json:"response,omitempty"`
}

const CoreResponseLatest = "latest"

// UpdateSet is the value threaded through update filters during a check
// cycle. Checked maps identifiers to installed versions.
type UpdateSet struct {
	Kind     Kind
	Checked  map[string]string
	Response map[string]Offer
	NoUpdate map[string]Offer
	// Core lists core candidates, best first.
	Core []Offer
}

func NewUpdateSet(kind Kind) *UpdateSet {
	return &UpdateSet{
		Kind:     kind,
		Checked:  make(map[string]string),
		Response: make(map[string]Offer),
		NoUpdate: make(map[string]Offer),
	}
}

// Details backs the package information popup.
type Details struct {
	Name          string            `json:"name"`
	Slug          string            `json:"slug"`
	Version       string            `json:"version"`
	Author        string            `json:"author,omitempty"`
	AuthorProfile string            `json:"author_profile,omitempty"`
	Homepage      string            `json:"homepage,omitempty"`
	Requires      string            `json:"requires,omitempty"`
	Tested        string            `json:"tested,omitempty"`
	RequiresPHP   string            `json:"requires_php,omitempty"`
	DownloadLink  string            `json:"download_link,omitempty"`
	LastUpdated   string            `json:"last_updated,omitempty"`
	Sections      map[string]string `json:"sections,omitempty"`
	Banners       map[string]string `json:"banners,omitempty"`
	Icons         map[string]string `json:"icons,omitempty"`
}

// HookExtra describes a finished install to post-install hooks.
type HookExtra struct {
	Kind        Kind
	Identifier  string
	Destination string
	WasActive   bool
}
