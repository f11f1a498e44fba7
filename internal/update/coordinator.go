// Package update drives a single apply-update run from check to install.
package update

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"webmaster-monitor/internal/host"
	"webmaster-monitor/internal/hub"
	"webmaster-monitor/internal/messages"
	"webmaster-monitor/internal/metrics"
	"webmaster-monitor/internal/model"
)

type State string

const (
	Idle            State = "idle"
	Checking        State = "checking"
	NoUpdateFound   State = "no_update_found"
	UpdateAvailable State = "update_available"
	Installing      State = "installing"
	Installed       State = "installed"
	Failed          State = "failed"
)

// Host refreshes update metadata and reports installed versions.
type Host interface {
	RefreshUpdates(ctx context.Context, kind host.Kind) (*host.UpdateSet, error)
	InstalledVersion(ctx context.Context, kind host.Kind, identifier string) (string, error)
}

// Installer applies a resolved offer. (false, nil) is a soft failure.
type Installer interface {
	Install(ctx context.Context, offer host.Offer) (bool, error)
}

type Publisher interface {
	Publish(topic string, data any) error
}

// Transition is published for every state change of a run.
type Transition struct {
	Run        string    `json:"run"`
	Kind       host.Kind `json:"kind"`
	Identifier string    `json:"identifier"`
	State      State     `json:"state"`
	Version    string    `json:"version,omitempty"`
	Message    string    `json:"message,omitempty"`
}

type Coordinator struct {
	Host      Host
	Installer Installer
	Events    Publisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Locale    string
}

func NewCoordinator(h Host, inst Installer, events Publisher, m *metrics.Metrics, locale string, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		Host:      h,
		Installer: inst,
		Events:    events,
		Metrics:   m,
		Logger:    logger.Named("update"),
		Locale:    locale,
	}
}

type run struct {
	c          *Coordinator
	id         string
	kind       host.Kind
	identifier string
	state      State
	log        *zap.Logger
}

func (r *run) to(state State, version, message string) {
	r.state = state
	r.log.Debug("transition", zap.String("state", string(state)))
	if r.c.Events == nil {
		return
	}
	err := r.c.Events.Publish(hub.TopicUpdates, Transition{
		Run:        r.id,
		Kind:       r.kind,
		Identifier: r.identifier,
		State:      state,
		Version:    version,
		Message:    message,
	})
	if err != nil {
		r.log.Warn("publish transition failed", zap.Error(err))
	}
}

// Apply checks for and installs the pending update for identifier. It always
// returns a populated UpdateResult; the *Error is nil only on success.
func (c *Coordinator) Apply(ctx context.Context, kind host.Kind, identifier string) (model.UpdateResult, *Error) {
	r := &run{
		c:          c,
		id:         uuid.NewString(),
		kind:       kind,
		identifier: identifier,
		state:      Idle,
	}
	r.log = c.Logger.With(zap.String("run", r.id), zap.String("kind", string(kind)), zap.String("identifier", identifier))

	result, uerr := c.apply(ctx, r)
	outcome := "installed"
	if uerr != nil {
		outcome = uerr.Kind.String()
		result = model.UpdateResult{Success: false, Error: uerr.Message}
	}
	c.Metrics.Install(string(kind), outcome)
	r.to(Idle, "", "")
	return result, uerr
}

func (c *Coordinator) apply(ctx context.Context, r *run) (model.UpdateResult, *Error) {
	r.to(Checking, "", "")
	set, err := c.Host.RefreshUpdates(ctx, r.kind)
	if err != nil {
		r.log.Error("refresh updates failed", zap.Error(err))
		r.to(Failed, "", err.Error())
		return model.UpdateResult{}, &Error{Kind: HostFault, Message: err.Error(), Err: err}
	}

	offer, ok := Resolve(set, r.kind, r.identifier)
	if !ok {
		msg := messages.Get(c.Locale, noUpdateKey(r.kind))
		r.to(NoUpdateFound, "", msg)
		return model.UpdateResult{}, &Error{Kind: NoUpdate, Message: msg}
	}
	r.to(UpdateAvailable, offer.NewVersion, "")

	r.to(Installing, offer.NewVersion, "")
	ok, err = c.install(ctx, offer)
	if err != nil || !ok {
		uerr := c.failure(r.kind, err)
		r.log.Warn("install failed", zap.String("reason", uerr.Kind.String()), zap.Error(err))
		r.to(Failed, "", uerr.Message)
		return model.UpdateResult{}, uerr
	}

	result := model.UpdateResult{Success: true}
	version, err := c.Host.InstalledVersion(ctx, r.kind, offer.Identifier)
	if err != nil {
		r.log.Warn("installed version unreadable", zap.Error(err))
	}
	if err == nil && version != "" {
		result.NewVersion = &version
	}
	r.to(Installed, version, "")
	r.log.Info("update installed", zap.String("version", version))
	return result, nil
}

func (c *Coordinator) install(ctx context.Context, offer host.Offer) (ok bool, err error) {
	defer func() {
		if v := recover(); v != nil {
			ok, err = false, &faultError{value: v}
		}
	}()
	return c.Installer.Install(ctx, offer)
}

func (c *Coordinator) failure(kind host.Kind, err error) *Error {
	var fault *faultError
	if errors.As(err, &fault) {
		return &Error{Kind: HostFault, Message: fault.Error(), Err: err}
	}
	if err != nil {
		return &Error{Kind: InstallFailed, Message: err.Error(), Err: err}
	}
	return &Error{Kind: InstallFailed, Message: messages.Get(c.Locale, failedKey(kind))}
}

// Resolve finds the pending offer for identifier in set.
func Resolve(set *host.UpdateSet, kind host.Kind, identifier string) (host.Offer, bool) {
	if set == nil {
		return host.Offer{}, false
	}
	switch kind {
	case host.KindCore:
		if len(set.Core) == 0 || set.Core[0].Response == host.CoreResponseLatest {
			return host.Offer{}, false
		}
		offer := set.Core[0]
		offer.Kind = host.KindCore
		return offer, true
	case host.KindTheme:
		offer, ok := set.Response[identifier]
		if !ok {
			return host.Offer{}, false
		}
		offer.Kind, offer.Identifier = host.KindTheme, identifier
		return offer, true
	case host.KindPlugin:
		files := make([]string, 0, len(set.Response))
		for f := range set.Response {
			files = append(files, f)
		}
		sort.Strings(files)
		for _, f := range files {
			if f == identifier || host.SlugOf(f) == identifier {
				offer := set.Response[f]
				offer.Kind, offer.Identifier = host.KindPlugin, f
				return offer, true
			}
		}
	}
	return host.Offer{}, false
}

func noUpdateKey(kind host.Kind) string {
	switch kind {
	case host.KindTheme:
		return messages.NoUpdateTheme
	case host.KindCore:
		return messages.NoUpdateCore
	default:
		return messages.NoUpdatePlugin
	}
}

func failedKey(kind host.Kind) string {
	switch kind {
	case host.KindTheme:
		return messages.FailedTheme
	case host.KindCore:
		return messages.FailedCore
	default:
		return messages.FailedPlugin
	}
}

// Title returns kind with its first letter upper-cased, for messages.
func Title(kind host.Kind) string {
	s := string(kind)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
