// Package status composes collector snapshots into response envelopes.
package status

import (
	"context"
	"fmt"
	"time"

	"webmaster-monitor/internal/model"
)

type Scope int

const (
	Full Scope = iota
	ServerOnly
	PlatformOnly
)

func (s Scope) String() string {
	switch s {
	case Full:
		return "full"
	case ServerOnly:
		return "server"
	case PlatformOnly:
		return "platform"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

type ServerSource interface {
	Collect(ctx context.Context) (model.ServerInfo, error)
}

type PlatformSource interface {
	Collect(ctx context.Context) (model.PlatformInfo, error)
}

type TenantSource interface {
	Collect(ctx context.Context) (model.TenantInfo, error)
}

type Aggregator struct {
	Server       ServerSource
	Platform     PlatformSource
	Tenant       TenantSource
	AgentVersion string
	Now          func() time.Time
}

// Assemble builds a fresh envelope for scope. Collector errors are returned
// as-is; nothing is cached between calls.
func (a *Aggregator) Assemble(ctx context.Context, scope Scope) (model.Envelope, error) {
	env := model.Envelope{AgentVersion: a.AgentVersion, Timestamp: a.now()}

	switch scope {
	case ServerOnly:
		srv, err := a.Server.Collect(ctx)
		if err != nil {
			return model.Envelope{}, fmt.Errorf("server info: %w", err)
		}
		env.Payload = model.ServerPayload{Server: srv}
	case PlatformOnly:
		pl, err := a.Platform.Collect(ctx)
		if err != nil {
			return model.Envelope{}, fmt.Errorf("platform info: %w", err)
		}
		env.Payload = model.PlatformPayload{Platform: pl}
	case Full:
		srv, err := a.Server.Collect(ctx)
		if err != nil {
			return model.Envelope{}, fmt.Errorf("server info: %w", err)
		}
		pl, err := a.Platform.Collect(ctx)
		if err != nil {
			return model.Envelope{}, fmt.Errorf("platform info: %w", err)
		}
		tn, err := a.Tenant.Collect(ctx)
		if err != nil {
			return model.Envelope{}, fmt.Errorf("tenant info: %w", err)
		}
		env.Payload = model.CompositePayload{Server: srv, Platform: pl, Tenant: tn}
	default:
		return model.Envelope{}, fmt.Errorf("unknown scope %s", scope)
	}
	return env, nil
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}
