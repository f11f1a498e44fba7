package model

import (
	"encoding/json"
	"time"
)

// Payload is one of ServerPayload, PlatformPayload, TenantPayload or
// CompositePayload.
type Payload interface {
	sections() wireSections
}

type ServerPayload struct{ Server ServerInfo }

type PlatformPayload struct{ Platform PlatformInfo }

type TenantPayload struct{ Tenant TenantInfo }

type CompositePayload struct {
	Server   ServerInfo
	Platform PlatformInfo
	Tenant   TenantInfo
}

type wireSections struct {
	Server    *ServerInfo   `json:"server,omitempty"`
	WordPress *PlatformInfo `json:"wordpress,omitempty"`
	Multisite *TenantInfo   `json:"multisite,omitempty"`
}

func (p ServerPayload) sections() wireSections { return wireSections{Server: &p.Server} }

func (p PlatformPayload) sections() wireSections { return wireSections{WordPress: &p.Platform} }

func (p TenantPayload) sections() wireSections { return wireSections{Multisite: &p.Tenant} }

func (p CompositePayload) sections() wireSections {
	return wireSections{Server: &p.Server, WordPress: &p.Platform, Multisite: &p.Tenant}
}

type Envelope struct {
	AgentVersion string
	Timestamp    time.Time
	Payload      Payload
}

type wireEnvelope struct {
	PluginVersion string `json:"plugin_version"`
	Timestamp     string `json:"timestamp"`
	wireSections
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	out := wireEnvelope{
		PluginVersion: e.AgentVersion,
		Timestamp:     e.Timestamp.Format(time.RFC3339),
	}
	if e.Payload != nil {
		out.wireSections = e.Payload.sections()
	}
	return json.Marshal(out)
}
