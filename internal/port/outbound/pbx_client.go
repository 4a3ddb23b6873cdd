// Package outbound defines the outbound port interfaces for talking to the
// PBX control API.
package outbound

import (
	"context"

	"github.com/pbxgate/pbxgate/internal/domain/pbx"
)

// Endpoint selects which PBX URL a request is sent to. Appliances may expose
// CDR and recording APIs on different paths than the control API.
type Endpoint int

const (
	// EndpointControl serves challenge, login, logout and call actions.
	EndpointControl Endpoint = iota
	// EndpointCDR serves call detail record queries.
	EndpointCDR
	// EndpointRecording serves recording downloads.
	EndpointRecording
)

// String returns the endpoint name used in logs and metrics.
func (e Endpoint) String() string {
	switch e {
	case EndpointControl:
		return "control"
	case EndpointCDR:
		return "cdr"
	case EndpointRecording:
		return "recording"
	default:
		return "unknown"
	}
}

// PBXClient is the outbound port for the PBX HTTP API. Every call is bounded
// by a timeout chosen by the adapter for the endpoint.
//
// Transport failures, timeouts and non-2xx answers are returned as
// *pbx.RemoteError, which matches pbx.ErrRemoteUnavailable.
type PBXClient interface {
	// Call posts req and decodes the JSON reply.
	Call(ctx context.Context, endpoint Endpoint, req *pbx.Request) (*pbx.Reply, error)

	// Fetch posts req and reads the binary answer in full.
	Fetch(ctx context.Context, endpoint Endpoint, req *pbx.Request) (*pbx.Payload, error)

	// Open posts req and returns the binary answer unread. The caller must
	// close the stream body.
	Open(ctx context.Context, endpoint Endpoint, req *pbx.Request) (*pbx.Stream, error)
}
