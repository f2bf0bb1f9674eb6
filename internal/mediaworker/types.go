// Package mediaworker models the out-of-scope native media engine: the
// C++-level ICE/DTLS/SRTP/RTP process the coordination plane treats as an
// opaque collaborator. It exposes exactly the RPC surface named by the
// spec (spawn-worker, create-router, create-webrtc-server,
// create-transport, connect-transport, produce, consume, resume-consumer,
// and the on-dead lifecycle hook) and ships an in-process simulated
// implementation — there is no real media path here, only the
// coordination-relevant handle lifecycle.
package mediaworker

import (
	"encoding/json"

	"github.com/hocman2/sfu-coordinator/pkg/id"
)

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// RtpCodecCapability mirrors the codec advertisement a router is created
// with. Field names follow the WebRTC/mediasoup convention so they carry
// meaning even though this package never inspects them.
type RtpCodecCapability struct {
	Kind         MediaKind
	MimeType     string
	ClockRate    uint32
	Channels     uint8
	Parameters   map[string]any
	RtcpFeedback []string
}

// DefaultCodecs is the codec set every router is created with: Opus for
// audio, VP8 for video, matching the reference implementation's worker
// configuration.
func DefaultCodecs() []RtpCodecCapability {
	return []RtpCodecCapability{
		{
			Kind:       KindAudio,
			MimeType:   "audio/opus",
			ClockRate:  48000,
			Channels:   2,
			Parameters: map[string]any{"useinbandfec": 1},
			RtcpFeedback: []string{
				"transport-cc",
			},
		},
		{
			Kind:      KindVideo,
			MimeType:  "video/VP8",
			ClockRate: 90000,
			RtcpFeedback: []string{
				"nack", "nack pli", "ccm fir", "goog-remb", "transport-cc",
			},
		},
	}
}

// The following are opaque to the coordination plane: it forwards them
// between the client and the native worker without inspecting their
// structure.
type (
	RtpParameters   = json.RawMessage
	RtpCapabilities = json.RawMessage
	DtlsParameters  = json.RawMessage
	IceParameters   = json.RawMessage
	IceCandidates   = json.RawMessage
)

// ListenInfo describes where a WebRTC server's UDP listener binds, and
// what address (if any) it announces in ICE candidates.
type ListenInfo struct {
	ListenIP    string
	AnnouncedIP string // empty: no address announced (loopback-only mode)
}

// TransportDescription is the negotiation bundle handed back to a client
// for one transport.
type TransportDescription struct {
	ID            id.TransportId
	Ice           IceParameters
	IceCandidates IceCandidates
	Dtls          DtlsParameters
}
