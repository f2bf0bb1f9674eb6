// Package wire defines the client<->server WebSocket signaling messages.
// Every message is a JSON object discriminated by an "action" field, with
// lowerCamelCase field names, per the signaling wire format.
//
// RTP/DTLS/ICE payloads are carried as opaque json.RawMessage: the
// coordination plane never interprets their structure, only forwards them
// between the client and the native media worker.
package wire

import "encoding/json"

type ClientAction string

const (
	ActionInit                     ClientAction = "init"
	ActionConnectProducerTransport ClientAction = "connectProducerTransport"
	ActionConnectConsumerTransport ClientAction = "connectConsumerTransport"
	ActionProduce                  ClientAction = "produce"
	ActionConsume                  ClientAction = "consume"
	ActionConsumerResume           ClientAction = "consumerResume"
)

type ServerAction string

const (
	ActionSInit                       ServerAction = "init"
	ActionSConnectedProducerTransport ServerAction = "connectedProducerTransport"
	ActionSConnectedConsumerTransport ServerAction = "connectedConsumerTransport"
	ActionSProducerAdded              ServerAction = "producerAdded"
	ActionSProducerRemoved            ServerAction = "producerRemoved"
	ActionSProduced                   ServerAction = "produced"
	ActionSConsumed                   ServerAction = "consumed"
	ActionSWarning                    ServerAction = "warning"
)

// ClientMessage is the union of every action a client may send. Only the
// fields relevant to Action are populated; the rest are left zero.
type ClientMessage struct {
	Action ClientAction `json:"action"`

	RtpCapabilities json.RawMessage `json:"rtpCapabilities,omitempty"`
	DtlsParameters  json.RawMessage `json:"dtlsParameters,omitempty"`
	Kind            string          `json:"kind,omitempty"`
	RtpParameters   json.RawMessage `json:"rtpParameters,omitempty"`
	ProducerId      string          `json:"producerId,omitempty"`
	Id              string          `json:"id,omitempty"`
}

// TransportDescription carries one transport's ICE/DTLS negotiation
// parameters, each left opaque to the coordination plane.
type TransportDescription struct {
	Id             string          `json:"id"`
	IceParameters  json.RawMessage `json:"iceParameters"`
	IceCandidates  json.RawMessage `json:"iceCandidates"`
	DtlsParameters json.RawMessage `json:"dtlsParameters"`
}

// ServerMessage is the union of every action the server may send. As with
// ClientMessage, only the fields relevant to Action are populated.
type ServerMessage struct {
	Action ServerAction `json:"action"`

	RtpCapabilities   json.RawMessage       `json:"rtpCapabilities,omitempty"`
	ProducerTransport *TransportDescription `json:"producerTransport,omitempty"`
	ConsumerTransport *TransportDescription `json:"consumerTransport,omitempty"`
	ParticipantId     string                `json:"participantId,omitempty"`
	ProducerId        string                `json:"producerId,omitempty"`
	Id                string                `json:"id,omitempty"`
	Kind              string                `json:"kind,omitempty"`
	RtpParameters     json.RawMessage       `json:"rtpParameters,omitempty"`
	Message           string                `json:"message,omitempty"`
}

func Init(caps json.RawMessage, producerT, consumerT *TransportDescription) ServerMessage {
	return ServerMessage{
		Action:            ActionSInit,
		RtpCapabilities:   caps,
		ProducerTransport: producerT,
		ConsumerTransport: consumerT,
	}
}

func ConnectedProducerTransport() ServerMessage {
	return ServerMessage{Action: ActionSConnectedProducerTransport}
}

func ConnectedConsumerTransport() ServerMessage {
	return ServerMessage{Action: ActionSConnectedConsumerTransport}
}

func ProducerAdded(participantId, producerId string) ServerMessage {
	return ServerMessage{Action: ActionSProducerAdded, ParticipantId: participantId, ProducerId: producerId}
}

func ProducerRemoved(participantId, producerId string) ServerMessage {
	return ServerMessage{Action: ActionSProducerRemoved, ParticipantId: participantId, ProducerId: producerId}
}

func Produced(id string) ServerMessage {
	return ServerMessage{Action: ActionSProduced, Id: id}
}

func Consumed(id, kind, producerId string, params json.RawMessage) ServerMessage {
	return ServerMessage{Action: ActionSConsumed, Id: id, Kind: kind, ProducerId: producerId, RtpParameters: params}
}

func Warning(message string) ServerMessage {
	return ServerMessage{Action: ActionSWarning, Message: message}
}

// Marshal and Unmarshal are thin wrappers kept so callers never reach past
// this package for the wire encoding — a future change to the signaling
// encoding only touches this file.
func Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func UnmarshalClientMessage(data []byte) (ClientMessage, error) {
	var m ClientMessage
	err := json.Unmarshal(data, &m)
	return m, err
}
