// Package id mints the opaque 128-bit identifiers used throughout the
// coordination plane: rooms, participants, monitors, producers, consumers,
// transports, and workers. Each kind is a distinct Go type so a RoomId and
// a ParticipantId cannot be swapped without an explicit conversion.
package id

import "github.com/google/uuid"

type RoomId uuid.UUID
type ParticipantId uuid.UUID
type MonitorId uuid.UUID
type ProducerId uuid.UUID
type ConsumerId uuid.UUID
type TransportId uuid.UUID
type WorkerId uuid.UUID

func (v RoomId) String() string        { return uuid.UUID(v).String() }
func (v ParticipantId) String() string { return uuid.UUID(v).String() }
func (v MonitorId) String() string     { return uuid.UUID(v).String() }
func (v ProducerId) String() string    { return uuid.UUID(v).String() }
func (v ConsumerId) String() string    { return uuid.UUID(v).String() }
func (v TransportId) String() string   { return uuid.UUID(v).String() }
func (v WorkerId) String() string      { return uuid.UUID(v).String() }

// Factory is the IdentifierFactory. It carries no state today — uuid.New()
// is already safe for concurrent use — and every id it mints is random.
type Factory struct{}

func NewFactory() Factory { return Factory{} }

func (Factory) NewRoomId() RoomId               { return RoomId(uuid.New()) }
func (Factory) NewParticipantId() ParticipantId { return ParticipantId(uuid.New()) }
func (Factory) NewMonitorId() MonitorId         { return MonitorId(uuid.New()) }
func (Factory) NewProducerId() ProducerId       { return ProducerId(uuid.New()) }
func (Factory) NewConsumerId() ConsumerId       { return ConsumerId(uuid.New()) }
func (Factory) NewTransportId() TransportId     { return TransportId(uuid.New()) }
func (Factory) NewWorkerId() WorkerId           { return WorkerId(uuid.New()) }

func ParseRoomId(s string) (RoomId, error) {
	u, err := uuid.Parse(s)
	return RoomId(u), err
}

func ParseParticipantId(s string) (ParticipantId, error) {
	u, err := uuid.Parse(s)
	return ParticipantId(u), err
}

func ParseProducerId(s string) (ProducerId, error) {
	u, err := uuid.Parse(s)
	return ProducerId(u), err
}

func ParseConsumerId(s string) (ConsumerId, error) {
	u, err := uuid.Parse(s)
	return ConsumerId(u), err
}
