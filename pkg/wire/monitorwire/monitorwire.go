// Package monitorwire implements the server<->monitor wire format: a
// length-framed compact binary encoding of the lifecycle event enum.
//
// Framing is a uint32 big-endian byte count followed by a gob-encoded
// payload. gob is the standard-library choice here because this protocol
// is process-local and single-language (no other SFU repo in scope ships a
// binary serialization dependency for a trusted internal channel), so
// reaching for a third-party codec would add a dependency with nothing to
// ground it in.
package monitorwire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

type EventKind uint8

const (
	EventMonitorAccepted EventKind = iota
	EventServerStarted
	EventServerClosed
	EventRoomOpened
	EventRoomClosed
	EventParticipantEntered
	EventParticipantLeft
	EventError
)

// Event is the server->monitor payload. Only the fields relevant to Kind
// are populated.
type Event struct {
	Kind          EventKind
	RoomId        string
	ParticipantId string
	ErrorMessage  string
}

func MonitorAccepted() Event { return Event{Kind: EventMonitorAccepted} }
func ServerStarted() Event   { return Event{Kind: EventServerStarted} }
func ServerClosed() Event    { return Event{Kind: EventServerClosed} }
func RoomOpened(roomId string) Event {
	return Event{Kind: EventRoomOpened, RoomId: roomId}
}
func RoomClosed(roomId string) Event {
	return Event{Kind: EventRoomClosed, RoomId: roomId}
}
func ParticipantEntered(roomId, participantId string) Event {
	return Event{Kind: EventParticipantEntered, RoomId: roomId, ParticipantId: participantId}
}
func ParticipantLeft(roomId, participantId string) Event {
	return Event{Kind: EventParticipantLeft, RoomId: roomId, ParticipantId: participantId}
}
func ErrorEvent(message string) Event {
	return Event{Kind: EventError, ErrorMessage: message}
}

// ClientFrameKind distinguishes the two monitor->server message types.
type ClientFrameKind uint8

const (
	ClientFrameGreeting ClientFrameKind = iota
	ClientFrameSwitchCategory
)

type CategoryKind uint8

const (
	CategoryGlobal CategoryKind = iota
	CategoryRoom
)

// ClientFrame is the monitor->server payload: either a Greeting or a
// SwitchCategory request.
type ClientFrame struct {
	Kind     ClientFrameKind
	Greeting string
	Category CategoryKind
	RoomId   string
}

func Greeting(text string) ClientFrame {
	return ClientFrame{Kind: ClientFrameGreeting, Greeting: text}
}

func SwitchToGlobal() ClientFrame {
	return ClientFrame{Kind: ClientFrameSwitchCategory, Category: CategoryGlobal}
}

func SwitchToRoom(roomId string) ClientFrame {
	return ClientFrame{Kind: ClientFrameSwitchCategory, Category: CategoryRoom, RoomId: roomId}
}

const maxFrameLen = 1 << 20 // 1 MiB, generous for this protocol's tiny payloads

func writeFrame(w io.Writer, v any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("monitorwire: encode: %w", err)
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("monitorwire: write length prefix: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("monitorwire: write payload: %w", err)
	}
	return nil
}

func readFrame(r io.Reader, v any) error {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameLen {
		return fmt.Errorf("monitorwire: frame of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("monitorwire: read payload: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return fmt.Errorf("monitorwire: decode: %w", err)
	}
	return nil
}

func WriteEvent(w io.Writer, e Event) error { return writeFrame(w, e) }

func ReadEvent(r io.Reader) (Event, error) {
	var e Event
	err := readFrame(r, &e)
	return e, err
}

func WriteClientFrame(w io.Writer, f ClientFrame) error { return writeFrame(w, f) }

func ReadClientFrame(r io.Reader) (ClientFrame, error) {
	var f ClientFrame
	err := readFrame(r, &f)
	return f, err
}
