package model

import (
	"fmt"
	"strings"
	"time"
)

type EventKind int

const (
	KindUnknown EventKind = iota
	ZoneEntry
	ZoneExit
)

func (k EventKind) String() string {
	switch k {
	case ZoneEntry:
		return "entry"
	case ZoneExit:
		return "exit"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseEventKind accepts entry/exit and the geofencing SDK constants ZONE_ENTRY/ZONE_EXIT.
func ParseEventKind(s string) (EventKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "entry", "zone_entry":
		return ZoneEntry, nil
	case "exit", "zone_exit":
		return ZoneExit, nil
	default:
		return KindUnknown, fmt.Errorf("unknown event kind %q", s)
	}
}

// LocationEvent is emitted by a geofencing source and never mutated afterwards.
type LocationEvent struct {
	ID        string
	Kind      EventKind
	ZoneName  string
	Timestamp time.Time
}

type OutboundMessage struct {
	EventID string
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

type DeliveryResult struct {
	MessageID uint16
	EventID   string
	Topic     string
	Success   bool
	ErrorKind string
	Err       error
}

type SyncOutcome struct {
	HasNewData bool
}
