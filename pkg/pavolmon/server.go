package pavolmon

import (
	"context"
	"fmt"
)

// ConnState is the lifecycle state of the audio server connection
type ConnState int

const (
	StateUnconnected ConnState = iota
	StateConnecting
	StateAuthorizing
	StateSettingName
	StateReady
	StateFailed
	StateTerminated
)

func (s ConnState) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthorizing:
		return "authorizing"
	case StateSettingName:
		return "setting-name"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Facility is the kind of server object a change notification is about
type Facility int

const (
	FacilityOther Facility = iota
	FacilitySink
	FacilitySource
	FacilityServer
)

func (f Facility) String() string {
	switch f {
	case FacilitySink:
		return "sink"
	case FacilitySource:
		return "source"
	case FacilityServer:
		return "server"
	default:
		return "other"
	}
}

// ChangeKind says what happened to the object
type ChangeKind int

const (
	ChangeNew ChangeKind = iota
	ChangeChange
	ChangeRemove
)

// SubscriptionMask selects the facilities the server sends notifications for.
// Bit values match the PulseAudio protocol.
type SubscriptionMask uint32

const (
	MaskSink   SubscriptionMask = 0x0001
	MaskSource SubscriptionMask = 0x0002
	MaskServer SubscriptionMask = 0x0080
)

// ServerEvent is either a connection state change (State set) or a change
// notification for a subscribed facility (State is StateUnconnected)
type ServerEvent struct {
	State ConnState
	Err   error

	Facility Facility
	Kind     ChangeKind
	Index    uint32
}

func (e ServerEvent) isStateChange() bool {
	return e.State != StateUnconnected
}

// ServerInfo carries the default device names
type ServerInfo struct {
	PackageName       string
	PackageVersion    string
	DefaultSinkName   string
	DefaultSourceName string
}

// DeviceInfo is the part of a sink or source description the monitor cares about
type DeviceInfo struct {
	Index  uint32
	Name   string
	Volume uint32
	Muted  bool
}

// AudioServer is the connection to the sound server. Events are delivered on
// the Events channel; queries are synchronous. Queries that find nothing
// return a nil info and a nil error.
type AudioServer interface {
	// Connect starts connecting in the background; progress is reported through Events
	Connect(ctx context.Context) error
	Events() <-chan ServerEvent

	Subscribe(ctx context.Context, mask SubscriptionMask) error
	ServerInfo(ctx context.Context) (*ServerInfo, error)

	SinkByName(ctx context.Context, name string) (*DeviceInfo, error)
	SinkByIndex(ctx context.Context, index uint32) (*DeviceInfo, error)
	SourceByName(ctx context.Context, name string) (*DeviceInfo, error)
	SourceByIndex(ctx context.Context, index uint32) (*DeviceInfo, error)

	Close() error
}
