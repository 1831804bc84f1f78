package pavolmon

import (
	"fmt"

	"go.uber.org/zap"
)

// Role distinguishes the default output device from the default input device
type Role int

const (
	RoleSink Role = iota
	RoleSource
)

func (r Role) String() string {
	switch r {
	case RoleSink:
		return "sink"
	case RoleSource:
		return "source"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// deviceIdentity is the server-assigned index of the current default device
type deviceIdentity struct {
	index uint32
	valid bool
}

type trackedDevice struct {
	identity deviceIdentity
	volume   VolumeState

	// false until the first info reply, so a device sitting at 0% still gets printed once
	reported bool
}

// deviceTracker holds the volume state of the default sink and source along
// with the change flag. It is only touched from the monitor's loop.
type deviceTracker struct {
	logger *zap.SugaredLogger

	sink   trackedDevice
	source trackedDevice

	changed bool
}

func newDeviceTracker(logger *zap.SugaredLogger) *deviceTracker {
	return &deviceTracker{
		logger: logger.Named("devices"),
	}
}

func (t *deviceTracker) device(role Role) *trackedDevice {
	if role == RoleSource {
		return &t.source
	}
	return &t.sink
}

func (t *deviceTracker) state(role Role) VolumeState {
	return t.device(role).volume
}

// identity returns the index of the tracked default device, if known
func (t *deviceTracker) identity(role Role) (uint32, bool) {
	id := t.device(role).identity
	return id.index, id.valid
}

func (t *deviceTracker) invalidate(role Role) {
	d := t.device(role)
	if d.identity.valid {
		t.logger.Debugw("Forgetting default device", "role", role, "index", d.identity.index)
	}

	d.identity = deviceIdentity{}
}

// apply stores the device info for role and reports whether the volume state changed
func (t *deviceTracker) apply(role Role, info *DeviceInfo) bool {
	if info == nil {
		return false
	}

	d := t.device(role)
	d.identity = deviceIdentity{index: info.Index, valid: true}

	next := VolumeState{Volume: info.Volume, Muted: info.Muted}
	if d.reported && d.volume == next {
		return false
	}

	t.logger.Debugw("Device volume changed",
		"role", role,
		"device", info.Name,
		"index", info.Index,
		"from", d.volume,
		"to", next)

	d.volume = next
	d.reported = true
	t.changed = true

	return true
}

// takeChanged returns the change flag and clears it
func (t *deviceTracker) takeChanged() bool {
	changed := t.changed
	t.changed = false

	return changed
}

func (t *deviceTracker) String() string {
	return fmt.Sprintf("<sink %d%% muted=%t, source %d%% muted=%t>",
		t.sink.volume.Percent(), t.sink.volume.Muted,
		t.source.volume.Percent(), t.source.volume.Muted)
}
