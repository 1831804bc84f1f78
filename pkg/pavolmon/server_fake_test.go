package pavolmon

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// fakeServer is a scripted AudioServer. Events are queued up front; query
// replies are popped from per-device queues, falling back to the last reply.
type fakeServer struct {
	lock sync.Mutex

	events chan ServerEvent

	serverInfo    *ServerInfo
	serverInfoErr error

	sinkReplies   []*DeviceInfo
	sourceReplies []*DeviceInfo
	lastSink      *DeviceInfo
	lastSource    *DeviceInfo

	// errors returned by the next query of that kind
	sinkErrs   []error
	sourceErrs []error

	connectErr error

	subscribed SubscriptionMask
	calls      []string
	closed     bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		events: make(chan ServerEvent, 64),
		serverInfo: &ServerInfo{
			DefaultSinkName:   "alsa_output.speakers",
			DefaultSourceName: "alsa_input.mic",
		},
	}
}

func (f *fakeServer) push(events ...ServerEvent) {
	for _, event := range events {
		f.events <- event
	}
}

func (f *fakeServer) queueSink(infos ...*DeviceInfo) {
	f.sinkReplies = append(f.sinkReplies, infos...)
}

func (f *fakeServer) queueSource(infos ...*DeviceInfo) {
	f.sourceReplies = append(f.sourceReplies, infos...)
}

func (f *fakeServer) record(call string) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.calls = append(f.calls, call)
}

func (f *fakeServer) recorded() []string {
	f.lock.Lock()
	defer f.lock.Unlock()

	return append([]string(nil), f.calls...)
}

func (f *fakeServer) Connect(context.Context) error {
	f.record("connect")
	return f.connectErr
}

func (f *fakeServer) Events() <-chan ServerEvent {
	return f.events
}

func (f *fakeServer) Subscribe(_ context.Context, mask SubscriptionMask) error {
	f.record("subscribe")
	f.subscribed = mask
	return nil
}

func (f *fakeServer) ServerInfo(context.Context) (*ServerInfo, error) {
	f.record("server_info")
	return f.serverInfo, f.serverInfoErr
}

func (f *fakeServer) SinkByName(_ context.Context, name string) (*DeviceInfo, error) {
	f.record("sink_by_name " + name)
	return f.nextSink()
}

func (f *fakeServer) SinkByIndex(_ context.Context, index uint32) (*DeviceInfo, error) {
	f.record(fmt.Sprintf("sink_by_index %d", index))
	return f.nextSink()
}

func (f *fakeServer) SourceByName(_ context.Context, name string) (*DeviceInfo, error) {
	f.record("source_by_name " + name)
	return f.nextSource()
}

func (f *fakeServer) SourceByIndex(_ context.Context, index uint32) (*DeviceInfo, error) {
	f.record(fmt.Sprintf("source_by_index %d", index))
	return f.nextSource()
}

func (f *fakeServer) nextSink() (*DeviceInfo, error) {
	if len(f.sinkErrs) > 0 {
		err := f.sinkErrs[0]
		f.sinkErrs = f.sinkErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	if len(f.sinkReplies) > 0 {
		f.lastSink = f.sinkReplies[0]
		f.sinkReplies = f.sinkReplies[1:]
	}

	return f.lastSink, nil
}

func (f *fakeServer) nextSource() (*DeviceInfo, error) {
	if len(f.sourceErrs) > 0 {
		err := f.sourceErrs[0]
		f.sourceErrs = f.sourceErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	if len(f.sourceReplies) > 0 {
		f.lastSource = f.sourceReplies[0]
		f.sourceReplies = f.sourceReplies[1:]
	}

	return f.lastSource, nil
}

func (f *fakeServer) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.closed {
		return errors.New("closed twice")
	}
	f.closed = true

	return nil
}

func percentVolume(percent int) uint32 {
	return uint32(percent) * VolumeNorm / 100
}

func sinkInfo(index uint32, percent int, muted bool) *DeviceInfo {
	return &DeviceInfo{Index: index, Name: "alsa_output.speakers", Volume: percentVolume(percent), Muted: muted}
}

func sourceInfo(index uint32, percent int, muted bool) *DeviceInfo {
	return &DeviceInfo{Index: index, Name: "alsa_input.mic", Volume: percentVolume(percent), Muted: muted}
}

var (
	readyEvents = []ServerEvent{
		{State: StateConnecting},
		{State: StateAuthorizing},
		{State: StateSettingName},
		{State: StateReady},
	}
	terminatedEvent = ServerEvent{State: StateTerminated}
)

func sinkChanged(index uint32) ServerEvent {
	return ServerEvent{Facility: FacilitySink, Kind: ChangeChange, Index: index}
}

func sourceChanged(index uint32) ServerEvent {
	return ServerEvent{Facility: FacilitySource, Kind: ChangeChange, Index: index}
}

func serverChanged() ServerEvent {
	return ServerEvent{Facility: FacilityServer, Kind: ChangeChange}
}
