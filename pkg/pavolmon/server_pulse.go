package pavolmon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"
)

const eventBufferSize = 64

// PulseOptions configure the native protocol connection
type PulseOptions struct {
	// Server address, empty for the default ($PULSE_SERVER or the runtime socket)
	Server     string
	ClientName string

	// ConnectTimeout bounds how long to wait for the server to show up; zero waits forever
	ConnectTimeout       time.Duration
	ConnectRetryInterval time.Duration
	RequestTimeout       time.Duration
	ProbeInterval        time.Duration
}

type pulseServer struct {
	logger *zap.SugaredLogger
	opts   PulseOptions

	lock   sync.Mutex
	client *proto.Client
	conn   net.Conn

	events     chan ServerEvent
	resync     atomic.Bool
	terminated atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPulseServer returns an AudioServer speaking the native PulseAudio protocol
func NewPulseServer(logger *zap.SugaredLogger, opts PulseOptions) (AudioServer, error) {
	if opts.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request timeout must be positive, got %s", opts.RequestTimeout)
	}
	if opts.ConnectRetryInterval <= 0 {
		return nil, fmt.Errorf("connect retry interval must be positive, got %s", opts.ConnectRetryInterval)
	}

	ps := &pulseServer{
		logger: logger.Named("pulse"),
		opts:   opts,
		events: make(chan ServerEvent, eventBufferSize),
	}

	ps.logger.Debugw("Created PA server instance", "server", opts.Server)

	return ps, nil
}

func (ps *pulseServer) Events() <-chan ServerEvent {
	return ps.events
}

func (ps *pulseServer) Connect(ctx context.Context) error {
	ps.lock.Lock()
	defer ps.lock.Unlock()

	if ps.cancel != nil {
		return errors.New("already connecting")
	}

	ctx, ps.cancel = context.WithCancel(ctx)

	ps.wg.Add(1)
	go ps.run(ctx)

	return nil
}

// run establishes the connection, then probes it until it goes away. A clean
// hang-up is reported by the protocol client itself, the probe catches a
// server that stopped answering.
func (ps *pulseServer) run(ctx context.Context) {
	defer ps.wg.Done()

	if err := ps.establish(ctx); err != nil {
		if ctx.Err() == nil {
			ps.emit(ctx, ServerEvent{State: StateFailed, Err: err})
		}
		return
	}

	if ps.opts.ProbeInterval <= 0 {
		return
	}

	ticker := time.NewTicker(ps.opts.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if ps.terminated.Load() {
			return
		}

		ps.flushResync()

		err := ps.request(ctx, &proto.GetServerInfo{}, &proto.GetServerInfoReply{})
		switch {
		case err == nil, ctx.Err() != nil:
		case errors.Is(err, ErrDisconnected):
			ps.terminate(ctx, err)
			return
		default:
			ps.logger.Warnw("Liveness probe failed", "error", err)
			ps.emit(ctx, ServerEvent{State: StateFailed, Err: err})
			return
		}
	}
}

func (ps *pulseServer) establish(ctx context.Context) error {
	ps.emit(ctx, ServerEvent{State: StateConnecting})

	var deadline <-chan time.Time
	if ps.opts.ConnectTimeout > 0 {
		timer := time.NewTimer(ps.opts.ConnectTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var (
		client *proto.Client
		conn   net.Conn
	)

	for {
		var err error

		// Connect also performs authentication
		client, conn, err = proto.Connect(ps.opts.Server)
		if err == nil {
			break
		}

		ps.logger.Debugw("Audio server not available yet", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			ps.logger.Warnw("Gave up connecting to audio server", "timeout", ps.opts.ConnectTimeout, "error", err)
			return fmt.Errorf("establish PulseAudio connection: %w", err)
		case <-time.After(ps.opts.ConnectRetryInterval):
		}
	}

	client.SetTimeout(ps.opts.RequestTimeout)
	client.Callback = func(msg interface{}) {
		ps.onServerMessage(ctx, msg)
	}

	ps.lock.Lock()
	if ctx.Err() != nil {
		ps.lock.Unlock()
		_ = conn.Close()
		return ctx.Err()
	}
	ps.client = client
	ps.conn = conn
	ps.lock.Unlock()

	ps.emit(ctx, ServerEvent{State: StateAuthorizing})
	ps.emit(ctx, ServerEvent{State: StateSettingName})

	request := proto.SetClientName{
		Props: proto.PropList{
			"application.name":       proto.PropListString(ps.opts.ClientName),
			"application.process.id": proto.PropListString(strconv.Itoa(os.Getpid())),
		},
	}
	reply := proto.SetClientNameReply{}

	if err := ps.request(ctx, &request, &reply); err != nil {
		ps.logger.Warnw("Failed to set client name", "error", err)
		return fmt.Errorf("set client name: %w", err)
	}

	ps.logger.Debugw("Connected to PulseAudio", "clientIndex", reply.ClientIndex)
	ps.emit(ctx, ServerEvent{State: StateReady})

	return nil
}

// onServerMessage runs on the protocol client's reader goroutine. Change
// events must not block it; the connection closing ends that goroutine anyway.
func (ps *pulseServer) onServerMessage(ctx context.Context, msg interface{}) {
	switch msg := msg.(type) {
	case *proto.SubscribeEvent:
		ps.flushResync()

		ps.offer(ServerEvent{
			Facility: facilityFromProto(msg),
			Kind:     kindFromProto(msg),
			Index:    msg.Index,
		})

	case *proto.ConnectionClosed:
		ps.terminate(ctx, io.EOF)
	}
}

// offer queues a change event, or marks a resync when the buffer is full
func (ps *pulseServer) offer(event ServerEvent) {
	select {
	case ps.events <- event:
	default:
		ps.resync.Store(true)
	}
}

// flushResync queues a server change after an overflow so the defaults get re-resolved
func (ps *pulseServer) flushResync() {
	if !ps.resync.Swap(false) {
		return
	}

	ps.logger.Debug("Event buffer overflowed earlier, queueing resync")
	ps.offer(ServerEvent{Facility: FacilityServer, Kind: ChangeChange})
}

// terminate reports the server going away, once
func (ps *pulseServer) terminate(ctx context.Context, reason error) {
	if ps.terminated.Swap(true) {
		return
	}

	ps.logger.Infow("Audio server went away", "error", reason)
	ps.emit(ctx, ServerEvent{State: StateTerminated})
}

func facilityFromProto(event *proto.SubscribeEvent) Facility {
	switch event.Event & proto.EventFacilityMask {
	case proto.EventSink:
		return FacilitySink
	case proto.EventSource:
		return FacilitySource
	case proto.EventServer:
		return FacilityServer
	default:
		return FacilityOther
	}
}

func kindFromProto(event *proto.SubscribeEvent) ChangeKind {
	switch event.Event.GetType() {
	case proto.EventNew:
		return ChangeNew
	case proto.EventRemove:
		return ChangeRemove
	default:
		return ChangeChange
	}
}

func (ps *pulseServer) emit(ctx context.Context, event ServerEvent) {
	select {
	case ps.events <- event:
	case <-ctx.Done():
	}
}

func (ps *pulseServer) Subscribe(ctx context.Context, mask SubscriptionMask) error {
	if err := ps.request(ctx, &proto.Subscribe{Mask: proto.SubscriptionMask(mask)}, nil); err != nil {
		return fmt.Errorf("subscribe to PulseAudio events: %w", err)
	}

	return nil
}

func (ps *pulseServer) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	reply := proto.GetServerInfoReply{}

	if err := ps.request(ctx, &proto.GetServerInfo{}, &reply); err != nil {
		return nil, fmt.Errorf("get server info: %w", err)
	}

	return &ServerInfo{
		PackageName:       reply.PackageName,
		PackageVersion:    reply.PackageVersion,
		DefaultSinkName:   reply.DefaultSinkName,
		DefaultSourceName: reply.DefaultSourceName,
	}, nil
}

func (ps *pulseServer) SinkByName(ctx context.Context, name string) (*DeviceInfo, error) {
	return ps.sink(ctx, proto.GetSinkInfo{SinkIndex: proto.Undefined, SinkName: name})
}

func (ps *pulseServer) SinkByIndex(ctx context.Context, index uint32) (*DeviceInfo, error) {
	return ps.sink(ctx, proto.GetSinkInfo{SinkIndex: index})
}

func (ps *pulseServer) sink(ctx context.Context, request proto.GetSinkInfo) (*DeviceInfo, error) {
	reply := proto.GetSinkInfoReply{}

	if err := ps.request(ctx, &request, &reply); err != nil {
		return nil, fmt.Errorf("get sink info: %w", err)
	}

	if len(reply.ChannelVolumes) == 0 {
		return nil, nil
	}

	return &DeviceInfo{
		Index:  reply.SinkIndex,
		Name:   reply.SinkName,
		Volume: uint32(reply.ChannelVolumes[0]),
		Muted:  reply.Mute,
	}, nil
}

func (ps *pulseServer) SourceByName(ctx context.Context, name string) (*DeviceInfo, error) {
	return ps.source(ctx, proto.GetSourceInfo{SourceIndex: proto.Undefined, SourceName: name})
}

func (ps *pulseServer) SourceByIndex(ctx context.Context, index uint32) (*DeviceInfo, error) {
	return ps.source(ctx, proto.GetSourceInfo{SourceIndex: index})
}

func (ps *pulseServer) source(ctx context.Context, request proto.GetSourceInfo) (*DeviceInfo, error) {
	reply := proto.GetSourceInfoReply{}

	if err := ps.request(ctx, &request, &reply); err != nil {
		return nil, fmt.Errorf("get source info: %w", err)
	}

	if len(reply.ChannelVolumes) == 0 {
		return nil, nil
	}

	return &DeviceInfo{
		Index:  reply.SourceIndex,
		Name:   reply.SourceName,
		Volume: uint32(reply.ChannelVolumes[0]),
		Muted:  reply.Mute,
	}, nil
}

// request performs a single protocol request. The client bounds it by the
// request timeout set in establish.
func (ps *pulseServer) request(ctx context.Context, request proto.RequestArgs, reply proto.Reply) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ps.lock.Lock()
	client := ps.client
	ps.lock.Unlock()

	if client == nil {
		return ErrNotConnected
	}

	return classifyRequestError(client.Request(request, reply))
}

// classifyRequestError marks errors caused by a closed connection with
// ErrDisconnected and unanswered requests with ErrRequestTimeout
func classifyRequestError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrRequestTimeout, err)
	}

	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) {
		return fmt.Errorf("%w: %w", ErrDisconnected, err)
	}

	return err
}

func (ps *pulseServer) Close() error {
	ps.lock.Lock()
	cancel := ps.cancel
	ps.lock.Unlock()

	// cancel first so a connection established concurrently is closed by establish itself
	if cancel != nil {
		cancel()
	}

	ps.lock.Lock()
	conn := ps.conn
	ps.client = nil
	ps.conn = nil
	ps.lock.Unlock()

	var err error
	if conn != nil {
		if err = conn.Close(); err != nil {
			ps.logger.Warnw("Failed to close PulseAudio connection", "error", err)
			err = fmt.Errorf("close PulseAudio connection: %w", err)
		}
	}

	ps.wg.Wait()

	ps.logger.Debug("Released PA server instance")

	return err
}
