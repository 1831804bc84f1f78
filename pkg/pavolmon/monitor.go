package pavolmon

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const subscriptionMask = MaskSink | MaskSource | MaskServer

// Monitor keeps the default sink and source volume current by reacting to
// server events, and has the presenter print after every handled event.
// All state is owned by the goroutine calling Run.
type Monitor struct {
	logger    *zap.SugaredLogger
	server    AudioServer
	presenter *Presenter
	devices   *deviceTracker
}

func NewMonitor(logger *zap.SugaredLogger, server AudioServer, presenter *Presenter) *Monitor {
	logger = logger.Named("monitor")

	m := &Monitor{
		logger:    logger,
		server:    server,
		presenter: presenter,
		devices:   newDeviceTracker(logger),
	}

	logger.Debug("Created monitor instance")

	return m
}

// Run connects and handles events until the connection terminates (nil), the
// context is cancelled (nil) or the connection fails (ErrConnectionFailed)
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Run loop starting")

	if err := m.server.Connect(ctx); err != nil {
		m.logger.Warnw("Failed to start connecting to audio server", "error", err)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	events := m.server.Events()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Context done, stopping run loop")
			return nil

		case event, ok := <-events:
			if !ok {
				m.logger.Debug("Event channel closed, stopping run loop")
				return nil
			}

			err := m.handle(ctx, event)

			// print whatever was collected, even on the way out
			if printErr := m.presenter.PrintIfChanged(m.devices); printErr != nil {
				return printErr
			}

			if errors.Is(err, errTerminated) {
				m.logger.Info("Connection terminated, stopping run loop")
				return nil
			}
			if err != nil {
				return err
			}
		}
	}
}

func (m *Monitor) handle(ctx context.Context, event ServerEvent) error {
	if event.isStateChange() {
		return m.handleStateChange(ctx, event)
	}

	return m.handleChange(ctx, event)
}

func (m *Monitor) handleStateChange(ctx context.Context, event ServerEvent) error {
	switch event.State {
	case StateConnecting, StateAuthorizing, StateSettingName:
		m.logger.Debugw("Connection state changed", "state", event.State)
		return nil

	case StateReady:
		m.logger.Infow("Connected to audio server", "state", event.State)

		if err := m.server.Subscribe(ctx, subscriptionMask); err != nil {
			m.logger.Warnw("Failed to subscribe to server events", "error", err)
			if qErr := m.queryError(err); qErr != nil {
				return qErr
			}
		}

		return m.resolveDefaults(ctx)

	case StateTerminated:
		return errTerminated

	default:
		m.logger.Errorw("Audio server connection failed", "state", event.State, "error", event.Err)

		if event.Err != nil {
			return fmt.Errorf("%w (%s): %w", ErrConnectionFailed, event.State, event.Err)
		}
		return fmt.Errorf("%w (%s)", ErrConnectionFailed, event.State)
	}
}

func (m *Monitor) handleChange(ctx context.Context, event ServerEvent) error {
	switch event.Facility {
	case FacilitySink:
		return m.refreshDevice(ctx, RoleSink, event)
	case FacilitySource:
		return m.refreshDevice(ctx, RoleSource, event)
	case FacilityServer:
		return m.resolveDefaults(ctx)
	default:
		return nil
	}
}

// refreshDevice re-queries the default device of role if the event is about it.
// Without a known default device it re-resolves the defaults instead.
func (m *Monitor) refreshDevice(ctx context.Context, role Role, event ServerEvent) error {
	index, known := m.devices.identity(role)
	if !known {
		return m.resolveDefaults(ctx)
	}

	// not the default device
	if index != event.Index {
		return nil
	}

	if event.Kind == ChangeRemove {
		m.devices.invalidate(role)
		return nil
	}

	var (
		info *DeviceInfo
		err  error
	)
	if role == RoleSink {
		info, err = m.server.SinkByIndex(ctx, index)
	} else {
		info, err = m.server.SourceByIndex(ctx, index)
	}

	if err != nil {
		m.logger.Debugw("Failed to query device by index", "role", role, "index", index, "error", err)
		return m.queryError(err)
	}

	m.devices.apply(role, info)

	return nil
}

// resolveDefaults looks up the default device names and queries both devices
func (m *Monitor) resolveDefaults(ctx context.Context) error {
	info, err := m.server.ServerInfo(ctx)
	if err != nil {
		m.logger.Debugw("Failed to query server info", "error", err)
		return m.queryError(err)
	}
	if info == nil {
		return nil
	}

	m.logger.Debugw("Resolved default devices",
		"server", info.PackageName,
		"serverVersion", info.PackageVersion,
		"sink", info.DefaultSinkName,
		"source", info.DefaultSourceName)

	sink, err := m.server.SinkByName(ctx, info.DefaultSinkName)
	if err != nil {
		m.logger.Debugw("Failed to query default sink", "name", info.DefaultSinkName, "error", err)
		if qErr := m.queryError(err); qErr != nil {
			return qErr
		}
	} else {
		m.devices.apply(RoleSink, sink)
	}

	source, err := m.server.SourceByName(ctx, info.DefaultSourceName)
	if err != nil {
		m.logger.Debugw("Failed to query default source", "name", info.DefaultSourceName, "error", err)
		return m.queryError(err)
	}

	m.devices.apply(RoleSource, source)

	return nil
}

// queryError decides what a failed query means for the loop: connection-level
// errors end it, anything else just means there is nothing to update
func (m *Monitor) queryError(err error) error {
	switch {
	case errors.Is(err, ErrDisconnected):
		return errTerminated
	case errors.Is(err, context.Canceled):
		return errTerminated
	case errors.Is(err, ErrRequestTimeout):
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	default:
		m.logger.Warnw("Ignoring failed query", "error", err)
		return nil
	}
}
