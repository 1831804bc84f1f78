// Package pavolmon monitors the default PulseAudio sink and source and prints
// their volume and mute state as a single status line on every change, for
// consumption by a desktop status bar.
package pavolmon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/MixyLabs/pavolmon/pkg/pavolmon/util"
)

const appName = "pavolmon"

// Options are the startup inputs that don't come from the config file
type Options struct {
	// Labels override the configured labels when set (from -f)
	Labels *Labels

	// Out receives the status lines
	Out io.Writer

	// Level is the logger's level, adjusted from the config
	Level zap.AtomicLevel

	// ConfigPaths override the config search path
	ConfigPaths []string

	// Server replaces the PulseAudio connection, mostly for tests
	Server AudioServer
}

// PaVolMon is the main entity managing all subcomponents
type PaVolMon struct {
	logger    *zap.SugaredLogger
	notifier  Notifier
	configMan *ConfigManager
	server    AudioServer
	monitor   *Monitor

	version string
}

func NewPaVolMon(logger *zap.SugaredLogger, opts Options) (*PaVolMon, error) {
	logger = logger.Named("pavolmon")

	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Level == (zap.AtomicLevel{}) {
		opts.Level = zap.NewAtomicLevel()
	}

	configMan, err := NewConfig(logger, opts.Level, opts.ConfigPaths...)
	if err != nil {
		logger.Errorw("Failed to create Config", "error", err)
		return nil, fmt.Errorf("create new Config: %w", err)
	}

	if err := configMan.Load(); err != nil {
		logger.Errorw("Failed to load config", "error", err)
		return nil, fmt.Errorf("load config: %w", err)
	}

	config := configMan.Current()

	labels := config.Labels
	if opts.Labels != nil {
		logger.Debugw("Using labels from the command line", "labels", *opts.Labels)
		labels = *opts.Labels
	}

	formatter, err := NewFormatter(config.Format)
	if err != nil {
		logger.Errorw("Failed to create formatter", "error", err)
		return nil, fmt.Errorf("create formatter: %w", err)
	}

	var notifier Notifier = noopNotifier{}
	if config.NotifyOnFailure {
		toast, err := NewToastNotifier(logger)
		if err != nil {
			logger.Errorw("Failed to create ToastNotifier", "error", err)
			return nil, fmt.Errorf("create new ToastNotifier: %w", err)
		}
		notifier = toast
	}

	server := opts.Server
	if server == nil {
		server, err = NewPulseServer(logger, config.PulseOptions())
		if err != nil {
			logger.Errorw("Failed to create PulseAudio server", "error", err)
			return nil, fmt.Errorf("create PulseAudio server: %w", err)
		}
	}

	presenter := NewPresenter(logger, opts.Out, formatter, labels)

	p := &PaVolMon{
		logger:    logger,
		notifier:  notifier,
		configMan: configMan,
		server:    server,
		monitor:   NewMonitor(logger, server, presenter),
	}

	logger.Debug("Created pavolmon instance")

	return p, nil
}

// SetVersion records the version string for the logs
func (p *PaVolMon) SetVersion(version string) {
	p.version = version
}

// Run monitors until the server disconnects or the process is interrupted
// (nil), or until the connection or the output fails (error)
func (p *PaVolMon) Run() (err error) {
	defer p.recoverFromPanic(&err)

	p.logger.Infow("Run loop starting", "version", p.version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.setupInterruptHandler(ctx, cancel)

	go p.configMan.WatchConfigFileChanges()
	defer p.stop()

	err = p.monitor.Run(ctx)
	if errors.Is(err, ErrConnectionFailed) {
		p.notifier.Notify("pavolmon stopped", "Lost connection to the audio server")
	}

	return err
}

func (p *PaVolMon) setupInterruptHandler(ctx context.Context, cancel context.CancelFunc) {
	interruptChannel := util.SetupCloseHandler()

	go func() {
		defer util.StopCloseHandler(interruptChannel)

		select {
		case signal := <-interruptChannel:
			p.logger.Debugw("Interrupted", "signal", signal)
			cancel()
		case <-ctx.Done():
		}
	}()
}

func (p *PaVolMon) stop() {
	p.logger.Info("Stopping")

	p.configMan.StopWatchingConfigFile()

	if err := p.server.Close(); err != nil {
		p.logger.Warnw("Failed to release audio server connection", "error", err)
	}

	// attempt to sync on exit - this won't necessarily work but can't harm
	_ = p.logger.Sync()
}
