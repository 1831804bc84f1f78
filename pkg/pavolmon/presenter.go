package pavolmon

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Presenter writes status lines for the bar to consume
type Presenter struct {
	logger    *zap.SugaredLogger
	out       io.Writer
	formatter Formatter
	labels    Labels

	lines int
}

func NewPresenter(logger *zap.SugaredLogger, out io.Writer, formatter Formatter, labels Labels) *Presenter {
	logger = logger.Named("presenter")

	p := &Presenter{
		logger:    logger,
		out:       out,
		formatter: formatter,
		labels:    labels,
	}

	logger.Debugw("Created presenter instance", "labels", labels)

	return p
}

// Print writes exactly one line for the given device states
func (p *Presenter) Print(sink, source VolumeState) error {
	line := p.formatter.Format(p.labels, sink, source)

	if _, err := fmt.Fprintln(p.out, line); err != nil {
		p.logger.Warnw("Failed to write status line", "error", err)
		return fmt.Errorf("write status line: %w", err)
	}

	// bufio writers and the like must not sit on a line the bar is waiting for
	if f, ok := p.out.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush status line: %w", err)
		}
	}

	p.lines++
	p.logger.Debugw("Printed status line", "line", line, "count", p.lines)

	return nil
}

// PrintIfChanged prints the tracker's current state only if it changed since
// the last print, clearing the change flag in the same step
func (p *Presenter) PrintIfChanged(devices *deviceTracker) error {
	if !devices.takeChanged() {
		return nil
	}

	return p.Print(devices.state(RoleSink), devices.state(RoleSource))
}
