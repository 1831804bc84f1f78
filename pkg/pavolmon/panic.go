package pavolmon

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/MixyLabs/pavolmon/pkg/pavolmon/util"
)

const (
	crashlogFilename        = "pavolmon-crash-%s.log"
	crashlogTimestampFormat = "2006.01.02-15.04.05"

	crashMessage = `-----------------------------------------------------------------
                        pavolmon crashlog
-----------------------------------------------------------------
Unfortunately, pavolmon has crashed.
To help diagnose the issue, a crashlog has been generated.
-----------------------------------------------------------------
Time: %s
Panic occurred: %s
Stack trace:
%s
-----------------------------------------------------------------
`
)

// recoverFromPanic turns a panic in the run loop into a crashlog and an error,
// leaving the exit decision to the caller. Must be deferred directly.
func (p *PaVolMon) recoverFromPanic(result *error) {
	r := recover()

	if r == nil {
		return
	}

	now := time.Now()
	crashErr := fmt.Errorf("panic in run loop: %v", r)

	crashlogPath, err := writeCrashlog(logDirectory, now, r, debug.Stack())
	if err != nil {
		p.logger.Errorw("Failed to write crashlog", "error", err, "panic", r)
		*result = crashErr
		return
	}

	p.logger.Errorw("Encountered and logged panic, crashing",
		"crashlogPath", crashlogPath,
		"error", r)

	p.notifier.Notify("pavolmon crashed", fmt.Sprintf("More details in %s", crashlogPath))

	*result = crashErr
}

func writeCrashlog(dir string, now time.Time, r interface{}, stack []byte) (string, error) {
	if err := util.EnsureDirExists(dir); err != nil {
		return "", fmt.Errorf("ensure crashlog dir exists: %w", err)
	}

	contents := fmt.Sprintf(crashMessage, now.Format(crashlogTimestampFormat), r, stack)
	crashlogPath := filepath.Join(dir, fmt.Sprintf(crashlogFilename, now.Format(crashlogTimestampFormat)))

	if err := os.WriteFile(crashlogPath, []byte(contents), 0o644); err != nil {
		return "", fmt.Errorf("write crashlog file: %w", err)
	}

	return crashlogPath, nil
}
