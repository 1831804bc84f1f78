package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/MixyLabs/pavolmon/pkg/pavolmon"
)

var (
	gitCommit  string
	versionTag string
	buildType  string
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	invocation, err := pavolmon.ParseArgs(args)
	if err != nil {
		pavolmon.PrintError(os.Stderr, err)
		return 1
	}

	if invocation.Help {
		pavolmon.PrintDescription(os.Stdout)
		return 0
	}

	level := zap.NewAtomicLevelAt(zap.InfoLevel)

	logger, err := pavolmon.NewLogger(buildType, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pavolmon: error: failed to create logger: %v\n", err)
		return 1
	}

	named := logger.Named("main")
	named.Debug("Created logger")

	named.Infow("Version info",
		"gitCommit", gitCommit,
		"versionTag", versionTag,
		"buildType", buildType)

	p, err := pavolmon.NewPaVolMon(logger, pavolmon.Options{
		Labels: invocation.Labels,
		Out:    os.Stdout,
		Level:  level,
	})
	if err != nil {
		named.Errorw("Failed to create pavolmon object", "error", err)
		fmt.Fprintf(os.Stderr, "pavolmon: error: %v\n", err)
		return 1
	}

	if buildType != "" && (versionTag != "" || gitCommit != "") {
		identifier := gitCommit
		if versionTag != "" {
			identifier = versionTag
		}

		p.SetVersion(fmt.Sprintf("Version %s-%s", buildType, identifier))
	}

	if err := p.Run(); err != nil {
		named.Errorw("Monitoring stopped with an error", "error", err)
		fmt.Fprintf(os.Stderr, "pavolmon: error: %v\n", err)
		return 1
	}

	return 0
}
