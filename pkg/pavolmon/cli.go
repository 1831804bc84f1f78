package pavolmon

import (
	"fmt"
	"io"
)

// Invocation is the parsed command line
type Invocation struct {
	Help bool

	// Labels is nil unless overridden with -f
	Labels *Labels
}

const (
	errMsgWrongArgCount   = "wrong number of arguments"
	errMsgUnknownArgument = "unknown argument"
)

// usageError is an ErrUsage whose message is printed as-is
type usageError string

func (e usageError) Error() string { return string(e) }

func (e usageError) Is(target error) bool { return target == ErrUsage }

// ParseArgs parses the arguments following the program name. The grammar is
// fixed: nothing, "-h", or "-f" followed by exactly four labels (which may
// themselves start with a dash).
func ParseArgs(args []string) (Invocation, error) {
	switch len(args) {
	case 0:
		return Invocation{}, nil

	case 1:
		if args[0] == "-h" {
			return Invocation{Help: true}, nil
		}
		return Invocation{}, usageError(errMsgWrongArgCount)

	case 5:
		if args[0] != "-f" {
			return Invocation{}, usageError(errMsgUnknownArgument)
		}

		return Invocation{
			Labels: &Labels{
				Speaker:      args[1],
				SpeakerMuted: args[2],
				Mic:          args[3],
				MicMuted:     args[4],
			},
		}, nil

	default:
		return Invocation{}, usageError(errMsgWrongArgCount)
	}
}

// PrintUsage writes the one-line usage synopsis
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, "usage: %s [-h] [-f SPEAKER MUTED_SPEAKER MICROPHONE MUTED_MICROPHONE]\n", appName)
}

// PrintDescription writes the full help text
func PrintDescription(w io.Writer) {
	fmt.Fprint(w, "Asynchronously monitors the state of the PulseAudio server and outputs the\n"+
		"volume of the default sink (audio output) and source (audio input).\n\n")

	PrintUsage(w)

	fmt.Fprint(w, "\noptional arguments:\n"+
		"  -h        show this help message and exit\n"+
		"  -f SPEAKER MUTED_SPEAKER MICROPHONE MUTED_MICROPHONE\n"+
		"            use the given labels for speaker, muted speaker, microphone and\n"+
		"            muted microphone\n")
}

// PrintError reports a usage error the way the rest of the CLI does
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s: error: %v\n", appName, err)
	PrintUsage(w)
}
