package pavolmon

import "errors"

var (
	// ErrConnectionFailed is returned by Monitor.Run when the audio server connection fails
	ErrConnectionFailed = errors.New("audio server connection failed")

	// ErrDisconnected marks requests that failed because the server closed the connection
	ErrDisconnected = errors.New("audio server closed the connection")

	// ErrRequestTimeout marks requests the server never answered
	ErrRequestTimeout = errors.New("audio server request timed out")

	// ErrNotConnected is returned by queries issued before the connection is ready
	ErrNotConnected = errors.New("not connected to audio server")

	// ErrUsage marks invalid command line invocations
	ErrUsage = errors.New("invalid usage")
)

// errTerminated stops the monitor loop without an error
var errTerminated = errors.New("connection terminated")
