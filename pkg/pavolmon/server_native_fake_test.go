package pavolmon

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jfreymuth/pulse/proto"
	"github.com/stretchr/testify/require"
)

const (
	frameHeaderSize = 20
	controlChannel  = 0xFFFFFFFF
)

// nativeServer speaks just enough of the native protocol on a unix socket to
// drive pulseServer: auth, client name, subscribe and server info. It serves
// a single connection.
type nativeServer struct {
	listener net.Listener

	// answerServerInfo false leaves GetServerInfo requests unanswered
	answerServerInfo bool

	masks chan uint32

	lock sync.Mutex
	conn net.Conn
}

// startNativeServer listens on a fresh socket and returns the server string to dial
func startNativeServer(t *testing.T, answerServerInfo bool) (*nativeServer, string) {
	t.Helper()

	// anonymous auth, the client sends a zeroed cookie
	t.Setenv("PULSE_COOKIE", filepath.Join(t.TempDir(), "no-such-cookie"))

	path := filepath.Join(t.TempDir(), "native")

	listener, err := net.Listen("unix", path)
	require.NoError(t, err)

	ns := &nativeServer{
		listener:         listener,
		answerServerInfo: answerServerInfo,
		masks:            make(chan uint32, 1),
	}

	go ns.serve()

	t.Cleanup(func() {
		_ = listener.Close()
		ns.hangUp()
	})

	return ns, "unix:" + path
}

func (ns *nativeServer) serve() {
	conn, err := ns.listener.Accept()
	if err != nil {
		return
	}

	ns.lock.Lock()
	ns.conn = conn
	ns.lock.Unlock()

	header := make([]byte, frameHeaderSize)

	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}

		payload := make([]byte, binary.BigEndian.Uint32(header))
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}
		if len(payload) < 10 {
			return
		}

		command := binary.BigEndian.Uint32(payload[1:5])
		tag := binary.BigEndian.Uint32(payload[6:10])

		switch command {
		case proto.OpAuth:
			ns.reply(tag, pulseUint32(32))
		case proto.OpSetClientName:
			ns.reply(tag, pulseUint32(3))
		case proto.OpSubscribe:
			ns.masks <- binary.BigEndian.Uint32(payload[11:15])
			ns.reply(tag)
		case proto.OpGetServerInfo:
			if ns.answerServerInfo {
				ns.reply(tag, serverInfoFields()...)
			}
		}
	}
}

func (ns *nativeServer) send(parts ...[]byte) {
	payload := bytes.Join(parts, nil)

	frame := make([]byte, frameHeaderSize, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[0:], uint32(len(payload)))
	binary.BigEndian.PutUint32(frame[4:], controlChannel)
	frame = append(frame, payload...)

	ns.lock.Lock()
	defer ns.lock.Unlock()

	if ns.conn != nil {
		_, _ = ns.conn.Write(frame)
	}
}

func (ns *nativeServer) reply(tag uint32, fields ...[]byte) {
	ns.send(append([][]byte{pulseUint32(proto.OpReply), pulseUint32(tag)}, fields...)...)
}

func (ns *nativeServer) pushEvent(event proto.SubscriptionEventType, index uint32) {
	ns.send(
		pulseUint32(proto.OpSubscribeEvent),
		pulseUint32(controlChannel),
		pulseUint32(uint32(event)),
		pulseUint32(index))
}

// hangUp closes the connection the way a server shutting down does
func (ns *nativeServer) hangUp() {
	ns.lock.Lock()
	defer ns.lock.Unlock()

	if ns.conn != nil {
		_ = ns.conn.Close()
		ns.conn = nil
	}
}

func serverInfoFields() [][]byte {
	return [][]byte{
		pulseString("pulseaudio"),
		pulseString("17.0"),
		pulseString("someone"),
		pulseString("workstation"),
		// s16le, 2 channels, 44100 Hz
		{'a', 3, 2, 0x00, 0x00, 0xac, 0x44},
		pulseString("alsa_output.speakers"),
		pulseString("alsa_input.mic"),
		pulseUint32(0x1234),
		{'m', 2, 1, 2},
	}
}

func pulseUint32(v uint32) []byte {
	return binary.BigEndian.AppendUint32([]byte{'L'}, v)
}

func pulseString(s string) []byte {
	if s == "" {
		return []byte{'N'}
	}

	return append(append([]byte{'t'}, s...), 0)
}
