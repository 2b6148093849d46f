package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"net"
	"os"
	"time"

	"github.com/disintegration/imaging"
)

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

const (
	udpPacketSize   = 65535
	udpReadDeadline = 500 * time.Millisecond
	udpMaxFrameSize = 4 << 20
	udpSenderIdle   = 5 * time.Second
)

// UDPCamera receives JPEG frames split across UDP datagrams. A datagram
// starting with SOI opens a new frame for its sender, one ending with EOI
// completes it. A frame growing past udpMaxFrameSize is discarded and senders
// silent for udpSenderIdle are forgotten.
type UDPCamera struct {
	conn    *net.UDPConn
	packet  []byte
	buffers map[string]*senderBuffer
}

type senderBuffer struct {
	bytes.Buffer
	lastSeen time.Time
}

// NewUDPCamera listens on addr, e.g. ":5005".
func NewUDPCamera(addr string) (*UDPCamera, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP %s: %w", addr, err)
	}
	return &UDPCamera{
		conn:    conn,
		packet:  make([]byte, udpPacketSize),
		buffers: make(map[string]*senderBuffer),
	}, nil
}

// Addr is the bound local address.
func (c *UDPCamera) Addr() net.Addr {
	return c.conn.LocalAddr()
}

// Read blocks until a complete frame arrives. When nothing completes within
// the read deadline it returns ErrTransientCapture so callers can observe
// cancellation.
func (c *UDPCamera) Read() (image.Image, error) {
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(udpReadDeadline)); err != nil {
			return nil, fmt.Errorf("set deadline: %v: %w", err, ErrTransientCapture)
		}

		n, remoteAddr, err := c.conn.ReadFromUDP(c.packet)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, ErrTransientCapture
			}
			return nil, fmt.Errorf("read UDP packet: %v: %w", err, ErrTransientCapture)
		}

		frame := c.assemble(remoteAddr.String(), c.packet[:n], time.Now())
		if frame == nil {
			continue
		}

		img, err := imaging.Decode(bytes.NewReader(frame))
		if err != nil {
			return nil, fmt.Errorf("decode frame: %v: %w", err, ErrTransientCapture)
		}
		return img, nil
	}
}

// assemble appends data to the sender's buffer and returns the full JPEG
// when data closes a frame.
func (c *UDPCamera) assemble(sender string, data []byte, now time.Time) []byte {
	for addr, b := range c.buffers {
		if addr != sender && now.Sub(b.lastSeen) > udpSenderIdle {
			delete(c.buffers, addr)
		}
	}

	buf, ok := c.buffers[sender]
	if !ok {
		buf = &senderBuffer{}
		c.buffers[sender] = buf
	}
	buf.lastSeen = now

	if bytes.HasPrefix(data, jpegHeader) {
		buf.Reset()
	} else if buf.Len() == 0 {
		// tail of a frame whose start was lost
		return nil
	}
	if buf.Len()+len(data) > udpMaxFrameSize {
		buf.Reset()
		return nil
	}
	buf.Write(data)

	if !bytes.HasSuffix(data, jpegFooter) {
		return nil
	}
	full := make([]byte, buf.Len())
	copy(full, buf.Bytes())
	buf.Reset()
	return full
}

func (c *UDPCamera) Close() error {
	return c.conn.Close()
}
