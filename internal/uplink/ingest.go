// internal/uplink/ingest.go
package uplink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	magicHi byte = 0x55 // 'U'
	magicLo byte = 0x50 // 'P'

	versionV1 byte = 0x01

	ingestHeaderLen = 6

	respOK       byte = 0x00
	respRejected byte = 0x01
)

// IngestClient pushes payloads to a raw TCP collector (stateless, 1 packet = 1 connection).
type IngestClient struct {
	endpoint string
	timeout  time.Duration
	dialer   net.Dialer
}

type IngestConfig struct {
	Endpoint string
	Timeout  time.Duration
}

func NewIngestClient(cfg IngestConfig) (*IngestClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("uplink ingest: endpoint required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &IngestClient{
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
		dialer:   net.Dialer{Timeout: cfg.Timeout},
	}, nil
}

func (c *IngestClient) Send(ctx context.Context, msg Message) error {
	if len(msg.Payload) > 0xFFFF {
		return fmt.Errorf("uplink ingest: payload of %d bytes does not fit a frame", len(msg.Payload))
	}

	pkt := buildFrameV1(msg.ID, msg.Payload)

	conn, err := c.dialer.DialContext(ctx, "tcp", c.endpoint)
	if err != nil {
		return fmt.Errorf("uplink ingest: dial: %w", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))
	if _, err := conn.Write(pkt); err != nil {
		return fmt.Errorf("uplink ingest: write: %w", err)
	}

	var resp [1]byte
	if _, err := io.ReadFull(conn, resp[:]); err != nil {
		return fmt.Errorf("uplink ingest: read status: %w", err)
	}

	switch resp[0] {
	case respOK:
		return nil
	case respRejected:
		return errors.New("uplink ingest: rejected")
	default:
		return fmt.Errorf("uplink ingest: unknown status 0x%02x", resp[0])
	}
}

// Frame layout (6 bytes header):
// 0–1  Magic "UP"
// 2    Version (0x01)
// 3    Message id
// 4–5  Payload length, big-endian
// 6+   Payload
func buildFrameV1(messageID uint8, payload []byte) []byte {
	out := make([]byte, ingestHeaderLen, ingestHeaderLen+len(payload))
	out[0] = magicHi
	out[1] = magicLo
	out[2] = versionV1
	out[3] = messageID
	out[4] = byte(len(payload) >> 8)
	out[5] = byte(len(payload))
	return append(out, payload...)
}
