// internal/uplink/nats.go
package uplink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Header keys set on every published payload.
const (
	HeaderMsgID     = nats.MsgIdHdr // JetStream de-duplication
	HeaderNode      = "Uplink-Node"
	HeaderMessageID = "Uplink-Message-Id"
	HeaderTimestamp = "Uplink-Timestamp"
)

type NATSConfig struct {
	URL           string
	Subject       string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

// msgPublisher is the part of *nats.Conn the publisher uses.
type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSPublisher sends each payload as one NATS message.
type NATSPublisher struct {
	conn    msgPublisher
	subject string
	node    string
}

// DialNATS connects with the reconnect policy from cfg.
func DialNATS(cfg NATSConfig) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("uplink nats: disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("uplink nats: reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("uplink nats: connect %s: %w", cfg.URL, err)
	}
	return nc, nil
}

func NewNATSPublisher(conn msgPublisher, subject, node string) (*NATSPublisher, error) {
	if conn == nil {
		return nil, errors.New("uplink nats: connection required")
	}
	if subject == "" {
		return nil, errors.New("uplink nats: subject required")
	}
	return &NATSPublisher{conn: conn, subject: subject, node: node}, nil
}

func (p *NATSPublisher) Send(_ context.Context, msg Message) error {
	m := nats.NewMsg(p.subject)
	m.Data = msg.Payload
	m.Header.Set(HeaderMsgID, uuid.NewString())
	m.Header.Set(HeaderNode, p.node)
	m.Header.Set(HeaderMessageID, strconv.Itoa(int(msg.ID)))
	m.Header.Set(HeaderTimestamp, strconv.FormatInt(msg.At.Unix(), 10))

	if err := p.conn.PublishMsg(m); err != nil {
		return fmt.Errorf("uplink nats: publish %s: %w", p.subject, err)
	}
	return nil
}
