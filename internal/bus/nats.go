// internal/bus/nats.go
package bus

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/samyarj/polyhoot/internal/game"
	"github.com/sirupsen/logrus"
)

const DefaultSubjectPrefix = "polyhoot.rooms"

// publisher is the subset of *nats.Conn the bus needs.
type publisher interface {
	Publish(subj string, data []byte) error
}

// Publisher mirrors session broadcasts onto NATS, one subject per room:
// <prefix>.<roomCode>.
type Publisher struct {
	nc     publisher
	conn   *nats.Conn
	prefix string
	log    *logrus.Entry
}

// Connect dials NATS with reconnect handlers that log through logger.
func Connect(url string, logger *logrus.Logger) (*nats.Conn, error) {
	log := logger.WithField("component", "nats")
	opts := []nats.Option{
		nats.Name("polyhoot"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Errorf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Errorf("NATS error: %v", err)
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

func NewPublisher(nc *nats.Conn, prefix string, logger *logrus.Logger) *Publisher {
	p := newPublisher(nc, prefix, logger)
	p.conn = nc
	return p
}

func newPublisher(nc publisher, prefix string, logger *logrus.Logger) *Publisher {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{nc: nc, prefix: prefix, log: logger.WithField("component", "bus")}
}

// Subject returns the subject events of roomCode are published on.
func (p *Publisher) Subject(roomCode string) string {
	return p.prefix + "." + roomCode
}

// Publish implements game.EventSink.
func (p *Publisher) Publish(roomCode string, ev game.GameEvent) error {
	if err := p.nc.Publish(p.Subject(roomCode), game.EncodeEvent(ev)); err != nil {
		p.log.WithField("room", roomCode).Warnf("publish %s: %v", ev.Type, err)
		return fmt.Errorf("publish %s to %s: %w", ev.Type, p.Subject(roomCode), err)
	}
	return nil
}

// Close drains the underlying connection if the publisher owns one.
func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.log.Warnf("drain: %v", err)
	}
}
