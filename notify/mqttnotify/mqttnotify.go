// Package mqttnotify publishes wl12xx notifications to an MQTT broker.
// Each notification is sent as a JSON document to the topic <prefix>/<kind>.
package mqttnotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	mqtt "github.com/soypat/natiu-mqtt"

	"github.com/soypat/wl12xx"
)

const (
	DefaultTopicPrefix = "wl12xx"
	defaultDialTimeout = 5 * time.Second
	decoderBufSize     = 1024
	maxClientIDLen     = 23
)

var (
	errNoBroker     = errors.New("mqttnotify: no broker address")
	errNotConnected = errors.New("mqttnotify: not connected")
)

var pubFlags, _ = mqtt.NewPublishFlags(mqtt.QoS0, false, false)

type Config struct {
	// Broker is the host:port of the MQTT broker.
	Broker      string
	TopicPrefix string
	// ClientID defaults to a random identifier.
	ClientID    string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// Publisher is a [wl12xx.Notifier] that forwards notifications to a broker.
type Publisher struct {
	mu       sync.Mutex
	client   *mqtt.Client
	conn     net.Conn
	prefix   string
	packetID uint16
	log      *slog.Logger
}

var _ wl12xx.Notifier = (*Publisher)(nil)

// Dial connects to the broker and completes the MQTT handshake.
func Dial(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errNoBroker
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("mqttnotify: dial %s: %w", cfg.Broker, err)
	}
	p, err := NewPublisher(ctx, conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// NewPublisher completes the MQTT handshake over an established connection.
// The handshake is bounded by the deadline of ctx, if any. Closing the
// Publisher closes conn.
func NewPublisher(ctx context.Context, conn net.Conn, cfg Config) (*Publisher, error) {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID()
	}
	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, decoderBufSize)},
		OnPub: func(_ mqtt.Header, _ mqtt.VariablesPublish, _ io.Reader) error {
			return nil
		},
	})
	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(cfg.ClientID))
	// Publish only; nothing reads the connection to answer keepalives.
	varconn.KeepAlive = 0
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	err := client.Connect(ctx, conn, &varconn)
	if err != nil {
		return nil, fmt.Errorf("mqttnotify: connect: %w", err)
	}
	conn.SetDeadline(time.Time{})
	p := &Publisher{
		client: client,
		conn:   conn,
		prefix: cfg.TopicPrefix,
		log:    cfg.Logger,
	}
	p.info("mqtt:connected", slog.String("broker", conn.RemoteAddr().String()), slog.String("clientID", cfg.ClientID))
	return p, nil
}

// Notify publishes n, logging failures.
func (p *Publisher) Notify(n wl12xx.Notification) {
	if err := p.Publish(n); err != nil && p.log != nil {
		p.log.Error("mqtt:publish", slog.String("kind", n.Kind.String()), slog.String("err", err.Error()))
	}
}

// Publish sends n to its topic with QoS 0.
func (p *Publisher) Publish(n wl12xx.Notification) error {
	payload, err := Payload(n)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.client.IsConnected() {
		return errors.Join(errNotConnected, p.client.Err())
	}
	p.packetID++
	p.conn.SetWriteDeadline(time.Now().Add(defaultDialTimeout))
	return p.client.PublishPayload(pubFlags, mqtt.VariablesPublish{
		TopicName:        []byte(Topic(p.prefix, n.Kind)),
		PacketIdentifier: p.packetID,
	}, payload)
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.client.IsConnected() {
		err = p.client.Disconnect(errors.New("publisher closed"))
	}
	return errors.Join(err, p.conn.Close())
}

func (p *Publisher) info(msg string, attrs ...slog.Attr) {
	if p.log != nil {
		p.log.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
	}
}

// Topic returns the topic notifications of kind are published to.
func Topic(prefix string, kind wl12xx.NotifyKind) string {
	return prefix + "/" + kind.String()
}

// Payload encodes n as the JSON message body.
func Payload(n wl12xx.Notification) ([]byte, error) {
	return json.Marshal(n)
}

// DefaultClientID returns a random MQTT client identifier within the 23
// character limit every broker accepts.
func DefaultClientID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "wl" + id[:maxClientIDLen-2]
}
