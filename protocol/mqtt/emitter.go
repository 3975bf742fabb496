package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gwuhaolin/livetc/av"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

var (
	ErrNotConnected = fmt.Errorf("mqtt not connected")
	ErrTimeout      = fmt.Errorf("mqtt publish timeout")
)

type Options struct {
	Broker   string // host:port
	ClientID string
	Topic    string // 프레임은 Topic/<source> 로 나간다.
	QoS      byte
	Format   string // json | msgpack
}

// 프레임을 MQTT 브로커로 발행한다. 연결이 끊기면 paho 가 자동으로 다시 붙는다.
type Emitter struct {
	opts   Options
	Client paho.Client

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
	connected bool
}

type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

func NewEmitter(opts Options) *Emitter {
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	return &Emitter{
		opts:      opts,
		published: make(map[string]uint64),
	}
}

func (e *Emitter) Connect(ctx context.Context) error {
	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.opts.Broker))
	opts.SetClientID(e.opts.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c paho.Client) {
		e.setConnected(true)
		log.Infof("mqtt connected to %s as %s", e.opts.Broker, e.opts.ClientID)
	}
	opts.OnConnectionLost = func(c paho.Client, err error) {
		e.setConnected(false)
		log.Warnf("mqtt connection to %s lost, reconnecting: %v", e.opts.Broker, err)
	}

	e.Client = paho.NewClient(opts)
	token := e.Client.Connect()

	timeout := 5 * time.Second
	if d, ok := ctx.Deadline(); ok {
		timeout = time.Until(d)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	e.setConnected(true)
	return nil
}

// Marshal encodes a packet in the configured payload format.
func (e *Emitter) Marshal(p *av.Packet) ([]byte, error) {
	switch e.opts.Format {
	case FormatMsgpack:
		return msgpack.Marshal(p)
	case FormatJSON:
		return json.Marshal(p)
	}
	return nil, fmt.Errorf("unknown mqtt payload format %q", e.opts.Format)
}

func (e *Emitter) Topic(source string) string {
	return e.opts.Topic + "/" + source
}

func (e *Emitter) Publish(p *av.Packet) error {
	if !e.isConnected() {
		e.addError()
		return ErrNotConnected
	}

	payload, err := e.Marshal(p)
	if err != nil {
		e.addError()
		return err
	}

	topic := e.Topic(p.Source)
	token := e.Client.Publish(topic, e.opts.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.addError()
		return ErrTimeout
	}
	if err := token.Error(); err != nil {
		e.addError()
		return fmt.Errorf("mqtt publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()
	return nil
}

func (e *Emitter) Disconnect() {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250)
		log.Info("mqtt disconnected")
	}
	e.setConnected(false)
}

func (e *Emitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *Emitter) setConnected(b bool) {
	e.mu.Lock()
	e.connected = b
	e.mu.Unlock()
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *Emitter) addError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
