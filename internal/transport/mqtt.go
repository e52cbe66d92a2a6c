package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/cellink/internal/modem"
	"github.com/autopeer-io/cellink/internal/pkg/metrics"
	"github.com/autopeer-io/cellink/pkg/log"
	"github.com/autopeer-io/cellink/pkg/mqtt"
	"github.com/autopeer-io/cellink/pkg/mqtt/topic"
)

// brokerConn publishes every write to the node's uplink topic.
type brokerConn struct {
	client mqtt.Client
	topic  string
	status string
	qos    int
	// stop ends the connection manager, which outlives the dial context.
	stop context.CancelFunc
}

var _ modem.Socket = (*brokerConn)(nil)

// newMQTTClient is replaced in tests.
var newMQTTClient = mqtt.NewClient

func (d *Dialer) dialMQTT(ctx context.Context, ep modem.Endpoint) (modem.Socket, error) {
	if d.Mqtt == nil {
		return nil, fmt.Errorf("mqtt options are required")
	}
	topics := topic.NewTopicBuilder(d.Mqtt.TopicRoot)

	cfg := d.Mqtt.ToClientConfig()
	// The endpoint address wins over the configured broker.
	cfg.BrokerURL = ep.Address
	if cfg.ClientID == "" {
		cfg.ClientID = d.DeviceID
	}
	cfg.WillTopic = topics.Status(d.DeviceID)
	cfg.WillPayload = []byte("offline")
	cfg.WillQoS = 1
	cfg.WillRetain = true

	client, err := newMQTTClient(cfg)
	if err != nil {
		return nil, err
	}
	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	if err := client.Start(runCtx); err != nil {
		stop()
		return nil, err
	}
	if err := client.AwaitConnection(ctx); err != nil {
		client.Disconnect(context.Background())
		stop()
		return nil, err
	}

	c := &brokerConn{
		client: client,
		topic:  topics.Uplink(d.DeviceID),
		status: topics.Status(d.DeviceID),
		qos:    d.Mqtt.QoS,
		stop:   stop,
	}
	if err := client.Publish(ctx, c.status, 1, true, []byte("online")); err != nil {
		client.Disconnect(context.Background())
		stop()
		return nil, err
	}
	return c, nil
}

func (c *brokerConn) Write(ctx context.Context, b []byte) error {
	if !c.client.IsConnected() {
		log.Debug("Broker down, publish waits for reconnect", "topic", c.topic)
	}
	if err := c.client.Publish(ctx, c.topic, c.qos, false, b); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return modem.Wrap(modem.ErrTransport, "publish", err)
	}
	metrics.SocketBytes.WithLabelValues(string(modem.ProtocolMQTT)).Add(float64(len(b)))
	return nil
}

func (c *brokerConn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.client.Publish(ctx, c.status, 1, true, []byte("offline"))
	c.client.Disconnect(ctx)
	if c.stop != nil {
		c.stop()
	}
	return nil
}
