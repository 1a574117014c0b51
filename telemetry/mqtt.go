package telemetry

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/swerve/logging"
)

const (
	mqttConnectTimeout    = 5 * time.Second
	mqttDisconnectQuiesce = 250 // milliseconds
)

// MQTTSink publishes each sample as JSON to an MQTT topic at QoS 0.
type MQTTSink struct {
	client mqtt.Client
	topic  string
	logger logging.Logger
}

// NewMQTTSink connects to broker (for example tcp://localhost:1883) and returns a sink that
// publishes to topic. The client reconnects on its own after the first connection succeeds.
func NewMQTTSink(ctx context.Context, broker, topic string, logger logging.Logger) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("swerve-" + uuid.NewString())
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.OnConnect = func(mqtt.Client) {
		logger.Infow("connected to mqtt broker", "broker", broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warnw("lost connection to mqtt broker", "broker", broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		return nil, errors.Wrapf(err, "cannot connect to mqtt broker %q", broker)
	}
	return newMQTTSinkFromClient(client, topic, logger), nil
}

func newMQTTSinkFromClient(client mqtt.Client, topic string, logger logging.Logger) *MQTTSink {
	return &MQTTSink{client: client, topic: topic, logger: logger}
}

// Publish sends the sample. It waits for the client to hand the message off, not for the
// broker.
func (ms *MQTTSink) Publish(ctx context.Context, sample Sample) error {
	payload, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	return errors.Wrapf(waitToken(ctx, ms.client.Publish(ms.topic, 0, false, payload)), "publish to %q", ms.topic)
}

// Close disconnects from the broker.
func (ms *MQTTSink) Close() error {
	ms.client.Disconnect(mqttDisconnectQuiesce)
	return nil
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}
