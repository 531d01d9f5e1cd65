package publish

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/evgrid/fleetsim/core/sim"
	"github.com/evgrid/fleetsim/infra/logger"
)

// Config defines the optional live results publisher. When disabled the
// simulation produces no traffic at all.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	Topic    string `json:"topic"`
	QoS      byte   `json:"qos"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Topic == "" {
		c.Topic = "fleetsim/steps"
	}
	if c.ClientID == "" {
		c.ClientID = "fleetsim-" + uuid.NewString()[:8]
	}
}

// MQTTPublisher streams each completed interval's command map as JSON so
// external consumers can follow a run live.
type MQTTPublisher struct {
	cli   paho.Client
	topic string
	qos   byte
	log   logger.Logger
}

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(cfg Config) (*MQTTPublisher, error) {
	cfg.SetDefaults()
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetConnectTimeout(5 * time.Second)
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &MQTTPublisher{
		cli:   cli,
		topic: cfg.Topic,
		qos:   cfg.QoS,
		log:   logger.New("mqtt-publisher"),
	}, nil
}

// PublishStep sends one step record.
func (p *MQTTPublisher) PublishStep(ev sim.StepEvent) error {
	payload, err := json.Marshal(ev.Record)
	if err != nil {
		return fmt.Errorf("encode step record: %w", err)
	}
	if token := p.cli.Publish(p.topic, p.qos, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish step: %w", token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.cli.Disconnect(250)
}
