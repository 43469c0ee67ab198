// Package trv talks to Shelly TRV radiator valves: MQTT for commands and
// telemetry, plain HTTP for the last-resort wake query.
package trv

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"roomheat"
	"roomheat/internal/config"
	"roomheat/internal/logger"
	"roomheat/internal/service"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second

	commandTopicFmt = "shellies/%s/thermostat/0/command/target_t"
	statusTopic     = "shellies/+/status"
	infoTopic       = "shellies/+/info"
)

// Client is the MQTT command channel and telemetry subscriber for the
// valves. It is constructed before the service layer (the command channel is
// a service dependency); Start attaches the telemetry feed afterwards.
type Client struct {
	client paho.Client
	log    *logger.Logger

	mu   sync.Mutex
	feed *service.TRVFeed
}

// NewClient connects to the broker. No telemetry flows until Start.
func NewClient(cfg config.MQTT, log *logger.Logger) (*Client, error) {
	c := &Client{log: log}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.subscribe)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

// Start wires the telemetry feed and subscribes to the valves' status and
// info topics. Telemetry arrives on the paho callback goroutines.
func (c *Client) Start(feed *service.TRVFeed) {
	c.mu.Lock()
	c.feed = feed
	c.mu.Unlock()
	c.subscribe(c.client)
}

// SendSetTemperature publishes a target temperature command. QoS 1: the
// broker hop should be reliable, the valve's radio hop is what the retry
// loop exists for.
func (c *Client) SendSetTemperature(ctx context.Context, id roomheat.ActuatorID, temp float64) error {
	topic := fmt.Sprintf(commandTopicFmt, id)
	payload := strconv.FormatFloat(temp, 'f', 1, 64)

	token := c.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.client.Disconnect(1000)
}

// subscribe runs on Start and on every reconnect so subscriptions survive
// broker restarts. Before Start there is no feed and nothing to subscribe
// for.
func (c *Client) subscribe(client paho.Client) {
	c.mu.Lock()
	started := c.feed != nil
	c.mu.Unlock()
	if !started {
		return
	}
	for topic, handler := range map[string]paho.MessageHandler{
		statusTopic: c.onStatus,
		infoTopic:   c.onInfo,
	} {
		token := client.Subscribe(topic, 0, handler)
		if !token.WaitTimeout(connectTimeout) {
			c.log.Errorw("mqtt subscribe timeout", "topic", topic)
			continue
		}
		if err := token.Error(); err != nil {
			c.log.Errorw("mqtt subscribe failed", "topic", topic, "err", err)
		}
	}
	c.log.Infow("mqtt subscribed", "topics", []string{statusTopic, infoTopic})
}

// statusPayload mirrors the Shelly TRV status/info JSON shape, fields we
// care about only.
type statusPayload struct {
	Thermostats []struct {
		TargetT struct {
			Value float64 `json:"value"`
		} `json:"target_t"`
		Pos float64 `json:"pos"`
	} `json:"thermostats"`
	Bat struct {
		Value int `json:"value"`
	} `json:"bat"`
	Calibrated *bool `json:"calibrated"`
	WifiSta    struct {
		IP string `json:"ip"`
	} `json:"wifi_sta"`
}

func (c *Client) onStatus(_ paho.Client, msg paho.Message) {
	c.ingest(msg.Topic(), msg.Payload())
}

func (c *Client) onInfo(_ paho.Client, msg paho.Message) {
	c.ingest(msg.Topic(), msg.Payload())
}

func (c *Client) ingest(topic string, payload []byte) {
	c.mu.Lock()
	feed := c.feed
	c.mu.Unlock()
	if feed == nil {
		return
	}

	id, ok := actuatorFromTopic(topic)
	if !ok {
		return
	}

	var p statusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.log.Warnw("bad device payload", "topic", topic, "err", err)
		return
	}

	st := roomheat.DeviceStatus{Calibrated: p.Calibrated, Address: p.WifiSta.IP}
	if p.Bat.Value > 0 {
		bat := p.Bat.Value
		st.BatteryLevel = &bat
	}
	if len(p.Thermostats) > 0 {
		target := p.Thermostats[0].TargetT.Value
		pos := int(p.Thermostats[0].Pos)
		st.TargetTemp = &target
		st.ValvePosition = &pos
	}

	feed.HandleDeviceStatus(context.Background(), id, st)
}

// actuatorFromTopic extracts the device id from "shellies/<id>/...".
func actuatorFromTopic(topic string) (roomheat.ActuatorID, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[0] != "shellies" || parts[1] == "" {
		return "", false
	}
	return roomheat.ActuatorID(parts[1]), true
}
