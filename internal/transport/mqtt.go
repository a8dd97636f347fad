package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"tellerdesk/internal/domain"
	"tellerdesk/internal/usecase"
)

const (
	topicKWS     = "rp/+/event/kws"
	topicAudio   = "rp/+/audio/stream"
	topicControl = "server/control/%s/end"
)

// Config holds broker settings.
type Config struct {
	BrokerURL string
	ClientID  string
}

// kwsPayload is the wire form of a keyword-spotting event.
type kwsPayload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
}

// audioPayload is the wire form of an audio chunk. Audio travels base64
// encoded inside the JSON body.
type audioPayload struct {
	ChunkNumber int    `json:"chunk_number"`
	AudioBase64 string `json:"audio_base64"`
	Format      string `json:"format"`
	SampleRate  int    `json:"sample_rate"`
}

type controlPayload struct {
	Command   string `json:"command"`
	Timestamp string `json:"timestamp"`
}

// Client subscribes to the RP device topics, decodes payloads into typed
// events for the router, and publishes control commands back to devices.
type Client struct {
	cfg    Config
	logger *slog.Logger
	conn   mqtt.Client

	mu     sync.RWMutex
	router *usecase.EventRouter
}

// NewClient builds an unconnected client. Wire the router with SetRouter
// before Connect; the client doubles as the registry's DeviceControl, which
// is why the router cannot be a constructor argument.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "mqtt"),
	}
}

// SetRouter wires the event router.
func (c *Client) SetRouter(router *usecase.EventRouter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.router = router
}

func (c *Client) getRouter() *usecase.EventRouter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.router
}

// Connect dials the broker and subscribes to the device topics. Messages
// are dispatched from paho's callback goroutine; the router hands audio off
// to the pipeline immediately, so the callback never blocks on processing.
func (c *Client) Connect() error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(true)

	opts.OnConnect = func(conn mqtt.Client) {
		c.logger.Info("connected to broker", "url", c.cfg.BrokerURL)
		if token := conn.Subscribe(topicKWS, 1, c.onKWS); token.Wait() && token.Error() != nil {
			c.logger.Error("kws subscribe failed", "error", token.Error())
		}
		if token := conn.Subscribe(topicAudio, 0, c.onAudio); token.Wait() && token.Error() != nil {
			c.logger.Error("audio subscribe failed", "error", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		c.logger.Warn("broker connection lost", "error", err)
	}

	c.conn = mqtt.NewClient(opts)
	token := c.conn.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return fmt.Errorf("broker connect timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() {
	if c.conn != nil && c.conn.IsConnected() {
		c.conn.Disconnect(250)
	}
}

// deviceFromTopic extracts the RP id from rp/<id>/... topics.
func deviceFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[0] != "rp" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func (c *Client) onKWS(_ mqtt.Client, msg mqtt.Message) {
	router := c.getRouter()
	if router == nil {
		return
	}
	deviceID, ok := deviceFromTopic(msg.Topic())
	if !ok {
		c.logger.Warn("unroutable topic, message dropped", "topic", msg.Topic())
		return
	}

	var payload kwsPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		c.logger.Warn("malformed kws payload dropped", "device", deviceID, "error", err)
		return
	}

	evt := domain.KWSEvent{
		Kind: usecase.NormalizeKWS(payload.Event),
		Raw:  payload.Event,
	}
	if ts, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
		evt.Timestamp = ts
	}

	router.HandleKWS(context.Background(), deviceID, evt)
}

func (c *Client) onAudio(_ mqtt.Client, msg mqtt.Message) {
	router := c.getRouter()
	if router == nil {
		return
	}
	deviceID, ok := deviceFromTopic(msg.Topic())
	if !ok {
		c.logger.Warn("unroutable topic, message dropped", "topic", msg.Topic())
		return
	}

	var payload audioPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		c.logger.Warn("malformed audio payload dropped", "device", deviceID, "error", err)
		return
	}
	data, err := base64.StdEncoding.DecodeString(payload.AudioBase64)
	if err != nil {
		c.logger.Warn("invalid audio encoding dropped", "device", deviceID, "error", err)
		return
	}

	format := domain.AudioFormat(strings.ToLower(payload.Format))
	if payload.Format == "" {
		format = domain.AudioFormatMP3
	}

	router.HandleAudio(context.Background(), deviceID, domain.AudioChunk{
		Seq:        payload.ChunkNumber,
		Data:       data,
		Format:     format,
		SampleRate: payload.SampleRate,
	})
}

// EndStream tells an RP unit to stop streaming audio.
func (c *Client) EndStream(deviceID string) error {
	if c.conn == nil || !c.conn.IsConnected() {
		return fmt.Errorf("not connected to broker")
	}
	payload, err := json.Marshal(controlPayload{
		Command:   "end",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	topic := fmt.Sprintf(topicControl, deviceID)
	token := c.conn.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}
