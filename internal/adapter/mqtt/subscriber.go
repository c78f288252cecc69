package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pscheid92/waterwatch/internal/metrics"
	"github.com/pscheid92/waterwatch/internal/platform/retry"
)

const (
	connectTimeout    = 10 * time.Second
	subscribeTimeout  = 10 * time.Second
	handleTimeout     = 5 * time.Second
	disconnectQuiesce = 250 // milliseconds
)

type Options struct {
	BrokerURL string
	ClientID  string
	Topic     string
	QoS       byte
	Logger    *slog.Logger
}

// Subscriber keeps a broker session alive and feeds every message on Topic
// to the Handler. Subscriptions are renewed on each (re)connect.
type Subscriber struct {
	client  paho.Client
	opts    Options
	handler *Handler
	logger  *slog.Logger
}

func NewSubscriber(opts Options, handler *Handler) *Subscriber {
	s := &Subscriber{opts: opts, handler: handler, logger: opts.Logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	clientOpts := paho.NewClientOptions()
	clientOpts.AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetCleanSession(true)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetMaxReconnectInterval(30 * time.Second)
	clientOpts.SetConnectTimeout(connectTimeout)

	if strings.HasPrefix(opts.BrokerURL, "ssl://") || strings.HasPrefix(opts.BrokerURL, "tls://") || strings.HasPrefix(opts.BrokerURL, "wss://") {
		clientOpts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	clientOpts.SetOnConnectHandler(s.onConnect)
	clientOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		metrics.IngestConnected.Set(0)
		s.logger.Warn("MQTT connection lost", "error", err)
	})
	clientOpts.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		s.logger.Info("Reconnecting to MQTT broker", "broker", opts.BrokerURL)
	})

	s.client = paho.NewClient(clientOpts)
	return s
}

// Start connects with the startup retry policy. Once connected, paho keeps
// reconnecting on its own.
func (s *Subscriber) Start(ctx context.Context) error {
	err := retry.DoVoid(ctx, retry.Startup, retry.Transient, func(context.Context) error {
		token := s.client.Connect()
		if !token.WaitTimeout(connectTimeout) {
			return fmt.Errorf("connect to MQTT broker %s: timed out", s.opts.BrokerURL)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("connect to MQTT broker %s: %w", s.opts.BrokerURL, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("Connected to MQTT broker", "broker", s.opts.BrokerURL)
	return nil
}

func (s *Subscriber) onConnect(client paho.Client) {
	metrics.IngestConnected.Set(1)

	token := client.Subscribe(s.opts.Topic, s.opts.QoS, s.onMessage)
	if !token.WaitTimeout(subscribeTimeout) || token.Error() != nil {
		s.logger.Error("Failed to subscribe", "topic", s.opts.Topic, "error", token.Error())
		return
	}
	s.logger.Info("Subscribed to sensor topic", "topic", s.opts.Topic)
}

func (s *Subscriber) onMessage(_ paho.Client, msg paho.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	stored, err := s.handler.HandleMessage(ctx, msg.Topic(), msg.Payload())
	s.logger.Debug("Processed sensor message", "topic", msg.Topic(), "stored", stored, "error", err)
}

func (s *Subscriber) Stop() {
	if s.client.IsConnected() {
		s.client.Unsubscribe(s.opts.Topic).WaitTimeout(subscribeTimeout)
	}
	s.client.Disconnect(disconnectQuiesce)
	metrics.IngestConnected.Set(0)
	s.logger.Info("Disconnected from MQTT broker")
}
