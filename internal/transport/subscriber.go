package transport

import (
	"FlowSpaceFirewall/internal/config"
	"FlowSpaceFirewall/internal/pkg/logging"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// FlowStatsHandler processes a received flow statistics report.
type FlowStatsHandler func(report FlowStatsReport)

// PortStatsHandler processes a received port statistics report.
type PortStatsHandler func(report PortStatsReport)

// Subscriber receives statistics reports from the switch agents.
type Subscriber struct {
	nc          *nats.Conn
	subs        []*nats.Subscription
	flowSubject string
	portSubject string
	closed      chan struct{}
}

// drainTimeout bounds how long Close waits for in-flight callbacks.
const drainTimeout = 10 * time.Second

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.NATSConfig) (*Subscriber, error) {
	s := &Subscriber{
		flowSubject: cfg.FlowStatsSubject,
		portSubject: cfg.PortStatsSubject,
		closed:      make(chan struct{}),
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("fsfw-cache"),
		nats.DrainTimeout(drainTimeout),
		nats.ClosedHandler(func(_ *nats.Conn) { close(s.closed) }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	s.nc = nc
	logging.WithComponent("transport").Infof("Connected to NATS server at %s", cfg.URL)
	return s, nil
}

// Start subscribes to the statistics subjects and passes every decoded
// report to its handler. Undecodable messages are logged and dropped.
func (s *Subscriber) Start(onFlows FlowStatsHandler, onPorts PortStatsHandler) error {
	log := logging.WithComponent("transport")

	flowSub, err := s.nc.Subscribe(s.flowSubject, func(msg *nats.Msg) {
		report, err := DecodeFlowStats(msg.Data)
		if err != nil {
			log.Warnf("Dropping message on '%s': %v", msg.Subject, err)
			return
		}
		onFlows(report)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to '%s': %w", s.flowSubject, err)
	}
	s.subs = append(s.subs, flowSub)

	portSub, err := s.nc.Subscribe(s.portSubject, func(msg *nats.Msg) {
		report, err := DecodePortStats(msg.Data)
		if err != nil {
			log.Warnf("Dropping message on '%s': %v", msg.Subject, err)
			return
		}
		onPorts(report)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to '%s': %w", s.portSubject, err)
	}
	s.subs = append(s.subs, portSub)

	log.Infof("Subscribed to '%s' and '%s'. Waiting for reports...", s.flowSubject, s.portSubject)
	return nil
}

// Close drains the subscriptions and waits until every message already
// delivered has been handed to its handler and the connection is closed.
func (s *Subscriber) Close() {
	if s.nc == nil {
		return
	}
	log := logging.WithComponent("transport")
	if err := s.nc.Drain(); err != nil {
		log.Warnf("Failed to drain NATS connection: %v", err)
		s.nc.Close()
	}
	select {
	case <-s.closed:
		log.Info("NATS subscriber connection closed.")
	case <-time.After(drainTimeout + time.Second):
		log.Warn("Timed out waiting for NATS subscriber to close.")
	}
}
