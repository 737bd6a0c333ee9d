package transport

import (
	"FlowSpaceFirewall/internal/config"
	core "FlowSpaceFirewall/internal/core/model"
	"FlowSpaceFirewall/internal/pkg/logging"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Publisher publishes flow_mods to switch agents and statistics reports to
// the cache.
type Publisher struct {
	nc          *nats.Conn
	prefix      string
	flowSubject string
	portSubject string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("fsfw-cache-publisher"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	logging.WithComponent("transport").Infof("Connected to NATS server at %s", cfg.URL)
	return &Publisher{
		nc:          nc,
		prefix:      cfg.FlowModPrefix,
		flowSubject: cfg.FlowStatsSubject,
		portSubject: cfg.PortStatsSubject,
	}, nil
}

// PublishFlowMod sends flow to the agent of dpid.
func (p *Publisher) PublishFlowMod(dpid core.SwitchID, flow *core.FlowMod) error {
	data, err := json.Marshal(FlowModMessage{SwitchID: dpid, FlowMod: *flow})
	if err != nil {
		return fmt.Errorf("failed to encode flow mod: %w", err)
	}
	return p.nc.Publish(FlowModSubject(p.prefix, dpid), data)
}

// PublishFlowStats publishes a flow statistics report.
func (p *Publisher) PublishFlowStats(report FlowStatsReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode flow stats report: %w", err)
	}
	return p.nc.Publish(p.flowSubject, data)
}

// PublishPortStats publishes a port statistics report.
func (p *Publisher) PublishPortStats(report PortStatsReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode port stats report: %w", err)
	}
	return p.nc.Publish(p.portSubject, data)
}

// Flush waits until the server has processed every published message.
func (p *Publisher) Flush() error {
	return p.nc.Flush()
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		logging.WithComponent("transport").Info("NATS connection drained and closed.")
	}
}
