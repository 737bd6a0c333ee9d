package transport

import (
	core "FlowSpaceFirewall/internal/core/model"
	"encoding/json"
	"fmt"
)

// FlowStatsReport is one flow statistics reply of a switch.
type FlowStatsReport struct {
	SwitchID core.SwitchID    `json:"dpid"`
	Flows    []core.FlowStats `json:"flows"`
}

// PortStatsReport is one port statistics reply of a switch.
type PortStatsReport struct {
	SwitchID core.SwitchID    `json:"dpid"`
	Ports    []core.PortStats `json:"ports"`
}

// FlowModMessage is a flow_mod addressed to a switch agent.
type FlowModMessage struct {
	SwitchID core.SwitchID `json:"dpid"`
	FlowMod  core.FlowMod  `json:"flow_mod"`
}

// DecodeFlowStats decodes a flow statistics report.
func DecodeFlowStats(data []byte) (FlowStatsReport, error) {
	var r FlowStatsReport
	if err := json.Unmarshal(data, &r); err != nil {
		return FlowStatsReport{}, fmt.Errorf("failed to decode flow stats report: %w", err)
	}
	return r, nil
}

// DecodePortStats decodes a port statistics report.
func DecodePortStats(data []byte) (PortStatsReport, error) {
	var r PortStatsReport
	if err := json.Unmarshal(data, &r); err != nil {
		return PortStatsReport{}, fmt.Errorf("failed to decode port stats report: %w", err)
	}
	return r, nil
}

// DecodeFlowMod decodes a flow_mod message.
func DecodeFlowMod(data []byte) (FlowModMessage, error) {
	var m FlowModMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return FlowModMessage{}, fmt.Errorf("failed to decode flow mod: %w", err)
	}
	return m, nil
}

// FlowModSubject returns the subject the agent of dpid listens on.
func FlowModSubject(prefix string, dpid core.SwitchID) string {
	return fmt.Sprintf("%s.%016x.flowmod", prefix, uint64(dpid))
}
