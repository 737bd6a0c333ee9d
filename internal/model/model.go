package model

import (
	core "FlowSpaceFirewall/internal/core/model"
)

// Switch is the live transport to one switch.
type Switch interface {
	ID() core.SwitchID
	// Send writes a flow_mod to the switch.
	Send(msg *core.FlowMod) error
}

// SwitchSet exposes the switches currently connected to the controller.
type SwitchSet interface {
	Switches() []Switch
}

// Slicer is the policy of one slice on one switch. It decides whether a
// flow belongs to the slice and which physical flows realize it.
type Slicer interface {
	Name() string
	// TagManagement reports whether the slice runs in managed-tag mode,
	// where per-VLAN physical flows share one VLAN-agnostic logical flow.
	TagManagement() bool
	// Classify returns the physical flows the slice derives from flow, or
	// nothing when the slice rejects it.
	Classify(flow core.FlowMod) []core.FlowMod
	// DeriveFlows expands a logical flow into physical flows, in managed
	// or plain mode.
	DeriveFlows(flow core.FlowMod, managed bool) []core.FlowMod
}

// LogicalFlowDeriver is implemented by slicers that want to control how a
// discovered physical flow is generalized into its logical parent.
type LogicalFlowDeriver interface {
	LogicalFlow(physical core.FlowMod) core.FlowMod
}

// Proxy is the per-slice, per-switch facade that consumes flow counts and
// owns timeout bookkeeping.
type Proxy interface {
	Slicer() Slicer
	SetFlowCount(n int)
	Timeouts() []core.FlowTimeout
	CheckExpiredFlows()
}

// SliceRegistry resolves the slices configured on a switch. The order of
// SlicesForSwitch is the classification precedence.
type SliceRegistry interface {
	SlicesForSwitch(sw core.SwitchID) []Slicer
	Proxy(sw core.SwitchID, sliceName string) Proxy
}
