package slicer

import (
	core "FlowSpaceFirewall/internal/core/model"
	"sort"
)

// Slicer is one slice's flowspace on one switch: the ports it owns and the
// VLANs it may use on each of them.
type Slicer struct {
	name          string
	dpid          core.SwitchID
	tagManagement bool
	ports         map[uint16][]uint16
}

// New creates a slicer. ports maps a port number to its allowed VLANs.
func New(name string, dpid core.SwitchID, tagManagement bool, ports map[uint16][]uint16) *Slicer {
	owned := make(map[uint16][]uint16, len(ports))
	for port, vlans := range ports {
		v := append([]uint16(nil), vlans...)
		sort.Slice(v, func(i, j int) bool { return v[i] < v[j] })
		owned[port] = v
	}
	return &Slicer{name: name, dpid: dpid, tagManagement: tagManagement, ports: owned}
}

func (s *Slicer) Name() string            { return s.name }
func (s *Slicer) SwitchID() core.SwitchID { return s.dpid }
func (s *Slicer) TagManagement() bool     { return s.tagManagement }

// Ports returns the port numbers owned by the slice, sorted.
func (s *Slicer) Ports() []uint16 {
	out := make([]uint16, 0, len(s.ports))
	for p := range s.ports {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// VLANs returns the VLANs allowed on port.
func (s *Slicer) VLANs(port uint16) []uint16 {
	return append([]uint16(nil), s.ports[port]...)
}

func (s *Slicer) allowed(port, vlan uint16) bool {
	for _, v := range s.ports[port] {
		if v == vlan {
			return true
		}
	}
	return false
}

func (s *Slicer) anyPortAllows(vlan uint16) bool {
	for port := range s.ports {
		if s.allowed(port, vlan) {
			return true
		}
	}
	return false
}

// Classify accepts a physical flow that matches an exact in_port and VLAN
// inside the flowspace, outputs only to owned ports and rewrites VLANs only
// to ones the slice may use. It returns the flow itself, or nil.
func (s *Slicer) Classify(flow core.FlowMod) []core.FlowMod {
	m := flow.Match
	if m.IsWildcarded(core.WildcardInPort) || m.IsWildcarded(core.WildcardDLVlan) {
		return nil
	}
	if !s.allowed(m.InPort, m.DLVlan) {
		return nil
	}
	if !s.actionsAllowed(flow.Actions) {
		return nil
	}
	return []core.FlowMod{flow.Clone()}
}

func (s *Slicer) actionsAllowed(actions core.ActionList) bool {
	for _, a := range actions {
		switch a.Type {
		case core.ActionOutput, core.ActionEnqueue:
			if _, ok := s.ports[a.Port]; !ok {
				return false
			}
		case core.ActionSetVlanVID:
			if !s.anyPortAllows(a.VlanID) {
				return false
			}
		case core.ActionStripVlan:
			return false
		}
	}
	return true
}

// DeriveFlows returns the physical flows that realize a logical flow. In
// managed mode the logical flow is VLAN-agnostic and is expanded into one
// flow per VLAN allowed on its in_port, each tagging its output with that
// VLAN. Otherwise the logical flow is installed as is.
func (s *Slicer) DeriveFlows(flow core.FlowMod, managed bool) []core.FlowMod {
	if !managed {
		return s.Classify(flow)
	}
	if flow.Match.IsWildcarded(core.WildcardInPort) {
		return nil
	}

	base := flow.WithoutVLAN()
	var out []core.FlowMod
	for _, vlan := range s.ports[flow.Match.InPort] {
		phys := base.Clone()
		phys.Match = base.Match.WithVLAN(vlan)
		phys.Actions = append(core.ActionList{core.SetVlanVID(vlan)}, base.Actions...)
		if len(s.Classify(phys)) > 0 {
			out = append(out, phys)
		}
	}
	return out
}
