package model

import "fmt"

// FlowModCommand is an OpenFlow 1.0 flow_mod command.
type FlowModCommand uint16

const (
	FlowAdd          FlowModCommand = 0
	FlowModify       FlowModCommand = 1
	FlowModifyStrict FlowModCommand = 2
	FlowDelete       FlowModCommand = 3
	FlowDeleteStrict FlowModCommand = 4
)

const (
	// PortNone is OFPP_NONE, used as out_port when deletes must not filter on output.
	PortNone uint16 = 0xffff

	// FlowModMinLength is sizeof(ofp_flow_mod) without actions.
	FlowModMinLength = 72
	// FlowStatsMinLength is sizeof(ofp_flow_stats) without actions.
	FlowStatsMinLength = 88
)

// FlowMod is a flow request, either as a slice asked for it (logical) or as
// it was installed on a switch (physical).
type FlowMod struct {
	Command     FlowModCommand `json:"command"`
	Match       Match          `json:"match"`
	Actions     ActionList     `json:"actions"`
	Priority    uint16         `json:"priority"`
	Cookie      uint64         `json:"cookie"`
	IdleTimeout uint16         `json:"idle_timeout"`
	HardTimeout uint16         `json:"hard_timeout"`
	OutPort     uint16         `json:"out_port"`
	Flags       uint16         `json:"flags"`
}

// Clone returns a deep copy of f.
func (f FlowMod) Clone() FlowMod {
	out := f
	out.Actions = f.Actions.Clone()
	return out
}

// Length is the on-wire length of the flow_mod.
func (f FlowMod) Length() int {
	return FlowModMinLength + f.Actions.Length()
}

// IsDefaultDrop reports whether f is the implicit match-all drop rule.
func (f FlowMod) IsDefaultDrop() bool {
	return f.Match == UniversalMatch() && len(f.Actions) == 0
}

// WithoutVLAN returns the VLAN-agnostic form of f: the VLAN field is
// wildcarded and VLAN rewrites are dropped from the actions.
func (f FlowMod) WithoutVLAN() FlowMod {
	out := f.Clone()
	out.Match = f.Match.WithWildcard(WildcardDLVlan)
	out.Actions = f.Actions.WithoutVLANRewrites()
	return out
}

// DeleteStrict builds the strict delete removing exactly this flow.
func (f FlowMod) DeleteStrict() *FlowMod {
	return &FlowMod{
		Command:     FlowDeleteStrict,
		Match:       f.Match,
		Priority:    f.Priority,
		Cookie:      f.Cookie,
		IdleTimeout: f.IdleTimeout,
		HardTimeout: f.HardTimeout,
		OutPort:     PortNone,
	}
}

func (f FlowMod) String() string {
	return fmt.Sprintf("flow_mod{cmd=%d priority=%d cookie=%#x %s %s}", f.Command, f.Priority, f.Cookie, f.Match, f.Actions)
}

// FlowStats is one entry of a flow statistics reply.
type FlowStats struct {
	TableID             uint8      `json:"table_id"`
	Match               Match      `json:"match"`
	DurationSeconds     uint32     `json:"duration_sec"`
	DurationNanoseconds uint32     `json:"duration_nsec"`
	Priority            uint16     `json:"priority"`
	IdleTimeout         uint16     `json:"idle_timeout"`
	HardTimeout         uint16     `json:"hard_timeout"`
	Cookie              uint64     `json:"cookie"`
	PacketCount         uint64     `json:"packet_count"`
	ByteCount           uint64     `json:"byte_count"`
	Actions             ActionList `json:"actions"`
}

// FlowMod returns the flow request equivalent to the reported flow.
func (s FlowStats) FlowMod() FlowMod {
	return FlowMod{
		Command:     FlowAdd,
		Match:       s.Match,
		Actions:     s.Actions.Clone(),
		Priority:    s.Priority,
		Cookie:      s.Cookie,
		IdleTimeout: s.IdleTimeout,
		HardTimeout: s.HardTimeout,
		OutPort:     PortNone,
	}
}

func (s FlowStats) String() string {
	return fmt.Sprintf("flow_stats{priority=%d cookie=%#x packets=%d bytes=%d %s %s}", s.Priority, s.Cookie, s.PacketCount, s.ByteCount, s.Match, s.Actions)
}

// PortStats is one entry of a port statistics reply.
type PortStats struct {
	PortNo     uint16 `json:"port_no"`
	RxPackets  uint64 `json:"rx_packets"`
	TxPackets  uint64 `json:"tx_packets"`
	RxBytes    uint64 `json:"rx_bytes"`
	TxBytes    uint64 `json:"tx_bytes"`
	RxDropped  uint64 `json:"rx_dropped"`
	TxDropped  uint64 `json:"tx_dropped"`
	RxErrors   uint64 `json:"rx_errors"`
	TxErrors   uint64 `json:"tx_errors"`
	RxFrameErr uint64 `json:"rx_frame_err"`
	RxOverErr  uint64 `json:"rx_over_err"`
	RxCrcErr   uint64 `json:"rx_crc_err"`
	Collisions uint64 `json:"collisions"`
}
