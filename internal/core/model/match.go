package model

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/gopacket/layers"
)

// SwitchID is the 64-bit datapath identifier of a switch.
type SwitchID uint64

// String renders the datapath id the way controllers usually print it.
func (id SwitchID) String() string {
	s := fmt.Sprintf("%016x", uint64(id))
	parts := make([]string, 0, 8)
	for i := 0; i < len(s); i += 2 {
		parts = append(parts, s[i:i+2])
	}
	return strings.Join(parts, ":")
}

// ParseSwitchID accepts a colon-separated datapath id, a 0x-prefixed hex
// number or a decimal number.
func ParseSwitchID(s string) (SwitchID, error) {
	s = strings.TrimSpace(s)
	var (
		v   uint64
		err error
	)
	switch {
	case strings.Contains(s, ":"):
		v, err = strconv.ParseUint(strings.ReplaceAll(s, ":", ""), 16, 64)
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		v, err = strconv.ParseUint(s[2:], 16, 64)
	default:
		v, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid datapath id %q: %w", s, err)
	}
	return SwitchID(v), nil
}

// Wildcard bits of an OpenFlow 1.0 match (ofp_flow_wildcards).
const (
	WildcardInPort    uint32 = 1 << 0
	WildcardDLVlan    uint32 = 1 << 1
	WildcardDLSrc     uint32 = 1 << 2
	WildcardDLDst     uint32 = 1 << 3
	WildcardDLType    uint32 = 1 << 4
	WildcardNWProto   uint32 = 1 << 5
	WildcardTPSrc     uint32 = 1 << 6
	WildcardTPDst     uint32 = 1 << 7
	WildcardNWSrcAll  uint32 = 32 << 8
	WildcardNWSrcMask uint32 = 63 << 8
	WildcardNWDstAll  uint32 = 32 << 14
	WildcardNWDstMask uint32 = 63 << 14
	WildcardDLVlanPCP uint32 = 1 << 20
	WildcardNWTos     uint32 = 1 << 21

	WildcardAll uint32 = (1 << 22) - 1
)

// Match is an OpenFlow 1.0 packet-header match. It is comparable, so two
// matches are the same flow only when every field and wildcard bit agree.
type Match struct {
	Wildcards uint32              `json:"wildcards"`
	InPort    uint16              `json:"in_port"`
	DLSrc     [6]byte             `json:"dl_src"`
	DLDst     [6]byte             `json:"dl_dst"`
	DLVlan    uint16              `json:"dl_vlan"`
	DLVlanPCP uint8               `json:"dl_vlan_pcp"`
	DLType    layers.EthernetType `json:"dl_type"`
	NWTos     uint8               `json:"nw_tos"`
	NWProto   layers.IPProtocol   `json:"nw_proto"`
	NWSrc     [4]byte             `json:"nw_src"`
	NWDst     [4]byte             `json:"nw_dst"`
	TPSrc     uint16              `json:"tp_src"`
	TPDst     uint16              `json:"tp_dst"`
}

// UniversalMatch returns the match that wildcards every field.
func UniversalMatch() Match {
	return Match{Wildcards: WildcardAll}
}

// IsWildcarded reports whether every bit of flag is set.
func (m Match) IsWildcarded(flag uint32) bool {
	return m.Wildcards&flag == flag
}

// WithWildcard returns a copy of m with the given fields wildcarded and
// their values cleared.
func (m Match) WithWildcard(flags uint32) Match {
	out := m
	out.Wildcards |= flags
	if flags&WildcardInPort != 0 {
		out.InPort = 0
	}
	if flags&WildcardDLVlan != 0 {
		out.DLVlan = 0
	}
	if flags&WildcardDLSrc != 0 {
		out.DLSrc = [6]byte{}
	}
	if flags&WildcardDLDst != 0 {
		out.DLDst = [6]byte{}
	}
	if flags&WildcardDLType != 0 {
		out.DLType = 0
	}
	if flags&WildcardNWProto != 0 {
		out.NWProto = 0
	}
	if flags&WildcardTPSrc != 0 {
		out.TPSrc = 0
	}
	if flags&WildcardTPDst != 0 {
		out.TPDst = 0
	}
	if flags&WildcardNWSrcMask != 0 {
		out.NWSrc = [4]byte{}
	}
	if flags&WildcardNWDstMask != 0 {
		out.NWDst = [4]byte{}
	}
	if flags&WildcardDLVlanPCP != 0 {
		out.DLVlanPCP = 0
	}
	if flags&WildcardNWTos != 0 {
		out.NWTos = 0
	}
	return out
}

// WithVLAN returns a copy of m matching exactly the given VLAN id.
func (m Match) WithVLAN(vlan uint16) Match {
	out := m
	out.Wildcards &^= WildcardDLVlan
	out.DLVlan = vlan
	return out
}

// String renders the non-wildcarded fields in ovs-ofctl style.
func (m Match) String() string {
	if m.Wildcards == WildcardAll {
		return "match[all]"
	}
	var parts []string
	if !m.IsWildcarded(WildcardInPort) {
		parts = append(parts, fmt.Sprintf("in_port=%d", m.InPort))
	}
	if !m.IsWildcarded(WildcardDLVlan) {
		parts = append(parts, fmt.Sprintf("dl_vlan=%d", m.DLVlan))
	}
	if !m.IsWildcarded(WildcardDLVlanPCP) {
		parts = append(parts, fmt.Sprintf("dl_vlan_pcp=%d", m.DLVlanPCP))
	}
	if !m.IsWildcarded(WildcardDLSrc) {
		parts = append(parts, "dl_src="+net.HardwareAddr(m.DLSrc[:]).String())
	}
	if !m.IsWildcarded(WildcardDLDst) {
		parts = append(parts, "dl_dst="+net.HardwareAddr(m.DLDst[:]).String())
	}
	if !m.IsWildcarded(WildcardDLType) {
		parts = append(parts, "dl_type="+m.DLType.String())
	}
	if !m.IsWildcarded(WildcardNWTos) {
		parts = append(parts, fmt.Sprintf("nw_tos=%d", m.NWTos))
	}
	if !m.IsWildcarded(WildcardNWProto) {
		parts = append(parts, "nw_proto="+m.NWProto.String())
	}
	if m.Wildcards&WildcardNWSrcMask < WildcardNWSrcAll {
		parts = append(parts, "nw_src="+net.IP(m.NWSrc[:]).String())
	}
	if m.Wildcards&WildcardNWDstMask < WildcardNWDstAll {
		parts = append(parts, "nw_dst="+net.IP(m.NWDst[:]).String())
	}
	if !m.IsWildcarded(WildcardTPSrc) {
		parts = append(parts, fmt.Sprintf("tp_src=%d", m.TPSrc))
	}
	if !m.IsWildcarded(WildcardTPDst) {
		parts = append(parts, fmt.Sprintf("tp_dst=%d", m.TPDst))
	}
	return "match[" + strings.Join(parts, ",") + "]"
}
