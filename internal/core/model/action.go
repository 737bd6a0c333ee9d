package model

import (
	"fmt"
	"net"
	"strings"
)

// ActionType is an OpenFlow 1.0 action type (ofp_action_type).
type ActionType uint16

const (
	ActionOutput     ActionType = 0
	ActionSetVlanVID ActionType = 1
	ActionSetVlanPCP ActionType = 2
	ActionStripVlan  ActionType = 3
	ActionSetDLSrc   ActionType = 4
	ActionSetDLDst   ActionType = 5
	ActionSetNWSrc   ActionType = 6
	ActionSetNWDst   ActionType = 7
	ActionSetNWTos   ActionType = 8
	ActionSetTPSrc   ActionType = 9
	ActionSetTPDst   ActionType = 10
	ActionEnqueue    ActionType = 11
	ActionVendor     ActionType = 0xffff
)

var actionNames = map[ActionType]string{
	ActionOutput:     "output",
	ActionSetVlanVID: "mod_vlan_vid",
	ActionSetVlanPCP: "mod_vlan_pcp",
	ActionStripVlan:  "strip_vlan",
	ActionSetDLSrc:   "mod_dl_src",
	ActionSetDLDst:   "mod_dl_dst",
	ActionSetNWSrc:   "mod_nw_src",
	ActionSetNWDst:   "mod_nw_dst",
	ActionSetNWTos:   "mod_nw_tos",
	ActionSetTPSrc:   "mod_tp_src",
	ActionSetTPDst:   "mod_tp_dst",
	ActionEnqueue:    "enqueue",
	ActionVendor:     "vendor",
}

func (t ActionType) String() string {
	if name, ok := actionNames[t]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", uint16(t))
}

// Action is a single OpenFlow 1.0 action. Only the fields relevant to Type
// are set; the struct is comparable so lists can be compared by content.
type Action struct {
	Type    ActionType `json:"type"`
	Port    uint16     `json:"port,omitempty"`
	MaxLen  uint16     `json:"max_len,omitempty"`
	VlanID  uint16     `json:"vlan_vid,omitempty"`
	VlanPCP uint8      `json:"vlan_pcp,omitempty"`
	MAC     [6]byte    `json:"mac,omitempty"`
	IP      [4]byte    `json:"ip,omitempty"`
	TOS     uint8      `json:"tos,omitempty"`
	TPPort  uint16     `json:"tp_port,omitempty"`
	QueueID uint32     `json:"queue_id,omitempty"`
}

// Output returns an output action to the given port.
func Output(port uint16) Action {
	return Action{Type: ActionOutput, Port: port, MaxLen: 0xffff}
}

// SetVlanVID returns an action rewriting the VLAN id.
func SetVlanVID(vlan uint16) Action {
	return Action{Type: ActionSetVlanVID, VlanID: vlan}
}

// StripVlan returns an action removing the 802.1Q header.
func StripVlan() Action {
	return Action{Type: ActionStripVlan}
}

// Length returns the on-wire length of the action in bytes.
func (a Action) Length() int {
	switch a.Type {
	case ActionSetDLSrc, ActionSetDLDst, ActionEnqueue:
		return 16
	default:
		return 8
	}
}

func (a Action) String() string {
	switch a.Type {
	case ActionOutput:
		return fmt.Sprintf("output:%d", a.Port)
	case ActionSetVlanVID:
		return fmt.Sprintf("mod_vlan_vid:%d", a.VlanID)
	case ActionSetVlanPCP:
		return fmt.Sprintf("mod_vlan_pcp:%d", a.VlanPCP)
	case ActionSetDLSrc, ActionSetDLDst:
		return a.Type.String() + ":" + net.HardwareAddr(a.MAC[:]).String()
	case ActionSetNWSrc, ActionSetNWDst:
		return a.Type.String() + ":" + net.IP(a.IP[:]).String()
	case ActionSetNWTos:
		return fmt.Sprintf("mod_nw_tos:%d", a.TOS)
	case ActionSetTPSrc, ActionSetTPDst:
		return fmt.Sprintf("%s:%d", a.Type, a.TPPort)
	case ActionEnqueue:
		return fmt.Sprintf("enqueue:%d:%d", a.Port, a.QueueID)
	default:
		return a.Type.String()
	}
}

// ActionList is the ordered action list of a flow.
type ActionList []Action

// Equal reports whether l and other hold the same actions, ignoring order.
func (l ActionList) Equal(other ActionList) bool {
	if len(l) != len(other) {
		return false
	}
	counts := make(map[Action]int, len(l))
	for _, a := range l {
		counts[a]++
	}
	for _, a := range other {
		if counts[a] == 0 {
			return false
		}
		counts[a]--
	}
	return true
}

// Length returns the summed on-wire length of the actions.
func (l ActionList) Length() int {
	n := 0
	for _, a := range l {
		n += a.Length()
	}
	return n
}

// Clone returns an independent copy of the list.
func (l ActionList) Clone() ActionList {
	if l == nil {
		return nil
	}
	out := make(ActionList, len(l))
	copy(out, l)
	return out
}

// WithoutVLANRewrites drops every SET_VLAN_VID and STRIP_VLAN action.
func (l ActionList) WithoutVLANRewrites() ActionList {
	out := make(ActionList, 0, len(l))
	for _, a := range l {
		if a.Type == ActionSetVlanVID || a.Type == ActionStripVlan {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (l ActionList) String() string {
	if len(l) == 0 {
		return "actions=drop"
	}
	parts := make([]string, len(l))
	for i, a := range l {
		parts[i] = a.String()
	}
	return "actions=" + strings.Join(parts, ",")
}
