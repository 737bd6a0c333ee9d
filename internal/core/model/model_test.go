package model

import (
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
)

func vlanMatch(port, vlan uint16) Match {
	m := UniversalMatch()
	m.Wildcards &^= WildcardInPort | WildcardDLVlan
	m.InPort = port
	m.DLVlan = vlan
	return m
}

func TestSwitchIDString(t *testing.T) {
	assert.Equal(t, "00:00:00:00:00:00:00:01", SwitchID(1).String())
	assert.Equal(t, "00:00:00:00:de:ad:be:ef", SwitchID(0xdeadbeef).String())
}

func TestParseSwitchID(t *testing.T) {
	tests := []struct {
		in   string
		want SwitchID
		ok   bool
	}{
		{"00:00:00:00:00:00:00:01", 1, true},
		{"00:00:00:00:de:ad:be:ef", 0xdeadbeef, true},
		{"0x10", 16, true},
		{"42", 42, true},
		{" 7 ", 7, true},
		{"zz:01", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseSwitchID(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, mustParse(t, got.String()))
	}
}

func mustParse(t *testing.T, s string) SwitchID {
	t.Helper()
	id, err := ParseSwitchID(s)
	assert.NoError(t, err)
	return id
}

func TestMatchEquality(t *testing.T) {
	a := vlanMatch(1, 10)
	b := vlanMatch(1, 10)
	assert.Equal(t, a, b)
	assert.True(t, a == b)

	// Same fields, different wildcard bits: not the same flow.
	c := b
	c.Wildcards &^= WildcardDLType
	assert.False(t, a == c)

	m := map[Match]int{a: 1}
	_, ok := m[b]
	assert.True(t, ok)
}

func TestMatchWithWildcard(t *testing.T) {
	m := vlanMatch(3, 100)
	w := m.WithWildcard(WildcardDLVlan)

	assert.True(t, w.IsWildcarded(WildcardDLVlan))
	assert.Equal(t, uint16(0), w.DLVlan)
	assert.Equal(t, uint16(3), w.InPort)
	assert.Equal(t, m, w.WithVLAN(100))
}

func TestMatchString(t *testing.T) {
	assert.Equal(t, "match[all]", UniversalMatch().String())

	m := vlanMatch(2, 20)
	m.Wildcards &^= WildcardDLType
	m.DLType = layers.EthernetTypeIPv4
	assert.Equal(t, "match[in_port=2,dl_vlan=20,dl_type=IPv4]", m.String())
}

func TestActionListEqualIgnoresOrder(t *testing.T) {
	a := ActionList{SetVlanVID(10), Output(1), Output(2)}
	b := ActionList{Output(2), SetVlanVID(10), Output(1)}
	c := ActionList{Output(2), Output(2), SetVlanVID(10)}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c), "same length but different multiset")
	assert.False(t, a.Equal(a[:2]))
	assert.True(t, ActionList(nil).Equal(ActionList{}))
}

func TestActionListLength(t *testing.T) {
	l := ActionList{Output(1), {Type: ActionSetDLSrc}, StripVlan()}
	assert.Equal(t, 32, l.Length())
}

func TestFlowModWithoutVLAN(t *testing.T) {
	f := FlowMod{
		Match:   vlanMatch(1, 10),
		Actions: ActionList{SetVlanVID(20), Output(2), StripVlan()},
	}
	g := f.WithoutVLAN()

	assert.True(t, g.Match.IsWildcarded(WildcardDLVlan))
	assert.Equal(t, ActionList{Output(2)}, g.Actions)
	// The original is untouched.
	assert.Len(t, f.Actions, 3)
	assert.Equal(t, uint16(10), f.Match.DLVlan)
}

func TestFlowModIsDefaultDrop(t *testing.T) {
	assert.True(t, FlowMod{Match: UniversalMatch()}.IsDefaultDrop())
	assert.False(t, FlowMod{Match: UniversalMatch(), Actions: ActionList{Output(1)}}.IsDefaultDrop())
	assert.False(t, FlowMod{Match: vlanMatch(1, 1)}.IsDefaultDrop())
}

func TestFlowModDeleteStrict(t *testing.T) {
	f := FlowMod{Match: vlanMatch(1, 10), Priority: 100, Cookie: 7, IdleTimeout: 5, HardTimeout: 30, Actions: ActionList{Output(1)}}
	d := f.DeleteStrict()

	assert.Equal(t, FlowDeleteStrict, d.Command)
	assert.Equal(t, f.Match, d.Match)
	assert.Equal(t, uint16(100), d.Priority)
	assert.Equal(t, uint64(7), d.Cookie)
	assert.Equal(t, PortNone, d.OutPort)
	assert.Empty(t, d.Actions)
}

func TestNewFlowRecord(t *testing.T) {
	f := FlowMod{Match: vlanMatch(1, 10), Priority: 5, Cookie: 9, Actions: ActionList{Output(1), Output(2)}}
	r := NewFlowRecord(f)

	assert.Equal(t, uint64(0), r.ByteCount)
	assert.Equal(t, uint64(0), r.PacketCount)
	assert.Equal(t, FlowStatsMinLength+16, r.Length)
	assert.False(t, r.HasParent())
	assert.Equal(t, f.Match, r.FlowMod().Match)

	// Actions are copied, not shared.
	f.Actions[0] = Output(9)
	assert.Equal(t, Output(1), r.Actions[0])
}

func TestFlowTimeoutExpired(t *testing.T) {
	now := time.Now()
	hard := FlowTimeout{Installed: now.Add(-31 * time.Second), LastActive: now, HardTimeout: 30 * time.Second}
	idle := FlowTimeout{Installed: now, LastActive: now.Add(-11 * time.Second), IdleTimeout: 10 * time.Second}
	live := FlowTimeout{Installed: now, LastActive: now, IdleTimeout: 10 * time.Second, HardTimeout: 30 * time.Second}
	forever := FlowTimeout{Installed: now.Add(-time.Hour), LastActive: now.Add(-time.Hour)}

	assert.True(t, hard.Expired(now))
	assert.True(t, idle.Expired(now))
	assert.False(t, live.Expired(now))
	assert.False(t, forever.Expired(now))
}

func TestSnapshotCounts(t *testing.T) {
	s := NewSnapshot()
	s.Sliced[1] = map[string][]FlowRecord{"a": {{ID: 1}, {ID: 2}}, "b": {{ID: 3}}}
	s.Mapped[1] = []FlowRecord{{ID: 4}}
	s.Mapped[2] = []FlowRecord{{ID: 5}}

	parents, children := s.Counts()
	assert.Equal(t, 3, parents)
	assert.Equal(t, 2, children)
	assert.ElementsMatch(t, []SwitchID{1, 2}, s.Switches())
}
