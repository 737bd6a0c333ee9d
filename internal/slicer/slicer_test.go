package slicer

import (
	"FlowSpaceFirewall/internal/config"
	core "FlowSpaceFirewall/internal/core/model"
	"FlowSpaceFirewall/internal/model"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dpid = core.SwitchID(1)

type fakeSwitch struct {
	id   core.SwitchID
	err  error
	sent []*core.FlowMod
}

func (s *fakeSwitch) ID() core.SwitchID { return s.id }

func (s *fakeSwitch) Send(f *core.FlowMod) error {
	s.sent = append(s.sent, f)
	return s.err
}

type fakeSwitchSet []*fakeSwitch

func (s fakeSwitchSet) Switches() []model.Switch {
	out := make([]model.Switch, len(s))
	for i, sw := range s {
		out[i] = sw
	}
	return out
}

func flowOn(port, vlan uint16, actions ...core.Action) core.FlowMod {
	m := core.UniversalMatch()
	m.Wildcards &^= core.WildcardInPort | core.WildcardDLVlan
	m.InPort = port
	m.DLVlan = vlan
	return core.FlowMod{Match: m, Priority: 10, Actions: actions}
}

func TestExpandVLANs(t *testing.T) {
	tests := []struct {
		spec    string
		want    []uint16
		wantErr bool
	}{
		{"", nil, false},
		{"10", []uint16{10}, false},
		{"10,20", []uint16{10, 20}, false},
		{"100-102, 5", []uint16{5, 100, 101, 102}, false},
		{"3,1-3", []uint16{1, 2, 3}, false},
		{"5-1", nil, true},
		{"a", nil, true},
		{"1-b", nil, true},
		{"4096", nil, true},
		{"4090-4096", nil, true},
		{"4090-4095", []uint16{4090, 4091, 4092, 4093, 4094, 4095}, false},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ExpandVLANs(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandVLANsRejectsHugeRangeQuickly(t *testing.T) {
	start := time.Now()
	_, err := ExpandVLANs("1-200000000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSlicer_Classify(t *testing.T) {
	s := New("research", dpid, false, map[uint16][]uint16{1: {10, 20}, 2: {10, 20}})

	assert.Len(t, s.Classify(flowOn(1, 10, core.Output(2))), 1)
	assert.Len(t, s.Classify(flowOn(2, 20, core.SetVlanVID(10), core.Output(1))), 1)

	assert.Empty(t, s.Classify(flowOn(1, 30, core.Output(2))), "vlan outside flowspace")
	assert.Empty(t, s.Classify(flowOn(3, 10, core.Output(2))), "port not owned")
	assert.Empty(t, s.Classify(flowOn(1, 10, core.Output(5))), "output to foreign port")
	assert.Empty(t, s.Classify(flowOn(1, 10, core.SetVlanVID(99), core.Output(2))), "rewrite to foreign vlan")
	assert.Empty(t, s.Classify(flowOn(1, 10, core.StripVlan(), core.Output(2))), "untagged egress")

	wild := flowOn(1, 10, core.Output(2))
	wild.Match = wild.Match.WithWildcard(core.WildcardDLVlan)
	assert.Empty(t, s.Classify(wild), "vlan must be exact")
	assert.Empty(t, s.Classify(core.FlowMod{Match: core.UniversalMatch()}))
}

func TestSlicer_DeriveFlows(t *testing.T) {
	s := New("campus", dpid, true, map[uint16][]uint16{3: {102, 100, 101}, 4: {100, 101, 102}})
	assert.Equal(t, []uint16{3, 4}, s.Ports())
	assert.Equal(t, []uint16{100, 101, 102}, s.VLANs(3))

	logical := flowOn(3, 0, core.Output(4)).WithoutVLAN()
	flows := s.DeriveFlows(logical, true)
	require.Len(t, flows, 3)
	for i, f := range flows {
		vlan := uint16(100 + i)
		assert.Equal(t, vlan, f.Match.DLVlan)
		assert.False(t, f.Match.IsWildcarded(core.WildcardDLVlan))
		assert.Equal(t, core.ActionList{core.SetVlanVID(vlan), core.Output(4)}, f.Actions)
		// Every derived flow collapses back onto the logical one.
		assert.Equal(t, logical.Match, f.WithoutVLAN().Match)
	}

	assert.Empty(t, s.DeriveFlows(core.FlowMod{Match: core.UniversalMatch()}, true), "in_port must be known")
	assert.Empty(t, s.DeriveFlows(logical, false), "unmanaged derivation requires an exact vlan")
	assert.Len(t, s.DeriveFlows(flowOn(3, 100, core.Output(4)), false), 1)
}

func TestProxy_TimeoutsAndExpiry(t *testing.T) {
	sw := &fakeSwitch{id: dpid}
	s := New("a", dpid, false, map[uint16][]uint16{1: {10}})
	p := NewProxy(s, fakeSwitchSet{sw})
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return start }

	idle := flowOn(1, 10, core.Output(1))
	idle.IdleTimeout = 10
	hard := flowOn(1, 10, core.Output(1))
	hard.Match.Wildcards &^= core.WildcardTPDst
	hard.Match.TPDst = 80
	hard.HardTimeout = 30
	p.Track(idle)
	p.Track(hard)
	p.Track(flowOn(1, 10, core.Output(1)))
	require.Len(t, p.Timeouts(), 2)

	p.now = func() time.Time { return start.Add(8 * time.Second) }
	p.Touch(idle.Match)
	p.now = func() time.Time { return start.Add(12 * time.Second) }
	p.CheckExpiredFlows()
	assert.Empty(t, sw.sent, "touched flow is still active")

	p.now = func() time.Time { return start.Add(31 * time.Second) }
	p.CheckExpiredFlows()
	require.Len(t, sw.sent, 2)
	for _, f := range sw.sent {
		assert.Equal(t, core.FlowDeleteStrict, f.Command)
		assert.Equal(t, core.PortNone, f.OutPort)
	}
	assert.Empty(t, p.Timeouts())

	p.SetFlowCount(7)
	assert.Equal(t, 7, p.FlowCount())
	assert.Same(t, s, p.Slicer())
}

func TestProxy_Untrack(t *testing.T) {
	s := New("a", dpid, false, map[uint16][]uint16{1: {10}})
	p := NewProxy(s, nil)
	f := flowOn(1, 10, core.Output(1))
	f.HardTimeout = 5
	p.Track(f)
	p.Untrack(f.Match)
	assert.Empty(t, p.Timeouts())
}

func TestProxy_SendWithoutSwitch(t *testing.T) {
	s := New("a", dpid, false, nil)
	assert.ErrorIs(t, NewProxy(s, nil).Send(&core.FlowMod{}), ErrSwitchNotConnected)
	assert.ErrorIs(t, NewProxy(s, fakeSwitchSet{{id: 9}}).Send(&core.FlowMod{}), ErrSwitchNotConnected)

	failing := &fakeSwitch{id: dpid, err: errors.New("closed")}
	assert.Error(t, NewProxy(s, fakeSwitchSet{failing}).Send(&core.FlowMod{}))
}

func TestNewRegistry(t *testing.T) {
	cfg, err := config.LoadConfig("../../configs/config.yaml")
	require.NoError(t, err)

	r, err := NewRegistry(cfg.Slices, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"research", "campus"}, r.Names())
	assert.Equal(t, []core.SwitchID{1}, r.Switches())

	slices := r.SlicesForSwitch(dpid)
	require.Len(t, slices, 2)
	assert.Equal(t, "research", slices[0].Name())
	assert.Equal(t, "campus", slices[1].Name())
	assert.True(t, slices[1].TagManagement())

	assert.NotNil(t, r.Proxy(dpid, "campus"))
	assert.Nil(t, r.Proxy(dpid, "nope"))
	assert.Nil(t, r.Proxy(core.SwitchID(2), "campus"))
	assert.Empty(t, r.SlicesForSwitch(core.SwitchID(2)))

	_, err = r.Lookup(dpid, "nope")
	assert.ErrorIs(t, err, ErrUnknownSlice)
	p, err := r.Lookup(dpid, "campus")
	require.NoError(t, err)
	assert.Equal(t, []uint16{100, 101, 102}, p.slicer.VLANs(4))
}

func TestNewRegistry_Errors(t *testing.T) {
	_, err := NewRegistry([]config.SliceDef{{Name: "a", Switches: []config.SwitchDef{{DPID: "xyz"}}}}, nil)
	assert.Error(t, err)

	_, err = NewRegistry([]config.SliceDef{{Name: "a", Switches: []config.SwitchDef{{DPID: "1", Ports: []config.PortDef{{Port: 1, VLANs: "9-1"}}}}}}, nil)
	assert.Error(t, err)

	_, err = NewRegistry([]config.SliceDef{{Name: "a", Switches: []config.SwitchDef{{DPID: "1"}, {DPID: "0x1"}}}}, nil)
	assert.Error(t, err, "same slice twice on one switch")
}
