package transport

import (
	core "FlowSpaceFirewall/internal/core/model"
	"errors"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	err  error
	sent map[core.SwitchID][]*core.FlowMod
}

func (p *fakePublisher) PublishFlowMod(dpid core.SwitchID, flow *core.FlowMod) error {
	if p.sent == nil {
		p.sent = make(map[core.SwitchID][]*core.FlowMod)
	}
	p.sent[dpid] = append(p.sent[dpid], flow)
	return p.err
}

func TestDecodeFlowStats(t *testing.T) {
	data := []byte(`{
		"dpid": 1,
		"flows": [{
			"table_id": 0,
			"match": {"wildcards": 4194284, "in_port": 1, "dl_vlan": 10, "dl_type": 2048},
			"duration_sec": 12,
			"priority": 100,
			"cookie": 42,
			"packet_count": 2,
			"byte_count": 100,
			"actions": [{"type": 1, "vlan_vid": 20}, {"type": 0, "port": 2, "max_len": 65535}]
		}]
	}`)

	report, err := DecodeFlowStats(data)
	require.NoError(t, err)
	assert.Equal(t, core.SwitchID(1), report.SwitchID)
	require.Len(t, report.Flows, 1)

	f := report.Flows[0]
	assert.Equal(t, uint16(1), f.Match.InPort)
	assert.Equal(t, uint16(10), f.Match.DLVlan)
	assert.Equal(t, layers.EthernetTypeIPv4, f.Match.DLType)
	assert.False(t, f.Match.IsWildcarded(core.WildcardDLType))
	assert.Equal(t, uint64(100), f.ByteCount)
	assert.True(t, f.Actions.Equal(core.ActionList{core.Output(2), core.SetVlanVID(20)}))
}

func TestDecodeErrors(t *testing.T) {
	_, err := DecodeFlowStats([]byte("{"))
	assert.Error(t, err)
	_, err = DecodePortStats([]byte(`{"ports": 3}`))
	assert.Error(t, err)
	_, err = DecodeFlowMod([]byte("nope"))
	assert.Error(t, err)
}

func TestDecodePortStats(t *testing.T) {
	report, err := DecodePortStats([]byte(`{"dpid": 7, "ports": [{"port_no": 3, "rx_bytes": 1500, "tx_dropped": 2}]}`))
	require.NoError(t, err)
	assert.Equal(t, core.SwitchID(7), report.SwitchID)
	assert.Equal(t, []core.PortStats{{PortNo: 3, RxBytes: 1500, TxDropped: 2}}, report.Ports)
}

func TestFlowModSubject(t *testing.T) {
	assert.Equal(t, "fsfw.switch.00000000deadbeef.flowmod", FlowModSubject("fsfw.switch", 0xdeadbeef))
}

func TestSwitchSet(t *testing.T) {
	pub := &fakePublisher{}
	set := NewSwitchSet(pub, time.Minute)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	set.now = func() time.Time { return start }

	set.Seen(2)
	set.Seen(1)
	switches := set.Switches()
	require.Len(t, switches, 2)
	assert.Equal(t, core.SwitchID(1), switches[0].ID())
	assert.Equal(t, core.SwitchID(2), switches[1].ID())

	del := &core.FlowMod{Command: core.FlowDeleteStrict, OutPort: core.PortNone}
	require.NoError(t, switches[1].Send(del))
	assert.Equal(t, []*core.FlowMod{del}, pub.sent[2])

	set.now = func() time.Time { return start.Add(90 * time.Second) }
	set.Seen(2)
	switches = set.Switches()
	require.Len(t, switches, 1, "switch 1 went silent")
	assert.Equal(t, core.SwitchID(2), switches[0].ID())

	set.Forget(2)
	assert.Empty(t, set.Switches())
}

func TestSwitchSet_SendError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	set := NewSwitchSet(pub, time.Minute)
	set.Seen(1)
	assert.Error(t, set.Switches()[0].Send(&core.FlowMod{}))
}
