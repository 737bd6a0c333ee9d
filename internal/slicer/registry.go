package slicer

import (
	"FlowSpaceFirewall/internal/config"
	core "FlowSpaceFirewall/internal/core/model"
	"FlowSpaceFirewall/internal/model"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownSlice is returned when a slice is not configured on a switch.
	ErrUnknownSlice = errors.New("unknown slice")
	// ErrSwitchNotConnected is returned when a proxy's switch is not live.
	ErrSwitchNotConnected = errors.New("switch not connected")
)

type proxyKey struct {
	dpid core.SwitchID
	name string
}

// Registry holds every slice's slicer and proxy, per switch, in configured order.
type Registry struct {
	names    []string
	bySwitch map[core.SwitchID][]*Slicer
	proxies  map[proxyKey]*Proxy
}

// NewRegistry builds the registry from slice definitions.
func NewRegistry(defs []config.SliceDef, switches model.SwitchSet) (*Registry, error) {
	r := &Registry{
		bySwitch: make(map[core.SwitchID][]*Slicer),
		proxies:  make(map[proxyKey]*Proxy),
	}
	for _, def := range defs {
		r.names = append(r.names, def.Name)
		for _, swDef := range def.Switches {
			dpid, err := core.ParseSwitchID(swDef.DPID)
			if err != nil {
				return nil, fmt.Errorf("slice '%s': %w", def.Name, err)
			}
			ports := make(map[uint16][]uint16, len(swDef.Ports))
			for _, p := range swDef.Ports {
				vlans, err := ExpandVLANs(p.VLANs)
				if err != nil {
					return nil, fmt.Errorf("slice '%s' switch %s port %d: %w", def.Name, dpid, p.Port, err)
				}
				ports[p.Port] = append(ports[p.Port], vlans...)
			}
			if err := r.Add(New(def.Name, dpid, def.TagManagement, ports), switches); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// Add registers a slicer and creates its proxy.
func (r *Registry) Add(s *Slicer, switches model.SwitchSet) error {
	key := proxyKey{s.SwitchID(), s.Name()}
	if _, exists := r.proxies[key]; exists {
		return fmt.Errorf("slice '%s' defined twice on switch %s", s.Name(), s.SwitchID())
	}
	r.bySwitch[s.SwitchID()] = append(r.bySwitch[s.SwitchID()], s)
	r.proxies[key] = NewProxy(s, switches)
	return nil
}

// SlicesForSwitch returns the slices present on dpid in configured order.
func (r *Registry) SlicesForSwitch(dpid core.SwitchID) []model.Slicer {
	slicers := r.bySwitch[dpid]
	out := make([]model.Slicer, len(slicers))
	for i, s := range slicers {
		out[i] = s
	}
	return out
}

// Proxy returns the proxy of a slice on dpid, or nil.
func (r *Registry) Proxy(dpid core.SwitchID, name string) model.Proxy {
	p, ok := r.proxies[proxyKey{dpid, name}]
	if !ok {
		return nil
	}
	return p
}

// Lookup returns the concrete proxy of a slice on dpid.
func (r *Registry) Lookup(dpid core.SwitchID, name string) (*Proxy, error) {
	p, ok := r.proxies[proxyKey{dpid, name}]
	if !ok {
		return nil, fmt.Errorf("%w: '%s' on switch %s", ErrUnknownSlice, name, dpid)
	}
	return p, nil
}

// Names returns every configured slice name in configured order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Switches returns every switch that belongs to at least one slice.
func (r *Registry) Switches() []core.SwitchID {
	out := make([]core.SwitchID, 0, len(r.bySwitch))
	for dpid := range r.bySwitch {
		out = append(out, dpid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
