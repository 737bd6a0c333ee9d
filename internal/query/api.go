package query

import (
	core "FlowSpaceFirewall/internal/core/model"
	"FlowSpaceFirewall/internal/pkg/logging"
	"FlowSpaceFirewall/internal/slicer"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

var log = logging.WithComponent("api")

// Cache is the part of the flow-stat cache the API serves.
type Cache interface {
	GetSwitchFlowStats(sw core.SwitchID) ([]core.FlowStats, bool)
	GetSlicedFlowStats(sw core.SwitchID, sliceName string) ([]core.FlowRecord, bool)
	AddFlowMod(sw core.SwitchID, sliceName string, flow core.FlowMod, flows []core.FlowMod)
	DelFlowMod(sw core.SwitchID, sliceName string, flow core.FlowMod, flows []core.FlowMod)
	GetPortStats(sw core.SwitchID) (map[uint16]core.PortStats, bool)
	GetPortStat(sw core.SwitchID, port uint16) (core.PortStats, bool)
	GetPossibleExpiredFlows(sw core.SwitchID) []core.FlowTimeout
}

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	cache    Cache
	registry *slicer.Registry
	// querier is nil when no ClickHouse writer is configured.
	querier Querier
}

// NewAPIHandler creates the API handler. querier may be nil.
func NewAPIHandler(cache Cache, registry *slicer.Registry, querier Querier) *APIHandler {
	return &APIHandler{cache: cache, registry: registry, querier: querier}
}

// Router returns the API routes.
func (h *APIHandler) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/switches/{dpid}/flows", h.switchFlowsHandler).Methods("GET")
	api.HandleFunc("/switches/{dpid}/slices/{slice}/flows", h.sliceFlowsHandler).Methods("GET")
	api.HandleFunc("/switches/{dpid}/slices/{slice}/flows", h.addFlowHandler).Methods("POST")
	api.HandleFunc("/switches/{dpid}/slices/{slice}/flows", h.deleteFlowHandler).Methods("DELETE")
	api.HandleFunc("/switches/{dpid}/ports", h.portsHandler).Methods("GET")
	api.HandleFunc("/switches/{dpid}/ports/{port}", h.portHandler).Methods("GET")
	api.HandleFunc("/switches/{dpid}/expired", h.expiredHandler).Methods("GET")
	api.HandleFunc("/history/slices/{slice}", h.historyHandler).Methods("GET")
	return r
}

// FlowsResponse is the reply of the raw and sliced flow queries.
type FlowsResponse struct {
	DPID    string            `json:"dpid"`
	Slice   string            `json:"slice,omitempty"`
	Flows   []core.FlowStats  `json:"flows,omitempty"`
	Records []core.FlowRecord `json:"records,omitempty"`
	Ports   []core.PortStats  `json:"ports,omitempty"`
}

// AdmissionResponse is the reply of flow admission and removal.
type AdmissionResponse struct {
	DPID  string         `json:"dpid"`
	Slice string         `json:"slice"`
	Flow  core.FlowMod   `json:"flow"`
	Flows []core.FlowMod `json:"flows"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(jsonBytes)
}

func switchID(w http.ResponseWriter, r *http.Request) (core.SwitchID, bool) {
	sw, err := core.ParseSwitchID(mux.Vars(r)["dpid"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return 0, false
	}
	return sw, true
}

// switchFlowsHandler returns the last raw flow stats of a switch.
func (h *APIHandler) switchFlowsHandler(w http.ResponseWriter, r *http.Request) {
	sw, ok := switchID(w, r)
	if !ok {
		return
	}
	flows, ok := h.cache.GetSwitchFlowStats(sw)
	if !ok {
		http.Error(w, fmt.Sprintf("no flow stats for switch %s", sw), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, FlowsResponse{DPID: sw.String(), Flows: flows})
}

// sliceFlowsHandler returns the verified records of a slice.
func (h *APIHandler) sliceFlowsHandler(w http.ResponseWriter, r *http.Request) {
	sw, ok := switchID(w, r)
	if !ok {
		return
	}
	name := mux.Vars(r)["slice"]
	records, ok := h.cache.GetSlicedFlowStats(sw, name)
	if !ok {
		http.Error(w, fmt.Sprintf("no flow stats for switch %s", sw), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, FlowsResponse{DPID: sw.String(), Slice: name, Records: records})
}

// derive resolves the slice proxy and the logical and physical flows of a
// flow_mod request body.
func (h *APIHandler) derive(w http.ResponseWriter, r *http.Request) (core.SwitchID, *slicer.Proxy, core.FlowMod, []core.FlowMod, bool) {
	var flow core.FlowMod
	sw, ok := switchID(w, r)
	if !ok {
		return sw, nil, flow, nil, false
	}
	name := mux.Vars(r)["slice"]
	proxy, err := h.registry.Lookup(sw, name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return sw, nil, flow, nil, false
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read request body: %v", err), http.StatusBadRequest)
		return sw, nil, flow, nil, false
	}
	if err := json.Unmarshal(body, &flow); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return sw, nil, flow, nil, false
	}

	s := proxy.Slicer()
	if s.TagManagement() {
		flow = flow.WithoutVLAN()
	}
	flows := s.DeriveFlows(flow, s.TagManagement())
	if len(flows) == 0 {
		http.Error(w, fmt.Sprintf("flow %s is outside the flowspace of slice '%s'", flow.Match, name), http.StatusForbidden)
		return sw, nil, flow, nil, false
	}
	return sw, proxy, flow, flows, true
}

func sendStatus(err error) int {
	if errors.Is(err, slicer.ErrSwitchNotConnected) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

// addFlowHandler installs a slice's flow on the switch and records it.
func (h *APIHandler) addFlowHandler(w http.ResponseWriter, r *http.Request) {
	sw, proxy, flow, flows, ok := h.derive(w, r)
	if !ok {
		return
	}
	name := proxy.Slicer().Name()
	for i := range flows {
		flows[i].Command = core.FlowAdd
		if err := proxy.Send(&flows[i]); err != nil {
			http.Error(w, fmt.Sprintf("failed to install flow: %v", err), sendStatus(err))
			return
		}
	}
	h.cache.AddFlowMod(sw, name, flow, flows)
	for _, f := range flows {
		proxy.Track(f)
	}
	log.WithField("dpid", sw.String()).WithField("slice", name).Infof("Admitted %s as %d flows", flow.Match, len(flows))
	writeJSON(w, http.StatusCreated, AdmissionResponse{DPID: sw.String(), Slice: name, Flow: flow, Flows: flows})
}

// deleteFlowHandler marks a slice's flow deleted and removes it from the switch.
func (h *APIHandler) deleteFlowHandler(w http.ResponseWriter, r *http.Request) {
	sw, proxy, flow, flows, ok := h.derive(w, r)
	if !ok {
		return
	}
	name := proxy.Slicer().Name()
	h.cache.DelFlowMod(sw, name, flow, flows)
	for _, f := range flows {
		proxy.Untrack(f.Match)
		if err := proxy.Send(f.DeleteStrict()); err != nil {
			http.Error(w, fmt.Sprintf("failed to remove flow: %v", err), sendStatus(err))
			return
		}
	}
	writeJSON(w, http.StatusAccepted, AdmissionResponse{DPID: sw.String(), Slice: name, Flow: flow, Flows: flows})
}

// portsHandler returns every port's statistics, ordered by port number.
func (h *APIHandler) portsHandler(w http.ResponseWriter, r *http.Request) {
	sw, ok := switchID(w, r)
	if !ok {
		return
	}
	ports, ok := h.cache.GetPortStats(sw)
	if !ok {
		http.Error(w, fmt.Sprintf("no port stats for switch %s", sw), http.StatusNotFound)
		return
	}
	list := make([]core.PortStats, 0, len(ports))
	for _, p := range ports {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].PortNo < list[j].PortNo })
	writeJSON(w, http.StatusOK, FlowsResponse{DPID: sw.String(), Ports: list})
}

// portHandler returns one port's statistics.
func (h *APIHandler) portHandler(w http.ResponseWriter, r *http.Request) {
	sw, ok := switchID(w, r)
	if !ok {
		return
	}
	port, err := strconv.ParseUint(mux.Vars(r)["port"], 10, 16)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid port: %v", err), http.StatusBadRequest)
		return
	}
	p, ok := h.cache.GetPortStat(sw, uint16(port))
	if !ok {
		http.Error(w, fmt.Sprintf("no stats for port %d of switch %s", port, sw), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// expiredHandler returns the flow timeouts tracked on a switch.
func (h *APIHandler) expiredHandler(w http.ResponseWriter, r *http.Request) {
	sw, ok := switchID(w, r)
	if !ok {
		return
	}
	expired := h.cache.GetPossibleExpiredFlows(sw)
	if expired == nil {
		expired = []core.FlowTimeout{}
	}
	writeJSON(w, http.StatusOK, struct {
		DPID    string             `json:"dpid"`
		Expired []core.FlowTimeout `json:"expired"`
	}{sw.String(), expired})
}

// historyHandler returns the exported per-switch totals of a slice. The
// optional "end" query parameter is an RFC 3339 time.
func (h *APIHandler) historyHandler(w http.ResponseWriter, r *http.Request) {
	if h.querier == nil {
		http.Error(w, "history is not available: no clickhouse writer configured", http.StatusServiceUnavailable)
		return
	}
	req := HistoryRequest{
		SliceName: mux.Vars(r)["slice"],
		DPID:      r.URL.Query().Get("dpid"),
	}
	if end := r.URL.Query().Get("end"); end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid end time: %v", err), http.StatusBadRequest)
			return
		}
		req.EndTime = &t
	}

	resp, err := h.querier.SliceHistory(r.Context(), req)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query history: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
