package manager

import (
	"FlowSpaceFirewall/internal/config"
	core "FlowSpaceFirewall/internal/core/model"
	"FlowSpaceFirewall/internal/engine/statcache"
	_ "FlowSpaceFirewall/internal/exporter" // Registers the clickhouse writer
	"FlowSpaceFirewall/internal/factory"
	"FlowSpaceFirewall/internal/model"
	"FlowSpaceFirewall/internal/pkg/logging"
	_ "FlowSpaceFirewall/internal/snapshot" // Registers the gob, sqlite and redis writers
	"FlowSpaceFirewall/internal/transport"
	"encoding/binary"
	"hash/fnv"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var log = logging.WithComponent("manager")

// SwitchTracker is the set of live switches, refreshed by every report.
type SwitchTracker interface {
	model.SwitchSet
	Seen(dpid core.SwitchID)
}

// report is one statistics report queued for a worker.
type report struct {
	dpid  core.SwitchID
	flows []core.FlowStats
	ports []core.PortStats
	// isPorts distinguishes an empty port report from an empty flow report.
	isPorts bool
}

// Manager feeds statistics reports into the flow-stat cache, runs the
// snapshot writers and the flow expiry loop.
type Manager struct {
	cache    *statcache.FlowStatCache
	switches SwitchTracker
	writers  []factory.Entry

	restoreFrom string

	// Worker pool; every switch is pinned to one shard so its reports are
	// applied in arrival order.
	shards   []chan report
	workerWg sync.WaitGroup

	// stopMu guards the shards against close while a sender is inside
	// enqueue. stopping is closed first to release blocked senders.
	stopMu   sync.RWMutex
	stopped  bool
	stopping chan struct{}

	expiryInterval time.Duration
	done           chan struct{}
	snapshotterWg  sync.WaitGroup
	expiryWg       sync.WaitGroup
	running        atomic.Bool
}

// NewManager creates a new Manager and the snapshot writers of cfg.
func NewManager(cfg *config.Config, cache *statcache.FlowStatCache, switches SwitchTracker) (*Manager, error) {
	writers, err := factory.CreateAll(cfg)
	if err != nil {
		return nil, err
	}
	return newManager(cfg, cache, switches, writers), nil
}

func newManager(cfg *config.Config, cache *statcache.FlowStatCache, switches SwitchTracker, writers []factory.Entry) *Manager {
	numWorkers := cfg.Cache.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}
	perShard := cfg.Cache.SizeOfReportChannel / numWorkers
	if perShard <= 0 {
		perShard = 1
	}
	shards := make([]chan report, numWorkers)
	for i := range shards {
		shards[i] = make(chan report, perShard)
	}

	return &Manager{
		cache:          cache,
		switches:       switches,
		writers:        writers,
		restoreFrom:    cfg.Snapshot.RestoreFrom,
		shards:         shards,
		stopping:       make(chan struct{}),
		expiryInterval: cfg.ExpiryCheckInterval(),
		done:           make(chan struct{}),
	}
}

// Writers returns the running snapshot writers.
func (m *Manager) Writers() []factory.Entry {
	return m.writers
}

// Running reports whether the manager has started and not yet stopped.
func (m *Manager) Running() bool {
	return m.running.Load()
}

// Start restores the configured snapshot, then launches the workers, the
// snapshotters and the expiry loop.
func (m *Manager) Start() {
	m.restore()

	for _, entry := range m.writers {
		m.snapshotterWg.Add(1)
		go m.runSnapshotter(entry)
		log.Infof("Started snapshotter for writer '%s' with interval %s.", entry.Type, entry.Writer.GetInterval())
	}

	m.expiryWg.Add(1)
	go m.runExpiry()

	m.workerWg.Add(len(m.shards))
	for _, ch := range m.shards {
		go m.worker(ch)
	}
	m.running.Store(true)
	log.Infof("Manager started with %d workers.", len(m.shards))
}

func (m *Manager) restore() {
	if m.restoreFrom == "" {
		return
	}
	loader, err := factory.Loader(m.writers, m.restoreFrom)
	if err != nil {
		log.Warnf("Cannot restore cache: %v", err)
		return
	}
	m.cache.RestoreFrom(loader)
}

func (m *Manager) shardFor(dpid core.SwitchID) chan report {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(dpid))
	hasher := fnv.New32a()
	hasher.Write(buf[:])
	return m.shards[hasher.Sum32()%uint32(len(m.shards))]
}

// HandleFlowStats queues a flow statistics report. Reports arriving after
// Stop has begun are dropped.
func (m *Manager) HandleFlowStats(r transport.FlowStatsReport) {
	m.switches.Seen(r.SwitchID)
	m.enqueue(report{dpid: r.SwitchID, flows: r.Flows})
}

// HandlePortStats queues a port statistics report. Reports arriving after
// Stop has begun are dropped.
func (m *Manager) HandlePortStats(r transport.PortStatsReport) {
	m.switches.Seen(r.SwitchID)
	m.enqueue(report{dpid: r.SwitchID, ports: r.Ports, isPorts: true})
}

// enqueue hands r to its shard, blocking while the shard is full. It
// returns false if the manager is stopping.
func (m *Manager) enqueue(r report) bool {
	m.stopMu.RLock()
	defer m.stopMu.RUnlock()
	if m.stopped {
		logging.WithSwitch(r.dpid).Debug("Manager stopped, dropping report.")
		return false
	}
	select {
	case m.shardFor(r.dpid) <- r:
		return true
	case <-m.stopping:
		logging.WithSwitch(r.dpid).Debug("Manager stopping, dropping report.")
		return false
	}
}

func (m *Manager) worker(ch <-chan report) {
	defer m.workerWg.Done()
	for r := range ch {
		if r.isPorts {
			m.cache.SetPortCache(r.dpid, r.ports)
			continue
		}
		m.cache.SetFlowCache(r.dpid, r.flows)
	}
}

// runSnapshotter runs a dedicated snapshot loop for a single writer.
func (m *Manager) runSnapshotter(entry factory.Entry) {
	defer m.snapshotterWg.Done()
	interval := entry.Writer.GetInterval()
	if interval <= 0 {
		log.Warnf("Invalid interval %s for writer '%s', snapshotter will not run.", interval, entry.Type)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.takeSnapshot(entry)
		case <-m.done:
			m.takeSnapshot(entry)
			return
		}
	}
}

// takeSnapshot copies the cache and hands it to one writer.
func (m *Manager) takeSnapshot(entry factory.Entry) {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	snap := m.cache.Snapshot()
	parents, children := snap.Counts()
	if err := entry.Writer.Write(snap, timestamp); err != nil {
		log.Errorf("Error writing snapshot with writer '%s': %v", entry.Type, err)
		return
	}
	log.Debugf("Wrote snapshot %s with writer '%s' (%d slice records, %d flow mappings).", timestamp, entry.Type, parents, children)
}

// runExpiry periodically removes expired slice flows on live switches and
// clears the cache of switches that stopped reporting.
func (m *Manager) runExpiry() {
	defer m.expiryWg.Done()
	if m.expiryInterval <= 0 {
		log.Warnf("Invalid expiry check interval %s, expiry loop will not run.", m.expiryInterval)
		return
	}
	ticker := time.NewTicker(m.expiryInterval)
	defer ticker.Stop()

	live := make(map[core.SwitchID]bool)
	for {
		select {
		case <-ticker.C:
			live = m.checkSwitches(live)
		case <-m.done:
			log.Info("Expiry loop shutting down.")
			return
		}
	}
}

// checkSwitches runs one expiry pass and returns the switches now live.
// A switch is cleared once, when it drops out of the live set.
func (m *Manager) checkSwitches(previous map[core.SwitchID]bool) map[core.SwitchID]bool {
	current := make(map[core.SwitchID]bool)
	for _, sw := range m.switches.Switches() {
		current[sw.ID()] = true
		m.cache.CheckExpireFlows(sw.ID())
	}
	for dpid := range previous {
		if !current[dpid] {
			logging.WithSwitch(dpid).Warn("Switch stopped reporting, clearing its flow cache.")
			m.cache.ClearFlowCache(dpid)
		}
	}
	return current
}

// Stop gracefully shuts down the manager. It is safe to call while
// reports are still being handed in.
func (m *Manager) Stop() {
	log.Info("Manager stopping...")
	m.running.Store(false)

	// 1. Stop accepting new reports. Closing stopping releases senders
	// blocked on a full shard so the write lock can be taken.
	close(m.stopping)
	m.stopMu.Lock()
	m.stopped = true
	for _, ch := range m.shards {
		close(ch)
	}
	m.stopMu.Unlock()

	// 2. Wait for all workers to finish applying buffered reports.
	log.Info("Waiting for workers to finish...")
	m.workerWg.Wait()

	// 3. Signal snapshotters to take a final snapshot and exit.
	close(m.done)
	log.Info("Waiting for snapshotters and the expiry loop to finish...")
	m.snapshotterWg.Wait()
	m.expiryWg.Wait()

	// 4. Release the writers' connections.
	m.closeWriters()

	log.Info("Manager stopped.")
}

func (m *Manager) closeWriters() {
	for _, entry := range m.writers {
		closer, ok := entry.Writer.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			log.Errorf("Error closing writer '%s': %v", entry.Type, err)
		}
	}
}
