package factory

import (
	"FlowSpaceFirewall/internal/config"
	"FlowSpaceFirewall/internal/model"
	"FlowSpaceFirewall/internal/pkg/logging"
	"fmt"
	"sort"
	"time"
)

// WriterFactory creates a snapshot writer from its definition.
type WriterFactory func(def config.WriterDef, interval time.Duration) (model.Writer, error)

// Entry is a created writer and the type it was created from.
type Entry struct {
	Type   string
	Writer model.Writer
}

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]WriterFactory)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Types returns the registered writer types, sorted.
func Types() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Create creates a single writer from its definition.
func Create(def config.WriterDef) (model.Writer, error) {
	factory, ok := registry[def.Type]
	if !ok {
		return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
	}
	interval, err := time.ParseDuration(def.SnapshotInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot_interval for writer type '%s': %w", def.Type, err)
	}
	w, err := factory(def, interval)
	if err != nil {
		return nil, fmt.Errorf("error creating writer type '%s': %w", def.Type, err)
	}
	return w, nil
}

// CreateAll creates every enabled writer of cfg. A writer that fails to
// start is logged and skipped; an unknown type is an error.
func CreateAll(cfg *config.Config) ([]Entry, error) {
	log := logging.WithComponent("factory")
	var entries []Entry
	for _, def := range cfg.Snapshot.Writers {
		if !def.Enabled {
			continue
		}
		if _, ok := registry[def.Type]; !ok {
			return nil, fmt.Errorf("unknown writer type: '%s'", def.Type)
		}
		log.Infof("Creating snapshot writer of type '%s'", def.Type)
		w, err := Create(def)
		if err != nil {
			log.Warnf("%v, skipping.", err)
			continue
		}
		entries = append(entries, Entry{Type: def.Type, Writer: w})
	}
	return entries, nil
}

// Loader returns the writer of the given type among entries as a loader.
func Loader(entries []Entry, typ string) (model.Loader, error) {
	for _, e := range entries {
		if e.Type != typ {
			continue
		}
		loader, ok := e.Writer.(model.Loader)
		if !ok {
			return nil, fmt.Errorf("writer type '%s' cannot load snapshots", typ)
		}
		return loader, nil
	}
	return nil, fmt.Errorf("no writer of type '%s' is running", typ)
}
