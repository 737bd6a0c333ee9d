package main

import (
	core "FlowSpaceFirewall/internal/core/model"
	"FlowSpaceFirewall/internal/factory"
	"FlowSpaceFirewall/internal/model"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var snapshotType string

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect stored cache snapshots",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored snapshot per switch",
		Long: `Load the latest snapshot from a configured store and print its records
per switch and slice.

  fsfw-cache snapshot show               # store named by snapshot.restore_from
  fsfw-cache snapshot show --type sqlite # a specific enabled store`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			typ := snapshotType
			if typ == "" {
				typ = cfg.Snapshot.RestoreFrom
			}
			if typ == "" {
				return fmt.Errorf("no snapshot store selected: use --type or set snapshot.restore_from")
			}
			def, ok := cfg.Writer(typ)
			if !ok {
				return fmt.Errorf("no enabled snapshot writer of type '%s'", typ)
			}
			w, err := factory.Create(def)
			if err != nil {
				return err
			}
			loader, ok := w.(model.Loader)
			if !ok {
				return fmt.Errorf("writer type '%s' cannot load snapshots", typ)
			}
			snap, err := loader.Load()
			if err != nil {
				return err
			}
			return printSnapshot(os.Stdout, snap)
		},
	}
	show.Flags().StringVar(&snapshotType, "type", "", "snapshot store type (gob, sqlite, redis)")

	cmd.AddCommand(show)
	return cmd
}

// printSnapshot writes one line per switch and slice with record counts
// and totals, followed by the child mapping count of each switch.
func printSnapshot(out io.Writer, snap *core.Snapshot) error {
	parents, children := snap.Counts()
	fmt.Fprintf(out, "Snapshot taken %s: %d slice records, %d flow mappings, next id %d\n\n",
		snap.Taken.Format("2006-01-02 15:04:05"), parents, children, snap.NextID)

	switches := snap.Switches()
	sort.Slice(switches, func(i, j int) bool { return switches[i] < switches[j] })

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DPID\tSLICE\tRECORDS\tVERIFIED\tPACKETS\tBYTES")
	fmt.Fprintln(w, "----\t-----\t-------\t--------\t-------\t-----")
	for _, sw := range switches {
		slices := snap.Sliced[sw]
		names := make([]string, 0, len(slices))
		for name := range slices {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			var verified int
			var packets, bytes uint64
			for _, r := range slices[name] {
				if r.Verified {
					verified++
				}
				packets += r.PacketCount
				bytes += r.ByteCount
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n", sw, name, len(slices[name]), verified, packets, bytes)
		}
		fmt.Fprintf(w, "%s\t(mapped)\t%d\t\t\t\n", sw, len(snap.Mapped[sw]))
	}
	return w.Flush()
}
