package main

import (
	"FlowSpaceFirewall/internal/transport"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	injectFile  string
	injectPorts bool
)

func newInjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Publish a recorded statistics report",
		Long: `Publish a JSON statistics report on the configured NATS subject, as a
switch agent would.

  fsfw-cache inject -f flows.json          # flow stats report
  fsfw-cache inject -f ports.json --ports  # port stats report`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(injectFile)
			if err != nil {
				return fmt.Errorf("failed to read report: %w", err)
			}

			pub, err := transport.NewPublisher(cfg.NATS)
			if err != nil {
				return err
			}
			defer pub.Close()

			if injectPorts {
				report, err := transport.DecodePortStats(data)
				if err != nil {
					return err
				}
				if err := pub.PublishPortStats(report); err != nil {
					return err
				}
				fmt.Printf("Published %d port stats for %s\n", len(report.Ports), report.SwitchID)
			} else {
				report, err := transport.DecodeFlowStats(data)
				if err != nil {
					return err
				}
				if err := pub.PublishFlowStats(report); err != nil {
					return err
				}
				fmt.Printf("Published %d flow stats for %s\n", len(report.Flows), report.SwitchID)
			}
			return pub.Flush()
		},
	}
	cmd.Flags().StringVarP(&injectFile, "file", "f", "", "report file")
	cmd.Flags().BoolVar(&injectPorts, "ports", false, "the file holds a port stats report")
	cmd.MarkFlagRequired("file")
	return cmd
}
