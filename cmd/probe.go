package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/rtspcam/internal/capture"
	"github.com/smazurov/rtspcam/internal/config"
)

// CreateProbeCmd creates the probe command.
func CreateProbeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "probe [device]",
		Short: "Check a capture device and list its formats",
		Long: `Runs the same device check as server startup against the configured capture ` +
			`device, or the given one, and reports what the driver supports.`,
		Args: cobra.MaximumNArgs(1),
		Run: humacli.WithOptions(func(_ *cobra.Command, args []string, opts *config.Options) {
			path := opts.StreamDevice
			if len(args) == 1 {
				path = args[0]
			}
			if err := runProbe(os.Stdout, path, asJSON); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		}),
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func runProbe(w io.Writer, path string, asJSON bool) error {
	report, err := capture.Probe(path)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Device:\t%s (%d:%d)\n", report.Path, report.Major, report.Minor)
	if report.QueryErr != "" {
		fmt.Fprintf(tw, "Query:\t%s\n", report.QueryErr)
		return tw.Flush()
	}
	fmt.Fprintf(tw, "Driver:\t%s\n", report.Driver)
	fmt.Fprintf(tw, "Card:\t%s\n", report.Card)
	fmt.Fprintf(tw, "Bus:\t%s\n", report.BusInfo)
	fmt.Fprintf(tw, "Capture:\t%t\n", report.Capture)
	for _, f := range report.Formats {
		name := f.Name
		if f.Emulated {
			name += " (emulated)"
		}
		fmt.Fprintf(tw, "Format:\t%s\t%s\n", f.FourCC, name)
	}
	return tw.Flush()
}
