package cmd

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/rtspcam/internal/config"
	"github.com/smazurov/rtspcam/internal/ffmpeg"
	"github.com/smazurov/rtspcam/internal/pipeline"
)

// previewStreamID stands in for the pipeline id when nothing runs.
const previewStreamID = "preview"

// CreateDescribeCmd creates the describe command.
func CreateDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Print the pipeline description and ffmpeg command",
		Long: `Builds the pipeline for the resolved configuration without starting anything ` +
			`and prints its textual description followed by the ffmpeg command that would run it.`,
		Args: cobra.NoArgs,
		Run: humacli.WithOptions(func(_ *cobra.Command, _ []string, opts *config.Options) {
			if err := runDescribe(os.Stdout, opts); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
		}),
	}
}

func runDescribe(w io.Writer, opts *config.Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	inputOpts, err := opts.InputOptions()
	if err != nil {
		return err
	}

	desc := pipeline.Build(opts.StreamConfig(), opts.Features())
	backend := ffmpeg.NewBackend(ffmpeg.BackendOptions{
		Binary:     opts.PipelineBinary,
		Encoder:    opts.PipelineEncoder,
		TestSource: opts.PipelineTestSource,
		Options:    inputOpts,
		LogLevel:   opts.PipelineLogLevel,
		PublishURL: func(streamID string) string {
			return "rtsp://" + net.JoinHostPort("127.0.0.1", opts.RTSPService) + "/" + streamID
		},
	})
	defer backend.Close()

	args, err := backend.Render(desc, previewStreamID)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "mount: %s\n", opts.Mount())
	fmt.Fprintf(w, "description: %s\n", desc)
	fmt.Fprintf(w, "command: %s\n", ffmpeg.Command(args))
	return nil
}
