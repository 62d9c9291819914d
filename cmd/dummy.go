package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bookload/internal/dummy"
)

// --- Dummy Subcommand ---
var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run a stub booking site to point bookload at",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		port, _ := f.GetInt("port")
		latency, _ := f.GetDuration("latency")
		jitter, _ := f.GetDuration("jitter")
		failures, _ := f.GetFloat64("failure-ratio")
		marker, _ := f.GetString("marker")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return dummy.Start(ctx, dummy.ServerConfig{
			Port: port,
			Options: dummy.Options{
				Marker:       marker,
				Latency:      latency,
				Jitter:       jitter,
				FailureRatio: failures,
			},
		})
	},
}

func init() {
	dummyCmd.Flags().IntP("port", "p", 8080, "Port to run dummy server on")
	dummyCmd.Flags().Duration("latency", 0, "delay added to every response")
	dummyCmd.Flags().Duration("jitter", 0, "random extra delay up to this long")
	dummyCmd.Flags().Float64("failure-ratio", 0, "share of requests answered with a 500")
	dummyCmd.Flags().String("marker", dummy.DefaultMarker, "confirmation page text")
}
