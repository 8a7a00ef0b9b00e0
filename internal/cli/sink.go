package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rshade/healthbridge/internal/config"
	"github.com/rshade/healthbridge/internal/discovery"
	"github.com/rshade/healthbridge/internal/sink"
)

const qrImageSize = 320

// NewSinkCmd creates the sink command, which runs a local receiving endpoint.
func NewSinkCmd() *cobra.Command {
	var (
		addr          string
		email         string
		qrOut         string
		tokenLifetime int
		activate      bool
	)

	cmd := &cobra.Command{
		Use:   "sink",
		Short: "Run a local endpoint that receives exports",
		Long: `Serves the discovery document on /config, accepts uploads on /export/{type}, refreshes
tokens on /token/refresh, records progress beacons on /progress and exposes counters on
/metrics. The discovery URL can be written as a QR code image for 'healthbridge scan'.`,
		Example: `  # Serve on the configured address and write the QR code
  healthbridge sink --qr-out sink.png

  # Rotate tokens every 3 chunks to exercise the refresh path
  healthbridge sink --token-lifetime 3 --activate`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.GetGlobalConfig()
			if !cmd.Flags().Changed("addr") {
				addr = cfg.Sink.Addr
			}
			if !cmd.Flags().Changed("token-lifetime") {
				tokenLifetime = cfg.Sink.TokenLifetimeChunks
			}
			return runSink(cmd, addr, email, qrOut, tokenLifetime, activate)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", config.DefaultSinkAddr, "listen address")
	cmd.Flags().StringVar(&email, "email", "", "owner identifier returned in the discovery document")
	cmd.Flags().StringVar(&qrOut, "qr-out", "", "write the discovery URL as a PNG QR code to this file")
	cmd.Flags().IntVar(&tokenLifetime, "token-lifetime", 0, "expire access tokens after this many chunks (0 = never)")
	cmd.Flags().BoolVar(&activate, "activate", false, "make this sink the active export session")

	return cmd
}

func runSink(cmd *cobra.Command, addr, email, qrOut string, tokenLifetime int, activate bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	server := sink.New(sink.Options{Email: email, TokenLifetimeChunks: tokenLifetime})
	configURL := "http://" + listener.Addr().String() + sink.ConfigPath

	cmd.Printf("Sink listening on %s\n", listener.Addr())
	cmd.Printf("Discovery URL: %s\n", configURL)

	if qrOut != "" {
		if err = discovery.WriteQRFile(qrOut, configURL, qrImageSize); err != nil {
			_ = listener.Close()
			return err
		}
		cmd.Printf("QR code written to %s\n", qrOut)
	}

	if activate {
		if err = activateSink(ctx, server, listener.Addr().String()); err != nil {
			_ = listener.Close()
			return err
		}
		cmd.Println("Sink is now the active export session")
	}

	return server.Serve(ctx, listener)
}

func activateSink(ctx context.Context, server *sink.Server, hostPort string) error {
	active, err := newActive(config.GetGlobalConfig())
	if err != nil {
		return err
	}
	_, err = active.Replace(ctx, server.ConfigFor("http://"+hostPort))
	return err
}
