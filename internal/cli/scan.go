package cli

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rshade/healthbridge/internal/config"
	"github.com/rshade/healthbridge/internal/discovery"
)

// NewScanCmd creates the scan command, which resolves a scanned QR payload
// into the active export session.
func NewScanCmd() *cobra.Command {
	var (
		qrImage string
		forget  bool
	)

	cmd := &cobra.Command{
		Use:   "scan [url]",
		Short: "Activate an export session from a QR code",
		Long: `Resolves the URL encoded in a QR code into an export configuration and makes it
the active export session, replacing any previous one. The URL can be given directly
or decoded from a PNG or JPEG image with --qr-image.`,
		Example: `  # Decode the QR code from an image
  healthbridge scan --qr-image code.png

  # Use the URL directly
  healthbridge scan https://upload.example.com/config?session=abc

  # Forget the active session
  healthbridge scan --clear`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if forget {
				return runScanClear(cmd)
			}
			return runScan(cmd, args, qrImage)
		},
	}

	cmd.Flags().StringVar(&qrImage, "qr-image", "", "PNG or JPEG image containing the QR code")
	cmd.Flags().BoolVar(&forget, "clear", false, "forget the active export session")

	return cmd
}

func runScan(cmd *cobra.Command, args []string, qrImage string) error {
	ctx := cmd.Context()
	cfg := config.GetGlobalConfig()

	var scanned string
	switch {
	case qrImage != "" && len(args) > 0:
		return errors.New("pass either a url or --qr-image, not both")
	case qrImage != "":
		text, err := discovery.DecodeQRFile(qrImage)
		if err != nil {
			return err
		}
		scanned = text
	case len(args) == 1:
		scanned = args[0]
	default:
		return errors.New("a url or --qr-image is required")
	}

	active, err := newActive(cfg)
	if err != nil {
		return err
	}

	exportCfg, err := discovery.NewResolver(newHTTPClient(cfg), active).Resolve(ctx, scanned)
	if err != nil {
		logger.Error().Ctx(ctx).Err(err).Msg("config resolution failed")
		return fmt.Errorf("resolving export configuration: %w", err)
	}

	endpoint := exportCfg.PostEndpointBase
	if u, parseErr := url.Parse(endpoint); parseErr == nil {
		endpoint = u.Host
	}
	cmd.Printf("Export session activated\n")
	cmd.Printf("  Endpoint: %s\n", endpoint)
	if exportCfg.OwnerIdentifier != "" {
		cmd.Printf("  Owner:    %s\n", exportCfg.OwnerIdentifier)
	}
	cmd.Printf("  Expires:  %s\n",
		humanize.Time(time.Now().Add(time.Duration(cfg.Discovery.SessionTTLSeconds)*time.Second)))
	return nil
}

func runScanClear(cmd *cobra.Command) error {
	active, err := newActive(config.GetGlobalConfig())
	if err != nil {
		return err
	}
	if err = active.Clear(); err != nil {
		return fmt.Errorf("clearing active session: %w", err)
	}
	cmd.Println("Active export session cleared")
	return nil
}
