package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/rshade/healthbridge/internal/config"
	"github.com/rshade/healthbridge/internal/healthstore"
)

// NewGrantCmd creates the grant command, which manages read access to record types.
func NewGrantCmd() *cobra.Command {
	var (
		yes    bool
		revoke bool
	)

	cmd := &cobra.Command{
		Use:   "grant [type...]",
		Short: "Grant or revoke read access to record types",
		Long: `Grants healthbridge read access to the given record types, or to every type when none
are given. Reads and exports of a type without access are skipped.`,
		Example: `  # Grant everything after confirming
  healthbridge grant

  # Grant two types without a prompt
  healthbridge grant HeartRateRecord StepsRecord --yes

  # Revoke access to sleep data
  healthbridge grant SleepSessionData --revoke`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrant(cmd, args, yes, revoke)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&revoke, "revoke", false, "revoke instead of grant")

	return cmd
}

func runGrant(cmd *cobra.Command, args []string, yes, revoke bool) error {
	ctx := cmd.Context()
	cfg := config.GetGlobalConfig()

	types, err := parseTypes(args)
	if err != nil {
		return err
	}
	perms := make([]healthstore.Permission, len(types))
	for i, t := range types {
		perms[i] = healthstore.ReadPermission(t)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if revoke {
		if err = store.RevokePermissions(ctx, perms); err != nil {
			return err
		}
		cmd.Printf("Revoked read access to %d record type(s)\n", len(perms))
		return nil
	}

	if !yes {
		interactive := isTerminal(os.Stdin)
		if !interactive {
			return errors.New("refusing to grant access without confirmation; use --yes")
		}
		answer := ConfirmGrant(cmd.OutOrStdout(), cmd.InOrStdin(), types, interactive)
		if !answer.Accepted {
			cmd.Println("Nothing granted")
			return nil
		}
	}

	if err = store.RequestPermissions(ctx, perms); err != nil {
		return err
	}
	logger.Info().Ctx(ctx).Int("permissions", len(perms)).Msg("read access granted")
	cmd.Printf("Granted read access to %d record type(s)\n", len(perms))
	return nil
}
