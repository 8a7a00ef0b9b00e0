package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rshade/healthbridge/internal/config"
	"github.com/rshade/healthbridge/internal/healthstore"
	"github.com/rshade/healthbridge/internal/reader"
)

// NewChangesCmd creates the changes command, which reads the store's change log.
func NewChangesCmd() *cobra.Command {
	var (
		types []string
		token string
	)

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Show records inserted or deleted since a changes token",
		Long: `Without --token, prints a token marking the current end of the change log for the
selected record types. With --token, prints every change made since that token was issued and
the token to use next time. Tokens expire after 30 days; take a new one and do a full export then.`,
		Example: `  # Start tracking heart rate and steps
  healthbridge changes --types HeartRateRecord,StepsRecord

  # Later: what changed since then
  healthbridge changes --token 5f0c...`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChanges(cmd, types, token)
		},
	}

	cmd.Flags().StringSliceVar(&types, "types", nil, "record types to track (default all)")
	cmd.Flags().StringVar(&token, "token", "", "changes token from an earlier run")

	return cmd
}

func runChanges(cmd *cobra.Command, names []string, token string) error {
	ctx := cmd.Context()
	cfg := config.GetGlobalConfig()
	out := cmd.OutOrStdout()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if token == "" {
		types, parseErr := parseTypes(names)
		if parseErr != nil {
			return parseErr
		}
		next, tokenErr := store.ChangesToken(ctx, types)
		if tokenErr != nil {
			return tokenErr
		}
		fmt.Fprintln(out, next)
		return nil
	}

	changes, next, err := reader.ReadChanges(ctx, store, token)
	if errors.Is(err, healthstore.ErrChangesTokenExpired) {
		return fmt.Errorf("%w; run 'healthbridge changes' without --token for a new one", err)
	}
	if err != nil {
		return err
	}

	p := message.NewPrinter(language.English)
	for _, c := range changes {
		op := "upsert"
		if c.Deleted {
			op = "delete"
		}
		p.Fprintf(out, "%d\t%s\t%s\t%s\n", c.Seq, op, c.Type, c.RecordID)
	}
	p.Fprintf(out, "\n%d changes, next token %s\n", len(changes), next)
	return nil
}
