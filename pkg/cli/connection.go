package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/doxen-app/doxen/pkg/repository"
	"github.com/doxen-app/doxen/pkg/types"
	"github.com/spf13/cobra"
)

var (
	connUser     string
	connProvider string
)

var connectionCmd = &cobra.Command{
	Use:     "connections",
	Aliases: []string{"connection", "conn"},
	Short:   "Inspect and remove stored OAuth connections",
}

var connectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's connections",
	Example: `  doxen connections list --user 6f1c...
  doxen connections list --user 6f1c... --provider slack --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if connUser == "" {
			return errors.New("--user is required")
		}
		if connProvider != "" && !types.IsKnownProvider(connProvider) {
			return fmt.Errorf("unknown provider %q", connProvider)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		backend, err := openPostgres(cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		infos, err := listConnections(cmd.Context(), backend, connUser, connProvider)
		if err != nil {
			return err
		}

		if PrintJSON(infos) {
			return nil
		}
		printConnections(cmd.OutOrStdout(), infos)
		return nil
	},
}

var connectionDeleteCmd = &cobra.Command{
	Use:   "delete <connection_id>",
	Short: "Disconnect an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if connUser == "" {
			return errors.New("--user is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		backend, err := openPostgres(cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		if err := backend.DeleteConnection(cmd.Context(), connUser, args[0]); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("connection %s not found for user %s", args[0], connUser)
			}
			return err
		}

		if !PrintJSON(map[string]string{"deleted": args[0]}) {
			PrintSuccessf("Connection %s deleted", args[0])
		}
		return nil
	},
}

func init() {
	connectionCmd.PersistentFlags().StringVar(&connUser, "user", "", "User id owning the connections")
	connectionListCmd.Flags().StringVar(&connProvider, "provider", "", "Filter by provider (gmail, slack)")

	connectionCmd.AddCommand(connectionListCmd)
	connectionCmd.AddCommand(connectionDeleteCmd)
}

func listConnections(ctx context.Context, store repository.ConnectionRepository, userId, provider string) ([]types.ConnectionInfo, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	conns, err := store.ListConnections(ctx, userId, provider)
	if err != nil {
		return nil, err
	}

	infos := make([]types.ConnectionInfo, 0, len(conns))
	for i := range conns {
		infos = append(infos, conns[i].Info())
	}
	return infos, nil
}

func printConnections(w io.Writer, infos []types.ConnectionInfo) {
	if len(infos) == 0 {
		fmt.Fprintf(w, "  %s %s\n", InfoStyle.Render(SymbolInfo), "No connections")
		return
	}

	table := NewTable("ID", "PROVIDER", "ACCOUNT", "EXPIRES", "UPDATED")
	for _, c := range infos {
		expires := "never"
		if c.ExpiresAt != nil {
			expires = c.ExpiresAt.UTC().Format(time.RFC3339)
		}
		table.AddRow(c.Id, c.Provider, c.AccountName, expires, FormatRelativeTime(c.UpdatedAt))
	}
	table.Fprint(w)
}
