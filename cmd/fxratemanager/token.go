package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bher20/fxratemanager/internal/auth"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}

	var name, role, expires string
	create := &cobra.Command{
		Use:   "create",
		Short: "Generate a token and print its configuration entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch role {
			case auth.RoleAdmin, auth.RoleOperator, auth.RoleViewer:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			expiresAt, err := auth.ParseExpiry(expires, time.Now().UTC())
			if err != nil {
				return err
			}
			raw := auth.GenerateToken()
			hash, err := auth.HashToken(raw)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "token: %s\n\n", raw)
			fmt.Fprintln(out, "auth:")
			fmt.Fprintln(out, "  tokens:")
			fmt.Fprintf(out, "    - name: %s\n", name)
			fmt.Fprintf(out, "      role: %s\n", role)
			fmt.Fprintf(out, "      hash: %q\n", hash)
			if !expiresAt.IsZero() {
				fmt.Fprintf(out, "      expires_at: %q\n", expiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "default", "token name")
	create.Flags().StringVar(&role, "role", auth.RoleViewer, "admin, operator or viewer")
	create.Flags().StringVar(&expires, "expires", "never", "lifetime: never, 30d, 2w, 36h or a date")

	cmd.AddCommand(create)
	return cmd
}
