package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/moveoone/moveo/internal/auth"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Create, list and revoke SDK tokens",
	}
	cmd.AddCommand(newTokenCreateCmd(), newTokenListCmd(), newTokenRevokeCmd())
	return cmd
}

func newTokenCreateCmd() *cobra.Command {
	var appID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a token for an app and print it once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			token, err := auth.New(db.DB(), "", nil, quietLogger()).CreateToken(cmd.Context(), appID, name)
			if err != nil {
				return fmt.Errorf("create token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&appID, "app-id", "", "application the token authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "human-readable label")
	_ = cmd.MarkFlagRequired("app-id")
	return cmd
}

func newTokenListCmd() *cobra.Command {
	var appID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tokens of an app",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			tokens, err := auth.New(db.DB(), "", nil, quietLogger()).ListTokens(cmd.Context(), appID)
			if err != nil {
				return fmt.Errorf("list tokens: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tREVOKED\tCREATED")
			for _, t := range tokens {
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", t.ID, t.Name, t.Revoked, t.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&appID, "app-id", "", "application to list")
	_ = cmd.MarkFlagRequired("app-id")
	return cmd
}

func newTokenRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token-id>",
		Short: "Revoke a token by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := auth.New(db.DB(), "", nil, quietLogger()).RevokeToken(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("revoke token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		},
	}
}
