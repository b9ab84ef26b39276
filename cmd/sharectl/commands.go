package main

import (
	"alcyxob/fitness-share/internal/bootstrap"
	"alcyxob/fitness-share/internal/domain"
	"alcyxob/fitness-share/internal/service"
	"alcyxob/fitness-share/internal/shareid"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var errNotFileBackend = errors.New("this command only works with store.backend=file")

func newRebuildIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-index",
		Short: "Regenerate index.json from the share documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), func(store *bootstrap.Store) error {
				if store.Files == nil {
					return errNotFileBackend
				}
				total, err := store.Files.RebuildIndex(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d shares\n", total)
				return nil
			})
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List shares from index.json, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), func(store *bootstrap.Store) error {
				if store.Files == nil {
					return errNotFileBackend
				}
				entries, err := store.Files.Summaries(cmd.Context())
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SHARE ID\tNAME\tACTIVE\tCREATED\tEXPIRES")
				for _, e := range entries {
					expires := "never"
					if e.ExpiresAt != nil {
						expires = e.ExpiresAt.Format(time.RFC3339)
					}
					fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", e.ID, e.Name, e.IsActive, e.Timestamp.Format(time.RFC3339), expires)
				}
				return w.Flush()
			})
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <share-id>",
		Short: "Print a share as JSON without counting an access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := shareid.Normalize(args[0])
			if !shareid.Valid(id) {
				return service.ErrInvalidShareID
			}
			return withStore(cmd.Context(), func(store *bootstrap.Store) error {
				plan, err := store.Repo.FindByID(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("share %s: %w", id, err)
				}
				out, err := json.MarshalIndent(plan, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		owner string
		role  string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.JWT.Secret == "" {
				return errors.New("jwt.secret is required (set JWT_SECRET)")
			}
			token, err := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Expiration).Issue(owner, domain.Role(role))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner reference to put in the uid claim")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleTrainer), "role claim (trainer or client)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
