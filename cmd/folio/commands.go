package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vbonduro/folio/internal/auth"
	"github.com/vbonduro/folio/internal/domain"
)

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret <secret>",
	Short: "Print the bcrypt hash of an admin secret for ADMIN_SECRET_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := auth.HashSecret(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), h)
		return err
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull newer uploads from the cloud mirror into the local store once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.close(logger)

		updated, err := a.service.Sync(cmd.Context())
		if errors.Is(err, domain.ErrRemoteUnavailable) {
			return fmt.Errorf("no cloud mirror configured: %w", err)
		}
		for _, kind := range updated {
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", kind)
		}
		if len(updated) == 0 && err == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "already up to date")
		}
		return err
	},
}
