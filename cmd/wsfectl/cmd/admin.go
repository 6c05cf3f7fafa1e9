package cmd

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/jhoicas/wsfe-api/internal/infrastructure/postgres"
	"github.com/jhoicas/wsfe-api/pkg/config"
	"github.com/jhoicas/wsfe-api/pkg/jwt"
)

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de PostgreSQL (idempotentes)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Read()
			log := opts.logger(cfg)
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := postgres.Migrate(cmd.Context(), pool, log.Component("postgres")); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migraciones aplicadas")
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:     "token <subject>",
		Short:   "Emite un JWT firmado con JWT_SECRET",
		Example: `  wsfectl token facturacion@empresa.com.ar --rol operator --ttl 24h`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roles := []string{jwt.RoleAdmin, jwt.RoleOperator, jwt.RoleViewer}
			if !slices.Contains(roles, role) {
				return fmt.Errorf("rol %q inválido (%v)", role, roles)
			}
			cfg := config.Read()
			if ttl <= 0 {
				ttl = time.Duration(cfg.JWT.Expiration) * time.Minute
			}
			tok, err := jwt.Generate(cfg.JWT.Secret, args[0], role, cfg.JWT.Issuer, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVarP(&role, "rol", "r", jwt.RoleViewer, "rol del token (admin, operator, viewer)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "vigencia (0 = JWT_EXPIRATION_MINUTES)")
	return cmd
}
