// Package cmd comandos de wsfectl: operación manual de WSFEv1 contra AFIP.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/jhoicas/wsfe-api/internal/infrastructure/afip"
	"github.com/jhoicas/wsfe-api/internal/infrastructure/postgres"
	"github.com/jhoicas/wsfe-api/pkg/config"
	"github.com/jhoicas/wsfe-api/pkg/logger"
)

// options flags globales.
type options struct {
	logLevel string
	quiet    bool
}

// NewRootCmd arma el árbol de comandos.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "wsfectl",
		Short: "Cliente de línea de comandos para WSAA + WSFEv1 de AFIP",
		Long: `wsfectl opera la facturación electrónica de AFIP sin pasar por la API HTTP.

La configuración se lee de variables de entorno (o .env en el directorio actual):
  AFIP_CUIT, AFIP_CERT_PATH, AFIP_KEY_PATH, AFIP_ENVIRONMENT, DATABASE_URL, JWT_SECRET ...

Comandos:
  dummy       Estado de los servidores de AFIP (FEDummy)
  ultimo      Último número autorizado para punto de venta y tipo
  consultar   Registro de AFIP de un comprobante emitido
  autorizar   Solicita CAE para comprobantes persistidos
  migrate     Aplica las migraciones de PostgreSQL
  token       Emite un JWT para la API`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "nivel de log (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "sin logs")

	root.AddCommand(
		newDummyCmd(opts),
		newUltimoCmd(opts),
		newConsultarCmd(opts),
		newAutorizarCmd(opts),
		newMigrateCmd(opts),
		newTokenCmd(),
	)
	return root
}

// Execute corre wsfectl con os.Args.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ── dependencias ──

func (o *options) logger(cfg *config.Config) *logger.Logger {
	if o.quiet {
		return logger.Nop()
	}
	level := cfg.App.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	return logger.New(logger.Config{Env: "development", Level: level, Output: os.Stderr})
}

// afipClient carga y valida la configuración completa y construye el cliente WSFEv1.
func (o *options) afipClient() (*config.Config, *logger.Logger, *afip.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	log := o.logger(cfg)
	client, _, err := afip.NewFromConfig(cfg.AFIP, nil, log.Component("afip"))
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, client, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
	}
	return pool, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
