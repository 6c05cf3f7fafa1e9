package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jhoicas/wsfe-api/internal/application/billing"
	"github.com/jhoicas/wsfe-api/internal/infrastructure/postgres"
)

func newAutorizarCmd(opts *options) *cobra.Command {
	var (
		pending     bool
		pointOfSale int
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "autorizar [id...]",
		Short: "Solicita CAE para comprobantes persistidos",
		Long: `Autoriza los comprobantes indicados por ID o, con --pendientes, los que estén
en estado pending o error. El lote es secuencial y espaciado por BATCH_INTERVAL.`,
		Example: `  wsfectl autorizar 3f0c6a0e-...
  wsfectl autorizar --pendientes --pto-vta 1 --limite 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pending == (len(args) > 0) {
				return fmt.Errorf("indicar IDs o --pendientes (uno de los dos)")
			}
			cfg, log, client, err := opts.afipClient()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			documents := postgres.NewFiscalDocumentRepository(pool)
			service := billing.NewAuthorizationService(
				documents, postgres.NewAuthorizationRepository(pool), client,
				billing.RetryPolicy{MaxAttempts: cfg.Batch.MaxAttempts, Backoff: cfg.Batch.RetryBackoff},
				nil, log.Component("billing"),
			)
			batch := billing.NewBatchOrchestrator(service, documents, cfg.Batch.Interval, nil, log.Component("batch"))

			var report *billing.BatchReport
			if pending {
				if report, err = batch.AuthorizePending(ctx, pointOfSale, limit); err != nil {
					return err
				}
			} else {
				report = batch.AuthorizeBatch(ctx, args)
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d de %d comprobantes sin CAE", len(report.Failed), len(report.Failed)+len(report.Succeeded))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&pending, "pendientes", false, "autorizar los comprobantes pending/error")
	cmd.Flags().IntVarP(&pointOfSale, "pto-vta", "p", 0, "filtrar pendientes por punto de venta (0 = todos)")
	cmd.Flags().IntVarP(&limit, "limite", "l", 100, "máximo de pendientes a procesar")
	return cmd
}
