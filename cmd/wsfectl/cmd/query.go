package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jhoicas/wsfe-api/internal/application/dto"
)

func newDummyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dummy",
		Short: "Estado de AppServer, DbServer y AuthServer (FEDummy)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _, client, err := opts.afipClient()
			if err != nil {
				return err
			}
			status, err := client.Dummy(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), status); err != nil {
				return err
			}
			if !status.Healthy() {
				return fmt.Errorf("AFIP no está operativo")
			}
			return nil
		},
	}
}

// docFlags punto de venta y tipo de comprobante (código AFIP).
type docFlags struct {
	pointOfSale  int
	documentType int
}

func (f *docFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.pointOfSale, "pto-vta", "p", 0, "punto de venta (0 = AFIP_POINT_OF_SALE)")
	cmd.Flags().IntVarP(&f.documentType, "tipo", "t", 0, "tipo de comprobante AFIP (1 = Factura A, 6 = Factura B, 11 = Factura C, ...)")
	_ = cmd.MarkFlagRequired("tipo")
}

func (f *docFlags) validate(fallbackPOS int) error {
	if f.pointOfSale == 0 {
		f.pointOfSale = fallbackPOS
	}
	if f.pointOfSale < 1 || f.pointOfSale > 99998 {
		return fmt.Errorf("punto de venta %d fuera de rango (1-99998)", f.pointOfSale)
	}
	if f.documentType < 1 {
		return fmt.Errorf("tipo de comprobante %d inválido", f.documentType)
	}
	return nil
}

func newUltimoCmd(opts *options) *cobra.Command {
	var flags docFlags
	cmd := &cobra.Command{
		Use:     "ultimo",
		Short:   "Último número autorizado (FECompUltimoAutorizado)",
		Example: `  wsfectl ultimo --pto-vta 1 --tipo 6`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, client, err := opts.afipClient()
			if err != nil {
				return err
			}
			if err := flags.validate(cfg.AFIP.PointOfSale); err != nil {
				return err
			}
			n, err := client.LastAuthorizedNumber(cmd.Context(), flags.pointOfSale, flags.documentType)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto.LastNumberResponse{
				PointOfSale: flags.pointOfSale, DocumentType: flags.documentType, Number: n,
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newConsultarCmd(opts *options) *cobra.Command {
	var flags docFlags
	var number int64
	cmd := &cobra.Command{
		Use:     "consultar",
		Short:   "Registro de AFIP de un comprobante emitido (FECompConsultar)",
		Example: `  wsfectl consultar --pto-vta 1 --tipo 6 --numero 43`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if number < 1 {
				return fmt.Errorf("número de comprobante %d inválido", number)
			}
			cfg, _, client, err := opts.afipClient()
			if err != nil {
				return err
			}
			if err := flags.validate(cfg.AFIP.PointOfSale); err != nil {
				return err
			}
			rec, err := client.QueryDocument(cmd.Context(), flags.pointOfSale, flags.documentType, number)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	flags.register(cmd)
	cmd.Flags().Int64VarP(&number, "numero", "n", 0, "número de comprobante")
	_ = cmd.MarkFlagRequired("numero")
	return cmd
}
