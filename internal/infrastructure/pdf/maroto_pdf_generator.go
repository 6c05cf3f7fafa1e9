// Package pdf genera la representación impresa de un comprobante autorizado por AFIP
// (RG 4291 / RG 4892: CAE, vencimiento y código QR de verificación).
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Emisor + CUIT        │  [letra]  Tipo + N° + Fecha  │
//	│  ─────────────────────────────────────────────────────────  │
//	│  RECEPTOR: Nombre + tipo/nro de documento                    │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA IVA: Alícuota | Base imponible | Importe              │
//	│  TOTALES: Neto / No gravado / Exento / IVA / Tributos / TOTAL│
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER AFIP: QR + CAE + Vto. CAE                            │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	appbilling "github.com/jhoicas/wsfe-api/internal/application/billing"
	"github.com/jhoicas/wsfe-api/internal/domain/entity"
	catalog "github.com/jhoicas/wsfe-api/pkg/afip"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

var kindLabels = map[string]string{
	catalog.KindInvoice:    "FACTURA",
	catalog.KindDebitNote:  "NOTA DE DÉBITO",
	catalog.KindCreditNote: "NOTA DE CRÉDITO",
}

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoReceiptGenerator implementa billing.ReceiptGenerator usando Maroto v2.
type MarotoReceiptGenerator struct {
	issuerName string
}

// NewMarotoReceiptGenerator construye el generador con la razón social del emisor.
func NewMarotoReceiptGenerator(issuerName string) *MarotoReceiptGenerator {
	return &MarotoReceiptGenerator{issuerName: issuerName}
}

// GenerateReceipt genera el PDF y devuelve sus bytes.
func (g *MarotoReceiptGenerator) GenerateReceipt(_ context.Context, data appbilling.ReceiptData) ([]byte, error) {
	if data.Document == nil {
		return nil, fmt.Errorf("pdf: comprobante nulo")
	}
	doc := data.Document

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Comprobante electrónico AFIP", true).
		WithAuthor(g.issuerName, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(g.headerRow(data))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(receiverRow(doc.Counterparty))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	if rows := vatRows(doc); len(rows) > 0 {
		m.AddRows(rows...)
		m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	}
	m.AddRows(totalsRow(doc))

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(afipFooterRow(doc, data.QRURL))

	pdf, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return pdf.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: emisor (izq), letra del comprobante (centro), tipo + número + fecha (der).
func (g *MarotoReceiptGenerator) headerRow(data appbilling.ReceiptData) core.Row {
	doc := data.Document
	number := fmt.Sprintf("N° %05d-%08d", doc.PointOfSale, doc.Number)

	return row.New(20).Add(
		col.New(5).Add(
			text.New(g.issuerName, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("CUIT: "+formatCUIT(data.IssuerCUIT), props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(2).Add(
			text.New(doc.Class, props.Text{
				Style: fontstyle.Bold, Size: 22, Align: align.Center, Top: 1,
			}),
			text.New(fmt.Sprintf("COD. %03d", data.DocumentType), props.Text{
				Size: 7, Align: align.Center, Top: 12, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New(kindLabel(doc.Kind), props.Text{
				Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Top: 1,
			}),
			text.New(number, props.Text{
				Style: fontstyle.Bold, Size: 11, Align: align.Right, Top: 7,
			}),
			text.New("Fecha: "+doc.IssueDate.Format("02/01/2006"), props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

func receiverRow(p entity.Party) core.Row {
	return row.New(14).Add(
		col.New(12).Add(
			text.New("RECEPTOR", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(nonEmpty(p.Name, "Consumidor final"), props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 6,
			}),
			text.New(fmt.Sprintf("%s: %s", strings.ToUpper(p.IDType), nonEmpty(p.IDNumber, "—")), props.Text{
				Size: 8, Top: 12, Color: colorGray,
			}),
		),
	)
}

// vatRows: una fila por alícuota. Clase C no discrimina IVA.
func vatRows(doc *entity.FiscalDocument) []core.Row {
	if doc.Class == catalog.ClassC || len(doc.VAT) == 0 {
		return nil
	}
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a, Color: colorPrimary, Top: 1,
		}))
	}
	rows := []core.Row{row.New(6).Add(
		h("Alícuota IVA", 4, align.Left),
		h("Base imponible", 4, align.Right),
		h("Importe", 4, align.Right),
	)}
	for _, item := range doc.VAT {
		rows = append(rows, row.New(5).Add(
			col.New(4).Add(text.New(item.Rate.String()+"%", props.Text{Size: 8})),
			col.New(4).Add(text.New(money(item.BaseAmount), props.Text{Size: 8, Align: align.Right})),
			col.New(4).Add(text.New(money(item.Amount), props.Text{Size: 8, Align: align.Right})),
		))
	}
	return rows
}

func totalsRow(doc *entity.FiscalDocument) core.Row {
	type amount struct {
		label string
		value decimal.Decimal
	}
	lines := []amount{
		{"Neto gravado:", doc.NetTaxed},
		{"No gravado:", doc.NonTaxed},
		{"Exento:", doc.Exempt},
		{"IVA:", doc.VATAmount},
		{"Otros tributos:", doc.OtherTaxes},
	}

	labels := col.New(3)
	values := col.New(3)
	top := 0.0
	for _, l := range lines {
		labels.Add(text.New(l.label, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2, Top: top}))
		values.Add(text.New(money(l.value), props.Text{Size: 9, Align: align.Right, Right: 1, Top: top}))
		top += 5
	}
	labels.Add(text.New("TOTAL "+doc.Currency+":", props.Text{
		Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 2, Top: top + 1,
	}))
	values.Add(text.New(money(doc.Total), props.Text{
		Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 1, Top: top + 1,
	}))

	return row.New(top + 10).Add(col.New(6), labels, values)
}

// afipFooterRow: QR de verificación + CAE y vencimiento.
func afipFooterRow(doc *entity.FiscalDocument, qrURL string) core.Row {
	expiry := "—"
	if doc.CAEExpiry != nil {
		expiry = doc.CAEExpiry.Format("02/01/2006")
	}
	info := col.New(8).Add(
		text.New("Comprobante autorizado", props.Text{
			Style: fontstyle.Bold, Size: 10, Color: colorPrimary, Top: 4, Left: 3,
		}),
		text.New("CAE N°: "+doc.CAE, props.Text{Style: fontstyle.Bold, Size: 9, Top: 12, Left: 3}),
		text.New("Fecha de Vto. de CAE: "+expiry, props.Text{Size: 9, Top: 18, Left: 3}),
		text.New("Esta Administración Federal no se responsabiliza por los datos ingresados en el detalle de la operación.",
			props.Text{Size: 6.5, Color: colorGray, Top: 28, Left: 3}),
	)
	if qrURL == "" {
		return row.New(40).Add(col.New(4), info)
	}
	return row.New(40).Add(
		col.New(4).Add(code.NewQr(qrURL, props.Rect{Percent: 95, Center: true})),
		info,
	)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func kindLabel(kind string) string {
	if l, ok := kindLabels[kind]; ok {
		return l
	}
	return strings.ToUpper(kind)
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// money formatea con separador de miles "." y decimales ",": 1234567.5 → "$ 1.234.567,50".
func money(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	n := len(intPart)
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(intPart) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, '.')
		}
		buf = append(buf, c)
	}
	return "$ " + sign + string(buf) + "," + frac
}

// formatCUIT 20123456786 → "20-12345678-6".
func formatCUIT(cuit int64) string {
	s := fmt.Sprintf("%011d", cuit)
	return s[:2] + "-" + s[2:10] + "-" + s[10:]
}
