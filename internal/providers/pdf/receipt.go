// Package pdf renders local parking receipts for invoices the fiscal
// authority did not supply a document for.
package pdf

import (
	"fmt"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	appconfig "github.com/programador11r-tec/zkt-sub000/internal/config"
	"github.com/programador11r-tec/zkt-sub000/internal/settlement/domain"
)

type ReceiptRenderer struct {
	emitterNIT string
	appName    string
}

func NewReceiptRenderer(cfg appconfig.Config) domain.ReceiptRenderer {
	return &ReceiptRenderer{
		emitterNIT: cfg.Fel.EmitterNIT,
		appName:    cfg.AppName,
	}
}

func (r *ReceiptRenderer) Render(invoice domain.Invoice) ([]byte, error) {
	cfg := config.NewBuilder().Build()
	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Comprobante de Parqueo", props.Text{
			Size:  16,
			Style: fontstyle.Bold,
			Align: align.Center,
		}),
	)
	m.AddRow(6,
		text.NewCol(12, r.appName, props.Text{Align: align.Center}),
	)
	if r.emitterNIT != "" {
		m.AddRow(6,
			text.NewCol(12, "NIT emisor: "+r.emitterNIT, props.Text{Align: align.Center}),
		)
	}

	m.AddRow(16,
		col.New(6).Add(
			text.New("Ticket: "+invoice.TicketNo, props.Text{Top: 0}),
			text.New("NIT receptor: "+invoice.ReceptorNIT, props.Text{Top: 5}),
			text.New("Modo: "+invoice.BillingMode, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Entrada: "+invoice.EntryAt.Format(time.DateTime), props.Text{Top: 0}),
			text.New("Salida: "+invoice.ExitAt.Format(time.DateTime), props.Text{Top: 5}),
			text.New(fmt.Sprintf("Horas cobradas: %d", invoice.HoursBilled), props.Text{Top: 10}),
		),
	)

	if invoice.DiscountAmount > 0 {
		code := ""
		if invoice.DiscountCode != nil {
			code = *invoice.DiscountCode
		}
		m.AddRow(6,
			text.NewCol(12, fmt.Sprintf("Descuento %s: Q%.2f", code, invoice.DiscountAmount), props.Text{}),
		)
	}

	m.AddRow(10,
		text.NewCol(12, fmt.Sprintf("Total: Q%.2f", invoice.Total), props.Text{
			Size:  13,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	status := "NO CERTIFICADO"
	switch invoice.Status {
	case domain.InvoiceStatusCertified:
		if invoice.UUID != nil {
			status = "Certificado FEL: " + *invoice.UUID
		} else {
			status = "Certificado FEL"
		}
	case domain.InvoiceStatusGratis:
		status = "Ticket de cortesia"
	}
	m.AddRow(8,
		text.NewCol(12, status, props.Text{Size: 9, Align: align.Center}),
	)
	m.AddRow(6,
		text.NewCol(12, invoice.CreatedAt.Format(time.RFC822), props.Text{Size: 8, Align: align.Center}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
