// Package domain defines the fiscal certification contract.
package domain

import (
	"context"
	"errors"
)

// InvoiceDraft is what gets submitted to the certifier.
type InvoiceDraft struct {
	TicketNo    string  `json:"ticket_no"`
	ReceptorNIT string  `json:"receptor_nit"`
	Total       float64 `json:"total"`
	Hours       int     `json:"hours"`
	Minutes     int     `json:"minutes"`
	Mode        string  `json:"mode"`
}

// Result is the certifier verdict. A declined or errored submission is
// reported through OK/Err, not through the error return; the error
// return is reserved for transport failures.
type Result struct {
	OK          bool
	UUID        string
	PDF         []byte
	Err         string
	RawRequest  []byte
	RawResponse []byte
}

// Certifier submits invoice drafts to the external fiscal authority.
type Certifier interface {
	Certify(ctx context.Context, draft InvoiceDraft) (Result, error)
	FetchPDF(ctx context.Context, uuid string) ([]byte, error)
}

var (
	ErrNotConfigured = errors.New("certifier_not_configured")
	ErrPDFNotFound   = errors.New("certified_pdf_not_found")
)
