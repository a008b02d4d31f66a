// Package export renders shipment data as CSV, EDI flat files, JSON
// reports and PDF summaries.
package export

import (
	"errors"
	"time"

	"cargoops/api/internal/store"
	"cargoops/api/internal/workflow"
)

// Format represents the export output format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatEDI  Format = "edi"
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
)

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ShipmentBundle is everything the exporters need about one shipment.
type ShipmentBundle struct {
	Shipment       store.Shipment
	Documents      []store.Document
	Plan           *store.AllocationPlan
	Manifest       *store.Manifest
	Reconciliation workflow.Reconciliation
	GeneratedAt    time.Time
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are
// unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
