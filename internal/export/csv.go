package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"cargoops/api/internal/audit"
	"cargoops/api/internal/store"
)

// AuditTrailCSV renders the audit ledger as a spreadsheet-friendly file.
// Hashes are included so an exported trail can be re-verified offline.
func AuditTrailCSV(entries []audit.Entry) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Timestamp", "User", "Action", "Details", "Related IDs", "Hash", "Previous Hash"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, entry := range entries {
		record := []string{
			entry.Timestamp,
			entry.User,
			entry.Action,
			entry.Details,
			strings.Join(entry.RelatedIDs, ";"),
			entry.Hash,
			entry.PreviousHash,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: "audit-trail.csv",
		MimeType: "text/csv",
	}, nil
}

// DischargeSummaryCSV renders the per-document discharge summary for a
// shipment.
func DischargeSummaryCSV(bundle ShipmentBundle) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"BL Number", "File Name", "Document Type", "Status", "Review", "Units", "Weight", "Consignee"}); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, doc := range bundle.Documents {
		record := []string{
			fieldValue(doc, "blNumber"),
			doc.FileName,
			doc.DocumentType,
			doc.ProcessingStatus,
			doc.ReviewStatus,
			fieldValue(doc, "numberOfUnits"),
			fieldValue(doc, "weight"),
			fieldValue(doc, "consigneeName"),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv record: %w", err)
		}
	}

	totals := []string{"TOTAL", "", "", "", "", fmt.Sprintf("%d", bundle.Reconciliation.DocumentUnits), "", ""}
	if err := w.Write(totals); err != nil {
		return nil, fmt.Errorf("write csv totals: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(bundle.Shipment.VesselName+"-"+bundle.Shipment.VoyageNumber) + "-discharge.csv",
		MimeType: "text/csv",
	}, nil
}

func fieldValue(doc store.Document, name string) string {
	if doc.ExtractedFields == nil {
		return ""
	}
	return doc.ExtractedFields[name].Value
}
