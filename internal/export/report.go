package export

import (
	"encoding/json"
	"fmt"
)

// ShipmentReportJSON renders a machine-readable shipment report: metadata,
// workflow state, reconciliation and the document list.
func ShipmentReportJSON(bundle ShipmentBundle) (*Result, error) {
	report := map[string]any{
		"shipment":       bundle.Shipment,
		"documents":      bundle.Documents,
		"reconciliation": bundle.Reconciliation,
		"generatedAt":    bundle.GeneratedAt,
	}
	if bundle.Plan != nil {
		report["allocationPlan"] = bundle.Plan
	}
	if bundle.Manifest != nil {
		report["manifest"] = bundle.Manifest
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal shipment report: %w", err)
	}
	return &Result{
		Data:     data,
		Filename: sanitizeFilename(bundle.Shipment.VesselName+"-"+bundle.Shipment.VoyageNumber) + "-report.json",
		MimeType: "application/json",
	}, nil
}
