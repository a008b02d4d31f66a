package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"cargoops/api/internal/audit"
	"cargoops/api/internal/export"
)

// AuditTrail returns the full hash-chained trail, oldest first.
func (s *Service) AuditTrail(ctx context.Context) ([]audit.Entry, error) {
	return s.ledger.Entries(ctx)
}

// AuditTrailForEntity returns the entries related to one shipment or
// document.
func (s *Service) AuditTrailForEntity(ctx context.Context, entityID string) ([]audit.Entry, error) {
	return s.ledger.EntriesForEntity(ctx, entityID)
}

// VerifyAuditTrail walks the chain and recomputes every digest. A broken
// link or a mutated entry surfaces as CHAIN_CORRUPTED.
func (s *Service) VerifyAuditTrail(ctx context.Context) (map[string]any, error) {
	entries, err := s.ledger.Entries(ctx)
	if err != nil {
		return nil, err
	}
	valid, err := s.ledger.VerifyChain(ctx)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, domainError(http.StatusConflict, "CHAIN_CORRUPTED",
			"audit trail verification failed, the chain has been tampered with", map[string]any{
				"entries": len(entries),
			})
	}
	return map[string]any{"valid": true, "entries": len(entries)}, nil
}

// ResetAuditTrail wipes the trail and starts a fresh chain recording who
// reset it. Admin only; the database trigger blocks any other delete
// path.
func (s *Service) ResetAuditTrail(ctx context.Context, actor string) error {
	if err := s.ledger.Reset(ctx); err != nil {
		return err
	}
	return s.recordAudit(ctx, actor, "Audit Trail Reset", "Audit trail cleared and restarted")
}

// ExportAuditTrail renders the trail as CSV, including hashes so the file
// can be re-verified offline.
func (s *Service) ExportAuditTrail(ctx context.Context, actor string) (*export.Result, error) {
	entries, err := s.ledger.Entries(ctx)
	if err != nil {
		return nil, err
	}
	result, err := export.AuditTrailCSV(entries)
	if err != nil {
		return nil, err
	}
	if err := s.recordAudit(ctx, actor, "Audit Trail Export", "Exported audit trail as CSV"); err != nil {
		return nil, err
	}
	return result, nil
}

// ExportShipment renders one shipment in the requested format.
func (s *Service) ExportShipment(ctx context.Context, shipmentID string, format export.Format, actor string) (*export.Result, error) {
	bundle, err := s.shipmentBundle(ctx, shipmentID)
	if err != nil {
		return nil, err
	}

	var result *export.Result
	switch format {
	case export.FormatCSV:
		result, err = export.DischargeSummaryCSV(bundle)
	case export.FormatEDI:
		result, err = export.ManifestEDI(bundle)
	case export.FormatJSON:
		result, err = export.ShipmentReportJSON(bundle)
	case export.FormatPDF:
		result, err = export.ShipmentSummaryPDF(bundle)
	default:
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"format must be one of csv, edi, json, pdf", nil)
	}
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this host", nil)
		}
		if format == export.FormatEDI && bundle.Manifest == nil {
			return nil, domainError(http.StatusConflict, "INVALID_TRANSITION", "generate a manifest before exporting EDI", nil)
		}
		return nil, err
	}

	action := "Export Generated"
	if format == export.FormatEDI {
		action = "Manifest Downloaded"
	}
	if err := s.recordAudit(ctx, actor, action,
		"Exported "+bundle.Shipment.VesselName+" voyage "+bundle.Shipment.VoyageNumber+" as "+string(format), shipmentID); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) shipmentBundle(ctx context.Context, shipmentID string) (export.ShipmentBundle, error) {
	shipment, err := s.GetShipment(ctx, shipmentID)
	if err != nil {
		return export.ShipmentBundle{}, err
	}
	docs, err := s.store.ListShipmentDocuments(ctx, shipmentID)
	if err != nil {
		return export.ShipmentBundle{}, err
	}
	reconciliation, err := s.ReconcileShipment(ctx, shipmentID)
	if err != nil {
		return export.ShipmentBundle{}, err
	}

	bundle := export.ShipmentBundle{
		Shipment:       shipment,
		Documents:      docs,
		Reconciliation: reconciliation,
		GeneratedAt:    time.Now().UTC(),
	}
	if plan, err := s.store.GetAllocationPlan(ctx, shipmentID); err == nil {
		bundle.Plan = &plan
	} else if !errors.Is(err, sql.ErrNoRows) {
		return export.ShipmentBundle{}, err
	}
	if manifest, err := s.store.GetShipmentManifest(ctx, shipmentID); err == nil {
		bundle.Manifest = &manifest
	} else if !errors.Is(err, sql.ErrNoRows) {
		return export.ShipmentBundle{}, err
	}
	return bundle, nil
}
