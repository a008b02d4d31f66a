package app

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cargoops/api/internal/manifestrepo"
	"cargoops/api/internal/store"
	"cargoops/api/internal/util"
	"cargoops/api/internal/workflow"
)

// GenerateManifest builds a discharge manifest from the shipment's ready
// documents and commits the snapshot to the shipment's revision history.
// Regenerating replaces the cargo of an existing draft.
func (s *Service) GenerateManifest(ctx context.Context, shipmentID, actor string) (store.Manifest, error) {
	shipment, err := s.GetShipment(ctx, shipmentID)
	if err != nil {
		return store.Manifest{}, err
	}
	docs, err := s.store.ListShipmentDocuments(ctx, shipmentID)
	if err != nil {
		return store.Manifest{}, err
	}
	cargo := make([]store.CargoItem, 0, len(docs))
	for _, doc := range docs {
		if doc.ProcessingStatus != store.ProcessingReady {
			continue
		}
		cargo = append(cargo, store.CargoItem{
			BLNumber:    fieldValue(doc, "blNumber"),
			Description: fieldValue(doc, "cargoDescription"),
			Units:       documentUnits(doc),
			Weight:      fieldFloat(doc, "weight"),
			CBM:         fieldFloat(doc, "volume"),
			Consignee:   fieldValue(doc, "consigneeName"),
		})
	}
	if len(cargo) == 0 {
		return store.Manifest{}, domainError(http.StatusConflict, "GATE_NOT_SATISFIED",
			"no documents are ready, nothing to manifest", nil)
	}

	manifest, err := s.store.GetShipmentManifest(ctx, shipmentID)
	fresh := err != nil
	if fresh {
		manifest = store.Manifest{
			ID:             util.NewID("mfst"),
			ShipmentID:     shipment.ID,
			ManifestNumber: newManifestNumber(),
			Status:         store.ManifestDraft,
		}
	} else if manifest.Status != store.ManifestDraft && manifest.Status != store.ManifestRejected {
		return store.Manifest{}, domainError(http.StatusConflict, "INVALID_TRANSITION",
			"manifest has already been submitted", nil)
	}
	manifest.Status = store.ManifestDraft
	manifest.Cargo = cargo

	if fresh {
		if err := s.store.CreateManifest(ctx, manifest); err != nil {
			return store.Manifest{}, err
		}
	} else if err := s.store.UpdateManifest(ctx, manifest); err != nil {
		return store.Manifest{}, err
	}

	snapshot := manifestSnapshot(manifest)
	if err := s.manifests.EnsureRepo(shipment.ID, snapshot, actor); err != nil {
		return store.Manifest{}, err
	}
	if _, err := s.manifests.CommitSnapshot(shipment.ID, snapshot, actor, "Generate manifest "+manifest.ManifestNumber); err != nil {
		return store.Manifest{}, err
	}
	if err := s.recordAudit(ctx, actor, "Manifest Generated",
		fmt.Sprintf("Generated manifest %s with %d cargo lines", manifest.ManifestNumber, len(cargo)), shipment.ID, manifest.ID); err != nil {
		return store.Manifest{}, err
	}
	return manifest, nil
}

func (s *Service) GetShipmentManifest(ctx context.Context, shipmentID string) (store.Manifest, error) {
	if _, err := s.GetShipment(ctx, shipmentID); err != nil {
		return store.Manifest{}, err
	}
	manifest, err := s.store.GetShipmentManifest(ctx, shipmentID)
	if err != nil {
		return store.Manifest{}, notFoundOr(err, "manifest not found")
	}
	return manifest, nil
}

// SubmitManifest sends a draft manifest to the port system and tags the
// submitted revision.
func (s *Service) SubmitManifest(ctx context.Context, manifestID string, session Session) (store.Manifest, error) {
	manifest, err := s.getManifest(ctx, manifestID)
	if err != nil {
		return store.Manifest{}, err
	}
	if manifest.Status != store.ManifestDraft {
		return store.Manifest{}, domainError(http.StatusConflict, "INVALID_TRANSITION",
			"only draft manifests can be submitted, current state is "+manifest.Status, nil)
	}
	now := time.Now().UTC()
	manifest.Status = store.ManifestSubmitted
	manifest.SubmittedAt = &now
	if err := s.store.UpdateManifest(ctx, manifest); err != nil {
		return store.Manifest{}, err
	}

	commit, err := s.manifests.CommitSnapshot(manifest.ShipmentID, manifestSnapshot(manifest), session.Name, "Submit manifest "+manifest.ManifestNumber)
	if err != nil {
		return store.Manifest{}, err
	}
	if err := s.manifests.TagSubmission(manifest.ShipmentID, commit.Hash, "submission-"+manifest.ManifestNumber); err != nil {
		return store.Manifest{}, err
	}
	if err := s.recordAudit(ctx, session.Name, "Manifest Submitted",
		"Submitted manifest "+manifest.ManifestNumber, manifest.ShipmentID, manifest.ID); err != nil {
		return store.Manifest{}, err
	}

	// Submitting to the port system is what finishes portnet-submission,
	// once the earlier stages are already complete.
	shipment, err := s.GetShipment(ctx, manifest.ShipmentID)
	if err == nil && !shipment.Stages.PortnetSubmission && workflow.CanAdvance(shipment.Stages, workflow.StagePortnetSubmission) {
		if _, err := s.CompleteStage(ctx, manifest.ShipmentID, workflow.StagePortnetSubmission, session.Name); err != nil {
			return store.Manifest{}, err
		}
	}
	return manifest, nil
}

// AcknowledgeManifest records the port system's acceptance.
func (s *Service) AcknowledgeManifest(ctx context.Context, manifestID string, session Session) (store.Manifest, error) {
	return s.settleManifest(ctx, manifestID, store.ManifestAcknowledged, "", session)
}

// RejectManifest records the port system's rejection with a reason.
func (s *Service) RejectManifest(ctx context.Context, manifestID, reason string, session Session) (store.Manifest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return store.Manifest{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "rejection reason is required", nil)
	}
	return s.settleManifest(ctx, manifestID, store.ManifestRejected, reason, session)
}

func (s *Service) settleManifest(ctx context.Context, manifestID, status, reason string, session Session) (store.Manifest, error) {
	manifest, err := s.getManifest(ctx, manifestID)
	if err != nil {
		return store.Manifest{}, err
	}
	if manifest.Status != store.ManifestSubmitted {
		return store.Manifest{}, domainError(http.StatusConflict, "INVALID_TRANSITION",
			"only submitted manifests can be settled, current state is "+manifest.Status, nil)
	}
	manifest.Status = status
	if err := s.store.UpdateManifest(ctx, manifest); err != nil {
		return store.Manifest{}, err
	}
	if _, err := s.manifests.CommitSnapshot(manifest.ShipmentID, manifestSnapshot(manifest), session.Name, "Mark manifest "+manifest.ManifestNumber+" "+status); err != nil {
		return store.Manifest{}, err
	}

	action := "Manifest Acknowledged"
	if status == store.ManifestRejected {
		action = "Manifest Rejected"
	}
	details := "Manifest " + manifest.ManifestNumber + " " + status
	if reason != "" {
		details += ": " + reason
	}
	if err := s.recordAudit(ctx, session.Name, action, details, manifest.ShipmentID, manifest.ID); err != nil {
		return store.Manifest{}, err
	}

	shipment, err := s.GetShipment(ctx, manifest.ShipmentID)
	if err == nil && s.mailer != nil && s.mailer.IsConfigured() && session.Email != "" {
		go func() {
			_ = s.mailer.SendManifestStatusEmail(session.Email, session.Name,
				shipment.VesselName, shipment.VoyageNumber, manifest.ManifestNumber, status, reason)
		}()
	}
	return manifest, nil
}

// AddManifestComment appends commentary to the manifest record.
func (s *Service) AddManifestComment(ctx context.Context, manifestID, body, actor string) (store.Manifest, error) {
	manifest, err := s.getManifest(ctx, manifestID)
	if err != nil {
		return store.Manifest{}, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Manifest{}, domainError(http.StatusUnprocessableEntity, "EMPTY_COMMENT", "comment body is required", nil)
	}
	manifest.Comments = append(manifest.Comments, store.ManifestComment{
		ID:        util.NewID("mc"),
		Author:    actor,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	})
	if err := s.store.UpdateManifest(ctx, manifest); err != nil {
		return store.Manifest{}, err
	}
	if err := s.recordAudit(ctx, actor, "Comment Added",
		"Commented on manifest "+manifest.ManifestNumber, manifest.ShipmentID, manifest.ID); err != nil {
		return store.Manifest{}, err
	}
	return manifest, nil
}

// ManifestHistory lists the revision history of a shipment's manifest.
func (s *Service) ManifestHistory(ctx context.Context, shipmentID string, limit int) ([]manifestrepo.CommitInfo, error) {
	if _, err := s.GetShipmentManifest(ctx, shipmentID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.manifests.History(shipmentID, limit)
}

// ManifestDiff compares the manifest between two revisions.
func (s *Service) ManifestDiff(ctx context.Context, shipmentID, fromHash, toHash string) ([]map[string]string, error) {
	if _, err := s.GetShipmentManifest(ctx, shipmentID); err != nil {
		return nil, err
	}
	if fromHash == "" || toHash == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "from and to revisions are required", nil)
	}
	from, err := s.manifests.GetSnapshotByHash(shipmentID, fromHash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "revision "+fromHash+" not found", nil)
	}
	to, err := s.manifests.GetSnapshotByHash(shipmentID, toHash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "revision "+toHash+" not found", nil)
	}
	return manifestrepo.DiffFields(from, to), nil
}

func (s *Service) getManifest(ctx context.Context, id string) (store.Manifest, error) {
	manifest, err := s.store.GetManifest(ctx, id)
	if err != nil {
		return store.Manifest{}, notFoundOr(err, "manifest not found")
	}
	return manifest, nil
}

func manifestSnapshot(manifest store.Manifest) manifestrepo.Snapshot {
	return manifestrepo.Snapshot{
		ManifestNumber: manifest.ManifestNumber,
		Status:         manifest.Status,
		Cargo:          manifest.Cargo,
	}
}

func newManifestNumber() string {
	return "MFST-" + time.Now().UTC().Format("2006") + "-" + strings.ToUpper(util.ShortID()[:8])
}

func fieldValue(doc store.Document, name string) string {
	if doc.ExtractedFields == nil {
		return ""
	}
	return doc.ExtractedFields[name].Value
}

// fieldFloat parses the leading numeric token of an extracted value, so
// "180.5 MT" yields 180.5.
func fieldFloat(doc store.Document, name string) float64 {
	raw := strings.TrimSpace(fieldValue(doc, name))
	if raw == "" {
		return 0
	}
	if idx := strings.IndexByte(raw, ' '); idx > 0 {
		raw = raw[:idx]
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return value
}
