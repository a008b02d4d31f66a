package app

import (
	"context"
	"strings"
	"testing"

	"cargoops/api/internal/store"
	"cargoops/api/internal/workflow"
)

func TestGenerateManifestFromReadyDocuments(t *testing.T) {
	fs := newFakeStore()
	seedShipment(fs, workflow.StageFlags{BerthConfirmation: true})
	seedReadyDocument(fs, "doc_1", "120")
	pending := seedReadyDocument(fs, "doc_2", "40")
	pending.ProcessingStatus = store.ProcessingUploaded
	fs.documents[pending.ID] = pending
	svc := newTestService(fs, nil)

	manifest, err := svc.GenerateManifest(context.Background(), "ship_1", "ops")
	if err != nil {
		t.Fatalf("GenerateManifest: %v", err)
	}
	if manifest.Status != store.ManifestDraft {
		t.Fatalf("status = %s", manifest.Status)
	}
	if len(manifest.Cargo) != 1 {
		t.Fatalf("cargo lines = %d, want 1 (only ready documents)", len(manifest.Cargo))
	}
	line := manifest.Cargo[0]
	if line.Units != 120 || line.Weight != 180.5 || line.CBM != 1440 {
		t.Fatalf("cargo line = %+v", line)
	}
	if !strings.HasPrefix(manifest.ManifestNumber, "MFST-") {
		t.Fatalf("manifestNumber = %s", manifest.ManifestNumber)
	}
	if fs.lastAuditAction() != "Manifest Generated" {
		t.Fatalf("last audit action = %s", fs.lastAuditAction())
	}
}

func TestGenerateManifestRequiresReadyDocuments(t *testing.T) {
	fs := newFakeStore()
	seedShipment(fs, workflow.StageFlags{})
	svc := newTestService(fs, nil)

	_, err := svc.GenerateManifest(context.Background(), "ship_1", "ops")
	if code := domainCode(t, err); code != "GATE_NOT_SATISFIED" {
		t.Fatalf("code = %s, want GATE_NOT_SATISFIED", code)
	}
}

func TestRegenerateKeepsManifestNumber(t *testing.T) {
	fs := newFakeStore()
	seedShipment(fs, workflow.StageFlags{})
	seedReadyDocument(fs, "doc_1", "120")
	svc := newTestService(fs, nil)

	first, err := svc.GenerateManifest(context.Background(), "ship_1", "ops")
	if err != nil {
		t.Fatalf("GenerateManifest: %v", err)
	}
	seedReadyDocument(fs, "doc_2", "40")
	second, err := svc.GenerateManifest(context.Background(), "ship_1", "ops")
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if second.ManifestNumber != first.ManifestNumber {
		t.Fatalf("manifest number changed: %s -> %s", first.ManifestNumber, second.ManifestNumber)
	}
	if len(second.Cargo) != 2 {
		t.Fatalf("cargo lines = %d", len(second.Cargo))
	}
}

func TestSubmitManifestTagsRevision(t *testing.T) {
	fs := newFakeStore()
	seedShipment(fs, workflow.StageFlags{})
	seedReadyDocument(fs, "doc_1", "120")
	svc := newTestService(fs, nil)
	repos := svc.manifests.(*fakeManifests)

	manifest, err := svc.GenerateManifest(context.Background(), "ship_1", "ops")
	if err != nil {
		t.Fatalf("GenerateManifest: %v", err)
	}
	submitted, err := svc.SubmitManifest(context.Background(), manifest.ID, reviewer())
	if err != nil {
		t.Fatalf("SubmitManifest: %v", err)
	}
	if submitted.Status != store.ManifestSubmitted || submitted.SubmittedAt == nil {
		t.Fatalf("manifest = %+v", submitted)
	}
	if len(repos.tags) != 1 || repos.tags[0] != "submission-"+manifest.ManifestNumber {
		t.Fatalf("tags = %v", repos.tags)
	}

	// Submitting twice is rejected, and so is regenerating.
	_, err = svc.SubmitManifest(context.Background(), manifest.ID, reviewer())
	if code := domainCode(t, err); code != "INVALID_TRANSITION" {
		t.Fatalf("code = %s, want INVALID_TRANSITION", code)
	}
	_, err = svc.GenerateManifest(context.Background(), "ship_1", "ops")
	if code := domainCode(t, err); code != "INVALID_TRANSITION" {
		t.Fatalf("regenerate code = %s, want INVALID_TRANSITION", code)
	}
}

func TestSubmitManifestCompletesPortnetStage(t *testing.T) {
	fs := newFakeStore()
	seedShipment(fs, workflow.StageFlags{BerthConfirmation: true, PreSubmission: true})
	seedReadyDocument(fs, "doc_1", "120")
	svc := newTestService(fs, nil)

	manifest, err := svc.GenerateManifest(context.Background(), "ship_1", "ops")
	if err != nil {
		t.Fatalf("GenerateManifest: %v", err)
	}
	if _, err := svc.SubmitManifest(context.Background(), manifest.ID, reviewer()); err != nil {
		t.Fatalf("SubmitManifest: %v", err)
	}

	shipment, err := svc.GetShipment(context.Background(), "ship_1")
	if err != nil {
		t.Fatalf("GetShipment: %v", err)
	}
	if !shipment.Stages.PortnetSubmission {
		t.Fatalf("portnet-submission not completed: %+v", shipment.Stages)
	}
	if fs.lastAuditAction() != "Stage Completed" {
		t.Fatalf("last audit action = %s", fs.lastAuditAction())
	}
}

func TestManifestSettlement(t *testing.T) {
	fs := newFakeStore()
	seedShipment(fs, workflow.StageFlags{})
	seedReadyDocument(fs, "doc_1", "120")
	svc := newTestService(fs, nil)

	manifest, err := svc.GenerateManifest(context.Background(), "ship_1", "ops")
	if err != nil {
		t.Fatalf("GenerateManifest: %v", err)
	}

	// Acknowledging a draft is out of order.
	_, err = svc.AcknowledgeManifest(context.Background(), manifest.ID, reviewer())
	if code := domainCode(t, err); code != "INVALID_TRANSITION" {
		t.Fatalf("code = %s, want INVALID_TRANSITION", code)
	}

	if _, err := svc.SubmitManifest(context.Background(), manifest.ID, reviewer()); err != nil {
		t.Fatalf("SubmitManifest: %v", err)
	}

	// Rejection needs a reason.
	_, err = svc.RejectManifest(context.Background(), manifest.ID, "", reviewer())
	if code := domainCode(t, err); code != "VALIDATION_ERROR" {
		t.Fatalf("code = %s, want VALIDATION_ERROR", code)
	}

	rejected, err := svc.RejectManifest(context.Background(), manifest.ID, "duplicate BL numbers flagged by PORTNET", reviewer())
	if err != nil {
		t.Fatalf("RejectManifest: %v", err)
	}
	if rejected.Status != store.ManifestRejected {
		t.Fatalf("status = %s", rejected.Status)
	}

	// A rejected manifest can be regenerated and resubmitted.
	if _, err := svc.GenerateManifest(context.Background(), "ship_1", "ops"); err != nil {
		t.Fatalf("regenerate after rejection: %v", err)
	}
}

func TestAddManifestComment(t *testing.T) {
	fs := newFakeStore()
	seedShipment(fs, workflow.StageFlags{})
	seedReadyDocument(fs, "doc_1", "120")
	svc := newTestService(fs, nil)

	manifest, err := svc.GenerateManifest(context.Background(), "ship_1", "ops")
	if err != nil {
		t.Fatalf("GenerateManifest: %v", err)
	}
	_, err = svc.AddManifestComment(context.Background(), manifest.ID, "", "ops")
	if code := domainCode(t, err); code != "EMPTY_COMMENT" {
		t.Fatalf("code = %s, want EMPTY_COMMENT", code)
	}
	updated, err := svc.AddManifestComment(context.Background(), manifest.ID, "units confirmed against tally sheet", "ops")
	if err != nil {
		t.Fatalf("AddManifestComment: %v", err)
	}
	if len(updated.Comments) != 1 || updated.Comments[0].Author != "ops" {
		t.Fatalf("comments = %+v", updated.Comments)
	}
}
