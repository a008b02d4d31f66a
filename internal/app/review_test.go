package app

import (
	"context"
	"testing"

	"cargoops/api/internal/store"
	"cargoops/api/internal/workflow"
)

func reviewer() Session {
	return Session{OperatorID: "op_sup", Name: "Priya Menon", Email: "supervisor@cargoops.local", Role: "supervisor"}
}

func TestStartReviewRequiresReadyExtraction(t *testing.T) {
	fs := newFakeStore()
	seedShipment(fs, workflow.StageFlags{})
	doc := seedReadyDocument(fs, "doc_1", "120")
	doc.ProcessingStatus = store.ProcessingUploaded
	fs.documents[doc.ID] = doc
	svc := newTestService(fs, nil)

	_, err := svc.StartReview(context.Background(), "doc_1", "ops")
	if code := domainCode(t, err); code != "INVALID_TRANSITION" {
		t.Fatalf("code = %s, want INVALID_TRANSITION", code)
	}
}

func TestApproveLocksDocument(t *testing.T) {
	fs := newFakeStore()
	seedShipment(fs, workflow.StageFlags{})
	seedReadyDocument(fs, "doc_1", "120")
	svc := newTestService(fs, nil)

	if _, err := svc.StartReview(context.Background(), "doc_1", "Priya Menon"); err != nil {
		t.Fatalf("StartReview: %v", err)
	}
	doc, err := svc.ApproveDocument(context.Background(), "doc_1", "all fields verified against the stamped BL", reviewer())
	if err != nil {
		t.Fatalf("ApproveDocument: %v", err)
	}
	if doc.ReviewStatus != store.ReviewApproved || !doc.Locked {
		t.Fatalf("doc = %+v", doc)
	}
	if doc.ReviewedBy != "Priya Menon" || doc.ReviewedAt == nil {
		t.Fatalf("reviewer stamp = %s %v", doc.ReviewedBy, doc.ReviewedAt)
	}

	// Approved documents cannot be edited until unlocked.
	_, err = svc.EditField(context.Background(), "doc_1", "weight", EditFieldInput{Value: "181 MT"}, "ops")
	if code := domainCode(t, err); code != "DOCUMENT_LOCKED" {
		t.Fatalf("code = %s, want DOCUMENT_LOCKED", code)
	}
}

func TestApproveRequiresNotes(t *testing.T) {
	fs := newFakeStore()
	seedShipment(fs, workflow.StageFlags{})
	seedReadyDocument(fs, "doc_1", "120")
	svc := newTestService(fs, nil)

	if _, err := svc.StartReview(context.Background(), "doc_1", "Priya Menon"); err != nil {
		t.Fatalf("StartReview: %v", err)
	}
	_, err := svc.ApproveDocument(context.Background(), "doc_1", "  ", reviewer())
	if code := domainCode(t, err); code != "MISSING_REVIEW_NOTES" {
		t.Fatalf("code = %s, want MISSING_REVIEW_NOTES", code)
	}
}

func TestApproveRequiresActiveReview(t *testing.T) {
	fs := newFakeStore()
	seedShipment(fs, workflow.StageFlags{})
	seedReadyDocument(fs, "doc_1", "120")
	svc := newTestService(fs, nil)

	_, err := svc.ApproveDocument(context.Background(), "doc_1", "looks fine", reviewer())
	if code := domainCode(t, err); code != "INVALID_TRANSITION" {
		t.Fatalf("code = %s, want INVALID_TRANSITION", code)
	}
}

func TestRequestChangesKeepsReviewOpen(t *testing.T) {
	fs := newFakeStore()
	seedShipment(fs, workflow.StageFlags{})
	seedReadyDocument(fs, "doc_1", "120")
	svc := newTestService(fs, nil)

	_, err := svc.RequestChanges(context.Background(), "doc_1", "  ", reviewer())
	if code := domainCode(t, err); code != "MISSING_REVIEW_NOTES" {
		t.Fatalf("code = %s, want MISSING_REVIEW_NOTES", code)
	}

	doc, err := svc.RequestChanges(context.Background(), "doc_1", "fix the weight against the tally sheet", reviewer())
	if err != nil {
		t.Fatalf("RequestChanges: %v", err)
	}
	if doc.ReviewStatus != store.ReviewInReview || doc.Locked {
		t.Fatalf("doc = %+v", doc)
	}
	if doc.ReviewNotes == "" || doc.ReviewedBy != "Priya Menon" {
		t.Fatalf("review stamp = %+v", doc)
	}
	if fs.lastAuditAction() != "Changes Requested" {
		t.Fatalf("last audit action = %s", fs.lastAuditAction())
	}

	// The requested edit can happen and the document stays approvable.
	if _, err := svc.EditField(context.Background(), "doc_1", "weight", EditFieldInput{Value: "181 MT"}, "ops"); err != nil {
		t.Fatalf("EditField: %v", err)
	}
	if _, err := svc.ApproveDocument(context.Background(), "doc_1", "weight corrected", reviewer()); err != nil {
		t.Fatalf("ApproveDocument: %v", err)
	}
}

func TestRejectRequiresNotes(t *testing.T) {
	fs := newFakeStore()
	seedShipment(fs, workflow.StageFlags{})
	seedReadyDocument(fs, "doc_1", "120")
	svc := newTestService(fs, nil)

	if _, err := svc.StartReview(context.Background(), "doc_1", "Priya Menon"); err != nil {
		t.Fatalf("StartReview: %v", err)
	}
	_, err := svc.RejectDocument(context.Background(), "doc_1", "  ", reviewer())
	if code := domainCode(t, err); code != "MISSING_REVIEW_NOTES" {
		t.Fatalf("code = %s, want MISSING_REVIEW_NOTES", code)
	}

	doc, err := svc.RejectDocument(context.Background(), "doc_1", "BL number does not match the stamped original", reviewer())
	if err != nil {
		t.Fatalf("RejectDocument: %v", err)
	}
	if doc.ReviewStatus != store.ReviewRejected || doc.ReviewNotes == "" {
		t.Fatalf("doc = %+v", doc)
	}

	// A rejected document can go back into review after correction.
	if _, err := svc.StartReview(context.Background(), "doc_1", "ops"); err != nil {
		t.Fatalf("re-review: %v", err)
	}
}

func TestUnlockClearsLockAndKeepsApproval(t *testing.T) {
	fs := newFakeStore()
	seedShipment(fs, workflow.StageFlags{})
	seedReadyDocument(fs, "doc_1", "120")
	svc := newTestService(fs, nil)

	if _, err := svc.StartReview(context.Background(), "doc_1", "Priya Menon"); err != nil {
		t.Fatalf("StartReview: %v", err)
	}
	if _, err := svc.ApproveDocument(context.Background(), "doc_1", "verified", reviewer()); err != nil {
		t.Fatalf("ApproveDocument: %v", err)
	}

	doc, err := svc.UnlockDocument(context.Background(), "doc_1", "Priya Menon")
	if err != nil {
		t.Fatalf("UnlockDocument: %v", err)
	}
	if doc.Locked {
		t.Fatalf("document still locked after unlock: %+v", doc)
	}
	if doc.ReviewStatus != store.ReviewApproved {
		t.Fatalf("reviewStatus = %s, unlock must not touch the review status", doc.ReviewStatus)
	}
	if _, err := svc.EditField(context.Background(), "doc_1", "weight", EditFieldInput{Value: "181 MT"}, "ops"); err != nil {
		t.Fatalf("EditField after unlock: %v", err)
	}

	// Unlocking an unlocked document is an error.
	_, err = svc.UnlockDocument(context.Background(), "doc_1", "Priya Menon")
	if code := domainCode(t, err); code != "INVALID_TRANSITION" {
		t.Fatalf("code = %s, want INVALID_TRANSITION", code)
	}
}
