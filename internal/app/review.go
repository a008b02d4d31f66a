package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"cargoops/api/internal/store"
)

// StartReview moves a document from pending review into active review.
func (s *Service) StartReview(ctx context.Context, documentID, actor string) (store.Document, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, err
	}
	if doc.ReviewStatus != store.ReviewPending && doc.ReviewStatus != store.ReviewRejected {
		return store.Document{}, domainError(http.StatusConflict, "INVALID_TRANSITION",
			"review can only start from pending_review, current state is "+doc.ReviewStatus, nil)
	}
	if doc.ProcessingStatus == store.ProcessingError {
		return store.Document{}, domainError(http.StatusConflict, "EXTRACTION_FAILED",
			"extraction failed for this document, rerun it before review", nil)
	}
	if doc.ProcessingStatus != store.ProcessingReady {
		return store.Document{}, domainError(http.StatusConflict, "INVALID_TRANSITION",
			"extraction must be ready before review starts", nil)
	}
	doc.ReviewStatus = store.ReviewInReview
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return store.Document{}, err
	}
	if err := s.recordAudit(ctx, actor, "Review Started",
		"Started review of "+doc.FileName, doc.ShipmentID, doc.ID); err != nil {
		return store.Document{}, err
	}
	return doc, nil
}

// ApproveDocument accepts the extracted data and locks the document
// against further edits.
func (s *Service) ApproveDocument(ctx context.Context, documentID, notes string, session Session) (store.Document, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, err
	}
	if doc.ReviewStatus != store.ReviewInReview {
		return store.Document{}, domainError(http.StatusConflict, "INVALID_TRANSITION",
			"only documents in review can be approved, current state is "+doc.ReviewStatus, nil)
	}
	if doc.ProcessingStatus != store.ProcessingReady {
		return store.Document{}, domainError(http.StatusConflict, "INVALID_TRANSITION",
			"extraction must be ready before approval", nil)
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return store.Document{}, domainError(http.StatusUnprocessableEntity, "MISSING_REVIEW_NOTES", "approval requires review notes", nil)
	}
	doc.ReviewStatus = store.ReviewApproved
	doc.Locked = true
	stampReview(&doc, notes, session.Name)
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return store.Document{}, err
	}
	if err := s.recordAudit(ctx, session.Name, "Document Approved",
		"Approved "+doc.FileName+": "+notes, doc.ShipmentID, doc.ID); err != nil {
		return store.Document{}, err
	}
	s.notifyReviewDecision(session, doc, "approved", notes)
	return doc, nil
}

// RejectDocument sends the document back with mandatory reviewer notes.
func (s *Service) RejectDocument(ctx context.Context, documentID, notes string, session Session) (store.Document, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, err
	}
	if doc.ReviewStatus != store.ReviewInReview {
		return store.Document{}, domainError(http.StatusConflict, "INVALID_TRANSITION",
			"only documents in review can be rejected, current state is "+doc.ReviewStatus, nil)
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return store.Document{}, domainError(http.StatusUnprocessableEntity, "MISSING_REVIEW_NOTES", "rejection requires review notes", nil)
	}
	doc.ReviewStatus = store.ReviewRejected
	stampReview(&doc, notes, session.Name)
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return store.Document{}, err
	}
	if err := s.recordAudit(ctx, session.Name, "Document Rejected",
		"Rejected "+doc.FileName+": "+notes, doc.ShipmentID, doc.ID); err != nil {
		return store.Document{}, err
	}
	s.notifyReviewDecision(session, doc, "rejected", notes)
	return doc, nil
}

// RequestChanges keeps the document open in review with mandatory
// reviewer notes describing what has to change before approval.
func (s *Service) RequestChanges(ctx context.Context, documentID, notes string, session Session) (store.Document, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, err
	}
	if doc.Locked {
		return store.Document{}, domainError(http.StatusConflict, "INVALID_TRANSITION",
			"locked documents must be unlocked before requesting changes", nil)
	}
	if doc.ProcessingStatus == store.ProcessingError {
		return store.Document{}, domainError(http.StatusConflict, "EXTRACTION_FAILED",
			"extraction failed for this document, rerun it before review", nil)
	}
	if doc.ProcessingStatus != store.ProcessingReady {
		return store.Document{}, domainError(http.StatusConflict, "INVALID_TRANSITION",
			"extraction must be ready before review", nil)
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return store.Document{}, domainError(http.StatusUnprocessableEntity, "MISSING_REVIEW_NOTES", "requesting changes requires review notes", nil)
	}
	doc.ReviewStatus = store.ReviewInReview
	stampReview(&doc, notes, session.Name)
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return store.Document{}, err
	}
	if err := s.recordAudit(ctx, session.Name, "Changes Requested",
		"Requested changes on "+doc.FileName+": "+notes, doc.ShipmentID, doc.ID); err != nil {
		return store.Document{}, err
	}
	s.notifyReviewDecision(session, doc, "changes requested", notes)
	return doc, nil
}

func stampReview(doc *store.Document, notes, reviewer string) {
	now := time.Now().UTC()
	doc.ReviewNotes = notes
	doc.ReviewedBy = reviewer
	doc.ReviewedAt = &now
}

// UnlockDocument clears the lock on an approved document so corrections
// can be made. The review status stays approved; only the lock changes.
func (s *Service) UnlockDocument(ctx context.Context, documentID, actor string) (store.Document, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, err
	}
	if !doc.Locked {
		return store.Document{}, domainError(http.StatusConflict, "INVALID_TRANSITION", "document is not locked", nil)
	}
	doc.Locked = false
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return store.Document{}, err
	}
	if err := s.recordAudit(ctx, actor, "Document Unlocked",
		"Unlocked "+doc.FileName+" for correction", doc.ShipmentID, doc.ID); err != nil {
		return store.Document{}, err
	}
	return doc, nil
}

// notifyReviewDecision emails the reviewer a record of the decision when
// SMTP is configured. Failures are non-fatal.
func (s *Service) notifyReviewDecision(session Session, doc store.Document, decision, notes string) {
	if s.mailer == nil || !s.mailer.IsConfigured() || session.Email == "" {
		return
	}
	go func() {
		_ = s.mailer.SendDocumentReviewEmail(session.Email, session.Name, doc.FileName, decision, notes)
	}()
}
