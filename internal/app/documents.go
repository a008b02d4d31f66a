package app

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"cargoops/api/internal/extract"
	"cargoops/api/internal/store"
	"cargoops/api/internal/util"
)

type UploadDocumentInput struct {
	FileName     string `json:"fileName"`
	DocumentType string `json:"documentType"`
	ContentType  string `json:"contentType"`
	Content      []byte `json:"content"`
}

type EditFieldInput struct {
	Value string `json:"value"`
}

type AddCommentInput struct {
	Field string `json:"field"`
	Body  string `json:"body"`
}

// UploadDocument stores the raw file and registers the document in the
// uploaded state. Extraction is a separate, explicit step.
func (s *Service) UploadDocument(ctx context.Context, shipmentID string, input UploadDocumentInput, actor string) (store.Document, error) {
	shipment, err := s.GetShipment(ctx, shipmentID)
	if err != nil {
		return store.Document{}, err
	}
	fileName := strings.TrimSpace(input.FileName)
	if fileName == "" {
		return store.Document{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "fileName is required", nil)
	}
	documentType := strings.TrimSpace(input.DocumentType)
	if documentType == "" {
		documentType = "bill-of-lading"
	}

	doc := store.Document{
		ID:               util.NewID("doc"),
		ShipmentID:       shipment.ID,
		FileName:         fileName,
		DocumentType:     documentType,
		ProcessingStatus: store.ProcessingUploaded,
		ReviewStatus:     store.ReviewPending,
	}

	contentType := input.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if len(input.Content) > 0 {
		if s.blobs != nil {
			doc.StorageKey = path.Join(shipment.ID, doc.ID, fileName)
			if err := s.blobs.Put(ctx, doc.StorageKey, contentType, input.Content); err != nil {
				return store.Document{}, err
			}
		}
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return store.Document{}, err
	}
	// Without object storage the payload lives alongside the metadata.
	if len(input.Content) > 0 && s.blobs == nil {
		if err := s.store.SaveDocumentPayload(ctx, doc.ID, contentType, input.Content); err != nil {
			return store.Document{}, err
		}
	}
	if err := s.recordAudit(ctx, actor, "Document Upload",
		"Uploaded "+fileName+" to "+shipment.VesselName+" voyage "+shipment.VoyageNumber, shipment.ID, doc.ID); err != nil {
		return store.Document{}, err
	}
	s.indexDocument(doc)
	return doc, nil
}

func (s *Service) GetDocument(ctx context.Context, id string) (store.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return store.Document{}, notFoundOr(err, "document not found")
	}
	return doc, nil
}

func (s *Service) ListShipmentDocuments(ctx context.Context, shipmentID string) ([]store.Document, error) {
	if _, err := s.GetShipment(ctx, shipmentID); err != nil {
		return nil, err
	}
	return s.store.ListShipmentDocuments(ctx, shipmentID)
}

// DocumentContent returns the raw uploaded file from object storage or
// the database fallback.
func (s *Service) DocumentContent(ctx context.Context, id string) (string, []byte, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if doc.StorageKey != "" && s.blobs != nil {
		payload, err := s.blobs.Get(ctx, doc.StorageKey)
		if err != nil {
			return "", nil, err
		}
		return "application/octet-stream", payload, nil
	}
	contentType, payload, err := s.store.GetDocumentPayload(ctx, id)
	if err != nil {
		return "", nil, notFoundOr(err, "document content not found")
	}
	return contentType, payload, nil
}

func (s *Service) DeleteDocument(ctx context.Context, id, actor string) error {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if doc.Locked {
		return domainError(http.StatusConflict, "DOCUMENT_LOCKED", "approved documents cannot be deleted", nil)
	}
	if s.extractor.Processing(id) {
		s.extractor.Cancel(id)
	}
	if doc.StorageKey != "" && s.blobs != nil {
		_ = s.blobs.Delete(ctx, doc.StorageKey)
	}
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := s.recordAudit(ctx, actor, "Document Deleted",
		"Deleted "+doc.FileName, doc.ShipmentID, doc.ID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteDocument(id)
	}
	return nil
}

// Extraction

// StartExtraction kicks off the background extraction for a document and
// returns immediately. Completion is persisted by the done callback.
func (s *Service) StartExtraction(ctx context.Context, id, actor string) (store.Document, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return store.Document{}, err
	}
	if doc.Locked {
		return store.Document{}, domainError(http.StatusConflict, "DOCUMENT_LOCKED", "approved documents cannot be reprocessed", nil)
	}
	if s.extractor.Processing(doc.ID) {
		return store.Document{}, domainError(http.StatusConflict, "ALREADY_PROCESSING", "extraction is already in progress for this document", nil)
	}

	// Persist the in-progress state before the worker starts so a fast
	// completion cannot be overwritten by this write.
	doc.ProcessingStatus = store.ProcessingInProgress
	doc.ErrorMessage = ""
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return store.Document{}, err
	}
	if err := s.extractor.Start(doc.ID, doc.DocumentType, doc.FileName, s.extractionDone(actor)); err != nil {
		if errors.Is(err, extract.ErrAlreadyProcessing) {
			return store.Document{}, domainError(http.StatusConflict, "ALREADY_PROCESSING", "extraction is already in progress for this document", nil)
		}
		doc.ProcessingStatus = store.ProcessingUploaded
		_ = s.store.UpdateDocument(ctx, doc)
		return store.Document{}, err
	}
	if err := s.recordAudit(ctx, actor, "AI Processing Started",
		"Started extraction for "+doc.FileName, doc.ShipmentID, doc.ID); err != nil {
		return store.Document{}, err
	}
	s.indexDocument(doc)
	return doc, nil
}

// extractionDone builds the completion callback. It runs on the worker
// goroutine after the HTTP request has returned, so it uses its own
// context.
func (s *Service) extractionDone(actor string) extract.DoneFunc {
	return func(documentID string, result extract.Result, extractErr error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		doc, err := s.store.GetDocument(ctx, documentID)
		if err != nil {
			return
		}

		switch {
		case extractErr == nil:
			doc.ProcessingStatus = store.ProcessingReady
			doc.ExtractedFields = result.Fields
			doc.OverallConfidence = result.OverallConfidence
			doc.ErrorMessage = ""
			if err := s.store.UpdateDocument(ctx, doc); err != nil {
				return
			}
			_ = s.recordAudit(ctx, actor, "AI Processing Complete",
				"Extraction finished for "+doc.FileName, doc.ShipmentID, doc.ID)
		case errors.Is(extractErr, context.Canceled):
			doc.ProcessingStatus = store.ProcessingUploaded
			if err := s.store.UpdateDocument(ctx, doc); err != nil {
				return
			}
			_ = s.recordAudit(ctx, actor, "AI Processing Cancelled",
				"Extraction cancelled for "+doc.FileName, doc.ShipmentID, doc.ID)
		default:
			doc.ProcessingStatus = store.ProcessingError
			doc.ErrorMessage = extractErr.Error()
			if err := s.store.UpdateDocument(ctx, doc); err != nil {
				return
			}
			_ = s.recordAudit(ctx, actor, "AI Processing Failed",
				"Extraction failed for "+doc.FileName+": "+extractErr.Error(), doc.ShipmentID, doc.ID)
		}
		s.indexDocument(doc)
	}
}

// CancelExtraction stops a running extraction. The done callback reverts
// the document to the uploaded state.
func (s *Service) CancelExtraction(ctx context.Context, id, actor string) (store.Document, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return store.Document{}, err
	}
	if !s.extractor.Cancel(id) {
		return store.Document{}, domainError(http.StatusConflict, "INVALID_TRANSITION", "no extraction in progress for this document", nil)
	}
	doc.ProcessingStatus = store.ProcessingUploaded
	return doc, nil
}

// Field edits and comments

// fieldWritable rejects edits, flags and reverts against documents whose
// extracted data cannot change: locked, failed, or not yet extracted.
func fieldWritable(doc store.Document) error {
	if doc.Locked {
		return domainError(http.StatusConflict, "DOCUMENT_LOCKED", "locked documents cannot be changed", nil)
	}
	if doc.ProcessingStatus == store.ProcessingError {
		return domainError(http.StatusConflict, "EXTRACTION_FAILED", "extraction failed for this document, rerun it first", nil)
	}
	if doc.ProcessingStatus != store.ProcessingReady {
		return domainError(http.StatusConflict, "FIELD_NOT_EDITABLE", "fields exist once extraction is ready", nil)
	}
	return nil
}

// EditField overwrites one extracted field value. The extraction-time
// confidence is untouched, and Original keeps the extraction-time value
// so the edit can be reverted.
func (s *Service) EditField(ctx context.Context, documentID, fieldName string, input EditFieldInput, actor string) (store.Document, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, err
	}
	if err := fieldWritable(doc); err != nil {
		return store.Document{}, err
	}
	if !isKnownField(fieldName) {
		return store.Document{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown field "+fieldName, nil)
	}

	if doc.ExtractedFields == nil {
		doc.ExtractedFields = make(map[string]extract.Field)
	}
	field, exists := doc.ExtractedFields[fieldName]
	if exists && !field.Editable {
		return store.Document{}, domainError(http.StatusConflict, "FIELD_NOT_EDITABLE", fieldName+" is not editable", nil)
	}
	original := field.Original
	if original == "" && !field.Edited {
		original = field.Value
	}
	value := strings.TrimSpace(input.Value)
	now := time.Now().UTC()
	doc.ExtractedFields[fieldName] = extract.Field{
		Value:      value,
		Original:   original,
		Confidence: field.Confidence,
		Editable:   true,
		Edited:     value != original,
		Flagged:    field.Flagged,
		ModifiedBy: actor,
		ModifiedAt: &now,
	}
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return store.Document{}, err
	}
	if err := s.recordAudit(ctx, actor, "Field Edited",
		"Edited "+fieldName+" on "+doc.FileName, doc.ShipmentID, doc.ID); err != nil {
		return store.Document{}, err
	}
	return doc, nil
}

// ToggleFieldFlag flips the manual review flag on one field.
func (s *Service) ToggleFieldFlag(ctx context.Context, documentID, fieldName, actor string) (store.Document, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, err
	}
	if err := fieldWritable(doc); err != nil {
		return store.Document{}, err
	}
	field, ok := doc.ExtractedFields[fieldName]
	if !ok {
		return store.Document{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "no extracted field "+fieldName, nil)
	}
	field.Flagged = !field.Flagged
	doc.ExtractedFields[fieldName] = field
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return store.Document{}, err
	}
	action, details := "Field Flagged", "Flagged "+fieldName+" on "+doc.FileName
	if !field.Flagged {
		action, details = "Field Unflagged", "Cleared the flag on "+fieldName+" of "+doc.FileName
	}
	if err := s.recordAudit(ctx, actor, action, details, doc.ShipmentID, doc.ID); err != nil {
		return store.Document{}, err
	}
	return doc, nil
}

// RevertField restores one field to its extraction-time value and clears
// the modification metadata.
func (s *Service) RevertField(ctx context.Context, documentID, fieldName, actor string) (store.Document, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, err
	}
	if err := fieldWritable(doc); err != nil {
		return store.Document{}, err
	}
	field, ok := doc.ExtractedFields[fieldName]
	if !ok {
		return store.Document{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "no extracted field "+fieldName, nil)
	}
	if !field.Edited && field.ModifiedBy == "" {
		return doc, nil
	}
	doc.ExtractedFields[fieldName] = revertedField(field)
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return store.Document{}, err
	}
	if err := s.recordAudit(ctx, actor, "Field Reverted",
		"Reverted "+fieldName+" on "+doc.FileName+" to the extracted value", doc.ShipmentID, doc.ID); err != nil {
		return store.Document{}, err
	}
	return doc, nil
}

// RevertAllFields restores every edited field at once.
func (s *Service) RevertAllFields(ctx context.Context, documentID, actor string) (store.Document, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, err
	}
	if err := fieldWritable(doc); err != nil {
		return store.Document{}, err
	}
	reverted := 0
	for name, field := range doc.ExtractedFields {
		if !field.Edited && field.ModifiedBy == "" {
			continue
		}
		doc.ExtractedFields[name] = revertedField(field)
		reverted++
	}
	if reverted == 0 {
		return doc, nil
	}
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return store.Document{}, err
	}
	if err := s.recordAudit(ctx, actor, "Fields Reverted",
		"Reverted "+strconv.Itoa(reverted)+" edited fields on "+doc.FileName, doc.ShipmentID, doc.ID); err != nil {
		return store.Document{}, err
	}
	return doc, nil
}

func revertedField(field extract.Field) extract.Field {
	field.Value = field.Original
	field.Edited = false
	field.ModifiedBy = ""
	field.ModifiedAt = nil
	return field
}

// DocumentStats recomputes the review rollups from the current field set.
func (s *Service) DocumentStats(ctx context.Context, documentID string) (extract.Stats, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return extract.Stats{}, err
	}
	return extract.FieldStats(doc.ExtractedFields), nil
}

func (s *Service) AddFieldComment(ctx context.Context, documentID string, input AddCommentInput, actor string) (store.FieldComment, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return store.FieldComment{}, err
	}
	if doc.Locked {
		return store.FieldComment{}, domainError(http.StatusConflict, "DOCUMENT_LOCKED", "approved documents are locked against comments", nil)
	}
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return store.FieldComment{}, domainError(http.StatusUnprocessableEntity, "EMPTY_COMMENT", "comment body is required", nil)
	}
	field := strings.TrimSpace(input.Field)
	if field != "" && !isKnownField(field) {
		return store.FieldComment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown field "+field, nil)
	}
	comment := store.FieldComment{
		ID:         util.NewID("cmt"),
		DocumentID: doc.ID,
		Field:      field,
		Author:     actor,
		Body:       body,
	}
	if err := s.store.AddFieldComment(ctx, comment); err != nil {
		return store.FieldComment{}, err
	}
	if err := s.recordAudit(ctx, actor, "Comment Added",
		"Commented on "+doc.FileName, doc.ShipmentID, doc.ID); err != nil {
		return store.FieldComment{}, err
	}
	return comment, nil
}

func (s *Service) ListFieldComments(ctx context.Context, documentID string) ([]store.FieldComment, error) {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.ListFieldComments(ctx, documentID)
}

func isKnownField(name string) bool {
	for _, known := range extract.BLFieldNames {
		if known == name {
			return true
		}
	}
	return false
}
