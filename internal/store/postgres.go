package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cargoops/api/internal/audit"
	"cargoops/api/internal/workflow"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateShipment(ctx context.Context, shipment Shipment) error {
	stages, err := json.Marshal(shipment.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shipments (id, vessel_name, voyage_number, eta, status, stages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`, shipment.ID, shipment.VesselName, shipment.VoyageNumber, shipment.ETA, string(shipment.Status), stages)
	if err != nil {
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetShipment(ctx context.Context, id string) (Shipment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, vessel_name, voyage_number, eta, status, stages, validation, created_at, updated_at
		FROM shipments WHERE id = $1
	`, id)
	return scanShipment(row)
}

func (s *PostgresStore) ListShipments(ctx context.Context) ([]Shipment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vessel_name, voyage_number, eta, status, stages, validation, created_at, updated_at
		FROM shipments ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()

	var shipments []Shipment
	for rows.Next() {
		shipment, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		shipments = append(shipments, shipment)
	}
	return shipments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShipment(row rowScanner) (Shipment, error) {
	var shipment Shipment
	var status string
	var stages []byte
	var validation []byte
	err := row.Scan(&shipment.ID, &shipment.VesselName, &shipment.VoyageNumber, &shipment.ETA, &status, &stages, &validation, &shipment.CreatedAt, &shipment.UpdatedAt)
	if err != nil {
		return Shipment{}, err
	}
	shipment.Status = workflow.Stage(status)
	if err := json.Unmarshal(stages, &shipment.Stages); err != nil {
		return Shipment{}, fmt.Errorf("unmarshal stages: %w", err)
	}
	if len(validation) > 0 {
		if err := json.Unmarshal(validation, &shipment.Validation); err != nil {
			return Shipment{}, fmt.Errorf("unmarshal validation: %w", err)
		}
	}
	return shipment, nil
}

func (s *PostgresStore) UpdateShipment(ctx context.Context, shipment Shipment) error {
	stages, err := json.Marshal(shipment.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	var validation any
	if shipment.Validation != nil {
		encoded, err := json.Marshal(shipment.Validation)
		if err != nil {
			return fmt.Errorf("marshal validation: %w", err)
		}
		validation = encoded
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE shipments
		SET vessel_name=$2, voyage_number=$3, eta=$4, status=$5, stages=$6, validation=$7, updated_at=NOW()
		WHERE id=$1
	`, shipment.ID, shipment.VesselName, shipment.VoyageNumber, shipment.ETA, string(shipment.Status), stages, validation)
	if err != nil {
		return fmt.Errorf("update shipment: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteShipment(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM shipments WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete shipment: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) UpsertAllocationPlan(ctx context.Context, plan AllocationPlan) error {
	allocations, err := json.Marshal(plan.Allocations)
	if err != nil {
		return fmt.Errorf("marshal allocations: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO allocation_plans (id, shipment_id, total_units, expected_weight, expected_cbm, allocations, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (shipment_id) DO UPDATE
		SET total_units=EXCLUDED.total_units, expected_weight=EXCLUDED.expected_weight,
			expected_cbm=EXCLUDED.expected_cbm, allocations=EXCLUDED.allocations, updated_at=NOW()
	`, plan.ID, plan.ShipmentID, plan.TotalUnits, plan.ExpectedWeight, plan.ExpectedCBM, allocations)
	if err != nil {
		return fmt.Errorf("upsert allocation plan: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAllocationPlan(ctx context.Context, shipmentID string) (AllocationPlan, error) {
	var plan AllocationPlan
	var allocations []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shipment_id, total_units, expected_weight, expected_cbm, allocations, created_at, updated_at
		FROM allocation_plans WHERE shipment_id=$1
	`, shipmentID).Scan(&plan.ID, &plan.ShipmentID, &plan.TotalUnits, &plan.ExpectedWeight, &plan.ExpectedCBM, &allocations, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return AllocationPlan{}, err
	}
	if err := json.Unmarshal(allocations, &plan.Allocations); err != nil {
		return AllocationPlan{}, fmt.Errorf("unmarshal allocations: %w", err)
	}
	return plan, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc Document) error {
	fields, err := marshalFields(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, shipment_id, file_name, document_type, processing_status, review_status,
			locked, extracted_fields, overall_confidence, review_notes, reviewed_by, reviewed_at,
			error_message, storage_key, uploaded_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
	`, doc.ID, doc.ShipmentID, doc.FileName, doc.DocumentType, doc.ProcessingStatus, doc.ReviewStatus,
		doc.Locked, fields, doc.OverallConfidence, doc.ReviewNotes, doc.ReviewedBy, doc.ReviewedAt,
		doc.ErrorMessage, doc.StorageKey)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, shipment_id, file_name, document_type, processing_status, review_status,
			locked, extracted_fields, overall_confidence, review_notes, reviewed_by, reviewed_at,
			error_message, storage_key, uploaded_at, updated_at
		FROM documents WHERE id=$1
	`, id)
	return scanDocument(row)
}

func (s *PostgresStore) ListShipmentDocuments(ctx context.Context, shipmentID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, shipment_id, file_name, document_type, processing_status, review_status,
			locked, extracted_fields, overall_confidence, review_notes, reviewed_by, reviewed_at,
			error_message, storage_key, uploaded_at, updated_at
		FROM documents WHERE shipment_id=$1 ORDER BY uploaded_at
	`, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var fields []byte
	var reviewedAt sql.NullTime
	err := row.Scan(&doc.ID, &doc.ShipmentID, &doc.FileName, &doc.DocumentType, &doc.ProcessingStatus, &doc.ReviewStatus,
		&doc.Locked, &fields, &doc.OverallConfidence, &doc.ReviewNotes, &doc.ReviewedBy, &reviewedAt,
		&doc.ErrorMessage, &doc.StorageKey, &doc.UploadedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	if reviewedAt.Valid {
		doc.ReviewedAt = &reviewedAt.Time
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &doc.ExtractedFields); err != nil {
			return Document{}, fmt.Errorf("unmarshal extracted fields: %w", err)
		}
	}
	return doc, nil
}

func marshalFields(doc Document) (any, error) {
	if doc.ExtractedFields == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(doc.ExtractedFields)
	if err != nil {
		return nil, fmt.Errorf("marshal extracted fields: %w", err)
	}
	return encoded, nil
}

func (s *PostgresStore) UpdateDocument(ctx context.Context, doc Document) error {
	fields, err := marshalFields(doc)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET processing_status=$2, review_status=$3, locked=$4, extracted_fields=$5,
			overall_confidence=$6, review_notes=$7, reviewed_by=$8, reviewed_at=$9,
			error_message=$10, storage_key=$11, updated_at=NOW()
		WHERE id=$1
	`, doc.ID, doc.ProcessingStatus, doc.ReviewStatus, doc.Locked, fields,
		doc.OverallConfidence, doc.ReviewNotes, doc.ReviewedBy, doc.ReviewedAt,
		doc.ErrorMessage, doc.StorageKey)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) SaveDocumentPayload(ctx context.Context, documentID, contentType string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_payloads (document_id, content_type, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id) DO UPDATE SET content_type=EXCLUDED.content_type, payload=EXCLUDED.payload
	`, documentID, contentType, payload)
	if err != nil {
		return fmt.Errorf("save document payload: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocumentPayload(ctx context.Context, documentID string) (string, []byte, error) {
	var contentType string
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT content_type, payload FROM document_payloads WHERE document_id=$1
	`, documentID).Scan(&contentType, &payload)
	if err != nil {
		return "", nil, err
	}
	return contentType, payload, nil
}

func (s *PostgresStore) AddFieldComment(ctx context.Context, comment FieldComment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO field_comments (id, document_id, field, author, body, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, comment.ID, comment.DocumentID, comment.Field, comment.Author, comment.Body)
	if err != nil {
		return fmt.Errorf("insert field comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFieldComments(ctx context.Context, documentID string) ([]FieldComment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, field, author, body, created_at
		FROM field_comments WHERE document_id=$1 ORDER BY created_at
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list field comments: %w", err)
	}
	defer rows.Close()

	var comments []FieldComment
	for rows.Next() {
		var comment FieldComment
		if err := rows.Scan(&comment.ID, &comment.DocumentID, &comment.Field, &comment.Author, &comment.Body, &comment.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}
	return comments, rows.Err()
}

func (s *PostgresStore) AppendAuditEntry(ctx context.Context, entry audit.Entry) error {
	relatedIDs, err := json.Marshal(entry.RelatedIDs)
	if err != nil {
		return fmt.Errorf("marshal related ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, recorded_at, actor, action, details, related_ids, hash, previous_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.Timestamp, entry.User, entry.Action, entry.Details, relatedIDs, entry.Hash, entry.PreviousHash)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAuditEntries(ctx context.Context) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recorded_at, actor, action, details, related_ids, hash, previous_hash
		FROM audit_log ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var entry audit.Entry
		var relatedIDs []byte
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.User, &entry.Action, &entry.Details, &relatedIDs, &entry.Hash, &entry.PreviousHash); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(relatedIDs, &entry.RelatedIDs); err != nil {
			return nil, fmt.Errorf("unmarshal related ids: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ResetAuditEntries wipes the audit log. The immutability trigger blocks
// deletes unless the transaction opts in, so the opt-in and the delete run
// in the same transaction.
func (s *PostgresStore) ResetAuditEntries(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit reset tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SET LOCAL cargoops.allow_audit_reset = 'on'`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("enable audit reset: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM audit_log`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete audit entries: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateManifest(ctx context.Context, manifest Manifest) error {
	cargo, comments, err := marshalManifestJSON(manifest)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO manifests (id, shipment_id, manifest_number, status, cargo, comments, submitted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, manifest.ID, manifest.ShipmentID, manifest.ManifestNumber, manifest.Status, cargo, comments, manifest.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert manifest: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateManifest(ctx context.Context, manifest Manifest) error {
	cargo, comments, err := marshalManifestJSON(manifest)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE manifests
		SET status=$2, cargo=$3, comments=$4, submitted_at=$5, updated_at=NOW()
		WHERE id=$1
	`, manifest.ID, manifest.Status, cargo, comments, manifest.SubmittedAt)
	if err != nil {
		return fmt.Errorf("update manifest: %w", err)
	}
	return requireRow(result)
}

func marshalManifestJSON(manifest Manifest) ([]byte, []byte, error) {
	cargo, err := json.Marshal(manifest.Cargo)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal cargo: %w", err)
	}
	comments := manifest.Comments
	if comments == nil {
		comments = []ManifestComment{}
	}
	encoded, err := json.Marshal(comments)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal manifest comments: %w", err)
	}
	return cargo, encoded, nil
}

func (s *PostgresStore) GetManifest(ctx context.Context, id string) (Manifest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, shipment_id, manifest_number, status, cargo, comments, submitted_at, created_at, updated_at
		FROM manifests WHERE id=$1
	`, id)
	return scanManifest(row)
}

func (s *PostgresStore) GetShipmentManifest(ctx context.Context, shipmentID string) (Manifest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, shipment_id, manifest_number, status, cargo, comments, submitted_at, created_at, updated_at
		FROM manifests WHERE shipment_id=$1 ORDER BY created_at DESC LIMIT 1
	`, shipmentID)
	return scanManifest(row)
}

func scanManifest(row rowScanner) (Manifest, error) {
	var manifest Manifest
	var cargo, comments []byte
	err := row.Scan(&manifest.ID, &manifest.ShipmentID, &manifest.ManifestNumber, &manifest.Status, &cargo, &comments, &manifest.SubmittedAt, &manifest.CreatedAt, &manifest.UpdatedAt)
	if err != nil {
		return Manifest{}, err
	}
	if err := json.Unmarshal(cargo, &manifest.Cargo); err != nil {
		return Manifest{}, fmt.Errorf("unmarshal cargo: %w", err)
	}
	if err := json.Unmarshal(comments, &manifest.Comments); err != nil {
		return Manifest{}, fmt.Errorf("unmarshal manifest comments: %w", err)
	}
	return manifest, nil
}

func (s *PostgresStore) CreateOperator(ctx context.Context, operator Operator) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operators (id, email, name, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (email) DO NOTHING
	`, operator.ID, operator.Email, operator.Name, operator.Role, operator.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert operator: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOperator(ctx context.Context, id string) (Operator, error) {
	var operator Operator
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, password_hash, created_at FROM operators WHERE id=$1
	`, id).Scan(&operator.ID, &operator.Email, &operator.Name, &operator.Role, &operator.PasswordHash, &operator.CreatedAt)
	if err != nil {
		return Operator{}, err
	}
	return operator, nil
}

func (s *PostgresStore) GetOperatorByEmail(ctx context.Context, email string) (Operator, error) {
	var operator Operator
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, role, password_hash, created_at FROM operators WHERE email=$1
	`, email).Scan(&operator.ID, &operator.Email, &operator.Name, &operator.Role, &operator.PasswordHash, &operator.CreatedAt)
	if err != nil {
		return Operator{}, err
	}
	return operator, nil
}

func (s *PostgresStore) UpdateOperatorPassword(ctx context.Context, operatorID, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE operators SET password_hash=$2 WHERE id=$1`, operatorID, passwordHash)
	if err != nil {
		return fmt.Errorf("update operator password: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, operatorID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, operator_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET operator_id=EXCLUDED.operator_id, expires_at=EXCLUDED.expires_at
	`, tokenHash, operatorID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (Operator, error) {
	var operator Operator
	err := s.db.QueryRowContext(ctx, `
		SELECT o.id, o.email, o.name, o.role, o.password_hash, o.created_at
		FROM refresh_sessions rs
		JOIN operators o ON o.id = rs.operator_id
		WHERE rs.token_hash = $1 AND rs.expires_at > NOW()
	`, tokenHash).Scan(&operator.ID, &operator.Email, &operator.Name, &operator.Role, &operator.PasswordHash, &operator.CreatedAt)
	if err != nil {
		return Operator{}, err
	}
	return operator, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
