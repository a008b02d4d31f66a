package store

import (
	"time"

	"cargoops/api/internal/extract"
	"cargoops/api/internal/workflow"
)

// Document processing statuses.
const (
	ProcessingUploaded   = "uploaded"
	ProcessingInProgress = "processing"
	ProcessingReady      = "ready"
	ProcessingError      = "error"
)

// Document review statuses.
const (
	ReviewPending  = "pending_review"
	ReviewInReview = "in_review"
	ReviewApproved = "approved"
	ReviewRejected = "rejected"
)

// Manifest statuses.
const (
	ManifestDraft        = "draft"
	ManifestSubmitted    = "submitted"
	ManifestAcknowledged = "acknowledged"
	ManifestRejected     = "rejected"
)

type Shipment struct {
	ID           string                    `json:"id"`
	VesselName   string                    `json:"vesselName"`
	VoyageNumber string                    `json:"voyageNumber"`
	ETA          time.Time                 `json:"eta"`
	Status       workflow.Stage            `json:"status"`
	Stages       workflow.StageFlags       `json:"stages"`
	Validation   []workflow.ToleranceCheck `json:"validation,omitempty"`
	CreatedAt    time.Time                 `json:"createdAt"`
	UpdatedAt    time.Time                 `json:"updatedAt"`
}

// Allocation is one consignee's share of an allocation plan.
type Allocation struct {
	Consignee string `json:"consignee"`
	Units     int    `json:"units"`
}

// AllocationPlan is the declared cargo total a shipment's documents are
// reconciled against. One plan per shipment.
type AllocationPlan struct {
	ID             string       `json:"id"`
	ShipmentID     string       `json:"shipmentId"`
	TotalUnits     int          `json:"totalUnits"`
	ExpectedWeight float64      `json:"expectedWeight"`
	ExpectedCBM    float64      `json:"expectedCbm"`
	Allocations    []Allocation `json:"allocations"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

type Document struct {
	ID                string                   `json:"id"`
	ShipmentID        string                   `json:"shipmentId"`
	FileName          string                   `json:"fileName"`
	DocumentType      string                   `json:"documentType"`
	ProcessingStatus  string                   `json:"processingStatus"`
	ReviewStatus      string                   `json:"reviewStatus"`
	Locked            bool                     `json:"locked"`
	ExtractedFields   map[string]extract.Field `json:"extractedFields,omitempty"`
	OverallConfidence int                      `json:"overallConfidence,omitempty"`
	ReviewNotes       string                   `json:"reviewNotes,omitempty"`
	ReviewedBy        string                   `json:"reviewedBy,omitempty"`
	ReviewedAt        *time.Time               `json:"reviewedAt,omitempty"`
	ErrorMessage      string                   `json:"errorMessage,omitempty"`
	StorageKey        string                   `json:"-"`
	UploadedAt        time.Time                `json:"uploadedAt"`
	UpdatedAt         time.Time                `json:"updatedAt"`
}

// FieldComment is an operator remark attached to one extracted field of a
// document.
type FieldComment struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	Field      string    `json:"field"`
	Author     string    `json:"author"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CargoItem is one line of a discharge manifest.
type CargoItem struct {
	BLNumber    string  `json:"blNumber"`
	Description string  `json:"description"`
	Units       int     `json:"units"`
	Weight      float64 `json:"weight"`
	CBM         float64 `json:"cbm"`
	Consignee   string  `json:"consignee"`
}

// ManifestComment is free-form commentary on a manifest revision.
type ManifestComment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type Manifest struct {
	ID             string            `json:"id"`
	ShipmentID     string            `json:"shipmentId"`
	ManifestNumber string            `json:"manifestNumber"`
	Status         string            `json:"status"`
	Cargo          []CargoItem       `json:"cargo"`
	Comments       []ManifestComment `json:"comments,omitempty"`
	SubmittedAt    *time.Time        `json:"submittedAt,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

type Operator struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RefreshSession is the Postgres fallback record for refresh tokens when
// Redis is not configured.
type RefreshSession struct {
	TokenHash  string
	OperatorID string
	ExpiresAt  time.Time
}
