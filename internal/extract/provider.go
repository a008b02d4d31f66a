// Package extract runs document field extraction jobs. A Provider does the
// actual extraction; the Manager owns job lifecycle, one in-flight job per
// document, with cancellation.
package extract

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"time"
)

// LowConfidenceThreshold is the per-field confidence below which a field
// is flagged for operator review.
const LowConfidenceThreshold = 95

// Field is one extracted value with its confidence score (0 to 100).
// Original holds the value at extraction time and never changes
// afterwards; reverting an edit restores it.
type Field struct {
	Value      string     `json:"value"`
	Original   string     `json:"original"`
	Confidence int        `json:"confidence"`
	Editable   bool       `json:"editable"`
	Edited     bool       `json:"edited,omitempty"`
	Flagged    bool       `json:"flagged,omitempty"`
	ModifiedBy string     `json:"modifiedBy,omitempty"`
	ModifiedAt *time.Time `json:"modifiedAt,omitempty"`
}

// Stats summarizes the review state of a field set. Callers recompute it
// from the fields on every read, it is never stored.
type Stats struct {
	TotalFields         int `json:"totalFields"`
	ModifiedFields      int `json:"modifiedFields"`
	FlaggedFields       int `json:"flaggedFields"`
	LowConfidenceFields int `json:"lowConfidenceFields"`
}

func FieldStats(fields map[string]Field) Stats {
	stats := Stats{TotalFields: len(fields)}
	for _, field := range fields {
		if field.Edited {
			stats.ModifiedFields++
		}
		if field.Flagged {
			stats.FlaggedFields++
		}
		if field.Confidence < LowConfidenceThreshold {
			stats.LowConfidenceFields++
		}
	}
	return stats
}

// Result is a completed extraction: the full field set plus the overall
// confidence (the arithmetic mean across fields, rounded).
type Result struct {
	Fields            map[string]Field `json:"fields"`
	OverallConfidence int              `json:"overallConfidence"`
}

// Provider extracts structured fields from a document.
type Provider interface {
	Extract(ctx context.Context, documentType, fileName string) (Result, error)
}

// BLFieldNames is the fixed schema extracted from a bill of lading.
var BLFieldNames = []string{
	"blNumber",
	"vesselName",
	"voyageNumber",
	"shipperName",
	"shipperAddress",
	"shipperContact",
	"consigneeName",
	"consigneeAddress",
	"consigneeContact",
	"notifyParty",
	"portOfLoading",
	"portOfDischarge",
	"placeOfDelivery",
	"numberOfUnits",
	"weight",
	"volume",
	"containerNumbers",
	"cargoDescription",
	"freightTerms",
	"issueDate",
}

// MockProvider produces deterministic extraction results seeded from the
// document type and file name, so repeated runs over the same upload agree.
// It stands in for a real OCR/LLM extraction backend.
type MockProvider struct {
	// Delay simulates processing time. The extraction sleeps in slices so
	// cancellation is observed promptly.
	Delay time.Duration
}

var (
	vessels    = []string{"MV Pacific Harmony", "MV Eastern Glory", "MV Ocean Pioneer", "MV Coral Summit"}
	shippers   = []string{"Hyundai Glovis Co Ltd", "Kia Logistics Pte", "Toyota Tsusho Marine", "Nissan Trading Co"}
	consignees = []string{"Borneo Motors Singapore", "Cycle & Carriage Pte", "Komoco Holdings", "Tan Chong Motor"}
	loadPorts  = []string{"Pyeongtaek, Korea", "Ulsan, Korea", "Yokohama, Japan", "Nagoya, Japan"}
	cargoKinds = []string{"Passenger motor vehicles, new", "Commercial vans, new", "SUV units, new", "Hybrid sedans, new"}
	freight    = []string{"FREIGHT PREPAID", "FREIGHT COLLECT"}
)

// Extract builds the mock field set. A file name containing "corrupt"
// deterministically fails, standing in for an unreadable scan.
func (p *MockProvider) Extract(ctx context.Context, documentType, fileName string) (Result, error) {
	if err := p.wait(ctx); err != nil {
		return Result{}, err
	}
	if strings.Contains(strings.ToLower(fileName), "corrupt") {
		return Result{}, fmt.Errorf("unreadable document %q", fileName)
	}

	seed := fnv.New64a()
	seed.Write([]byte(documentType + "-" + fileName))
	rng := rand.New(rand.NewSource(int64(seed.Sum64())))

	units := 50 + rng.Intn(450)
	fields := map[string]string{
		"blNumber":         fmt.Sprintf("HDGL%08d", rng.Intn(100000000)),
		"vesselName":       vessels[rng.Intn(len(vessels))],
		"voyageNumber":     fmt.Sprintf("%03dE", 1+rng.Intn(899)),
		"shipperName":      shippers[rng.Intn(len(shippers))],
		"shipperAddress":   fmt.Sprintf("%d Gukjegyeongje-ro, Pyeongtaek-si", 1+rng.Intn(200)),
		"shipperContact":   fmt.Sprintf("+82-31-8040-%04d", rng.Intn(10000)),
		"consigneeName":    consignees[rng.Intn(len(consignees))],
		"consigneeAddress": fmt.Sprintf("%d Leng Kee Road, Singapore", 1+rng.Intn(60)),
		"consigneeContact": fmt.Sprintf("+65-6473-%04d", rng.Intn(10000)),
		"notifyParty":      "Same as consignee",
		"portOfLoading":    loadPorts[rng.Intn(len(loadPorts))],
		"portOfDischarge":  "Singapore",
		"placeOfDelivery":  "Singapore",
		"numberOfUnits":    fmt.Sprintf("%d", units),
		"weight":           fmt.Sprintf("%.1f MT", float64(units)*1.5+rng.Float64()*20),
		"volume":           fmt.Sprintf("%.1f CBM", float64(units)*12.0+rng.Float64()*50),
		"containerNumbers": "N/A - RORO",
		"cargoDescription": cargoKinds[rng.Intn(len(cargoKinds))],
		"freightTerms":     freight[rng.Intn(len(freight))],
		"issueDate":        time.Date(2025, time.Month(1+rng.Intn(12)), 1+rng.Intn(28), 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
	}

	result := Result{Fields: make(map[string]Field, len(BLFieldNames))}
	total := 0
	for _, name := range BLFieldNames {
		confidence := 88 + rng.Intn(12)
		result.Fields[name] = Field{Value: fields[name], Original: fields[name], Confidence: confidence, Editable: true}
		total += confidence
	}
	result.OverallConfidence = (total + len(BLFieldNames)/2) / len(BLFieldNames)
	return result, nil
}

func (p *MockProvider) wait(ctx context.Context) error {
	remaining := p.Delay
	for remaining > 0 {
		slice := 50 * time.Millisecond
		if slice > remaining {
			slice = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(slice):
		}
		remaining -= slice
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return nil
}
