package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultShipment ResultType = "shipment"
	ResultDocument ResultType = "document"
	ResultAudit    ResultType = "audit"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	ShipmentID string     `json:"shipmentId"`
}

// Query describes a search request.
type Query struct {
	Text             string
	FilterType       ResultType // empty = all types
	FilterShipmentID string
	Limit            int
	Offset           int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// ShipmentRecord is the data we index for a shipment.
type ShipmentRecord struct {
	ID           string `json:"id"`
	VesselName   string `json:"vesselName"`
	VoyageNumber string `json:"voyageNumber"`
	Status       string `json:"status"`
}

// DocumentRecord is the data we index for an uploaded document.
type DocumentRecord struct {
	ID           string `json:"id"`
	FileName     string `json:"fileName"`
	DocumentType string `json:"documentType"`
	ShipmentID   string `json:"shipmentId"`
	Status       string `json:"status"`
}

// AuditRecord is the data we index for an audit trail entry.
type AuditRecord struct {
	ID         string `json:"id"`
	Action     string `json:"action"`
	Details    string `json:"details"`
	ShipmentID string `json:"shipmentId"`
}
