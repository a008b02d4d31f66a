package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxShipments = "cargoops_shipments"
	idxDocuments = "cargoops_documents"
	idxAudit     = "cargoops_audit"
)

// Meili implements search via Meilisearch, with a background health loop.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. An
// unreachable server is tolerated; the health loop reconfigures indexes
// when it recovers.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxShipments,
			filterable: []string{"status"},
			searchable: []string{"vesselName", "voyageNumber"},
		},
		{
			uid:        idxDocuments,
			filterable: []string{"shipmentId", "status"},
			searchable: []string{"fileName", "documentType"},
		},
		{
			uid:        idxAudit,
			filterable: []string{"shipmentId"},
			searchable: []string{"action", "details"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries all three indexes (or a filtered subset) and merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxShipments, ResultShipment},
		{idxDocuments, ResultDocument},
		{idxAudit, ResultAudit},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}
		if q.FilterShipmentID != "" && ti.rtyp != ResultShipment {
			sr.Filter = []string{fmt.Sprintf("shipmentId = %q", q.FilterShipmentID)}
		}
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxShipments:
		return ResultShipment
	case idxDocuments:
		return ResultDocument
	case idxAudit:
		return ResultAudit
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.ShipmentID = decodeString(hit, "shipmentId")

	switch rtyp {
	case ResultShipment:
		r.Title = firstNonBlank(decodeFormattedString(hit, "vesselName"), decodeString(hit, "vesselName"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "voyageNumber"), decodeString(hit, "voyageNumber"))
		r.ShipmentID = r.ID
	case ResultDocument:
		r.Title = firstNonBlank(decodeFormattedString(hit, "fileName"), decodeString(hit, "fileName"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "documentType"), decodeString(hit, "documentType"))
	case ResultAudit:
		r.Title = firstNonBlank(decodeFormattedString(hit, "action"), decodeString(hit, "action"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "details"), decodeString(hit, "details"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexShipment adds or updates a shipment in the search index.
func (m *Meili) IndexShipment(s ShipmentRecord) error {
	_, err := m.client.Index(idxShipments).AddDocuments([]ShipmentRecord{s}, nil)
	return err
}

// IndexDocument adds or updates a document in the search index.
func (m *Meili) IndexDocument(d DocumentRecord) error {
	_, err := m.client.Index(idxDocuments).AddDocuments([]DocumentRecord{d}, nil)
	return err
}

// IndexAudit adds or updates an audit entry in the search index.
func (m *Meili) IndexAudit(a AuditRecord) error {
	_, err := m.client.Index(idxAudit).AddDocuments([]AuditRecord{a}, nil)
	return err
}

// DeleteDocument removes a document from the search index.
func (m *Meili) DeleteDocument(id string) error {
	_, err := m.client.Index(idxDocuments).DeleteDocument(id, nil)
	return err
}

// DeleteShipment removes a shipment from the search index.
func (m *Meili) DeleteShipment(id string) error {
	_, err := m.client.Index(idxShipments).DeleteDocument(id, nil)
	return err
}

// IndexShipments bulk-indexes shipments.
func (m *Meili) IndexShipments(shipments []ShipmentRecord) error {
	if len(shipments) == 0 {
		return nil
	}
	_, err := m.client.Index(idxShipments).AddDocuments(shipments, nil)
	return err
}

// IndexDocuments bulk-indexes documents.
func (m *Meili) IndexDocuments(documents []DocumentRecord) error {
	if len(documents) == 0 {
		return nil
	}
	_, err := m.client.Index(idxDocuments).AddDocuments(documents, nil)
	return err
}

// IndexAuditEntries bulk-indexes audit records.
func (m *Meili) IndexAuditEntries(entries []AuditRecord) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := m.client.Index(idxAudit).AddDocuments(entries, nil)
	return err
}
