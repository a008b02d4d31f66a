package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements search using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole API is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across shipments, documents and the
// audit log using plainto_tsquery and ts_rank, with ts_headline snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultShipment {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'shipment'::text AS type, s.id, s.vessel_name AS title,
				ts_headline('english', s.voyage_number, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				s.id AS shipment_id,
				ts_rank(s.fts, %s) AS rank
			FROM shipments s
			WHERE s.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultDocument {
		docWhere := "d.fts @@ " + tsQuery
		if q.FilterShipmentID != "" {
			docWhere += fmt.Sprintf(" AND d.shipment_id = $%d", argN)
			args = append(args, q.FilterShipmentID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'document'::text AS type, d.id, d.file_name AS title,
				ts_headline('english', d.document_type, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				d.shipment_id,
				ts_rank(d.fts, %s) AS rank
			FROM documents d
			WHERE %s`, tsQuery, tsQuery, docWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultAudit {
		auditWhere := "a.fts @@ " + tsQuery
		if q.FilterShipmentID != "" {
			auditWhere += fmt.Sprintf(" AND a.related_ids ? $%d", argN)
			args = append(args, q.FilterShipmentID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'audit'::text AS type, a.id, a.action AS title,
				ts_headline('english', a.details, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				COALESCE(a.related_ids->>0, '') AS shipment_id,
				ts_rank(a.fts, %s) AS rank
			FROM audit_log a
			WHERE %s`, tsQuery, tsQuery, auditWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, shipment_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ShipmentID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ShipmentRecord, []DocumentRecord, []AuditRecord, error) {
	shipmentRows, err := p.db.QueryContext(ctx, `
		SELECT id, vessel_name, voyage_number, status FROM shipments
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load shipments: %w", err)
	}
	defer shipmentRows.Close()

	shipments := make([]ShipmentRecord, 0)
	for shipmentRows.Next() {
		var s ShipmentRecord
		if err := shipmentRows.Scan(&s.ID, &s.VesselName, &s.VoyageNumber, &s.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan shipment: %w", err)
		}
		shipments = append(shipments, s)
	}
	if err := shipmentRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate shipments: %w", err)
	}

	docRows, err := p.db.QueryContext(ctx, `
		SELECT id, file_name, document_type, shipment_id, processing_status FROM documents
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load documents: %w", err)
	}
	defer docRows.Close()

	documents := make([]DocumentRecord, 0)
	for docRows.Next() {
		var d DocumentRecord
		if err := docRows.Scan(&d.ID, &d.FileName, &d.DocumentType, &d.ShipmentID, &d.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, d)
	}
	if err := docRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate documents: %w", err)
	}

	auditRows, err := p.db.QueryContext(ctx, `
		SELECT id, action, details, COALESCE(related_ids->>0, '') FROM audit_log ORDER BY seq
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load audit entries: %w", err)
	}
	defer auditRows.Close()

	entries := make([]AuditRecord, 0)
	for auditRows.Next() {
		var a AuditRecord
		if err := auditRows.Scan(&a.ID, &a.Action, &a.Details, &a.ShipmentID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, a)
	}
	if err := auditRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return shipments, documents, entries, nil
}
