package export

import (
	"bytes"
	"fmt"
	"html/template"
)

func renderSummaryHTML(bundle ShipmentBundle) (string, error) {
	t, err := template.New("summary").Funcs(template.FuncMap{
		"field": fieldValue,
	}).Parse(summaryTemplate)
	if err != nil {
		return "", fmt.Errorf("parse summary template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, bundle); err != nil {
		return "", fmt.Errorf("render summary template: %w", err)
	}
	return buf.String(), nil
}

const summaryTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Shipment.VesselName}} {{.Shipment.VoyageNumber}}</title>
<style>
	body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; color: #222; margin: 0; }
	h1 { font-size: 20px; border-bottom: 2px solid #00558c; padding-bottom: 8px; }
	h2 { font-size: 15px; margin-top: 24px; }
	table { width: 100%; border-collapse: collapse; font-size: 12px; }
	th, td { border: 1px solid #ccd4dd; padding: 5px 8px; text-align: left; }
	th { background: #f0f4f8; }
	.meta { font-size: 12px; color: #555; }
	.match { color: #1a7f37; font-weight: bold; }
	.mismatch { color: #b42318; font-weight: bold; }
	.pending { color: #8a6d00; font-weight: bold; }
</style>
</head>
<body>
	<h1>Discharge Summary: {{.Shipment.VesselName}} / {{.Shipment.VoyageNumber}}</h1>
	<p class="meta">Status: {{.Shipment.Status}} &middot; ETA: {{.Shipment.ETA.Format "2006-01-02 15:04"}} &middot; Generated: {{.GeneratedAt.Format "2006-01-02 15:04 MST"}}</p>

	<h2>Reconciliation</h2>
	<p>
		Document units: {{.Reconciliation.DocumentUnits}} &middot;
		Plan units: {{.Reconciliation.PlanUnits}} &middot;
		Outcome: <span class="{{.Reconciliation.Outcome}}">{{.Reconciliation.Outcome}}</span>
	</p>

	<h2>Documents</h2>
	<table>
		<tr><th>BL Number</th><th>File</th><th>Type</th><th>Status</th><th>Review</th><th>Units</th></tr>
		{{range .Documents}}
		<tr>
			<td>{{field . "blNumber"}}</td>
			<td>{{.FileName}}</td>
			<td>{{.DocumentType}}</td>
			<td>{{.ProcessingStatus}}</td>
			<td>{{.ReviewStatus}}</td>
			<td>{{field . "numberOfUnits"}}</td>
		</tr>
		{{end}}
	</table>

	{{if .Manifest}}
	<h2>Manifest {{.Manifest.ManifestNumber}} ({{.Manifest.Status}})</h2>
	<table>
		<tr><th>BL Number</th><th>Description</th><th>Units</th><th>Weight (MT)</th><th>CBM</th><th>Consignee</th></tr>
		{{range .Manifest.Cargo}}
		<tr>
			<td>{{.BLNumber}}</td>
			<td>{{.Description}}</td>
			<td>{{.Units}}</td>
			<td>{{printf "%.1f" .Weight}}</td>
			<td>{{printf "%.1f" .CBM}}</td>
			<td>{{.Consignee}}</td>
		</tr>
		{{end}}
	</table>
	{{end}}
</body>
</html>`
