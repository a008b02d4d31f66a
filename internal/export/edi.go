package export

import (
	"bytes"
	"fmt"
	"strings"
)

// ManifestEDI renders a manifest as a CUSCAR-style flat file for port
// submission. Segment layout follows the UN/EDIFACT D.95B cargo report
// shape: one CNI group per BL line with measurements and quantities.
func ManifestEDI(bundle ShipmentBundle) (*Result, error) {
	if bundle.Manifest == nil {
		return nil, fmt.Errorf("shipment %s has no manifest", bundle.Shipment.ID)
	}
	manifest := bundle.Manifest
	stamp := bundle.GeneratedAt.UTC()
	ref := manifest.ManifestNumber

	var buf bytes.Buffer
	write := func(format string, args ...any) {
		fmt.Fprintf(&buf, format+"'\n", args...)
	}

	segments := 0
	seg := func(format string, args ...any) {
		write(format, args...)
		segments++
	}

	write("UNB+UNOA:2+CARGOOPS+PORTNET+%s:%s+%s", stamp.Format("060102"), stamp.Format("1504"), ref)
	seg("UNH+1+CUSCAR:D:95B:UN")
	seg("BGM+85+%s+9", manifest.ManifestNumber)
	seg("DTM+137:%s:102", stamp.Format("20060102"))
	seg("TDT+20+%s+1++%s", bundle.Shipment.VoyageNumber, escapeEDI(bundle.Shipment.VesselName))
	seg("LOC+153+SGSIN")

	for i, item := range manifest.Cargo {
		seg("CNI+%d+%s", i+1, item.BLNumber)
		seg("MEA+AAE+WT+KGM:%.0f", item.Weight*1000)
		seg("MEA+AAE+VOL+MTQ:%.1f", item.CBM)
		seg("QTY+52:%d", item.Units)
		seg("FTX+AAA++%s", escapeEDI(item.Description))
		seg("NAD+CN+++%s", escapeEDI(item.Consignee))
	}

	// UNT counts itself plus everything after UNH, including UNH.
	write("UNT+%d+1", segments+1)
	write("UNZ+1+%s", ref)

	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(manifest.ManifestNumber) + ".edi",
		MimeType: "application/edifact",
	}, nil
}

// escapeEDI strips the EDIFACT service characters from free text.
func escapeEDI(value string) string {
	replacer := strings.NewReplacer("'", " ", "+", " ", ":", " ")
	return replacer.Replace(value)
}
