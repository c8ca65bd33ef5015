package scanner

import (
	"encoding/json"
	"strings"

	"checkin-system/models"
)

// structuredPayload is the JSON shape newer QR codes carry. Legacy codes are
// bare ticket references.
type structuredPayload struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	TicketRef string `json:"ticket_ref"`
	Ref       string `json:"ref"`
}

// Classify turns a raw decoded payload into a scan intent. It never fails:
// anything that is not recognizably structured is treated as an opaque ticket
// reference and left to the processor to resolve or reject.
func Classify(raw string) models.ScanIntent {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "{") {
		var p structuredPayload
		if err := json.Unmarshal([]byte(trimmed), &p); err == nil {
			switch p.Type {
			case "profile":
				return models.ProfileScan{ProfileID: p.ID}
			default:
				if ref := firstNonEmpty(p.TicketRef, p.Ref, p.ID); ref != "" {
					return models.TicketScan{TicketRef: ref}
				}
			}
		}
		// Malformed JSON still scans as a ticket; resolution fails loudly
		// server-side instead of killing the scan loop.
	}

	return models.TicketScan{TicketRef: trimmed}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
