package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin-system/models"
)

func TestClassify_BareReference(t *testing.T) {
	intent := Classify("TKT-2025-00042")

	scan, ok := intent.(models.TicketScan)
	require.True(t, ok)
	assert.Equal(t, "TKT-2025-00042", scan.TicketRef)
}

func TestClassify_TrimsWhitespace(t *testing.T) {
	// Wedge scanners often append the newline that triggered the read.
	intent := Classify("  TKT-001\r\n")

	scan, ok := intent.(models.TicketScan)
	require.True(t, ok)
	assert.Equal(t, "TKT-001", scan.TicketRef)
}

func TestClassify_StructuredTicket(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{"ticket_ref field", `{"type":"ticket","ticket_ref":"TKT-001"}`, "TKT-001"},
		{"ref field", `{"ref":"TKT-002"}`, "TKT-002"},
		{"id fallback", `{"type":"ticket","id":"TKT-003"}`, "TKT-003"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scan, ok := Classify(tc.payload).(models.TicketScan)
			require.True(t, ok)
			assert.Equal(t, tc.want, scan.TicketRef)
		})
	}
}

func TestClassify_ProfilePayload(t *testing.T) {
	intent := Classify(`{"type":"profile","id":"user-42"}`)

	scan, ok := intent.(models.ProfileScan)
	require.True(t, ok)
	assert.Equal(t, "user-42", scan.ProfileID)
}

func TestClassify_MalformedJSONStillScans(t *testing.T) {
	// A torn or partially printed code must not kill the scan loop; the
	// processor rejects it with ticket_not_found instead.
	intent := Classify(`{"type":"ticket","ticket_ref":`)

	scan, ok := intent.(models.TicketScan)
	require.True(t, ok)
	assert.Equal(t, `{"type":"ticket","ticket_ref":`, scan.TicketRef)
}

func TestClassify_EmptyJSONObject(t *testing.T) {
	scan, ok := Classify(`{}`).(models.TicketScan)
	require.True(t, ok)
	assert.Equal(t, `{}`, scan.TicketRef)
}
