package forwarder

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caretrail/internal/audit"
)

func TestNewPayload_CarriesRecordIDActionAndSeverity(t *testing.T) {
	record := &audit.ActionRecord{
		ID:                uuid.New(),
		ActorID:           1,
		ActorRole:         audit.RoleAdmin,
		ActorDisplayName:  "Ada Admin",
		ActionType:        audit.ActionUserDeleted,
		Description:       "Deleted user Jane Roe",
		TargetType:        audit.TargetUser,
		TargetID:          42,
		TargetDisplayName: "Jane Roe",
		SourceIP:          "203.0.113.9",
		RequestID:         "req-1",
		Timestamp:         time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	class := audit.Classify(record.ActionType)
	require.True(t, class.Critical)

	p := newPayload(record, class)

	assert.Equal(t, record.ID.String(), p.ID)
	assert.Equal(t, audit.ActionUserDeleted, p.ActionType)
	assert.Equal(t, string(audit.SeverityCritical), p.Severity)
	assert.Equal(t, "Deleted user Jane Roe", p.Description)
	assert.EqualValues(t, 1, p.ActorID)
	assert.Equal(t, "admin", p.ActorRole)
	assert.Equal(t, "Ada Admin", p.ActorDisplayName)
	assert.Equal(t, "user #42 (Jane Roe)", p.Target)
	assert.Equal(t, "203.0.113.9", p.SourceIP)
	assert.Equal(t, "req-1", p.RequestID)
	assert.Equal(t, "2026-05-01T12:00:00Z", p.Timestamp)
}

func TestNewPayload_JSONFieldNames(t *testing.T) {
	record := &audit.ActionRecord{
		ID:               uuid.New(),
		ActorID:          7,
		ActorRole:        audit.RoleDoctor,
		ActorDisplayName: "Greg House",
		ActionType:       audit.ActionPatientRemoved,
		Description:      "Removed patient",
		Timestamp:        time.Date(2026, 5, 1, 12, 0, 0, 123456789, time.UTC),
	}

	raw, err := json.Marshal(newPayload(record, audit.Classify(record.ActionType)))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))

	assert.Equal(t, record.ID.String(), fields["id"])
	assert.Equal(t, audit.ActionPatientRemoved, fields["actionType"])
	assert.Equal(t, "critical", fields["severity"])
	assert.Equal(t, "doctor", fields["actorRole"])
	assert.Equal(t, "2026-05-01T12:00:00.123456789Z", fields["timestamp"])

	// Optional fields stay off the wire when empty.
	assert.NotContains(t, fields, "target")
	assert.NotContains(t, fields, "sourceIp")
	assert.NotContains(t, fields, "requestId")
}

func TestNewPayload_TimestampIsUTC(t *testing.T) {
	zone := time.FixedZone("plus2", 2*60*60)
	record := &audit.ActionRecord{
		ID:         uuid.New(),
		ActionType: audit.ActionBackupRestored,
		Timestamp:  time.Date(2026, 5, 1, 14, 0, 0, 0, zone),
	}

	p := newPayload(record, audit.Classify(record.ActionType))
	assert.Equal(t, "2026-05-01T12:00:00Z", p.Timestamp)
}
