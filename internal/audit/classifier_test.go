package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_CriticalSet(t *testing.T) {
	critical := []string{
		ActionPatientRemoved,
		ActionPatientDeleted,
		ActionUserDeleted,
		ActionUserCreated,
		ActionUserAdded,
		ActionFamilyCreated,
		ActionPatientCreated,
		ActionLoginFailed,
		ActionMultipleFailedLogins,
		ActionBackupRestored,
	}
	for _, action := range critical {
		assert.True(t, Classify(action).Critical, "expected %s to be critical", action)
	}

	nonCritical := []string{
		ActionLogin,
		ActionLogout,
		ActionPatientUpdated,
		ActionPatientTransferred,
		ActionStockAdded,
		ActionViewedLogs,
		ActionLogsPurged,
		"some_custom_action",
		"",
	}
	for _, action := range nonCritical {
		assert.False(t, Classify(action).Critical, "expected %s not to be critical", action)
	}
}

func TestClassify_Severity(t *testing.T) {
	tests := []struct {
		action string
		want   Severity
	}{
		{ActionPatientRemoved, SeverityCritical},
		{ActionPatientDeleted, SeverityCritical},
		{ActionUserDeleted, SeverityCritical},
		{ActionMultipleFailedLogins, SeverityCritical},
		{ActionUserCreated, SeverityHigh},
		{ActionUserAdded, SeverityHigh},
		{ActionFamilyCreated, SeverityHigh},
		{ActionPatientCreated, SeverityHigh},
		{ActionLoginFailed, SeverityHigh},
		{ActionBackupRestored, SeverityHigh},
	}
	for _, tt := range tests {
		class := Classify(tt.action)
		assert.Equal(t, tt.want, class.Severity, "severity for %s", tt.action)
	}
}

func TestClassify_NonCriticalHasNoSeverity(t *testing.T) {
	class := Classify(ActionLogin)
	assert.False(t, class.Critical)
	assert.Empty(t, class.Severity)
}

func TestClassify_TransferCappedAtMedium(t *testing.T) {
	// Transfers carry a severity cap even while outside the critical set, so
	// the classification stays stable if they ever join it.
	assert.Equal(t, SeverityMedium, severityByAction[ActionPatientTransferred])
}
