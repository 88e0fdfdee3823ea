package audit

// Severity ranks how urgently a critical action needs attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// Classification is the result of inspecting an action type.
type Classification struct {
	Critical bool
	Severity Severity
}

// criticalActions is the fixed set of action types that always produce a
// notification. Membership is exact-string; convenience wrappers keep these
// strings stable.
var criticalActions = map[string]struct{}{
	ActionPatientRemoved:       {},
	ActionPatientDeleted:       {},
	ActionUserDeleted:          {},
	ActionUserCreated:          {},
	ActionUserAdded:            {},
	ActionFamilyCreated:        {},
	ActionPatientCreated:       {},
	ActionLoginFailed:          {},
	ActionMultipleFailedLogins: {},
	ActionBackupRestored:       {},
}

// severityByAction is the single source of truth for severity. Critical
// actions not listed here default to SeverityHigh. Non-critical entries
// (transfers) cap the severity should the action ever join the critical set.
var severityByAction = map[string]Severity{
	ActionPatientRemoved:       SeverityCritical,
	ActionPatientDeleted:       SeverityCritical,
	ActionUserDeleted:          SeverityCritical,
	ActionMultipleFailedLogins: SeverityCritical,
	ActionPatientTransferred:   SeverityMedium,
}

// Classify inspects an action type and returns whether it is critical and at
// what severity. Pure function; callers never mutate the tables.
func Classify(actionType string) Classification {
	_, critical := criticalActions[actionType]
	if !critical {
		return Classification{}
	}
	severity, ok := severityByAction[actionType]
	if !ok {
		severity = SeverityHigh
	}
	return Classification{Critical: true, Severity: severity}
}
