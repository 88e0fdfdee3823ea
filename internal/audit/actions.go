package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Per-domain convenience wrappers. Route handlers across the application call
// these instead of spelling out action strings, so the classifier and query
// filters keep working no matter who logs the event.

// PatientCreated logs a new patient registration.
func (w *Writer) PatientCreated(ctx context.Context, patientID int64, patientName string) (uuid.UUID, bool) {
	return w.Record(ctx, Entry{
		ActionType:  ActionPatientCreated,
		Description: fmt.Sprintf("Registered new patient %s", patientName),
		Target:      &Target{Type: TargetPatient, ID: patientID, DisplayName: patientName},
	})
}

// PatientRemoved logs removal of a patient from active care.
func (w *Writer) PatientRemoved(ctx context.Context, patientID int64, patientName, reason string) (uuid.UUID, bool) {
	entry := Entry{
		ActionType:  ActionPatientRemoved,
		Description: fmt.Sprintf("Removed patient %s", patientName),
		Target:      &Target{Type: TargetPatient, ID: patientID, DisplayName: patientName},
	}
	if reason != "" {
		entry.Metadata = Extra{"reason": reason}
	}
	return w.Record(ctx, entry)
}

// PatientTransferred logs moving a patient to another facility.
func (w *Writer) PatientTransferred(ctx context.Context, patientID int64, patientName, destination string) (uuid.UUID, bool) {
	return w.Record(ctx, Entry{
		ActionType:  ActionPatientTransferred,
		Description: fmt.Sprintf("Transferred patient %s to %s", patientName, destination),
		Target:      &Target{Type: TargetPatient, ID: patientID, DisplayName: patientName},
		Metadata:    Extra{"destination": destination},
	})
}

// PatientCheckedIn logs a check-in at the front desk.
func (w *Writer) PatientCheckedIn(ctx context.Context, patientID int64, patientName string) (uuid.UUID, bool) {
	return w.Record(ctx, Entry{
		ActionType:  ActionPatientCheckedIn,
		Description: fmt.Sprintf("Checked in patient %s", patientName),
		Target:      &Target{Type: TargetPatient, ID: patientID, DisplayName: patientName},
	})
}

// UserCreated logs creation of a staff or patient account.
func (w *Writer) UserCreated(ctx context.Context, userID int64, userName string, role Role) (uuid.UUID, bool) {
	return w.Record(ctx, Entry{
		ActionType:  ActionUserCreated,
		Description: fmt.Sprintf("Created %s account for %s", role, userName),
		Target:      &Target{Type: TargetUser, ID: userID, DisplayName: userName},
	})
}

// UserDeleted logs deletion of an account, preserving what was removed.
func (w *Writer) UserDeleted(ctx context.Context, userID int64, userName string, role Role) (uuid.UUID, bool) {
	return w.Record(ctx, Entry{
		ActionType:  ActionUserDeleted,
		Description: fmt.Sprintf("Deleted the account of %s", userName),
		Target:      &Target{Type: TargetUser, ID: userID, DisplayName: userName},
		Metadata:    UserDeletion{DeletedUserID: userID, DeletedUserName: userName, DeletedUserRole: string(role)},
	})
}

// FamilyCreated logs creation of a family record grouping patients.
func (w *Writer) FamilyCreated(ctx context.Context, familyID int64, familyName string) (uuid.UUID, bool) {
	return w.Record(ctx, Entry{
		ActionType:  ActionFamilyCreated,
		Description: fmt.Sprintf("Created family record %s", familyName),
		Target:      &Target{Type: TargetFamily, ID: familyID, DisplayName: familyName},
	})
}

// Login logs a successful sign-in.
func (w *Writer) Login(ctx context.Context) (uuid.UUID, bool) {
	return w.Record(ctx, Entry{
		ActionType:  ActionLogin,
		Description: "Signed in",
	})
}

// Logout logs a sign-out.
func (w *Writer) Logout(ctx context.Context) (uuid.UUID, bool) {
	return w.Record(ctx, Entry{
		ActionType:  ActionLogout,
		Description: "Signed out",
	})
}

// LoginFailed logs a single failed sign-in attempt. The auth collaborator
// supplies the attempted username; there is no authenticated actor yet.
func (w *Writer) LoginFailed(ctx context.Context, username string) (uuid.UUID, bool) {
	return w.Record(ctx, Entry{
		ActionType:  ActionLoginFailed,
		Description: fmt.Sprintf("Failed login attempt for %s", username),
		Metadata:    LoginFailure{Username: username, Attempts: 1},
	})
}

// MultipleFailedLogins logs crossing the repeated-failure threshold.
func (w *Writer) MultipleFailedLogins(ctx context.Context, username string, attempts int) (uuid.UUID, bool) {
	return w.Record(ctx, Entry{
		ActionType:  ActionMultipleFailedLogins,
		Description: fmt.Sprintf("%d failed login attempts for %s", attempts, username),
		Metadata:    LoginFailure{Username: username, Attempts: attempts},
	})
}

// StockAdded logs an inventory addition.
func (w *Writer) StockAdded(ctx context.Context, itemID int64, change StockChange) (uuid.UUID, bool) {
	return w.Record(ctx, Entry{
		ActionType:  ActionStockAdded,
		Description: fmt.Sprintf("Added %d %s to stock of %s", change.Quantity, change.Unit, change.ItemName),
		Target:      &Target{Type: TargetInventory, ID: itemID, DisplayName: change.ItemName},
		Metadata:    change,
	})
}

// StockDisposed logs an inventory disposal.
func (w *Writer) StockDisposed(ctx context.Context, itemID int64, change StockChange) (uuid.UUID, bool) {
	return w.Record(ctx, Entry{
		ActionType:  ActionStockDisposed,
		Description: fmt.Sprintf("Disposed %d %s of %s", change.Quantity, change.Unit, change.ItemName),
		Target:      &Target{Type: TargetInventory, ID: itemID, DisplayName: change.ItemName},
		Metadata:    change,
	})
}

// BackupCreated logs a completed backup.
func (w *Writer) BackupCreated(ctx context.Context, backupName string) (uuid.UUID, bool) {
	return w.Record(ctx, Entry{
		ActionType:  ActionBackupCreated,
		Description: fmt.Sprintf("Created backup %s", backupName),
		Target:      &Target{Type: TargetBackup, DisplayName: backupName},
	})
}

// BackupRestored logs restoring from a backup.
func (w *Writer) BackupRestored(ctx context.Context, backupName string) (uuid.UUID, bool) {
	return w.Record(ctx, Entry{
		ActionType:  ActionBackupRestored,
		Description: fmt.Sprintf("Restored system from backup %s", backupName),
		Target:      &Target{Type: TargetBackup, DisplayName: backupName},
	})
}

// ReportGenerated logs producing a report.
func (w *Writer) ReportGenerated(ctx context.Context, reportType, description string) (uuid.UUID, bool) {
	if description == "" {
		description = fmt.Sprintf("Generated %s report", reportType)
	}
	return w.Record(ctx, Entry{
		ActionType:  ActionReportGenerated,
		Description: description,
		Target:      &Target{Type: TargetReport, DisplayName: reportType},
	})
}

// ViewedLogs logs (and coalesces) an audit-trail view.
func (w *Writer) ViewedLogs(ctx context.Context) (uuid.UUID, bool) {
	return w.Record(ctx, Entry{
		ActionType:  ActionViewedLogs,
		Description: "Viewed audit logs",
		Target:      &Target{Type: TargetAudit},
	})
}
