// Package audit records every consequential action taken by an authenticated
// actor. Records are append-only (the view aggregator may fold repeated
// log-view events into the latest row) and classification of critical actions
// drives the notification subsystem.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the authenticated actor's role in the record-keeping application.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleDoctor     Role = "doctor"
	RoleManagement Role = "management"
	RoleStaff      Role = "staff"
	RolePatient    Role = "patient"

	// RoleSystem marks system-initiated actions that have no actor context.
	RoleSystem Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RoleManagement, RoleStaff, RolePatient, RoleSystem:
		return true
	}
	return false
}

// TargetType classifies the entity affected by an action.
type TargetType string

const (
	TargetPatient     TargetType = "patient"
	TargetUser        TargetType = "user"
	TargetMedication  TargetType = "medication"
	TargetVaccine     TargetType = "vaccine"
	TargetAppointment TargetType = "appointment"
	TargetCheckup     TargetType = "checkup"
	TargetReport      TargetType = "report"
	TargetFamily      TargetType = "family"
	TargetBackup      TargetType = "backup"
	TargetAudit       TargetType = "audit"
	TargetInventory   TargetType = "inventory"
)

// Valid reports whether t is a known target type.
func (t TargetType) Valid() bool {
	switch t {
	case TargetPatient, TargetUser, TargetMedication, TargetVaccine,
		TargetAppointment, TargetCheckup, TargetReport, TargetFamily,
		TargetBackup, TargetAudit, TargetInventory:
		return true
	}
	return false
}

// Target is the entity affected by an action, when one exists.
type Target struct {
	Type        TargetType
	ID          int64
	DisplayName string
}

// Stable action type strings. Handlers and domain wrappers must use these so
// classifier and query filters keep working.
const (
	ActionPatientCreated       = "patient_created"
	ActionPatientRemoved       = "removed_patient"
	ActionPatientDeleted       = "deleted_patient"
	ActionPatientUpdated       = "updated_patient"
	ActionPatientTransferred   = "transferred_patient"
	ActionPatientCheckedIn     = "patient_checked_in"
	ActionUserCreated          = "created_user"
	ActionUserAdded            = "added_new_user"
	ActionUserDeleted          = "deleted_user"
	ActionUserUpdated          = "updated_user"
	ActionFamilyCreated        = "created_family"
	ActionLogin                = "user_login"
	ActionLogout               = "user_logout"
	ActionLoginFailed          = "failed_login"
	ActionMultipleFailedLogins = "multiple_failed_logins"
	ActionStockAdded           = "stock_added"
	ActionStockDisposed        = "stock_disposed"
	ActionBackupCreated        = "backup_created"
	ActionBackupRestored       = "backup_restored"
	ActionReportGenerated      = "report_generated"
	ActionViewedLogs           = "viewed_audit_logs"
	ActionLogsPurged           = "purged_audit_logs"
)

// ActionRecord is one audit-trail row describing a single actor action.
// Required fields: ActorRole, ActorDisplayName, ActionType, Description
// (ActorID may be 0 only for the system actor). A write failing this
// invariant is dropped, never raised.
type ActionRecord struct {
	ID                uuid.UUID
	ActorID           int64
	ActorRole         Role
	ActorDisplayName  string
	ActionType        string
	Description       string
	TargetType        TargetType // empty when the action has no target
	TargetID          int64
	TargetDisplayName string
	Metadata          Metadata
	SourceIP          string
	UserAgent         string
	SessionID         string
	RequestID         string
	TraceID           string
	ErrorMessage      string // set when the audited operation itself failed
	Timestamp         time.Time
}

// HasTarget reports whether the record carries target denormalization.
func (r *ActionRecord) HasTarget() bool { return r.TargetType != "" }

// TargetLabel renders the denormalized target for messages and snapshots,
// e.g. "user #42 (Jane Roe)".
func (r *ActionRecord) TargetLabel() string {
	if !r.HasTarget() {
		return ""
	}
	if r.TargetDisplayName != "" {
		return fmt.Sprintf("%s #%d (%s)", r.TargetType, r.TargetID, r.TargetDisplayName)
	}
	return fmt.Sprintf("%s #%d", r.TargetType, r.TargetID)
}

// -----------------------------------------------------------------------------
// Metadata payloads
// -----------------------------------------------------------------------------

// Metadata is the closed union of structured payloads an action can carry.
// Well-known actions get right-sized shapes; Extra is the open fallback for
// custom actions.
type Metadata interface {
	Kind() string
}

// ViewTrail tracks coalesced log-view events.
type ViewTrail struct {
	ViewCount int `json:"viewCount"`
}

func (ViewTrail) Kind() string { return "view_trail" }

// StockChange describes an inventory addition or disposal.
type StockChange struct {
	ItemName string `json:"itemName"`
	Quantity int    `json:"quantity"`
	Unit     string `json:"unit,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (StockChange) Kind() string { return "stock_change" }

// UserDeletion captures what was removed before the row disappeared.
type UserDeletion struct {
	DeletedUserID   int64  `json:"deletedUserId"`
	DeletedUserName string `json:"deletedUserName"`
	DeletedUserRole string `json:"deletedUserRole,omitempty"`
}

func (UserDeletion) Kind() string { return "user_deletion" }

// LoginFailure describes a failed or repeatedly failed sign-in.
type LoginFailure struct {
	Username string `json:"username"`
	Attempts int    `json:"attempts,omitempty"`
}

func (LoginFailure) Kind() string { return "login_failure" }

// PurgeSummary records the outcome of a retention purge.
type PurgeSummary struct {
	DaysKept int   `json:"daysKept"`
	Deleted  int64 `json:"deleted"`
}

func (PurgeSummary) Kind() string { return "purge_summary" }

// Extra is the open string-keyed fallback for custom or generic actions.
type Extra map[string]any

func (Extra) Kind() string { return "extra" }

const metadataKindField = "kind"

// EncodeMetadata serializes a metadata payload with its kind discriminator.
// Returns nil for nil metadata.
func EncodeMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("flatten metadata: %w", err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields[metadataKindField] = m.Kind()
	return json.Marshal(fields)
}

// DecodeMetadata deserializes a payload by its kind discriminator. Unknown or
// missing kinds decode as Extra so nothing is lost.
func DecodeMetadata(data []byte) (Metadata, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("read metadata kind: %w", err)
	}

	decode := func(target Metadata) (Metadata, error) {
		if err := json.Unmarshal(data, target); err != nil {
			return nil, fmt.Errorf("decode %s metadata: %w", head.Kind, err)
		}
		return target, nil
	}

	switch head.Kind {
	case (ViewTrail{}).Kind():
		m := &ViewTrail{}
		md, err := decode(m)
		if err != nil {
			return nil, err
		}
		return *md.(*ViewTrail), nil
	case (StockChange{}).Kind():
		m := &StockChange{}
		md, err := decode(m)
		if err != nil {
			return nil, err
		}
		return *md.(*StockChange), nil
	case (UserDeletion{}).Kind():
		m := &UserDeletion{}
		md, err := decode(m)
		if err != nil {
			return nil, err
		}
		return *md.(*UserDeletion), nil
	case (LoginFailure{}).Kind():
		m := &LoginFailure{}
		md, err := decode(m)
		if err != nil {
			return nil, err
		}
		return *md.(*LoginFailure), nil
	case (PurgeSummary{}).Kind():
		m := &PurgeSummary{}
		md, err := decode(m)
		if err != nil {
			return nil, err
		}
		return *md.(*PurgeSummary), nil
	default:
		var extra Extra
		if err := json.Unmarshal(data, &extra); err != nil {
			return nil, fmt.Errorf("decode extra metadata: %w", err)
		}
		delete(extra, metadataKindField)
		return extra, nil
	}
}
