package anomaly

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/attenx/attenx/core"
)

// Review statuses
const (
	StatusPending  = "pending"
	StatusReviewed = "reviewed"
	StatusApproved = "approved"
	StatusFlagged  = "flagged"
)

// Severities
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Anomaly types
const (
	TypeSignatureMismatch = "signature_mismatch"
	TypeDuplicateSignature = "duplicate_signature"
	TypeMissingSignature  = "missing_signature"
	TypeUnusualPattern    = "unusual_pattern"
)

var (
	Statuses   = []string{StatusPending, StatusReviewed, StatusApproved, StatusFlagged}
	Severities = []string{SeverityLow, SeverityMedium, SeverityHigh}
	Types      = []string{TypeSignatureMismatch, TypeDuplicateSignature, TypeMissingSignature, TypeUnusualPattern}

	// sortColumns is the allow-list of ORDER BY columns; anything else falls
	// back to the default ordering.
	sortColumns = map[string]bool{
		"created_at":       true,
		"updated_at":       true,
		"anomaly_type":     true,
		"severity":         true,
		"status":           true,
		"confidence_score": true,
		"employee_id":      true,
		"reviewed_at":      true,
	}

	defaultOrdering = core.DBOrdering{Field: "created_at", Ascending: false}
)

func ValidStatus(status string) bool {
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

type Anomaly struct {
	ID              int         `json:"id" db:"id"`
	SignatureID     null.Int    `json:"signatureId,omitempty" db:"signature_id"`
	SheetID         int         `json:"-" db:"sheet_id"`
	EmployeeID      string      `json:"employeeId" db:"employee_id"`
	Type            string      `json:"type" db:"anomaly_type"`
	Severity        string      `json:"severity" db:"severity"`
	Description     string      `json:"description" db:"description"`
	ConfidenceScore float64     `json:"confidence" db:"confidence_score"`
	Status          string      `json:"status" db:"status"`
	ReviewedBy      null.Int    `json:"-" db:"reviewed_by"`
	ReviewerName    null.String `json:"reviewedBy" db:"reviewer_name"`
	ReviewedAt      null.Time   `json:"reviewedAt" db:"reviewed_at"`
	ResolutionNotes null.String `json:"resolutionNotes" db:"resolution_notes"`
	CreatedAt       time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time   `json:"updatedAt" db:"updated_at"`

	// joined, read-only
	EmployeeName null.String `json:"employeeName,omitempty" db:"employee_name"`
	Sheet        *SheetInfo  `json:"sheet,omitempty" db:"-"`
}

// SheetInfo is the owning sheet summary joined into list/detail payloads.
type SheetInfo struct {
	SheetID    string    `json:"id" db:"sheet_uid"`
	Filename   string    `json:"filename" db:"sheet_filename"`
	UploadDate time.Time `json:"uploadDate" db:"sheet_upload_date"`
	ShiftType  string    `json:"shiftType,omitempty" db:"sheet_shift_type"`
}

// Reviewer is the authenticated identity performing a status update.
type Reviewer struct {
	ID   int
	Name string
}

// UpdateAnomaly defines what information may be provided to review an Anomaly.
type UpdateAnomaly struct {
	Status          string `json:"status" validate:"required,anomalystatus"`
	ResolutionNotes string `json:"resolutionNotes"`
}

func (ua *UpdateAnomaly) Validate(validate *validator.Validate) error {
	ua.Status = core.CleanString(ua.Status, true /* lower */)
	ua.ResolutionNotes = core.CleanString(ua.ResolutionNotes)
	return validate.Struct(ua)
}

// QueryFilter applies AND operation on available fields.
type QueryFilter struct {
	Status     string `query:"status"`
	Severity   string `query:"severity"`
	EmployeeID string `query:"employeeId"`
	SheetID    string `query:"sheetId"` // human-readable sheet id, e.g. A-2026-000042
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Status == "" && qf.Severity == "" && qf.EmployeeID == "" && qf.SheetID == ""
}

func (qf *QueryFilter) Clean() {
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.Severity = core.CleanString(qf.Severity, true /* lower */)
	qf.EmployeeID = core.CleanString(qf.EmployeeID)
	qf.SheetID = core.CleanString(qf.SheetID)
}

type Pagination struct {
	Page  int `query:"page"`
	Limit int `query:"limit"`
}

func (pg *Pagination) Clean() {
	if pg.Page < 1 {
		pg.Page = 1
	}
	if pg.Limit < 1 {
		pg.Limit = 20
	}
	if pg.Limit > 100 {
		pg.Limit = 100
	}
}

func (pg Pagination) Offset() int {
	return (pg.Page - 1) * pg.Limit
}

type PageMeta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type Page struct {
	Items      []Anomaly `json:"anomalies"`
	Pagination PageMeta  `json:"pagination"`
}

type Stats struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"bySeverity"`
	ByStatus   map[string]int `json:"byStatus"`
	ByType     map[string]int `json:"byType"`
}

var (
	anomalyStatusTag  = "anomalystatus"
	anomalyStatusText = "invalid status"
)

// InitValidators registers this package's custom validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(anomalyStatusTag, anomalyStatusValidation)
	core.RegisterCustomTranslation(validate, translator, anomalyStatusTag, anomalyStatusText)
}

func anomalyStatusValidation(fl validator.FieldLevel) bool {
	return ValidStatus(fl.Field().String())
}
