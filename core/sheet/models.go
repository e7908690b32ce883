package sheet

import (
	"io"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/attenx/attenx/core"
)

// Lifecycle statuses. Status only moves forward:
// uploaded -> processing -> {completed, failed}.
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Shift types
const (
	ShiftMorning   = "morning"
	ShiftAfternoon = "afternoon"
	ShiftNight     = "night"
)

var (
	ShiftTypes = []string{ShiftMorning, ShiftAfternoon, ShiftNight}

	// shiftCodes maps a shift type to the sheet id prefix.
	shiftCodes = map[string]string{
		ShiftMorning:   "A",
		ShiftAfternoon: "B",
		ShiftNight:     "C",
	}
)

func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

type Sheet struct {
	ID               int       `json:"id" db:"id"`
	SheetID          string    `json:"sheetId" db:"sheet_id"`
	OriginalFilename string    `json:"originalFilename" db:"original_filename"`
	FilePath         string    `json:"-" db:"file_path"`
	FileSize         int64     `json:"fileSize" db:"file_size"`
	FileType         string    `json:"fileType" db:"file_type"`
	UploadDate       time.Time `json:"uploadDate" db:"upload_date"`
	ShiftType        string    `json:"shiftType" db:"shift_type"`
	Department       string    `json:"department" db:"department"`
	UploadedBy       int       `json:"uploadedBy" db:"uploaded_by"`
	Status           string    `json:"status" db:"status"`
	TotalSignatures  int       `json:"totalSignatures" db:"total_signatures"`
	AnomaliesCount   int       `json:"anomaliesCount" db:"anomalies_count"`
	ProcessedAt      null.Time `json:"processedAt" db:"processed_at"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time `json:"updatedAt" db:"updated_at"`
}

type Signature struct {
	ID              int       `json:"id" db:"id"`
	SheetID         int       `json:"sheetId" db:"sheet_id"`
	EmployeeID      string    `json:"employeeId" db:"employee_id"`
	EmployeeName    string    `json:"employeeName" db:"employee_name"`
	ConfidenceScore float64   `json:"confidence" db:"confidence_score"`
	PositionX       float64   `json:"x" db:"position_x"`
	PositionY       float64   `json:"y" db:"position_y"`
	Width           float64   `json:"width" db:"width"`
	Height          float64   `json:"height" db:"height"`
	IsVerified      bool      `json:"isVerified" db:"is_verified"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

// Upload is an incoming file payload. Content is only consumed once the
// metadata checks have passed.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// NewSheet contains the metadata accompanying an uploaded file.
type NewSheet struct {
	ShiftType  string `json:"shiftType" validate:"omitempty,shifttype"`
	Department string `json:"department"`
}

func (ns *NewSheet) Validate(validate *validator.Validate) error {
	ns.ShiftType = core.CleanString(ns.ShiftType, true /* lower */)
	ns.Department = core.CleanString(ns.Department, true /* lower */)
	if ns.ShiftType == "" {
		ns.ShiftType = ShiftMorning
	}
	if ns.Department == "" {
		ns.Department = "general"
	}
	return validate.Struct(ns)
}

// Status is the polling view of a sheet's processing lifecycle.
type Status struct {
	ID              int       `json:"id"`
	SheetID         string    `json:"sheetId"`
	Status          string    `json:"status"`
	TotalSignatures int       `json:"totalSignatures"`
	AnomaliesCount  int       `json:"anomaliesCount"`
	ProcessedAt     null.Time `json:"processedAt"`
	CreatedAt       time.Time `json:"createdAt"`
}

var (
	shiftTypeTag  = "shifttype"
	shiftTypeText = "invalid shift type"
)

// InitValidators registers this package's custom validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(shiftTypeTag, shiftTypeValidation)
	core.RegisterCustomTranslation(validate, translator, shiftTypeTag, shiftTypeText)
}

func shiftTypeValidation(fl validator.FieldLevel) bool {
	_, ok := shiftCodes[fl.Field().String()]
	return ok
}
