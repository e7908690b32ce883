package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/attenx/attenx/core"
	"github.com/attenx/attenx/core/anomaly"
	"github.com/attenx/attenx/core/sheet"
)

// NewConfig returns a self-contained config for tests. No env, no dotenv.
func NewConfig(uploadDir string) *core.Config {
	return &core.Config{
		Debug:     true,
		TestMode:  true,
		Env:       "TEST",
		AppName:   "AttenX",
		SecretKey: "sekrit",
		Server: core.ServerConfig{
			Addr:               ":0",
			ShutdownTimeout:    5 * time.Second,
			JWTExpirationDelta: time.Hour,
		},
		Upload: core.UploadConfig{
			Dir:     uploadDir,
			MaxSize: 10 << 20,
		},
		Processing: core.ProcessingConfig{
			Delay:       0, // no simulated wait in tests
			AnomalyRate: 0.2,
			Seed:        42,
		},
	}
}

// Logger is a test logger that fails the test on Error/Fatal calls.
type Logger struct {
	T *testing.T
}

var _ core.Logger = (*Logger)(nil)

func (l Logger) Enable(bool) {}

func (l Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }

func (l Logger) Error(msg string, args ...interface{}) {
	if l.T != nil {
		l.T.Logf("ERROR: %s %v", msg, args)
	}
}

func (l Logger) Fatal(msg string, args ...interface{}) {
	if l.T != nil {
		l.T.Fatalf("FATAL: %s %v", msg, args)
	}
}

func (l Logger) log(level, msg string, args []interface{}) {
	if l.T != nil {
		l.T.Logf("%s: %s %v", level, msg, args)
	}
}

func CreateSheet(
	t *testing.T,
	repo sheet.Repository,
	sheetID, filename, shiftType string,
	createdAt ...time.Time,
) sheet.Sheet {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	sht := sheet.Sheet{
		SheetID:          sheetID,
		OriginalFilename: filename,
		FilePath:         "/tmp/" + filename,
		FileSize:         2048,
		FileType:         "application/pdf",
		UploadDate:       tstamp,
		ShiftType:        shiftType,
		Department:       "general",
		UploadedBy:       1,
		Status:           sheet.StatusUploaded,
		CreatedAt:        tstamp,
		UpdatedAt:        tstamp,
	}
	sht, err := repo.CreateSheet(context.Background(), sht)
	if err != nil {
		t.Fatalf("CreateSheet() failed: %v", err)
	}
	return sht
}

func CreateAnomaly(
	t *testing.T,
	repo anomaly.Repository,
	sheetPK int,
	employeeID, typ, severity, status string,
	createdAt ...time.Time,
) anomaly.Anomaly {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	an := anomaly.Anomaly{
		SheetID:         sheetPK,
		EmployeeID:      employeeID,
		Type:            typ,
		Severity:        severity,
		Description:     "Detected " + typ + " for " + employeeID,
		ConfidenceScore: 0.75,
		Status:          status,
		CreatedAt:       tstamp,
		UpdatedAt:       tstamp,
	}
	an, err := repo.CreateAnomaly(context.Background(), an)
	if err != nil {
		t.Fatalf("CreateAnomaly() failed: %v", err)
	}
	return an
}
