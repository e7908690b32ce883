package sheet

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/attenx/attenx/core"
	"github.com/attenx/attenx/core/anomaly"
)

var (
	// errors
	ErrNotFound        = errors.New("sheet not found")
	ErrMissingFile     = errors.New("no file uploaded")
	ErrInvalidFileType = errors.New("invalid file type. Only PDF, JPG and PNG files are allowed")
	ErrFileTooLarge    = errors.New("file too large. Maximum size is 10MB")

	// allowedFileTypes maps accepted MIME types to stored file extensions.
	allowedFileTypes = map[string]string{
		"application/pdf": ".pdf",
		"image/jpeg":      ".jpg",
		"image/jpg":       ".jpg",
		"image/png":       ".png",
	}
)

type (
	Repository interface {
		CreateSheet(ctx context.Context, sht Sheet) (Sheet, error)
		GetSheetByID(ctx context.Context, id int) (Sheet, error)
		// MarkSheetProcessing flips status to `processing` and stamps processed_at.
		MarkSheetProcessing(ctx context.Context, id int, startedAt time.Time) error
		SetSheetStatus(ctx context.Context, id int, status string) error
		// CompleteSheet flips status to `completed` and records the result counts.
		CompleteSheet(ctx context.Context, id int, totalSignatures, anomaliesCount int) error
		CreateSignature(ctx context.Context, sig Signature) (Signature, error)
		QuerySheetSignatures(ctx context.Context, sheetID int) ([]Signature, error)
	}

	// AnomalyWriter is the slice of the anomaly repository the processing run
	// needs. anomaly.Repository satisfies it.
	AnomalyWriter interface {
		CreateAnomaly(ctx context.Context, an anomaly.Anomaly) (anomaly.Anomaly, error)
	}

	// FileStore stores uploaded files durably.
	FileStore interface {
		// Save writes src under the given name and returns the stored path.
		Save(name string, src io.Reader) (string, error)
		Remove(path string) error
	}

	// Candidate is one detected signature, optionally flagged with an anomaly.
	Candidate struct {
		Signature Signature
		Anomaly   *anomaly.Anomaly // nil when nothing was flagged
	}

	// Detector extracts signature candidates from a sheet. The simulated
	// implementation fabricates them; a real detector satisfies the same
	// contract.
	Detector interface {
		Detect(ctx context.Context, sht Sheet) ([]Candidate, error)
	}

	Service struct {
		conf      *core.Config
		logger    core.Logger
		repo      Repository
		anomalies AnomalyWriter
		files     FileStore
		detector  Detector
		mailSvc   core.EmailService

		mu    sync.Mutex
		tasks map[int]*ProcessingTask
	}
)

func NewService(
	conf *core.Config,
	logger core.Logger,
	repo Repository,
	anomalies AnomalyWriter,
	files FileStore,
	detector Detector,
	mailSvc core.EmailService,
) *Service {
	return &Service{
		conf:      conf,
		logger:    logger,
		repo:      repo,
		anomalies: anomalies,
		files:     files,
		detector:  detector,
		mailSvc:   mailSvc,
		tasks:     make(map[int]*ProcessingTask),
	}
}

// Upload validates an incoming file, stores it durably and records the sheet
// in `uploaded` state. Validation failures leave no file and no row behind;
// if the insert fails after the file was written, the file is removed before
// the error is returned.
func (svc *Service) Upload(ctx context.Context, up Upload, ns NewSheet, uploadedBy int) (Sheet, error) {
	if up.Content == nil || up.Filename == "" {
		return Sheet{}, ErrMissingFile
	}

	contentType := core.CleanString(up.ContentType, true /* lower */)
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	ext, ok := allowedFileTypes[contentType]
	if !ok {
		return Sheet{}, ErrInvalidFileType
	}
	if up.Size > svc.conf.Upload.MaxSize {
		return Sheet{}, ErrFileTooLarge
	}

	path, err := svc.files.Save(uuid.New().String()+ext, up.Content)
	if err != nil {
		return Sheet{}, errors.Wrap(err, "storing uploaded file")
	}

	if uploadedBy == 0 {
		uploadedBy = 1 // seeded admin
	}

	now := time.Now().UTC()
	sht := Sheet{
		SheetID:          buildSheetID(ns.ShiftType, now),
		OriginalFilename: up.Filename,
		FilePath:         path,
		FileSize:         up.Size,
		FileType:         contentType,
		UploadDate:       now,
		ShiftType:        ns.ShiftType,
		Department:       ns.Department,
		UploadedBy:       uploadedBy,
		Status:           StatusUploaded,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	created, err := svc.repo.CreateSheet(ctx, sht)
	if err != nil {
		if rmErr := svc.files.Remove(path); rmErr != nil {
			svc.logger.Warn(fmt.Sprintf("removing orphaned upload %s: %v", path, rmErr), rmErr)
		}
		return Sheet{}, errors.Wrap(err, "inserting sheet")
	}
	return created, nil
}

// Process flips the sheet to `processing` synchronously and schedules the
// detection run as detached work. The returned task completes once the run
// reaches a terminal status; it is also retrievable via Task.
func (svc *Service) Process(ctx context.Context, id int) (*ProcessingTask, error) {
	sht, err := svc.repo.GetSheetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err = svc.repo.MarkSheetProcessing(ctx, id, time.Now().UTC()); err != nil {
		return nil, errors.Wrap(err, "marking sheet processing")
	}

	task := newProcessingTask(id)
	svc.mu.Lock()
	svc.tasks[id] = task
	svc.mu.Unlock()

	go svc.runDetection(task, sht)
	return task, nil
}

// Task returns the latest processing task scheduled for a sheet, if any.
func (svc *Service) Task(sheetID int) (*ProcessingTask, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	task, ok := svc.tasks[sheetID]
	return task, ok
}

// Status returns the sheet's lifecycle view. Pure read; safe to poll.
func (svc *Service) Status(ctx context.Context, id int) (Status, error) {
	sht, err := svc.repo.GetSheetByID(ctx, id)
	if err != nil {
		return Status{}, err
	}
	return Status{
		ID:              sht.ID,
		SheetID:         sht.SheetID,
		Status:          sht.Status,
		TotalSignatures: sht.TotalSignatures,
		AnomaliesCount:  sht.AnomaliesCount,
		ProcessedAt:     sht.ProcessedAt,
		CreatedAt:       sht.CreatedAt,
	}, nil
}

func (svc *Service) GetByID(ctx context.Context, id int) (Sheet, error) {
	return svc.repo.GetSheetByID(ctx, id)
}

// runDetection is the detached processing run. Failures are never surfaced to
// the triggering caller; they only show up as a `failed` status. Partially
// written rows are left behind on failure (best effort, no rollback).
func (svc *Service) runDetection(task *ProcessingTask, sht Sheet) {
	ctx := context.Background()

	if delay := svc.conf.Processing.Delay; delay > 0 {
		time.Sleep(delay) // simulated processing time
	}

	err := svc.persistDetection(ctx, sht)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("processing sheet %d: %v", sht.ID, err), err)
		if sErr := svc.repo.SetSheetStatus(ctx, sht.ID, StatusFailed); sErr != nil {
			svc.logger.Error(fmt.Sprintf("marking sheet %d failed: %v", sht.ID, sErr), sErr)
		}
	}
	task.finish(err)
}

func (svc *Service) persistDetection(ctx context.Context, sht Sheet) error {
	candidates, err := svc.detector.Detect(ctx, sht)
	if err != nil {
		return errors.Wrap(err, "detecting signatures")
	}

	var nSignatures, nAnomalies, nHighSeverity int
	for _, cand := range candidates {
		sig := cand.Signature
		sig.SheetID = sht.ID
		sig, err = svc.repo.CreateSignature(ctx, sig)
		if err != nil {
			return errors.Wrap(err, "inserting signature")
		}
		nSignatures++

		if cand.Anomaly == nil {
			continue
		}
		an := *cand.Anomaly
		an.SheetID = sht.ID
		an.SignatureID = null.IntFrom(sig.ID)
		if an.Status == "" {
			an.Status = anomaly.StatusPending
		}
		now := time.Now().UTC()
		an.CreatedAt = now
		an.UpdatedAt = now
		if _, err = svc.anomalies.CreateAnomaly(ctx, an); err != nil {
			return errors.Wrap(err, "inserting anomaly")
		}
		nAnomalies++
		if an.Severity == anomaly.SeverityHigh {
			nHighSeverity++
		}
	}

	if err = svc.repo.CompleteSheet(ctx, sht.ID, nSignatures, nAnomalies); err != nil {
		return errors.Wrap(err, "completing sheet")
	}

	if nHighSeverity > 0 {
		svc.sendHighSeverityAlert(sht, nHighSeverity)
	}
	return nil
}

func (svc *Service) sendHighSeverityAlert(sht Sheet, count int) {
	if svc.mailSvc == nil || svc.conf.AlertsEmail == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Address: svc.conf.AlertsEmail}},
		Subject: fmt.Sprintf("High severity anomalies on sheet %s", sht.SheetID),
		BodyStr: fmt.Sprintf(
			"Processing of sheet %s (%s) flagged %d high severity anomalies requiring review.",
			sht.SheetID, sht.OriginalFilename, count,
		),
	})
}

// buildSheetID derives the human-readable sheet identifier:
// {shift code}-{year}-{6-digit sequence}.
func buildSheetID(shiftType string, now time.Time) string {
	code, ok := shiftCodes[shiftType]
	if !ok {
		code = "A"
	}
	seq := now.UnixNano() / int64(time.Millisecond) % 1000000
	return fmt.Sprintf("%s-%d-%06d", code, now.Year(), seq)
}

// ProcessingTask is an awaitable handle on a detached processing run.
type ProcessingTask struct {
	SheetID int

	done chan struct{}
	err  error // set before done is closed
}

func newProcessingTask(sheetID int) *ProcessingTask {
	return &ProcessingTask{SheetID: sheetID, done: make(chan struct{})}
}

func (t *ProcessingTask) finish(err error) {
	t.err = err
	close(t.done)
}

// Done is closed once the run reached a terminal status.
func (t *ProcessingTask) Done() <-chan struct{} { return t.done }

// Err reports the run's failure, if any. Only valid after Done.
func (t *ProcessingTask) Err() error { return t.err }

// Wait blocks until the run completes or ctx is done.
func (t *ProcessingTask) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return t.err
	}
}
