package sheet

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/attenx/attenx/core"
	"github.com/attenx/attenx/core/anomaly"
)

var sheetIDRegexp = regexp.MustCompile(`^[ABC]-\d{4}-\d{6}$`)

func newTestConfig() *core.Config {
	return &core.Config{
		Debug:    true,
		TestMode: true,
		Env:      "TEST",
		AppName:  "AttenX",
		Upload:   core.UploadConfig{Dir: "/tmp", MaxSize: 10 << 20},
		Processing: core.ProcessingConfig{
			Delay:       0,
			AnomalyRate: 0.2,
			Seed:        42,
		},
	}
}

type nopLogger struct{}

func (nopLogger) Enable(bool)                        {}
func (nopLogger) Debug(string, ...interface{})       {}
func (nopLogger) Info(string, ...interface{})        {}
func (nopLogger) Warn(string, ...interface{})        {}
func (nopLogger) Error(string, ...interface{})       {}
func (nopLogger) Fatal(msg string, _ ...interface{}) { panic(msg) }

// fakeRepo is an in-memory Repository with switchable failure points.
type fakeRepo struct {
	mu         sync.Mutex
	sheets     map[int]Sheet
	signatures map[int]Signature
	sheetPK    int
	sigPK      int

	failCreateSheet bool
	failComplete    bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sheets:     make(map[int]Sheet),
		signatures: make(map[int]Signature),
	}
}

func (r *fakeRepo) CreateSheet(_ context.Context, sht Sheet) (Sheet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreateSheet {
		return Sheet{}, io.ErrUnexpectedEOF
	}
	r.sheetPK++
	sht.ID = r.sheetPK
	r.sheets[sht.ID] = sht
	return sht, nil
}

func (r *fakeRepo) GetSheetByID(_ context.Context, id int) (Sheet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sht, ok := r.sheets[id]
	if !ok {
		return Sheet{}, ErrNotFound
	}
	return sht, nil
}

func (r *fakeRepo) MarkSheetProcessing(_ context.Context, id int, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sht, ok := r.sheets[id]
	if !ok {
		return ErrNotFound
	}
	sht.Status = StatusProcessing
	sht.ProcessedAt = null.TimeFrom(startedAt)
	r.sheets[id] = sht
	return nil
}

func (r *fakeRepo) SetSheetStatus(_ context.Context, id int, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sht, ok := r.sheets[id]
	if !ok {
		return ErrNotFound
	}
	sht.Status = status
	r.sheets[id] = sht
	return nil
}

func (r *fakeRepo) CompleteSheet(_ context.Context, id int, totalSignatures, anomaliesCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failComplete {
		return io.ErrUnexpectedEOF
	}
	sht, ok := r.sheets[id]
	if !ok {
		return ErrNotFound
	}
	sht.Status = StatusCompleted
	sht.TotalSignatures = totalSignatures
	sht.AnomaliesCount = anomaliesCount
	r.sheets[id] = sht
	return nil
}

func (r *fakeRepo) CreateSignature(_ context.Context, sig Signature) (Signature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sigPK++
	sig.ID = r.sigPK
	r.signatures[sig.ID] = sig
	return sig, nil
}

func (r *fakeRepo) QuerySheetSignatures(_ context.Context, sheetID int) ([]Signature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sigs := make([]Signature, 0)
	for i := 1; i <= r.sigPK; i++ {
		if sig, ok := r.signatures[i]; ok && sig.SheetID == sheetID {
			sigs = append(sigs, sig)
		}
	}
	return sigs, nil
}

type fakeAnomalies struct {
	mu        sync.Mutex
	anomalies []anomaly.Anomaly
}

func (w *fakeAnomalies) CreateAnomaly(_ context.Context, an anomaly.Anomaly) (anomaly.Anomaly, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	an.ID = len(w.anomalies) + 1
	w.anomalies = append(w.anomalies, an)
	return an, nil
}

type fakeFiles struct {
	mu      sync.Mutex
	saved   map[string][]byte
	removed []string
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{saved: make(map[string][]byte)}
}

func (f *fakeFiles) Save(name string, src io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := ioutil.ReadAll(src)
	if err != nil {
		return "", err
	}
	f.saved[name] = data
	return name, nil
}

func (f *fakeFiles) Remove(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.saved, path)
	f.removed = append(f.removed, path)
	return nil
}

func newTestService(repo *fakeRepo, anomalies *fakeAnomalies, files *fakeFiles) *Service {
	return NewService(
		newTestConfig(),
		nopLogger{},
		repo,
		anomalies,
		files,
		NewSimulatedDetector(42, 0.2),
		nil, /* mailSvc */
	)
}

func pdfUpload(content string) Upload {
	return Upload{
		Filename:    "sheet.pdf",
		ContentType: "application/pdf",
		Size:        int64(len(content)),
		Content:     strings.NewReader(content),
	}
}

func TestService_Upload(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		up      Upload
		wantErr error
	}{
		{name: "missing file", up: Upload{}, wantErr: ErrMissingFile},
		{
			name: "invalid file type",
			up: Upload{
				Filename:    "sheet.gif",
				ContentType: "image/gif",
				Size:        10,
				Content:     strings.NewReader("GIF89a...."),
			},
			wantErr: ErrInvalidFileType,
		},
		{
			name: "file too large",
			up: Upload{
				Filename:    "sheet.pdf",
				ContentType: "application/pdf",
				Size:        (10 << 20) + 1,
				Content:     bytes.NewReader(nil),
			},
			wantErr: ErrFileTooLarge,
		},
		{name: "ok", up: pdfUpload("%PDF-1.4 ...")},
		{
			name: "content type with params",
			up: Upload{
				Filename:    "sheet.jpg",
				ContentType: "image/jpeg; charset=binary",
				Size:        10,
				Content:     strings.NewReader("0123456789"),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			files := newFakeFiles()
			svc := newTestService(repo, &fakeAnomalies{}, files)

			sht, err := svc.Upload(ctx, tt.up, NewSheet{ShiftType: ShiftMorning}, 0)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Fatalf("Upload() error = %v, wantErr %v", err, tt.wantErr)
				}
				if len(files.saved) != 0 {
					t.Error("rejected upload left a file behind")
				}
				return
			}
			if err != nil {
				t.Fatalf("Upload() failed: %v", err)
			}

			if !sheetIDRegexp.MatchString(sht.SheetID) {
				t.Errorf("sheet id %q does not match %s", sht.SheetID, sheetIDRegexp)
			}
			if sht.Status != StatusUploaded {
				t.Errorf("status = %s, want %s", sht.Status, StatusUploaded)
			}
			if sht.UploadedBy != 1 {
				t.Errorf("anonymous upload attributed to %d, want 1", sht.UploadedBy)
			}
			if len(files.saved) != 1 {
				t.Errorf("saved %d files, want 1", len(files.saved))
			}
		})
	}
}

func TestService_Upload_sheetIDPrefix(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		shiftType string
		prefix    string
	}{
		{ShiftMorning, "A-"},
		{ShiftAfternoon, "B-"},
		{ShiftNight, "C-"},
	}
	for _, tt := range tests {
		t.Run(tt.shiftType, func(t *testing.T) {
			svc := newTestService(newFakeRepo(), &fakeAnomalies{}, newFakeFiles())
			sht, err := svc.Upload(ctx, pdfUpload("x"), NewSheet{ShiftType: tt.shiftType}, 1)
			if err != nil {
				t.Fatalf("Upload() failed: %v", err)
			}
			if !strings.HasPrefix(sht.SheetID, tt.prefix) {
				t.Errorf("sheet id %q, want prefix %q", sht.SheetID, tt.prefix)
			}
		})
	}
}

func TestService_Upload_cleanupOnInsertFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.failCreateSheet = true
	files := newFakeFiles()
	svc := newTestService(repo, &fakeAnomalies{}, files)

	_, err := svc.Upload(context.Background(), pdfUpload("x"), NewSheet{}, 1)
	if err == nil {
		t.Fatal("Upload() expected an error")
	}
	if len(files.removed) != 1 {
		t.Errorf("removed %d files, want 1", len(files.removed))
	}
	if len(files.saved) != 0 {
		t.Error("stored file was not cleaned up after insert failure")
	}
}

func TestService_Process(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	anomalies := &fakeAnomalies{}
	svc := newTestService(repo, anomalies, newFakeFiles())

	if _, err := svc.Process(ctx, 404); err != ErrNotFound {
		t.Fatalf("Process() error = %v, want %v", err, ErrNotFound)
	}

	sht, err := svc.Upload(ctx, pdfUpload("x"), NewSheet{}, 1)
	if err != nil {
		t.Fatalf("Upload() failed: %v", err)
	}

	task, err := svc.Process(ctx, sht.ID)
	if err != nil {
		t.Fatalf("Process() failed: %v", err)
	}

	// the sheet is flipped to `processing` before the run is scheduled
	if got, _ := repo.GetSheetByID(ctx, sht.ID); got.Status != StatusProcessing && got.Status != StatusCompleted {
		t.Errorf("status after Process() = %s", got.Status)
	}
	if regTask, ok := svc.Task(sht.ID); !ok || regTask != task {
		t.Error("Task() did not return the scheduled task")
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = task.Wait(waitCtx); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}

	st, err := svc.Status(ctx, sht.ID)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if st.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", st.Status, StatusCompleted)
	}
	if st.TotalSignatures != len(SeedRoster) {
		t.Errorf("totalSignatures = %d, want %d", st.TotalSignatures, len(SeedRoster))
	}
	if !st.ProcessedAt.Valid {
		t.Error("processedAt not set")
	}

	// persisted rows match the recorded counts
	sigs, err := repo.QuerySheetSignatures(ctx, sht.ID)
	if err != nil {
		t.Fatalf("QuerySheetSignatures() failed: %v", err)
	}
	if len(sigs) != st.TotalSignatures {
		t.Errorf("stored %d signatures, status reports %d", len(sigs), st.TotalSignatures)
	}
	if len(anomalies.anomalies) != st.AnomaliesCount {
		t.Errorf("stored %d anomalies, status reports %d", len(anomalies.anomalies), st.AnomaliesCount)
	}
	for _, an := range anomalies.anomalies {
		if an.SheetID != sht.ID {
			t.Errorf("anomaly linked to sheet %d, want %d", an.SheetID, sht.ID)
		}
		if !an.SignatureID.Valid {
			t.Error("anomaly not linked to its signature")
		}
		if an.Status != anomaly.StatusPending {
			t.Errorf("anomaly status = %s, want %s", an.Status, anomaly.StatusPending)
		}
	}
}

func TestService_Process_failure(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.failComplete = true
	svc := newTestService(repo, &fakeAnomalies{}, newFakeFiles())

	sht, err := svc.Upload(ctx, pdfUpload("x"), NewSheet{}, 1)
	if err != nil {
		t.Fatalf("Upload() failed: %v", err)
	}

	task, err := svc.Process(ctx, sht.ID)
	if err != nil {
		t.Fatalf("Process() failed: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = task.Wait(waitCtx); err == nil {
		t.Fatal("Wait() expected an error")
	}

	st, err := svc.Status(ctx, sht.ID)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if st.Status != StatusFailed {
		t.Errorf("status = %s, want %s", st.Status, StatusFailed)
	}
}

func Test_buildSheetID(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)

	tests := []struct {
		shiftType string
		want      string
	}{
		{ShiftMorning, "A-2026-"},
		{ShiftAfternoon, "B-2026-"},
		{ShiftNight, "C-2026-"},
		{"graveyard", "A-2026-"}, // unknown shifts fall back to morning's code
	}
	for _, tt := range tests {
		t.Run(tt.shiftType, func(t *testing.T) {
			got := buildSheetID(tt.shiftType, now)
			if !strings.HasPrefix(got, tt.want) {
				t.Errorf("buildSheetID() = %s, want prefix %s", got, tt.want)
			}
			if !sheetIDRegexp.MatchString(got) {
				t.Errorf("buildSheetID() = %s, want match %s", got, sheetIDRegexp)
			}
		})
	}
}
