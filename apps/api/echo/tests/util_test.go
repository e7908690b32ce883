package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	. "github.com/attenx/attenx/apps/api/echo"
	"github.com/attenx/attenx/core"
	"github.com/attenx/attenx/core/anomaly"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message interface{}     `json:"message"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newUploadRequest builds a multipart/form-data request carrying one file
// under the `file` field plus the given form values.
func newUploadRequest(
	t *testing.T,
	path, filename, contentType string,
	content []byte,
	form map[string]string,
) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if filename != "" {
		hdr := make(map[string][]string)
		hdr["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
		hdr["Content-Type"] = []string{contentType}
		part, err := w.CreatePart(hdr)
		if err != nil {
			t.Fatalf("CreatePart(): %v", err)
		}
		if _, err = part.Write(content); err != nil {
			t.Fatalf("part.Write(): %v", err)
		}
	}
	for key, val := range form {
		if err := w.WriteField(key, val); err != nil {
			t.Fatalf("WriteField(): %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("multipart.Close(): %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, conf *core.Config, rev anomaly.Reviewer, isAdmin bool) string {
	t.Helper()

	claims := GetReviewerClaims(conf, rev, rev.Name+"@test.test", isAdmin)
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decoding response envelope: %v (body: %s)", err, rec.Body.String())
	}
	return env
}

func decodeData(t *testing.T, env envelope, dst interface{}) {
	t.Helper()

	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decoding response data: %v (data: %s)", err, env.Data)
	}
}

func checkCode(t *testing.T, want int, rec *httptest.ResponseRecorder) {
	t.Helper()

	if rec.Code != want {
		t.Fatalf("code = %d, want %d (body: %s)", rec.Code, want, rec.Body.String())
	}
}

// uploadSheet drives the happy upload path and returns the created sheet's
// numeric id and human id.
func uploadSheet(t *testing.T, shiftType string) (int, string) {
	t.Helper()

	req, rec := newUploadRequest(t, "/v1/upload", "sample.pdf", "application/pdf",
		samplePDF(), map[string]string{"shiftType": shiftType, "department": "nursing"})
	app.ServeHTTP(rec, req)
	checkCode(t, http.StatusCreated, rec)

	env := decodeEnvelope(t, rec)
	var data struct {
		ID      int    `json:"id"`
		SheetID string `json:"sheetId"`
	}
	decodeData(t, env, &data)
	return data.ID, data.SheetID
}

// processAndWait triggers processing and blocks until the detached run
// finishes.
func processAndWait(t *testing.T, id int) {
	t.Helper()

	req, rec := newRequest(http.MethodPost, "/v1/upload/"+strconv.Itoa(id)+"/process")
	app.ServeHTTP(rec, req)
	checkCode(t, http.StatusOK, rec)

	task, ok := sheetSvc.Task(id)
	if !ok {
		t.Fatal("no processing task registered")
	}
	if err := task.Wait(testCtx(t)); err != nil {
		t.Fatalf("processing failed: %v", err)
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// samplePDF fabricates a 2KB PDF-looking payload.
func samplePDF() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	for buf.Len() < 2048 {
		buf.WriteString("0 obj << /Type /Page >> endobj\n")
	}
	buf.WriteString("%%EOF")
	return buf.Bytes()
}
