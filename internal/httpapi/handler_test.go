package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/spigell/cv-screener/internal/audit"
	"github.com/spigell/cv-screener/internal/evaluation"
	"github.com/spigell/cv-screener/internal/pipeline"
	"github.com/spigell/cv-screener/internal/vacancy"
)

const testRef = "3f1c2f4e-8d0a-4c4b-9a51-1c7a0d3f2b11"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSubmitter struct {
	got pipeline.Submission
	res *pipeline.Result
	err error
}

func (s *stubSubmitter) Submit(_ context.Context, sub pipeline.Submission) (*pipeline.Result, error) {
	s.got = sub
	return s.res, s.err
}

type stubRecords map[audit.Ref]evaluation.Record

func (s stubRecords) Get(_ context.Context, ref audit.Ref) (evaluation.Record, error) {
	r, ok := s[ref]
	if !ok {
		return evaluation.Record{}, audit.ErrNotFound
	}
	return r, nil
}

func newRouter(t *testing.T, sub *stubSubmitter, maxUpload int64) *gin.Engine {
	t.Helper()
	store, err := vacancy.NewFileStore(map[string]string{"Go Developer": "Payment services in Go."})
	if err != nil {
		t.Fatalf("vacancy store: %v", err)
	}
	records := stubRecords{
		testRef: {ID: testRef, Rating: 82, InterviewTips: "Prepare a design story."},
	}
	return NewRouter(NewHandler(sub, store, records, maxUpload, nil))
}

func upload(t *testing.T, router http.Handler, path, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("submitter_id", " @anna "); err != nil {
		t.Fatalf("write field: %v", err)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestSubmitResume(t *testing.T) {
	sub := &stubSubmitter{res: &pipeline.Result{
		Ref: testRef,
		Decision: evaluation.Decision{
			Accept:    true,
			Tag:       evaluation.TagSenior,
			Rating:    82,
			Message:   "Thank you!",
			OfferTips: true,
		},
	}}
	router := newRouter(t, sub, 0)

	rec := upload(t, router, "/vacancies/go-developer/resumes", "cv.pdf", []byte("%PDF"))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	body := decode(t, rec)
	if body["evaluation_id"] != testRef || body["accept"] != true || body["tag"] != "senior" || body["offer_tips"] != true {
		t.Fatalf("unexpected body %v", body)
	}
	if sub.got.Filename != "cv.pdf" || sub.got.SubmitterID != "@anna" || sub.got.Vacancy.ID != "go-developer" {
		t.Fatalf("unexpected submission %+v", sub.got)
	}
	if string(sub.got.Data) != "%PDF" {
		t.Fatalf("file content not passed through")
	}
}

func TestSubmitResumeFailures(t *testing.T) {
	cases := []struct {
		kind   pipeline.Kind
		status int
	}{
		{pipeline.KindUnsupportedFormat, http.StatusUnsupportedMediaType},
		{pipeline.KindExtraction, http.StatusUnprocessableEntity},
		{pipeline.KindInvalidResume, http.StatusUnprocessableEntity},
		{pipeline.KindScoringUnavailable, http.StatusServiceUnavailable},
		{pipeline.KindScoringParse, http.StatusBadGateway},
		{pipeline.KindScoringValidation, http.StatusBadGateway},
		{pipeline.KindPersistence, http.StatusInternalServerError},
		{pipeline.KindInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			sub := &stubSubmitter{err: &pipeline.Failure{Kind: tc.kind, Err: errors.New("secret detail")}}
			rec := upload(t, newRouter(t, sub, 0), "/vacancies/go-developer/resumes", "cv.txt", []byte("text"))

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if strings.Contains(rec.Body.String(), "secret detail") {
				t.Fatalf("internal details leaked: %s", rec.Body.String())
			}
			if decode(t, rec)["error_kind"] != string(tc.kind) {
				t.Fatalf("unexpected body %s", rec.Body.String())
			}
		})
	}
}

func TestSubmitResumeRequestErrors(t *testing.T) {
	router := newRouter(t, &stubSubmitter{}, 16)

	if rec := upload(t, router, "/vacancies/unknown/resumes", "cv.txt", []byte("x")); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown vacancy: expected 404, got %d", rec.Code)
	}
	if rec := upload(t, router, "/vacancies/go-developer/resumes", "cv.txt", bytes.Repeat([]byte("a"), 64)); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("large file: expected 413, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/vacancies/go-developer/resumes", strings.NewReader("no form"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing file: expected 400, got %d", rec.Code)
	}
}

func TestGetEvaluationAndTips(t *testing.T) {
	router := newRouter(t, &stubSubmitter{}, 0)

	cases := []struct {
		path   string
		status int
	}{
		{"/evaluations/" + testRef, http.StatusOK},
		{"/evaluations/" + testRef + "/tips", http.StatusOK},
		{"/evaluations/not-a-ref", http.StatusBadRequest},
		{"/evaluations/00000000-0000-0000-0000-000000000000", http.StatusNotFound},
		{"/health", http.StatusOK},
		{"/vacancies", http.StatusOK},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.status, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/evaluations/"+testRef+"/tips", nil))
	if decode(t, rec)["interview_tips"] != "Prepare a design story." {
		t.Fatalf("unexpected tips body %s", rec.Body.String())
	}
}

func TestGetTipsWithoutTips(t *testing.T) {
	store, _ := vacancy.NewFileStore(nil)
	records := stubRecords{testRef: {ID: testRef, Rating: 30}}
	router := NewRouter(NewHandler(&stubSubmitter{}, store, records, 0, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/evaluations/"+testRef+"/tips", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
