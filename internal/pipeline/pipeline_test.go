package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/audit"
	"github.com/spigell/cv-screener/internal/evaluation"
	"github.com/spigell/cv-screener/internal/review"
	"github.com/spigell/cv-screener/internal/staging"
	"github.com/spigell/cv-screener/internal/vacancy"
)

const resumeText = `Anna Petrova, backend engineer.
Six years of Go development: payment gateway services, PostgreSQL, Kafka consumers,
gRPC APIs and Kubernetes deployments. Led a team of four engineers and owned on-call.
Education: Moscow State University, applied mathematics.`

var goVacancy = vacancy.Descriptor{
	ID:          "go-developer",
	Title:       "Go Developer",
	Description: "Senior Go developer for payment services. PostgreSQL, Kubernetes.",
}

type stubScorer struct {
	mu         sync.Mutex
	calls      int
	assessment *ai.Assessment
	err        error
	panicWith  any
}

func (s *stubScorer) Score(_ context.Context, resume, vacancyText string) (*ai.Assessment, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	if s.err != nil {
		return nil, s.err
	}
	if resume == "" || vacancyText == "" {
		return nil, errors.New("empty input")
	}
	a := *s.assessment
	return &a, nil
}

type memSink struct {
	mu      sync.Mutex
	records map[audit.Ref]evaluation.Record
	err     error
}

func newMemSink() *memSink {
	return &memSink{records: map[audit.Ref]evaluation.Record{}}
}

func (m *memSink) Persist(_ context.Context, record evaluation.Record) (audit.Ref, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := audit.Ref(record.ID)
	if _, ok := m.records[ref]; ok {
		return "", audit.ErrExists
	}
	m.records[ref] = record
	return ref, nil
}

func (m *memSink) Get(_ context.Context, ref audit.Ref) (evaluation.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[ref]
	if !ok {
		return evaluation.Record{}, audit.ErrNotFound
	}
	return r, nil
}

func (m *memSink) Close() error { return nil }

type recordingNotifier struct {
	mu        sync.Mutex
	summaries []review.Summary
	err       error
}

func (n *recordingNotifier) Notify(_ context.Context, s review.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
	return n.err
}

func (n *recordingNotifier) Close() error { return nil }

type fixture struct {
	orch     *Orchestrator
	scorer   *stubScorer
	sink     *memSink
	notifier *recordingNotifier
	stageDir string
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T, a *ai.Assessment) *fixture {
	t.Helper()
	return newFixtureWith(t, a, Config{})
}

func newFixtureWith(t *testing.T, a *ai.Assessment, cfg Config) *fixture {
	t.Helper()

	area, err := staging.NewArea(filepath.Join(t.TempDir(), "incoming"))
	if err != nil {
		t.Fatalf("staging: %v", err)
	}
	core, logs := observer.New(zapcore.DebugLevel)

	f := &fixture{
		scorer:   &stubScorer{assessment: a},
		sink:     newMemSink(),
		notifier: &recordingNotifier{},
		stageDir: area.Dir(),
		logs:     logs,
	}
	f.orch, err = New(Deps{
		Staging:  area,
		Scorer:   f.scorer,
		Sink:     f.sink,
		Notifier: f.notifier,
		Logger:   zap.New(core),
	}, cfg)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	f.orch.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func strongAssessment() *ai.Assessment {
	return &ai.Assessment{
		Rating:             82,
		Strengths:          "Go, PostgreSQL",
		Weaknesses:         "No frontend",
		MatchedExperience:  "Payment services",
		MissingExperience:  "Kubernetes operators.",
		InterviewQuestions: []string{"Describe an outage you handled", "—", "—"},
		InterviewTips:      "Prepare a system design story.",
		Model:              "stub",
		Attempts:           1,
	}
}

func submit(t *testing.T, f *fixture, ext, text string) (*Result, error) {
	t.Helper()
	return f.orch.Submit(context.Background(), Submission{
		Data:        []byte(text),
		Extension:   ext,
		Vacancy:     goVacancy,
		SubmitterID: "@anna",
	})
}

func waitReview(t *testing.T, res *Result) {
	t.Helper()
	select {
	case <-res.Review:
	case <-time.After(5 * time.Second):
		t.Fatalf("review dispatch did not finish")
	}
}

func requireFailure(t *testing.T, err error, kind Kind) *Failure {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s failure, got nil", kind)
	}
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %T: %v", err, err)
	}
	if f.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, f.Kind, f.Err)
	}
	return f
}

func TestSubmitAccepted(t *testing.T) {
	f := newFixture(t, strongAssessment())

	res, err := submit(t, f, ".txt", resumeText)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitReview(t, res)

	if !res.Decision.Accept || !res.Decision.OfferTips {
		t.Fatalf("expected accept with tips, got %+v", res.Decision)
	}
	if res.Record.Tag != evaluation.TagSenior {
		t.Fatalf("expected senior tag, got %s", res.Record.Tag)
	}
	if res.Record.VacancyID != "go-developer" || res.Record.SubmitterID != "@anna" {
		t.Fatalf("unexpected record identity %+v", res.Record)
	}
	if !res.Record.CreatedAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created_at %v", res.Record.CreatedAt)
	}

	stored, err := f.sink.Get(context.Background(), res.Ref)
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if stored.InterviewTips != "Prepare a system design story." {
		t.Fatalf("tips not stored with the record: %+v", stored)
	}

	if _, err := os.Stat(filepath.Join(f.stageDir, res.Record.SourceFileRef)); err != nil {
		t.Fatalf("staged file missing: %v", err)
	}

	want := []Stage{StageReceived, StageSaved, StageExtracted, StageFiltered, StageScored, StageDecided, StagePersisted, StageReported}
	if fmt.Sprint(res.Stages) != fmt.Sprint(want) {
		t.Fatalf("unexpected stages %v", res.Stages)
	}

	if len(f.notifier.summaries) != 1 || f.notifier.summaries[0].Ref != res.Ref.String() {
		t.Fatalf("expected one review summary for %s, got %+v", res.Ref, f.notifier.summaries)
	}
}

func TestSubmitRejectedMentionsMissingExperience(t *testing.T) {
	a := strongAssessment()
	a.Rating = 30
	f := newFixture(t, a)

	res, err := submit(t, f, "TXT", resumeText)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitReview(t, res)

	if res.Decision.Accept || res.Decision.OfferTips {
		t.Fatalf("expected rejection without tips, got %+v", res.Decision)
	}
	if !strings.Contains(res.Decision.Message, "Kubernetes operators") {
		t.Fatalf("reject message does not mention missing experience: %q", res.Decision.Message)
	}
	if res.Record.Tag != evaluation.TagJunior {
		t.Fatalf("expected junior tag, got %s", res.Record.Tag)
	}
	if len(f.sink.records) != 1 {
		t.Fatalf("rejected evaluations must still be persisted")
	}
}

func TestSubmitRejectsNonResume(t *testing.T) {
	f := newFixture(t, strongAssessment())

	_, err := submit(t, f, ".txt", "hello")
	fail := requireFailure(t, err, KindInvalidResume)

	if fail.Stage != StageExtracted {
		t.Fatalf("unexpected stage %s", fail.Stage)
	}
	if len(fail.Reasons) != 2 {
		t.Fatalf("expected both length and word reasons, got %v", fail.Reasons)
	}
	if f.scorer.calls != 0 {
		t.Fatalf("scorer must not be called for a rejected text")
	}
	if len(f.sink.records) != 0 || len(f.notifier.summaries) != 0 {
		t.Fatalf("nothing may be persisted or reported")
	}
}

func TestSubmitUnsupportedFormat(t *testing.T) {
	f := newFixture(t, strongAssessment())

	_, err := submit(t, f, ".rtf", resumeText)
	fail := requireFailure(t, err, KindUnsupportedFormat)
	if fail.SafeMessage() == "" || strings.Contains(fail.SafeMessage(), "rtf") {
		t.Fatalf("unexpected safe message %q", fail.SafeMessage())
	}

	entries, _ := os.ReadDir(f.stageDir)
	if len(entries) != 0 {
		t.Fatalf("unsupported uploads must not be staged, found %d", len(entries))
	}
}

func TestSubmitExtractionFailure(t *testing.T) {
	f := newFixture(t, strongAssessment())

	_, err := submit(t, f, ".pdf", "definitely not a pdf")
	requireFailure(t, err, KindExtraction)
	if f.scorer.calls != 0 {
		t.Fatalf("scorer must not be called")
	}
}

func TestSubmitScoringFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"unavailable", fmt.Errorf("after 2 attempts: %w", ai.ErrUnavailable), KindScoringUnavailable},
		{"parse", &ai.ParseError{Prefix: "not json"}, KindScoringParse},
		{"validation", &ai.ValidationError{Field: "rating", Reason: "missing"}, KindScoringValidation},
		{"other", errors.New("boom"), KindInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.scorer.err = tc.err

			_, err := submit(t, f, ".txt", resumeText)
			fail := requireFailure(t, err, tc.kind)
			if strings.Contains(fail.SafeMessage(), "not json") || strings.Contains(fail.SafeMessage(), "boom") {
				t.Fatalf("safe message leaks details: %q", fail.SafeMessage())
			}
			if len(f.sink.records) != 0 {
				t.Fatalf("failed scoring must not persist")
			}
		})
	}
}

func TestSubmitPersistenceFailure(t *testing.T) {
	f := newFixture(t, strongAssessment())
	f.sink.err = errors.New("disk full")

	res, err := submit(t, f, ".txt", resumeText)
	requireFailure(t, err, KindPersistence)
	if res != nil {
		t.Fatalf("no decision may be returned when persisting failed")
	}
	if len(f.notifier.summaries) != 0 {
		t.Fatalf("review must not be sent for unpersisted evaluations")
	}
}

func TestSubmitReviewFailureDoesNotAffectResult(t *testing.T) {
	f := newFixture(t, strongAssessment())
	f.notifier.err = errors.New("redis down")

	res, err := submit(t, f, ".txt", resumeText)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitReview(t, res)

	if f.logs.FilterMessage("review summary not delivered").Len() != 1 {
		t.Fatalf("expected delivery failure to be logged")
	}
}

func TestSubmitRecoversFromPanics(t *testing.T) {
	f := newFixture(t, nil)
	f.scorer.panicWith = "nil map"

	_, err := submit(t, f, ".txt", resumeText)
	fail := requireFailure(t, err, KindInternal)
	if fail.Stage != StageFiltered {
		t.Fatalf("expected panic at filtered stage, got %s", fail.Stage)
	}
	if f.logs.FilterMessage("submission panicked").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestSubmitCancelledBeforeStart(t *testing.T) {
	f := newFixture(t, strongAssessment())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Submit(ctx, Submission{Data: []byte(resumeText), Extension: ".txt", Vacancy: goVacancy})
	requireFailure(t, err, KindCancelled)
	if f.scorer.calls != 0 {
		t.Fatalf("cancelled submissions must not be scored")
	}
}

func TestSubmitConcurrent(t *testing.T) {
	f := newFixture(t, strongAssessment())

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := submit(t, f, ".txt", resumeText)
			if err != nil {
				errs <- err
				return
			}
			<-res.Review
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("submit: %v", err)
	}
	if len(f.sink.records) != n {
		t.Fatalf("expected %d distinct records, got %d", n, len(f.sink.records))
	}
}

func TestNewValidatesTags(t *testing.T) {
	_, err := New(Deps{Staging: &staging.Area{}, Scorer: &stubScorer{}, Sink: newMemSink()}, Config{
		Tags: evaluation.TagTable{Rules: []evaluation.TagRule{{Min: 50, Label: "a"}, {Min: 70, Label: "b"}}, Fallback: "c"},
	})
	if err == nil {
		t.Fatalf("expected invalid tag table to be rejected")
	}
	if _, err := New(Deps{}, Config{}); err == nil {
		t.Fatalf("expected missing deps to be rejected")
	}
}

func TestMinRatingZeroAcceptsEveryone(t *testing.T) {
	zero := 0
	a := strongAssessment()
	a.Rating = 0
	f := newFixtureWith(t, a, Config{MinRating: &zero})

	res, err := submit(t, f, "txt", resumeText)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitReview(t, res)
	if !res.Decision.Accept {
		t.Fatalf("rating 0 must be accepted with a zero threshold: %+v", res.Decision)
	}
}

func TestNewValidatesMinRating(t *testing.T) {
	deps := Deps{Staging: &staging.Area{}, Scorer: &stubScorer{}, Sink: newMemSink()}
	for _, v := range []int{-1, 101} {
		v := v
		if _, err := New(deps, Config{MinRating: &v}); err == nil {
			t.Fatalf("expected min rating %d to be rejected", v)
		}
	}

	o, err := New(deps, Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if o.minRating != evaluation.DefaultMinRating {
		t.Fatalf("expected default threshold %d, got %d", evaluation.DefaultMinRating, o.minRating)
	}
}

type blockingNotifier struct {
	release chan struct{}
	mu      sync.Mutex
	sent    int
}

func (n *blockingNotifier) Notify(ctx context.Context, _ review.Summary) error {
	select {
	case <-n.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	n.mu.Lock()
	n.sent++
	n.mu.Unlock()
	return nil
}

func (n *blockingNotifier) Close() error { return nil }

func TestWaitReviewsDrainsDispatches(t *testing.T) {
	f := newFixture(t, strongAssessment())
	notifier := &blockingNotifier{release: make(chan struct{})}
	f.orch.deps.Notifier = notifier

	if _, err := submit(t, f, "txt", resumeText); err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.orch.WaitReviews(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected WaitReviews to block while a notification is in flight, got %v", err)
	}

	close(notifier.release)
	if err := f.orch.WaitReviews(context.Background()); err != nil {
		t.Fatalf("wait reviews: %v", err)
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.sent != 1 {
		t.Fatalf("expected the summary to be delivered before WaitReviews returned, sent=%d", notifier.sent)
	}
}

type stallingGenerator struct {
	mu    sync.Mutex
	calls int
}

func (g *stallingGenerator) GenerateContent(ctx context.Context, _ string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	<-ctx.Done()
	return "", ctx.Err()
}

func (g *stallingGenerator) Model() string    { return "stalling" }
func (g *stallingGenerator) Provider() string { return "test" }

func TestSubmitScoringTimesOutTwice(t *testing.T) {
	f := newFixture(t, nil)
	gen := &stallingGenerator{}
	f.orch.deps.Scorer = ai.NewScorer(gen, ai.Options{
		Timeout:    20 * time.Millisecond,
		RetryDelay: time.Millisecond,
	}, zap.NewNop())

	res, err := submit(t, f, "txt", resumeText)
	if res != nil {
		t.Fatalf("expected no result, got %+v", res)
	}
	failure := requireFailure(t, err, KindScoringUnavailable)
	if !failure.Kind.Transient() {
		t.Fatalf("scoring_unavailable must be transient")
	}
	if failure.SafeMessage() != safeMessages[KindScoringUnavailable] {
		t.Fatalf("expected the transient message, got %q", failure.SafeMessage())
	}
	gen.mu.Lock()
	defer gen.mu.Unlock()
	if gen.calls != 2 {
		t.Fatalf("expected exactly 2 generator calls, got %d", gen.calls)
	}
	if len(f.sink.records) != 0 {
		t.Fatalf("nothing must be persisted")
	}
}

func TestAsFailure(t *testing.T) {
	if AsFailure(nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
	wrapped := fmt.Errorf("handler: %w", &Failure{Kind: KindPersistence})
	if AsFailure(wrapped).Kind != KindPersistence {
		t.Fatalf("wrapped failure not found")
	}
	if f := AsFailure(errors.New("x")); f.Kind != KindInternal || f.SafeMessage() != safeMessages[KindInternal] {
		t.Fatalf("unexpected conversion %+v", f)
	}
	if !KindScoringUnavailable.Transient() || KindInvalidResume.Transient() {
		t.Fatalf("unexpected transient classification")
	}
}
