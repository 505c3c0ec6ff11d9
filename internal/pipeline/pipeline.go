// Package pipeline runs one résumé submission through saving, extraction,
// heuristic filtering, scoring, decision and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/audit"
	"github.com/spigell/cv-screener/internal/evaluation"
	"github.com/spigell/cv-screener/internal/extract"
	"github.com/spigell/cv-screener/internal/filtering"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/review"
	"github.com/spigell/cv-screener/internal/vacancy"
)

// Stage is a step of the submission state machine.
type Stage string

const (
	StageReceived  Stage = "received"
	StageSaved     Stage = "saved"
	StageExtracted Stage = "extracted"
	StageFiltered  Stage = "filtered"
	StageScored    Stage = "scored"
	StageDecided   Stage = "decided"
	StagePersisted Stage = "persisted"
	StageReported  Stage = "reported"
	StageFailed    Stage = "failed"
)

// Submission is one uploaded file for one vacancy.
type Submission struct {
	Data []byte
	// Filename is used to derive the format when Extension is empty.
	Filename    string
	Extension   string
	Vacancy     vacancy.Descriptor
	SubmitterID string
}

func (s Submission) extension() string {
	if ext := strings.TrimSpace(s.Extension); ext != "" {
		return ext
	}
	return filepath.Ext(s.Filename)
}

// Result is returned only after the record was persisted.
type Result struct {
	Ref      audit.Ref
	Record   evaluation.Record
	Decision evaluation.Decision
	Stages   []Stage
	// Review is closed once the review notification finished, successfully or not.
	Review <-chan struct{}
}

// Scorer is satisfied by *ai.Scorer.
type Scorer interface {
	Score(ctx context.Context, resumeText, vacancyText string) (*ai.Assessment, error)
}

// Stager is satisfied by *staging.Area.
type Stager interface {
	Save(data []byte, ext string) (string, error)
}

// Deps are the collaborators of the orchestrator. Notifier may be nil.
type Deps struct {
	Staging  Stager
	Scorer   Scorer
	Sink     audit.Sink
	Notifier review.Notifier
	Logger   *zap.Logger
}

// Config tunes the decision stage.
type Config struct {
	Filters []filtering.Filter
	Tags    evaluation.TagTable
	// MinRating is the acceptance threshold in 0..100; nil means
	// evaluation.DefaultMinRating. Zero accepts everyone.
	MinRating     *int
	Messages      evaluation.Messages
	ReviewTimeout time.Duration
}

// Orchestrator is safe for concurrent use; submissions share nothing but
// the collaborators in Deps.
type Orchestrator struct {
	deps      Deps
	cfg       Config
	minRating int
	now       func() time.Time

	reviews sync.WaitGroup
}

// New validates the configuration and builds an orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Staging == nil || deps.Scorer == nil || deps.Sink == nil {
		return nil, errors.New("staging, scorer and sink are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Filters == nil {
		cfg.Filters = filtering.Default(filtering.DefaultConfig())
	}
	if len(cfg.Tags.Rules) == 0 && cfg.Tags.Fallback == "" {
		cfg.Tags = evaluation.DefaultTagTable()
	}
	if err := cfg.Tags.Validate(); err != nil {
		return nil, fmt.Errorf("tag table: %w", err)
	}
	minRating := evaluation.DefaultMinRating
	if cfg.MinRating != nil {
		minRating = *cfg.MinRating
	}
	if minRating < 0 || minRating > 100 {
		return nil, fmt.Errorf("min rating %d outside 0..100", minRating)
	}
	if cfg.ReviewTimeout <= 0 {
		cfg.ReviewTimeout = review.DefaultTimeout
	}

	return &Orchestrator{deps: deps, cfg: cfg, minRating: minRating, now: time.Now}, nil
}

// WaitReviews blocks until every review notification dispatched so far has
// finished, or ctx is done.
func (o *Orchestrator) WaitReviews(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		o.reviews.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit runs the submission to completion. Every returned error is a
// *Failure. Cancelling ctx only has an effect before the submission started.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (res *Result, err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fail(KindCancelled, StageReceived, ctxErr)
	}
	ctx = context.WithoutCancel(ctx)

	submissionID := audit.NewRef()
	log := logger.WithSubmission(o.deps.Logger, submissionID.String(), sub.Vacancy.ID, sub.SubmitterID)
	stages := []Stage{StageReceived}
	current := StageReceived

	defer func() {
		if r := recover(); r != nil {
			log.Error("submission panicked", zap.Any("panic", r), zap.String("stage", string(current)))
			res = nil
			err = fail(KindInternal, current, fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			f := AsFailure(err)
			log.Warn("submission failed",
				zap.String("kind", string(f.Kind)),
				zap.String("stage", string(f.Stage)),
				zap.Error(f.Err),
			)
			err = f
		}
	}()

	advance := func(s Stage) {
		current = s
		stages = append(stages, s)
		log.Debug("stage reached", zap.String("stage", string(s)))
	}

	format, fErr := extract.ParseFormat(sub.extension())
	if fErr != nil {
		return nil, fail(KindUnsupportedFormat, StageReceived, fErr)
	}
	vacancyText := sub.Vacancy.Text()
	if vacancyText == "" {
		return nil, fail(KindInternal, StageReceived, errors.New("vacancy has neither title nor description"))
	}

	fileRef, sErr := o.deps.Staging.Save(sub.Data, "."+string(format))
	if sErr != nil {
		return nil, fail(KindInternal, StageReceived, fmt.Errorf("stage upload: %w", sErr))
	}
	advance(StageSaved)

	text, xErr := extract.Extract(format, sub.Data)
	if xErr != nil {
		if errors.Is(xErr, extract.ErrUnsupportedFormat) {
			return nil, fail(KindUnsupportedFormat, StageSaved, xErr)
		}
		return nil, fail(KindExtraction, StageSaved, xErr)
	}
	advance(StageExtracted)

	verdict := filtering.Run(o.cfg.Filters, text)
	filtering.LogResult(log, verdict)
	if !verdict.Passed() {
		f := fail(KindInvalidResume, StageExtracted, errors.New(strings.Join(verdict.Reasons(), "; ")))
		f.Reasons = verdict.Reasons()
		return nil, f
	}
	advance(StageFiltered)

	assessment, scErr := o.deps.Scorer.Score(ctx, text, vacancyText)
	if scErr != nil {
		return nil, fail(scoringKind(scErr), StageFiltered, scErr)
	}
	advance(StageScored)

	record := o.buildRecord(submissionID, sub, fileRef, assessment)
	decision, dErr := evaluation.Decide(record, o.minRating, o.cfg.Messages)
	if dErr != nil {
		return nil, fail(KindInternal, StageScored, dErr)
	}
	advance(StageDecided)

	ref, pErr := o.deps.Sink.Persist(ctx, record)
	if pErr != nil {
		return nil, fail(KindPersistence, StageDecided, pErr)
	}
	record = record.WithID(ref.String())
	advance(StagePersisted)

	o.reviews.Add(1)
	done := review.Dispatch(ctx, log, o.deps.Notifier, review.NewSummary(record, decision, sub.Vacancy), o.cfg.ReviewTimeout)
	go func() {
		<-done
		o.reviews.Done()
	}()
	advance(StageReported)

	log.Info("submission evaluated",
		zap.String("ref", ref.String()),
		zap.Int("rating", record.Rating),
		zap.String("tag", string(record.Tag)),
		zap.Bool("accept", decision.Accept),
		zap.Int("scoring_attempts", assessment.Attempts),
	)

	return &Result{Ref: ref, Record: record, Decision: decision, Stages: stages, Review: done}, nil
}

func (o *Orchestrator) buildRecord(id audit.Ref, sub Submission, fileRef string, a *ai.Assessment) evaluation.Record {
	return evaluation.Record{
		ID:                       id.String(),
		VacancyID:                sub.Vacancy.ID,
		VacancyTitle:             sub.Vacancy.Title,
		SubmitterID:              sub.SubmitterID,
		Rating:                   a.Rating,
		Tag:                      o.cfg.Tags.TagFor(a.Rating),
		Strengths:                a.Strengths,
		Weaknesses:               a.Weaknesses,
		MatchedExperience:        a.MatchedExperience,
		MissingExperience:        a.MissingExperience,
		FillerLanguageAssessment: a.FillerLanguageAssessment,
		Inconsistencies:          a.Inconsistencies,
		InterviewQuestions:       append([]string(nil), a.InterviewQuestions...),
		InterviewTips:            a.InterviewTips,
		Model:                    a.Model,
		CreatedAt:                o.now().UTC(),
		SourceFileRef:            fileRef,
	}
}

func scoringKind(err error) Kind {
	var (
		parseErr *ai.ParseError
		valErr   *ai.ValidationError
	)
	switch {
	case errors.Is(err, ai.ErrUnavailable):
		return KindScoringUnavailable
	case errors.As(err, &parseErr):
		return KindScoringParse
	case errors.As(err, &valErr):
		return KindScoringValidation
	default:
		return KindInternal
	}
}
