package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/chatlens/internal/classify"
	"github.com/TobiSchelling/chatlens/internal/config"
	"github.com/TobiSchelling/chatlens/internal/database"
	"github.com/TobiSchelling/chatlens/internal/detect"
	"github.com/TobiSchelling/chatlens/internal/ingest"
	"github.com/TobiSchelling/chatlens/internal/taxonomy"
)

// ErrNoRawInput is returned when the raw export does not exist.
var ErrNoRawInput = errors.New("raw export not found")

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID string
	Steps []StepResult
	Run   *database.IngestRun
}

// Pipeline orchestrates the 7-step ingestion job.
type Pipeline struct {
	cfg    *config.Config
	db     *database.DB
	logger *zap.Logger
}

// New creates a new pipeline.
func New(cfg *config.Config, db *database.DB, logger *zap.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, db: db, logger: logger}
}

// batch is the working set threaded through the steps.
type batch struct {
	rows  *ingest.ReadResult
	msgs  []database.Message
	refs  []database.Referral
	fails []database.Failure
	run   *database.IngestRun
}

type step struct {
	name string
	fn   func(context.Context, *batch, *zap.Logger) (string, error)
}

// Run executes the full pipeline and replaces the stored tables on
// success. On failure nothing stored is touched; the failed run is still
// recorded.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	return p.execute(ctx, true)
}

// DryRun executes every step except Persist.
func (p *Pipeline) DryRun(ctx context.Context) (*Result, error) {
	return p.execute(ctx, false)
}

func (p *Pipeline) execute(ctx context.Context, persist bool) (*Result, error) {
	runID := uuid.NewString()
	r := &Result{RunID: runID}
	b := &batch{run: &database.IngestRun{
		RunID:     runID,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Status:    database.RunOK,
	}}
	r.Run = b.run
	logger := p.logger.With(zap.String("run_id", runID))

	steps := []step{
		{"Read", p.runRead},
		{"Normalize", p.runNormalize},
		{"Dedup", p.runDedup},
		{"Propagate", p.runPropagate},
		{"Classify", p.runClassify},
		{"Detect", p.runDetect},
	}
	if persist {
		steps = append(steps, step{"Persist", p.runPersist})
	}

	var runErr error
	for i, s := range steps {
		logger.Info(fmt.Sprintf("Step %d/%d: %s", i+1, len(steps), s.name))
		summary, err := s.fn(ctx, b, logger)
		r.Steps = append(r.Steps, StepResult{Name: s.name, Summary: summary, Err: err})
		if err != nil {
			runErr = fmt.Errorf("%s: %w", s.name, err)
			break
		}
	}

	finished := time.Now().UTC().Format(time.RFC3339)
	b.run.FinishedAt = &finished
	if runErr != nil {
		msg := runErr.Error()
		b.run.Status = database.RunFailed
		b.run.Error = &msg
		logger.Error("ingestion failed", zap.Error(runErr))
	} else {
		logger.Info("ingestion complete",
			zap.Int("messages", b.run.Messages),
			zap.Int("needs_review", b.run.NeedsReview),
			zap.Int("referrals", b.run.Referrals),
			zap.Int("failures", b.run.Failures),
		)
	}

	if persist {
		if err := p.db.InsertIngestRun(context.WithoutCancel(ctx), b.run); err != nil {
			logger.Warn("could not record ingest run", zap.Error(err))
		}
	}
	return r, runErr
}

func (p *Pipeline) runRead(_ context.Context, b *batch, logger *zap.Logger) (string, error) {
	path := p.cfg.RawCSVPath()
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNoRawInput, path)
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	b.rows, err = ingest.ReadCSV(f)
	if err != nil {
		return "", err
	}
	b.run.RawRows = len(b.rows.Rows) + b.rows.Skipped
	b.run.SkippedRows = b.rows.Skipped
	if b.rows.Skipped > 0 {
		logger.Warn("skipped unreadable rows", zap.Int("rows", b.rows.Skipped))
	}
	return fmt.Sprintf("Read %d rows from %s (%d skipped)", len(b.rows.Rows), path, b.rows.Skipped), nil
}

func (p *Pipeline) runNormalize(_ context.Context, b *batch, logger *zap.Logger) (string, error) {
	msgs, stats := ingest.Normalize(b.rows.Rows, logger)
	b.msgs = msgs
	b.run.SkippedRows += stats.Malformed
	return fmt.Sprintf("Normalized %d messages: %d malformed, %d bad dates, %d bad numbers",
		len(msgs), stats.Malformed, stats.BadDates, stats.BadNumbers), nil
}

func (p *Pipeline) runDedup(_ context.Context, b *batch, logger *zap.Logger) (string, error) {
	res := ingest.Dedup(b.msgs)
	b.msgs = res.Messages
	b.run.DuplicatesByID = res.ByID
	b.run.DuplicatesByContent = res.ByContent
	logger.Info("deduplicated",
		zap.Int("by_id", res.ByID),
		zap.Int("by_content", res.ByContent),
	)
	return fmt.Sprintf("Kept %d messages (%d duplicate ids, %d duplicate contents)",
		len(res.Messages), res.ByID, res.ByContent), nil
}

func (p *Pipeline) runPropagate(_ context.Context, b *batch, _ *zap.Logger) (string, error) {
	stats := classify.Propagate(b.msgs)
	classify.FillDefaults(b.msgs)
	return fmt.Sprintf("Propagated %d intents, %d sentiments, %d products",
		stats.Intents, stats.Sentiments, stats.Products), nil
}

func (p *Pipeline) runClassify(ctx context.Context, b *batch, logger *zap.Logger) (string, error) {
	tax, err := taxonomy.Load(p.cfg.CategoriesPath(), p.cfg.ProductsPath(), logger)
	if err != nil {
		return "", err
	}
	corrections, err := p.db.GetCorrections(ctx)
	if err != nil {
		return "", err
	}

	s := classify.NewResolver(tax, corrections, logger).Resolve(b.msgs)
	b.run.NeedsReview = s.NeedsReview
	return fmt.Sprintf("Classified: %d survey, %d manual, %d homologation, %d keyword, %d need review; %d products",
		s.Survey, s.Manual, s.Homologation, s.Keyword, s.NeedsReview, s.Products), nil
}

func (p *Pipeline) runDetect(ctx context.Context, b *batch, _ *zap.Logger) (string, error) {
	refs, fails, err := detect.DetectAll(ctx, b.msgs)
	if err != nil {
		return "", err
	}
	b.refs, b.fails = refs, fails

	referred := detect.ReferralThreads(refs)
	for i := range b.msgs {
		_, b.msgs[i].IsReferralThread = referred[b.msgs[i].ThreadID]
	}
	b.run.Messages = len(b.msgs)
	b.run.Referrals = len(refs)
	b.run.Failures = len(fails)
	return fmt.Sprintf("Detected %d referrals, %d failures", len(refs), len(fails)), nil
}

func (p *Pipeline) runPersist(ctx context.Context, b *batch, _ *zap.Logger) (string, error) {
	if err := p.db.ReplaceAll(ctx, b.msgs, b.refs, b.fails); err != nil {
		return "", err
	}
	return fmt.Sprintf("Stored %d messages, %d referrals, %d failures",
		len(b.msgs), len(b.refs), len(b.fails)), nil
}
