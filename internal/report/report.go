// Package report composes the markdown run report: the last ingestion run,
// corpus totals and the derived referral, failure, advisor and survey
// figures.
package report

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/chatlens/internal/database"
	"github.com/TobiSchelling/chatlens/internal/detect"
)

const topN = 5

var md = goldmark.New()

// Input is everything a report is built from. Run and Stats may be nil.
type Input struct {
	Run       *database.IngestRun
	Stats     *database.Stats
	Messages  []database.Message
	Referrals []database.Referral
	Failures  []database.Failure
}

// Store is the persistence a report can be loaded from.
type Store interface {
	GetLastIngestRun(ctx context.Context) (*database.IngestRun, error)
	GetStats(ctx context.Context) (*database.Stats, error)
	LoadMessages(ctx context.Context) ([]database.Message, error)
	LoadReferrals(ctx context.Context) ([]database.Referral, error)
	LoadFailures(ctx context.Context) ([]database.Failure, error)
}

// Load reads a report input straight from the store.
func Load(ctx context.Context, s Store) (Input, error) {
	var in Input
	var err error
	if in.Run, err = s.GetLastIngestRun(ctx); err != nil {
		return in, fmt.Errorf("loading last run: %w", err)
	}
	if in.Stats, err = s.GetStats(ctx); err != nil {
		return in, fmt.Errorf("loading stats: %w", err)
	}
	if in.Messages, err = s.LoadMessages(ctx); err != nil {
		return in, err
	}
	if in.Referrals, err = s.LoadReferrals(ctx); err != nil {
		return in, err
	}
	if in.Failures, err = s.LoadFailures(ctx); err != nil {
		return in, err
	}
	return in, nil
}

// Compose renders the report as markdown.
func Compose(in Input) string {
	var sections []string
	sections = append(sections, "# Chat analysis report")
	sections = append(sections, runSection(in.Run))
	if in.Stats != nil {
		sections = append(sections, corpusSection(in.Stats))
	}
	sections = append(sections, referralSection(in.Referrals))
	sections = append(sections, failureSection(in.Failures))
	sections = append(sections, advisorSection(detect.DetectAdvisorRequests(in.Messages)))
	sections = append(sections, surveySection(detect.SurveyStats(in.Messages)))
	return strings.Join(sections, "\n\n") + "\n"
}

// RenderHTML converts report markdown to HTML.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}
	return buf.String(), nil
}

func runSection(run *database.IngestRun) string {
	if run == nil {
		return "## Last ingestion\n\nNo ingestion has run yet."
	}
	lines := []string{
		"## Last ingestion",
		"",
		fmt.Sprintf("- Run: `%s`", run.RunID),
		fmt.Sprintf("- Status: **%s**", run.Status),
		fmt.Sprintf("- Started: %s", run.StartedAt),
	}
	if run.FinishedAt != nil {
		lines = append(lines, fmt.Sprintf("- Finished: %s", *run.FinishedAt))
	}
	if run.Error != nil {
		lines = append(lines, fmt.Sprintf("- Error: %s", *run.Error))
	}
	lines = append(lines,
		fmt.Sprintf("- Raw rows: %d (%d skipped)", run.RawRows, run.SkippedRows),
		fmt.Sprintf("- Duplicates removed: %d by id, %d by content", run.DuplicatesByID, run.DuplicatesByContent),
		fmt.Sprintf("- Messages stored: %d", run.Messages),
	)
	return strings.Join(lines, "\n")
}

func corpusSection(s *database.Stats) string {
	return strings.Join([]string{
		"## Corpus",
		"",
		"| Metric | Value |",
		"|---|---|",
		fmt.Sprintf("| Messages | %d |", s.Messages),
		fmt.Sprintf("| Threads | %d |", s.Threads),
		fmt.Sprintf("| Customer turns | %d |", s.HumanTurns),
		fmt.Sprintf("| Awaiting review | %d |", s.NeedsReview),
		fmt.Sprintf("| Manual corrections | %d |", s.Corrections),
	}, "\n")
}

func referralSection(refs []database.Referral) string {
	lines := []string{
		"## Referrals to a human channel",
		"",
		fmt.Sprintf("%d threads were referred.", len(refs)),
	}
	if len(refs) == 0 {
		return strings.Join(lines, "\n")
	}
	cats := make([]string, len(refs))
	for i, r := range refs {
		cats[i] = r.Category
	}
	lines = append(lines, "", countTable("Category", top(cats, topN)))
	return strings.Join(lines, "\n")
}

func failureSection(fails []database.Failure) string {
	lines := []string{
		"## Unresolved conversations",
		"",
		fmt.Sprintf("%d threads show at least one failure signal.", len(fails)),
	}
	if len(fails) == 0 {
		return strings.Join(lines, "\n")
	}

	var criteria, cats []string
	for _, f := range fails {
		criteria = append(criteria, f.Criteria...)
		cats = append(cats, f.Category)
	}
	lines = append(lines,
		"",
		countTable("Signal", top(criteria, 0)),
		"",
		countTable("Category", top(cats, topN)),
	)
	return strings.Join(lines, "\n")
}

func advisorSection(r detect.AdvisorReport) string {
	return strings.Join([]string{
		"## Advisor requests",
		"",
		fmt.Sprintf("- Threads asking for a person: %d", r.Total),
		fmt.Sprintf("- Immediately: %d", r.Immediate),
		fmt.Sprintf("- After trying the assistant: %d", r.AfterEffort),
	}, "\n")
}

func surveySection(r detect.SurveyReport) string {
	return strings.Join([]string{
		"## Satisfaction survey",
		"",
		fmt.Sprintf("- Responses: %d", r.Total),
		fmt.Sprintf("- Useful: %d", r.Useful),
		fmt.Sprintf("- Not useful: %d", r.NotUseful),
	}, "\n")
}

type count struct {
	label string
	n     int
}

// top counts values and returns them by descending count, ties by label.
// limit 0 keeps all.
func top(values []string, limit int) []count {
	seen := make(map[string]int)
	for _, v := range values {
		seen[v]++
	}
	out := make([]count, 0, len(seen))
	for label, n := range seen {
		out = append(out, count{label: label, n: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].n != out[j].n {
			return out[i].n > out[j].n
		}
		return out[i].label < out[j].label
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func countTable(header string, rows []count) string {
	lines := []string{
		fmt.Sprintf("| %s | Threads |", header),
		"|---|---|",
	}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("| %s | %d |", r.label, r.n))
	}
	return strings.Join(lines, "\n")
}
