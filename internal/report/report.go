// Package report renders pipeline results as Markdown and publishes them as
// pull-request comments. Publication upserts against a hidden marker so a
// run updates its previous comment instead of stacking new ones.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gantry-ci/gantry/internal/secrets"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/log"
	"github.com/gantry-ci/gantry/pkg/gantry/v1/remote"
)

// Marker identifies comments owned by the pipeline. It must appear in every
// published body.
const Marker = "<!-- gantry:summary -->"

// Publisher posts and updates pull-request comments. Bodies pass through the
// secret tracker before leaving the process.
type Publisher struct {
	client  remote.Client
	tracker *secrets.Tracker
	log     log.Logger
}

// NewPublisher creates a Publisher. client may not be nil; callers without a
// remote client skip publication entirely. tracker may be nil when no
// override secrets exist.
func NewPublisher(client remote.Client, tracker *secrets.Tracker, logger log.Logger) *Publisher {
	if client == nil {
		panic("report: NewPublisher requires a non-nil remote client")
	}
	if logger == nil {
		panic("report: NewPublisher requires a non-nil logger")
	}
	return &Publisher{client: client, tracker: tracker, log: logger}
}

// Publish upserts the body as the run's pull-request comment: if a previous
// comment carries the marker it is updated, otherwise a new comment is
// created.
func (p *Publisher) Publish(ctx context.Context, ref remote.RepoRef, number int, body string) error {
	if !strings.Contains(body, Marker) {
		body = Marker + "\n" + body
	}
	if p.tracker != nil {
		body = p.tracker.Scrub(body)
	}

	existing, err := p.client.ListComments(ctx, ref, number)
	if err != nil {
		return fmt.Errorf("listing existing comments: %w", err)
	}
	for _, c := range existing {
		if strings.Contains(c.Body, Marker) {
			p.log.Debugf("Updating existing summary comment %d on %s#%d", c.ID, ref, number)
			return p.client.UpdateComment(ctx, ref, c.ID, body)
		}
	}
	p.log.Debugf("Creating summary comment on %s#%d", ref, number)
	return p.client.CreateComment(ctx, ref, number, body)
}

// Row is one line of a rendered result table.
type Row struct {
	Name     string
	Status   string
	Duration time.Duration
	Detail   string
}

// RenderRunSummary renders the aggregate run table.
func RenderRunSummary(title, overall string, total time.Duration, rows []Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n## %s\n\n", Marker, title)
	fmt.Fprintf(&b, "**Result: %s** (%s)\n\n", statusBadge(overall), total.Round(time.Millisecond))
	b.WriteString("| Step | Status | Duration | Detail |\n")
	b.WriteString("|------|--------|----------|--------|\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			row.Name, statusBadge(row.Status), row.Duration.Round(time.Millisecond), cell(row.Detail))
	}
	return b.String()
}

// RenderFailure renders a phase-failure notice.
func RenderFailure(phase string, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n## Pipeline failure: %s\n\n", Marker, phase)
	fmt.Fprintf(&b, "**Result: %s**\n\n```\n%v\n```\n", statusBadge("fail"), err)
	return b.String()
}

// RenderPolicySection renders the policy score and per-rule outcomes for
// embedding under a run summary. The published metadata is the numeric
// score plus the per-rule map.
func RenderPolicySection(score int, ruleStatus map[string]string, violations, warnings []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n### Governance score: %d/100\n\n", score)
	b.WriteString("| Rule | Outcome |\n|------|---------|\n")
	for _, rule := range sortedKeys(ruleStatus) {
		fmt.Fprintf(&b, "| %s | %s |\n", rule, ruleStatus[rule])
	}
	if len(violations) > 0 {
		b.WriteString("\n**Violations**\n")
		for _, v := range violations {
			fmt.Fprintf(&b, "- %s\n", cell(v))
		}
	}
	if len(warnings) > 0 {
		b.WriteString("\n**Warnings**\n")
		for _, w := range warnings {
			fmt.Fprintf(&b, "- %s\n", cell(w))
		}
	}
	return b.String()
}

// RenderBootAnnouncement renders the short context comment posted at Boot.
func RenderBootAnnouncement(phase, env, stack string, dryRun bool) string {
	mode := "live"
	if dryRun {
		mode = "dry-run"
	}
	return fmt.Sprintf("%s\n:ship: Pipeline run started: phase `%s`, environment `%s`, stack `%s` (%s).", Marker, phase, env, stack, mode)
}

func statusBadge(status string) string {
	switch status {
	case "pass":
		return ":white_check_mark: pass"
	case "fail":
		return ":x: fail"
	case "partial":
		return ":warning: partial"
	default:
		return status
	}
}

// cell sanitizes free-form text for a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
