package main

import (
	"context"
	"fmt"
	"time"

	"github.com/forgeflow/orchestrator/pkg/learning/audit"
)

// ApplyLearningCmd validates (and, unless dry-run, applies) a pending fix
// proposal by its change id.
type ApplyLearningCmd struct {
	ChangeID   string `arg:"" help:"Change id of the pending proposal."`
	DryRun     bool   `help:"Validate only; do not apply." default:"false"`
	ApprovedBy string `help:"Identity of the human approving this apply."`
}

func (c *ApplyLearningCmd) Run(cli *CLI) error {
	return run("apply-learning", func() (string, any, error) {
		a, err := bootstrap(cli)
		if err != nil {
			return "", nil, err
		}
		defer a.close()

		applyResult, validation, err := a.pipeline.ApplyProposal(context.Background(), c.ChangeID, "operator-cli", c.ApprovedBy, c.DryRun)
		data := map[string]any{"validation": validation}
		if applyResult != nil {
			data["apply"] = applyResult
		}
		if err != nil {
			return "", data, err
		}
		if c.DryRun {
			return "dry run complete", data, nil
		}
		if applyResult == nil {
			return "proposal rejected by validation gates", data, nil
		}
		return "fix applied", data, nil
	})
}

// RevertLearningCmd rolls back a previously applied change.
type RevertLearningCmd struct {
	ChangeID string `arg:"" help:"Change id to roll back."`
	Reason   string `help:"Reason for the manual rollback."`
}

func (c *RevertLearningCmd) Run(cli *CLI) error {
	return run("revert-learning", func() (string, any, error) {
		a, err := bootstrap(cli)
		if err != nil {
			return "", nil, err
		}
		defer a.close()

		reason := c.Reason
		if reason == "" {
			reason = "manual revert requested via CLI"
		}
		record, err := a.pipeline.RevertChange(context.Background(), c.ChangeID, reason)
		if err != nil {
			return "", nil, fmt.Errorf("revert: %w", err)
		}
		return "change rolled back", record, nil
	})
}

// ViewLearningLogCmd lists audit trail records, optionally filtered.
type ViewLearningLogCmd struct {
	ChangeID string `help:"Filter to a single change id."`
	Limit    int    `help:"Maximum records to return (0 = all)." default:"50"`
}

func (c *ViewLearningLogCmd) Run(cli *CLI) error {
	return run("view-learning-log", func() (string, any, error) {
		a, err := bootstrap(cli)
		if err != nil {
			return "", nil, err
		}
		defer a.close()

		records := a.pipeline.Audit.GetAuditHistory(audit.Filter{ChangeID: c.ChangeID})
		if c.Limit > 0 && len(records) > c.Limit {
			records = records[:c.Limit]
		}
		return fmt.Sprintf("%d records", len(records)), records, nil
	})
}

// ViewLearningStatsCmd summarizes the audit trail's outcome distribution
// and confidence buckets over the last 30 days.
type ViewLearningStatsCmd struct {
	Days int `help:"Size of the reporting window in days." default:"30"`
}

func (c *ViewLearningStatsCmd) Run(cli *CLI) error {
	return run("view-learning-stats", func() (string, any, error) {
		a, err := bootstrap(cli)
		if err != nil {
			return "", nil, err
		}
		defer a.close()

		to := time.Now().UTC()
		from := to.AddDate(0, 0, -c.Days)
		report := a.pipeline.Audit.GenerateReport(from, to)
		return "", report, nil
	})
}

// LearningStatusCmd reports the self-learning pipeline's live counters,
// duration stats, and any active alerts.
type LearningStatusCmd struct{}

func (c *LearningStatusCmd) Run(cli *CLI) error {
	return run("learning-status", func() (string, any, error) {
		a, err := bootstrap(cli)
		if err != nil {
			return "", nil, err
		}
		defer a.close()

		raised, resolved := a.monitor.EvaluateRate()
		snapshot := a.monitor.Snapshot()
		integrity, err := a.pipeline.Audit.VerifyIntegrity()
		if err != nil {
			return "", nil, fmt.Errorf("verify audit integrity: %w", err)
		}

		data := map[string]any{
			"snapshot":      snapshot,
			"integrity":     integrity,
			"newlyRaised":   raised,
			"newlyResolved": resolved,
		}
		return "learning pipeline status", data, nil
	})
}
