package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/forgeflow/orchestrator/pkg/phasecontroller"
)

// StartCmd starts a new workflow execution at phase 0.
type StartCmd struct {
	Project string `help:"Project name for the new execution." required:""`
	Context string `help:"Initial context as comma-separated key=value pairs."`
}

// parseContext turns "a=1,b=2" into a map, skipping malformed pairs.
func parseContext(s string) map[string]any {
	out := map[string]any{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

func (c *StartCmd) Run(cli *CLI) error {
	return run("start", func() (string, any, error) {
		a, err := bootstrap(cli)
		if err != nil {
			return "", nil, err
		}
		defer a.close()

		id, err := a.phases.Start(context.Background(), phasecontroller.ProjectConfig{
			ProjectName: c.Project,
			Context:     parseContext(c.Context),
		})
		if err != nil {
			return "", nil, fmt.Errorf("start execution: %w", err)
		}
		return "execution started", map[string]any{"executionId": id}, nil
	})
}

// ApproveCmd resolves an open approval gate with a decision. Decision may
// be left empty on an interactive terminal, in which case the reviewer is
// prompted for it directly.
type ApproveCmd struct {
	ExecutionID string `arg:"" help:"Execution id."`
	Phase       int    `arg:"" help:"Phase index the approval gate belongs to."`
	Decision    string `arg:"" optional:"" help:"approve, reject, or revise. Prompted for interactively if omitted."`
	Feedback    string `help:"Optional reviewer feedback."`
}

// promptDecision asks an interactive reviewer for an approval decision.
// It refuses to guess on a non-terminal stdin, since a piped/empty read
// there would silently resolve a gate the wrong way.
func promptDecision(executionID string, phase int) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("decision is required when stdin is not a terminal")
	}
	fmt.Printf("Approval gate %s/phase %d - decision (approve/reject/revise): ", executionID, phase)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read decision: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (c *ApproveCmd) Run(cli *CLI) error {
	return run("approve", func() (string, any, error) {
		a, err := bootstrap(cli)
		if err != nil {
			return "", nil, err
		}
		defer a.close()

		if c.Decision == "" {
			c.Decision, err = promptDecision(c.ExecutionID, c.Phase)
			if err != nil {
				return "", nil, err
			}
		}

		decision := phasecontroller.ApprovalDecision(c.Decision)
		switch decision {
		case phasecontroller.DecisionApprove, phasecontroller.DecisionReject, phasecontroller.DecisionRevise:
		default:
			return "", nil, fmt.Errorf("invalid decision %q: must be approve, reject, or revise", c.Decision)
		}

		nextPhase, err := a.phases.SubmitApproval(context.Background(), c.ExecutionID, c.Phase, decision, c.Feedback)
		if err != nil {
			return "", nil, fmt.Errorf("submit approval: %w", err)
		}
		return "approval recorded", map[string]any{"nextPhase": nextPhase}, nil
	})
}

// StatusCmd reports an execution's current phase, status, and history.
type StatusCmd struct {
	ExecutionID string `arg:"" help:"Execution id."`
}

func (c *StatusCmd) Run(cli *CLI) error {
	return run("status", func() (string, any, error) {
		a, err := bootstrap(cli)
		if err != nil {
			return "", nil, err
		}
		defer a.close()

		exec, err := a.store.LoadExecution(c.ExecutionID)
		if err != nil {
			return "", nil, fmt.Errorf("load execution: %w", err)
		}
		data := map[string]any{
			"execution": exec,
			"busMetrics": a.bus.SnapshotMetrics(),
		}
		return "", data, nil
	})
}
