// Command orchestrator is the CLI for the delivery orchestrator: start and
// inspect workflow executions, resolve approval gates, and operate the
// self-learning pipeline (apply, revert, and audit proposed fixes).
//
// Usage:
//
//	orchestrator start --project checkout-api
//	orchestrator approve <executionId> <phase> approve
//	orchestrator status <executionId>
//	orchestrator apply-learning <changeId> --dry-run
//	orchestrator revert-learning <changeId> --reason "regression in prod"
//	orchestrator view-learning-log --limit 20
//	orchestrator view-learning-stats
//	orchestrator learning-status
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	orchestrator "github.com/forgeflow/orchestrator"
	"github.com/forgeflow/orchestrator/pkg/config"
	"github.com/forgeflow/orchestrator/pkg/logging"
)

// CLI defines the orchestrator's command-line interface.
type CLI struct {
	Start             StartCmd             `cmd:"" name:"start" help:"Start a new workflow execution."`
	Approve           ApproveCmd           `cmd:"" name:"approve" help:"Resolve an open approval gate."`
	Status            StatusCmd            `cmd:"" name:"status" help:"Show an execution's current state."`
	ApplyLearning     ApplyLearningCmd     `cmd:"" name:"apply-learning" help:"Validate and apply a pending fix proposal."`
	RevertLearning    RevertLearningCmd    `cmd:"" name:"revert-learning" help:"Roll back a previously applied fix."`
	ViewLearningLog   ViewLearningLogCmd   `cmd:"" name:"view-learning-log" help:"List audit trail records."`
	ViewLearningStats ViewLearningStatsCmd `cmd:"" name:"view-learning-stats" help:"Summarize the audit trail over a time range."`
	LearningStatus    LearningStatusCmd    `cmd:"" name:"learning-status" help:"Show the self-learning pipeline's current counters."`
	Version           VersionCmd           `cmd:"" name:"version" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (reserved; JSON only for now)." default:"json"`
}

// VersionCmd prints build version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(cli *CLI) error {
	fmt.Println(orchestrator.GetVersion().String())
	return nil
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("orchestrator"),
		kong.Description("Delivery Orchestrator - twelve-phase workflow engine with a self-learning pipeline"),
		kong.UsageOnError(),
	)

	logger := logging.New(cli.LogLevel, os.Stderr)
	logging.SetDefault(logger)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
