// Package orchestrator drives a fixed twelve-phase software-delivery
// workflow across a registry of agents, with a self-learning pipeline
// that captures errors, proposes fixes, validates and applies them, and
// rolls back on regression.
//
// # Architecture
//
// Eight components cooperate through an in-process event bus
// (pkg/events) and durable state on disk (pkg/statestore):
//
//	Agent Registry (pkg/agentregistry)     -- who can run a phase
//	Workflow Definition (pkg/workflowdef)   -- the fixed phase graph
//	Phase Controller (pkg/phasecontroller)  -- drives executions through it
//	Message Bus (pkg/bus)                   -- phase-aware priority delivery
//	Safety Controller (pkg/safety)          -- five gates before any apply
//	Self-Learning Pipeline (pkg/learning/*) -- capture, analyze, fix,
//	                                            validate, apply, rollback, audit
//	Monitor (pkg/monitor)                   -- counters, histograms, alerts
//
// # Command surface
//
// See cmd/orchestrator for the operational CLI: start/approve/status for
// running executions, and apply-learning/revert-learning/view-learning-log/
// view-learning-stats/learning-status for the self-learning pipeline.
package orchestrator
