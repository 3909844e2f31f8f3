// Package workflowdef declares the fixed, twelve-phase software-delivery
// workflow graph: phase metadata, the reason-keyed transition table, and
// the approval/auto-validation/parallel-group flags the Phase Controller
// consults. The graph is static data, not behavior; the Phase Controller
// in pkg/phasecontroller is what walks it.
package workflowdef

// PhaseType classifies a phase's nature.
type PhaseType string

const (
	PhaseUserDriven  PhaseType = "user-driven"
	PhaseAutomated   PhaseType = "automated"
	PhaseCoordination PhaseType = "coordination"
	PhaseFinalization PhaseType = "finalization"
)

// TransitionReason enumerates every reason evaluateTransition accepts
// (spec §4.3).
type TransitionReason string

const (
	ReasonApproved             TransitionReason = "approved"
	ReasonRejected             TransitionReason = "rejected"
	ReasonRevised              TransitionReason = "revised"
	ReasonValidationPassed     TransitionReason = "validation_passed"
	ReasonValidationFailed     TransitionReason = "validation_failed"
	ReasonDeploymentSucceeded  TransitionReason = "deployment_succeeded"
	ReasonDeploymentRejected   TransitionReason = "deployment_rejected"
	ReasonDeploymentFailed     TransitionReason = "deployment_failed"
	ReasonCostTooHigh          TransitionReason = "cost_too_high"
	ReasonMajorChanges         TransitionReason = "major_changes"
	ReasonComplete             TransitionReason = "complete"
	ReasonPassed               TransitionReason = "passed"
	ReasonEscalate             TransitionReason = "escalate"
)

// Outcome is the special-cased result of a transition lookup: an ordinary
// next phase index, a fan-out into a parallel group, a join that requires
// every sibling in the group to be complete, an escalation halt, a
// rollback unwind, or terminal completion.
type Outcome struct {
	NextPhase    int
	FanOut       []int
	Join         bool
	Escalation   bool
	Rollback     bool
	Terminal     bool
}

// Phase describes one of the twelve fixed phases (spec §4.2).
type Phase struct {
	Index              int
	Name               string
	Purpose            string
	Type               PhaseType
	ParticipatingAgents []string
	ExpectedArtifacts   []string
	ApprovalRequired    bool
	AutoValidationGates []string
	ParallelGroup       string // empty if not part of a parallel group
}

const totalPhases = 12

// Graph is the immutable twelve-phase workflow definition.
type Graph struct {
	phases      [totalPhases]Phase
	transitions map[transitionKey]Outcome
}

type transitionKey struct {
	phase  int
	reason TransitionReason
}

// Default constructs the fixed workflow graph described in spec §4.2/§4.3.
// Phase names follow the discovery -> infrastructure -> deployment ->
// application -> documentation flow named in the system overview;
// participating-agent lists are left for the Agent Registry to resolve at
// runtime, since the core treats agents as opaque callables.
func Default() *Graph {
	g := &Graph{
		phases: [totalPhases]Phase{
			{Index: 0, Name: "Discovery", Purpose: "gather project intent and constraints", Type: PhaseUserDriven, ApprovalRequired: true},
			{Index: 1, Name: "Requirements Analysis", Purpose: "decompose intent into concrete requirements", Type: PhaseUserDriven, ApprovalRequired: true},
			{Index: 2, Name: "Architecture & Cost Design", Purpose: "propose architecture and estimate cost", Type: PhaseUserDriven, ApprovalRequired: true},
			{Index: 3, Name: "Infrastructure Planning", Purpose: "plan concrete infrastructure resources", Type: PhaseUserDriven, ApprovalRequired: true},
			{Index: 4, Name: "Infrastructure Generation", Purpose: "generate infrastructure-as-code artifacts", Type: PhaseAutomated, ApprovalRequired: true,
				AutoValidationGates: []string{"type_validation", "logic_validation", "sandbox_test"}},
			{Index: 5, Name: "Deployment", Purpose: "deploy generated infrastructure", Type: PhaseCoordination, ApprovalRequired: true},
			{Index: 6, Name: "Post-Deployment Verification", Purpose: "verify the deployment is healthy", Type: PhaseAutomated},
			{Index: 7, Name: "Application Implementation", Purpose: "implement application code against the deployed infrastructure", Type: PhaseAutomated},
			{Index: 8, Name: "Integration", Purpose: "integrate application with infrastructure and dependent services", Type: PhaseCoordination},
			{Index: 9, Name: "Documentation Generation", Purpose: "generate end-user and operator documentation", Type: PhaseAutomated, ParallelGroup: "final-fanout"},
			{Index: 10, Name: "Quality Assurance", Purpose: "run regression and acceptance test suites", Type: PhaseAutomated, ParallelGroup: "final-fanout"},
			{Index: 11, Name: "Release Sign-off", Purpose: "final human sign-off and archival", Type: PhaseFinalization, ApprovalRequired: true},
		},
	}
	g.transitions = map[transitionKey]Outcome{
		{0, ReasonApproved}:  {NextPhase: 1},
		{1, ReasonApproved}:  {NextPhase: 2},
		{2, ReasonApproved}:  {NextPhase: 3},
		{2, ReasonCostTooHigh}: {NextPhase: 2},
		{2, ReasonMajorChanges}: {NextPhase: 1},
		{3, ReasonApproved}:  {NextPhase: 4},
		{4, ReasonValidationPassed}: {NextPhase: 5},
		{4, ReasonValidationFailed}: {NextPhase: 4},
		{5, ReasonDeploymentSucceeded}: {NextPhase: 6},
		{5, ReasonDeploymentRejected}:  {Rollback: true},
		{5, ReasonDeploymentFailed}:    {Escalation: true},
		{6, ReasonPassed}:    {NextPhase: 7},
		{7, ReasonComplete}:  {NextPhase: 8},
		{8, ReasonComplete}:  {FanOut: []int{9, 10}},
		{9, ReasonComplete}:  {Join: true, NextPhase: 11},
		{10, ReasonComplete}: {Join: true, NextPhase: 11},
		{11, ReasonComplete}: {Terminal: true},
	}
	// Any phase may escalate regardless of its declared transitions;
	// escalation halts the execution pending human action (spec §4.3).
	for i := 0; i < totalPhases; i++ {
		g.transitions[transitionKey{i, ReasonEscalate}] = Outcome{Escalation: true}
	}
	return g
}

// Phase returns the phase at index idx. ok is false for an out-of-range
// index (UnknownPhase, spec §4.1).
func (g *Graph) Phase(idx int) (Phase, bool) {
	if idx < 0 || idx >= totalPhases {
		return Phase{}, false
	}
	return g.phases[idx], true
}

// Phases returns every phase in index order.
func (g *Graph) Phases() []Phase {
	out := make([]Phase, totalPhases)
	copy(out, g.phases[:])
	return out
}

// TotalPhases returns the fixed phase count (12).
func (g *Graph) TotalPhases() int {
	return totalPhases
}

// Evaluate looks up the outcome of reason occurring at phase. ok is false
// when (phase, reason) is not a declared edge and reason is not escalate.
func (g *Graph) Evaluate(phase int, reason TransitionReason) (Outcome, bool) {
	o, ok := g.transitions[transitionKey{phase, reason}]
	return o, ok
}

// ParallelSiblings returns the other phase indices sharing phase's
// parallel group, or nil if phase is not part of one.
func (g *Graph) ParallelSiblings(phase int) []int {
	p, ok := g.Phase(phase)
	if !ok || p.ParallelGroup == "" {
		return nil
	}
	var siblings []int
	for _, other := range g.phases {
		if other.Index != phase && other.ParallelGroup == p.ParallelGroup {
			siblings = append(siblings, other.Index)
		}
	}
	return siblings
}
