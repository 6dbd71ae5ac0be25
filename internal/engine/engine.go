// Package engine drives a workflow through its phase sequence. It loads
// the persisted record, decides what to run next, invokes collaborators,
// and transitions state per the table in table.go. All state changes
// funnel through the store; the engine keeps nothing that survives a
// restart.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/decisional/workflow-orchestrator/internal/domain"
	"github.com/decisional/workflow-orchestrator/internal/notify"
	"github.com/decisional/workflow-orchestrator/internal/prompts"
	"github.com/decisional/workflow-orchestrator/internal/protocol"
	"github.com/decisional/workflow-orchestrator/internal/runner"
	"github.com/decisional/workflow-orchestrator/internal/store"
)

// DefaultAgentTimeout applies to roles without a configured timeout
const DefaultAgentTimeout = 30 * time.Minute

// TicketFetcher pulls a work item's content from the tracker and writes it
// to destPath. It returns the work item's title.
type TicketFetcher interface {
	Fetch(ctx context.Context, workItemID, destPath string) (title string, err error)
}

// PR identifies the pull request for a workflow
type PR struct {
	URL    string
	Number int
}

// PRRequest carries everything the PR collaborator needs
type PRRequest struct {
	WorkDir  string
	Branch   string
	Title    string
	BodyFile string
	// Existing holds the workflow's PR URL when one was already created.
	// Empty means create; set means update. This is what keeps the PR
	// phase idempotent across rework iterations.
	Existing string
}

// PRCreator creates or updates the workflow's pull request
type PRCreator interface {
	CreateOrUpdate(ctx context.Context, req PRRequest) (PR, error)
}

// AgentRunner runs one agent invocation to its tagged outcome
type AgentRunner interface {
	Run(ctx context.Context, inv runner.Invocation) (runner.Outcome, error)
}

// Recorder persists per-invocation history rows. Diagnostics only; the
// engine never reads it back to make decisions.
type Recorder interface {
	Begin(w *domain.Workflow, role domain.Role, logPath string) (string, error)
	Finish(id, outcome, detail string) error
}

// Options configures an Engine. Store, Agents, Tickets, and PRs are
// required; the rest has defaults.
type Options struct {
	Store    *store.Store
	Agents   AgentRunner
	Tickets  TicketFetcher
	PRs      PRCreator
	Prompts  *prompts.Loader
	History  Recorder
	Notifier notify.Notifier

	Timeouts      map[domain.Role]time.Duration
	MaxIterations int
}

// Engine is the workflow orchestration state machine
type Engine struct {
	store    *store.Store
	agents   AgentRunner
	tickets  TicketFetcher
	prs      PRCreator
	prompts  *prompts.Loader
	history  Recorder
	notifier notify.Notifier

	timeouts      map[domain.Role]time.Duration
	maxIterations int
}

// New creates an Engine
func New(opts Options) *Engine {
	if opts.Notifier == nil {
		opts.Notifier = notify.Noop{}
	}
	if opts.Prompts == nil {
		opts.Prompts = prompts.DefaultLoader()
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = domain.DefaultMaxIterations
	}
	return &Engine{
		store:         opts.Store,
		agents:        opts.Agents,
		tickets:       opts.Tickets,
		prs:           opts.PRs,
		prompts:       opts.Prompts,
		history:       opts.History,
		notifier:      opts.Notifier,
		timeouts:      opts.Timeouts,
		maxIterations: opts.MaxIterations,
	}
}

// Start creates a workflow for a work item and drives it until it
// completes, fails, or suspends.
func (e *Engine) Start(ctx context.Context, workItemID string) (*domain.Workflow, error) {
	w := domain.NewWorkflow(workItemID, e.maxIterations)
	if err := e.store.Create(w); err != nil {
		return nil, err
	}
	return w, e.run(ctx, w)
}

// Run resumes driving a workflow that is already in the running status,
// e.g. after an orchestrator restart. The persisted record alone decides
// what happens next.
func (e *Engine) Run(ctx context.Context, id string) (*domain.Workflow, error) {
	w, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	if w.Terminal() {
		return w, nil
	}
	if w.Status != domain.StatusRunning {
		return w, fmt.Errorf("workflow %s is %s; use resume or respond", id, w.Status)
	}
	return w, e.run(ctx, w)
}

// Resume retries the current phase of a paused workflow. A workflow
// paused at its iteration limit only resumes with override set; a plain
// resume is refused so the limit actually limits.
func (e *Engine) Resume(ctx context.Context, id string, override bool) (*domain.Workflow, error) {
	w, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	switch {
	case w.Terminal():
		return w, fmt.Errorf("workflow %s is %s and cannot be resumed", id, w.Status)
	case w.Blocked():
		return w, fmt.Errorf("workflow %s is blocked on a question; use respond", id)
	case w.AtIterationBound() && !override:
		return w, fmt.Errorf("workflow %s reached its iteration limit (%d); resume with override to run another review round", id, w.MaxIterations)
	}

	w.Transition(w.Phase, domain.StatusRunning)
	if err := e.save(w); err != nil {
		return w, err
	}
	return w, e.run(ctx, w)
}

// Respond answers a blocked workflow's question and re-runs the phase that
// raised it. The answer is written to the resume file so the re-invoked
// agent can read it.
func (e *Engine) Respond(ctx context.Context, id, answer string) (*domain.Workflow, error) {
	w, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	if !w.Blocked() {
		return w, fmt.Errorf("workflow %s is %s, not blocked", id, w.Status)
	}

	if err := protocol.WriteResponse(e.store.Dir(w.ID), answer); err != nil {
		return w, err
	}
	w.Unblock()
	if err := e.save(w); err != nil {
		return w, err
	}
	return w, e.run(ctx, w)
}

// Cancel terminates a workflow and kills its agent process if one is
// still running. A cancelled workflow is failed and cannot be resumed.
func (e *Engine) Cancel(ctx context.Context, id string) (*domain.Workflow, error) {
	w, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	if w.Terminal() {
		return w, fmt.Errorf("workflow %s is already %s", id, w.Status)
	}

	if w.AgentPID != 0 && runner.ProcessRunning(w.AgentPID) {
		if err := runner.KillProcess(w.AgentPID); err != nil {
			fmt.Printf("Warning: failed to kill agent process %d: %v\n", w.AgentPID, err)
		}
	}
	w.AgentPID = 0
	w.Fail("cancelled by operator")
	if err := e.save(w); err != nil {
		return w, err
	}
	e.send(notify.WorkflowFailed(w))
	return w, nil
}

// run steps the workflow until it suspends or reaches a terminal state
func (e *Engine) run(ctx context.Context, w *domain.Workflow) error {
	for w.Status == domain.StatusRunning && !w.Phase.Terminal() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.step(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

// step runs the workflow's current phase exactly once
func (e *Engine) step(ctx context.Context, w *domain.Workflow) error {
	switch w.Phase {
	case domain.PhaseInit:
		return e.runInit(ctx, w)
	case domain.PhasePlanning, domain.PhaseExecuting, domain.PhaseReviewing:
		return e.runAgentPhase(ctx, w)
	case domain.PhasePR:
		return e.runPR(ctx, w)
	}
	return fmt.Errorf("no step for phase %s", w.Phase)
}

// runInit fetches the work item. Failure here is terminal: nothing has
// happened yet that would be worth an operator retry loop.
func (e *Engine) runInit(ctx context.Context, w *domain.Workflow) error {
	dest := e.store.ArtifactPath(w.ID, store.TicketFile)
	title, err := e.tickets.Fetch(ctx, w.WorkItemID, dest)
	if err != nil {
		return e.apply(w, OutcomeErrored, &domain.FetchError{WorkItemID: w.WorkItemID, Err: err}, "", nil)
	}

	w.Title = title
	w.Branch = domain.BranchName(w.WorkItemID, title)
	return e.apply(w, OutcomeCompleted, nil, "", nil)
}

func (e *Engine) runAgentPhase(ctx context.Context, w *domain.Workflow) error {
	role := w.Phase.Role()
	dir := e.store.Dir(w.ID)

	prompt, err := e.buildPrompt(w, role)
	if err != nil {
		return e.apply(w, OutcomeErrored, err, "", nil)
	}

	logPath := filepath.Join(dir, store.LogsDir, string(role)+".log")
	histID := e.beginHistory(w, role, logPath)

	inv := runner.Invocation{
		Role:    role,
		WorkDir: dir,
		Prompt:  prompt,
		LogPath: logPath,
		Timeout: e.timeoutFor(role),
		OnStart: func(pid int) {
			w.AgentPID = pid
			if err := e.store.Save(w); err != nil {
				fmt.Printf("Warning: failed to persist agent pid for %s: %v\n", w.ID, err)
			}
		},
	}

	out, runErr := e.agents.Run(ctx, inv)
	w.AgentPID = 0
	e.finishHistory(histID, out)

	switch out.Kind {
	case runner.Completed:
		if role != domain.RoleReviewer {
			e.consumeResponse(dir)
			return e.apply(w, OutcomeCompleted, nil, "", nil)
		}
		e.consumeResponse(dir)
		return e.applyVerdict(w)

	case runner.Blocked:
		// The pending response file, if any, answered an earlier
		// question; a new block gets a fresh answer.
		e.consumeResponse(dir)
		return e.apply(w, OutcomeBlocked, nil, out.Question, out.Options)

	case runner.Canceled:
		// The caller interrupted the run; leave the record as-is so a
		// later resume or restart picks the phase back up
		if runErr == nil {
			runErr = context.Canceled
		}
		return runErr

	case runner.TimedOut:
		e.consumeResponse(dir)
		cause := runErr
		if cause == nil {
			cause = &domain.TimeoutError{Role: role, Timeout: inv.Timeout}
		}
		return e.apply(w, OutcomeTimedOut, cause, "", nil)

	default:
		e.consumeResponse(dir)
		cause := runErr
		if cause == nil {
			cause = &domain.AgentError{Role: role, Message: out.Reason}
		}
		return e.apply(w, OutcomeErrored, cause, "", nil)
	}
}

// applyVerdict reads the review artifact and refines the reviewer's
// completion into approve / request-changes / iteration-limit.
func (e *Engine) applyVerdict(w *domain.Workflow) error {
	content, err := os.ReadFile(e.store.ArtifactPath(w.ID, store.ReviewFile))
	if err != nil {
		cause := &domain.ProtocolError{Role: domain.RoleReviewer, Reason: fmt.Sprintf("verdict artifact unreadable: %v", err)}
		return e.apply(w, OutcomeErrored, cause, "", nil)
	}

	verdict, err := ParseVerdict(string(content))
	if err != nil {
		return e.apply(w, OutcomeErrored, err, "", nil)
	}

	if verdict == VerdictApprove {
		return e.apply(w, OutcomeApproved, nil, "", nil)
	}

	// The count never passes the limit; an overridden re-review that asks
	// for changes again just pauses at the bound once more
	if w.Iteration < w.MaxIterations {
		w.Iteration++
	}
	if w.Iteration >= w.MaxIterations {
		return e.apply(w, OutcomeIterationLimit, &domain.IterationLimitError{Iterations: w.Iteration}, "", nil)
	}
	return e.apply(w, OutcomeChangesRequested, nil, "", nil)
}

func (e *Engine) runPR(ctx context.Context, w *domain.Workflow) error {
	pr, err := e.prs.CreateOrUpdate(ctx, PRRequest{
		WorkDir:  e.store.Dir(w.ID),
		Branch:   w.Branch,
		Title:    fmt.Sprintf("%s: %s", w.WorkItemID, w.Title),
		BodyFile: e.store.ArtifactPath(w.ID, store.ImplementationFile),
		Existing: w.PRURL,
	})
	if err != nil {
		return e.apply(w, OutcomeErrored, &domain.PRError{Err: err}, "", nil)
	}

	if pr.URL != "" {
		w.PRURL = pr.URL
		w.PRNumber = pr.Number
	}
	return e.apply(w, OutcomeCompleted, nil, "", nil)
}

// apply looks up the transition for the outcome, mutates the workflow,
// persists it, and notifies on suspension or completion. A persistence
// failure propagates up and aborts the run; continuing on unpersisted
// in-memory state would diverge from the record a restart would see.
func (e *Engine) apply(w *domain.Workflow, out Outcome, cause error, question string, options []string) error {
	next, ok := Next(w.Phase, out)
	if !ok {
		return fmt.Errorf("no transition for (%s, %s)", w.Phase, out)
	}

	switch next.Status {
	case domain.StatusBlocked:
		w.Block(question, options)
	case domain.StatusPaused:
		if cause == nil {
			cause = errors.New("unknown failure")
		}
		w.Pause(cause)
	case domain.StatusFailed:
		if cause == nil {
			cause = errors.New("unknown failure")
		}
		w.Fail(cause.Error())
	default:
		w.Transition(next.Phase, next.Status)
	}

	if err := e.save(w); err != nil {
		return err
	}

	switch w.Status {
	case domain.StatusBlocked:
		e.send(notify.WorkflowBlocked(w))
	case domain.StatusPaused:
		e.send(notify.WorkflowPaused(w))
	case domain.StatusCompleted:
		e.send(notify.WorkflowCompleted(w))
	case domain.StatusFailed:
		e.send(notify.WorkflowFailed(w))
	}
	return nil
}

// buildPrompt assembles the role's input from prior phase artifacts and,
// when present, the human answer in the resume file.
func (e *Engine) buildPrompt(w *domain.Workflow, role domain.Role) (string, error) {
	data := prompts.RoleData{
		StatusFile:    protocol.StatusFile,
		ResponseFile:  protocol.ResponseFile,
		Iteration:     w.Iteration,
		MaxIterations: w.MaxIterations,
	}
	if resp, err := protocol.ReadResponse(e.store.Dir(w.ID)); err == nil && resp != nil {
		data.Response = resp.Response
	}

	switch role {
	case domain.RolePlanner:
		data.TicketFile = store.TicketFile
		data.PlanFile = store.PlanFile
	case domain.RoleExecutor:
		data.PlanFile = store.PlanFile
		data.OutputFile = store.ImplementationFile
		if w.Iteration > 0 {
			data.FeedbackFile = store.ReviewFile
		}
	case domain.RoleReviewer:
		data.PlanFile = store.PlanFile
		data.FeedbackFile = store.ImplementationFile
		data.OutputFile = store.ReviewFile
	}
	return e.prompts.BuildRolePrompt(role, data)
}

// consumeResponse removes a resume file once the invocation it answered
// has finished, so a later phase cannot mistake it for its own answer
func (e *Engine) consumeResponse(dir string) {
	if err := protocol.RemoveResponse(dir); err != nil {
		fmt.Printf("Warning: failed to remove consumed response file: %v\n", err)
	}
}

func (e *Engine) timeoutFor(role domain.Role) time.Duration {
	if t, ok := e.timeouts[role]; ok && t > 0 {
		return t
	}
	return DefaultAgentTimeout
}

func (e *Engine) save(w *domain.Workflow) error {
	return e.store.Save(w)
}

func (e *Engine) send(n notify.Notification) {
	if err := e.notifier.Send(n); err != nil {
		fmt.Printf("Warning: notification failed: %v\n", err)
	}
}

func (e *Engine) beginHistory(w *domain.Workflow, role domain.Role, logPath string) string {
	if e.history == nil {
		return ""
	}
	id, err := e.history.Begin(w, role, logPath)
	if err != nil {
		fmt.Printf("Warning: failed to record invocation for %s: %v\n", w.ID, err)
		return ""
	}
	return id
}

func (e *Engine) finishHistory(id string, out runner.Outcome) {
	if e.history == nil || id == "" {
		return
	}
	detail := out.Message
	switch out.Kind {
	case runner.Completed:
		detail = out.ArtifactRef
	case runner.Blocked:
		detail = out.Question
	case runner.Errored, runner.TimedOut, runner.Canceled:
		detail = out.Reason
	}
	if err := e.history.Finish(id, string(out.Kind), detail); err != nil {
		fmt.Printf("Warning: failed to finish invocation record: %v\n", err)
	}
}
