// Package agent drives one question end to end: it assembles the run's
// tools, lets the model plan with them, executes the code it returns and
// records what happened.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akolk/loki-nexus2/evaluator"
	"github.com/akolk/loki-nexus2/history"
	"github.com/akolk/loki-nexus2/logging"
	"github.com/akolk/loki-nexus2/mcp"
	"github.com/akolk/loki-nexus2/metrics"
	"github.com/akolk/loki-nexus2/model"
	"github.com/akolk/loki-nexus2/storage"
	"github.com/akolk/loki-nexus2/tools"
)

const (
	DefaultMaxSteps = 8

	resultBinding     = "result"
	codeNarrative     = "[Agent Execution]"
	reportNarrative   = "[Deep Research Execution]"
	missingResultText = "Agent code executed but did not set the 'result' variable."
)

// Store is the persistence the orchestrator needs. *storage.DB implements it.
type Store interface {
	history.Store
	EnsureUser(ctx context.Context, username string) (*storage.User, error)
	GetUser(ctx context.Context, id string) (*storage.User, error)
	AppendMessage(ctx context.Context, userID, role, content string) error
	AppendProvenance(ctx context.Context, rec storage.ProvenanceRecord) error
}

type Caller struct {
	ID       string
	Username string
}

func (c Caller) dataScope() string {
	if c.Username != "" {
		return c.Username
	}
	return c.ID
}

type Profile = storage.Profile

type Request struct {
	Query        string
	Caller       Caller
	Profile      Profile
	Viewport     string
	Endpoint     *mcp.Endpoint
	SkillArchive []byte
	// History is the prior conversation. Nil loads it from the store.
	History []model.Message
}

type ReportRequest struct {
	Query        string
	Format       string
	Caller       Caller
	Profile      Profile
	Endpoint     *mcp.Endpoint
	SkillArchive []byte
}

type ChatRequest struct {
	Username     string
	Query        string
	Viewport     string
	Endpoint     *mcp.Endpoint
	SkillArchive []byte
}

type Result struct {
	RunID    string
	State    State
	Response string
	Outcome  evaluator.Outcome
	Code     string
}

type Options struct {
	Provider  model.Provider
	Assembler *tools.Assembler
	Store     Store
	// Querier and Files back the query/read_file/write_file builtins of
	// generated code.
	Querier           evaluator.Querier
	Files             evaluator.FileAccess
	ModelID           string
	MaxSteps          int
	HistoryWindow     int
	MaxExecutionSteps uint64
	Logger            *logging.Logger
	Metrics           *metrics.Metrics
}

type Orchestrator struct {
	provider     model.Provider
	assembler    *tools.Assembler
	store        Store
	history      *history.Adapter
	querier      evaluator.Querier
	files        evaluator.FileAccess
	modelID      string
	maxSteps     int
	maxExecSteps uint64
	log          *logging.Logger
	metrics      *metrics.Metrics
}

func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Provider == nil:
		return nil, errors.New("agent: provider is required")
	case opts.Assembler == nil:
		return nil, errors.New("agent: assembler is required")
	case opts.Store == nil:
		return nil, errors.New("agent: store is required")
	}

	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	modelID := opts.ModelID
	if modelID == "" {
		modelID = opts.Provider.GetModel()
	}

	return &Orchestrator{
		provider:     opts.Provider,
		assembler:    opts.Assembler,
		store:        opts.Store,
		history:      history.NewAdapter(opts.Store, opts.HistoryWindow),
		querier:      opts.Querier,
		files:        opts.Files,
		modelID:      modelID,
		maxSteps:     maxSteps,
		maxExecSteps: opts.MaxExecutionSteps,
		log:          log.Named("agent"),
		metrics:      opts.Metrics,
	}, nil
}

// run carries the bookkeeping shared by both run modes.
type run struct {
	id    string
	log   *logging.Logger
	state State
}

func (o *Orchestrator) newRun(caller Caller) *run {
	id := uuid.NewString()
	return &run{id: id, log: o.log.WithRunID(id).WithCaller(caller.ID)}
}

func (r *run) enter(s State) {
	r.state = s
	r.log.Debug("run state", "state", s)
}

func (r *run) fail(err error) error {
	r.log.WithError(err).Error("run failed", "stage", r.state, "state", StateFailed)
	return &RunError{RunID: r.id, Stage: r.state, Err: err}
}

func (o *Orchestrator) observe(mode string, start time.Time, err error) {
	result := string(StateDone)
	if err != nil {
		result = string(StateFailed)
	}
	o.metrics.RunFinished(mode, result, time.Since(start))
}

func (o *Orchestrator) assemble(ctx context.Context, r *run, caller Caller, ep *mcp.Endpoint, archive []byte) (*tools.Assembly, error) {
	r.enter(StateAssembling)
	asm, err := o.assembler.Assemble(ctx, tools.RunDependencies{
		CallerID:     caller.ID,
		DataScope:    caller.dataScope(),
		Endpoint:     ep,
		SkillArchive: archive,
	})
	if err != nil {
		return nil, r.fail(err)
	}
	return asm, nil
}

func closeAssembly(r *run, asm *tools.Assembly) {
	if err := asm.Close(); err != nil {
		r.log.WithError(err).Warn("failed to release run resources")
	}
}

// Run answers one question with generated code.
func (o *Orchestrator) Run(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	defer func() { o.observe("code", start, err) }()

	r := o.newRun(req.Caller)
	asm, err := o.assemble(ctx, r, req.Caller, req.Endpoint, req.SkillArchive)
	if err != nil {
		return nil, err
	}
	defer closeAssembly(r, asm)

	r.enter(StateRunning)
	hist := req.History
	if hist == nil {
		hist, err = o.history.Load(ctx, req.Caller.ID, 0)
		if err != nil {
			return nil, r.fail(err)
		}
	}

	messages := make([]model.Message, 0, len(hist)+2)
	messages = append(messages, model.Message{Role: "system", Content: systemPrompt(codeInstructions, schemaFor(&CodeAnswer{}), req.Profile)})
	messages = append(messages, hist...)
	messages = append(messages, model.Message{Role: "user", Content: annotate(req.Query, req.Viewport), Timestamp: time.Now()})

	text, err := o.modelLoop(ctx, r.log, messages, asm.Tools)
	closeAssembly(r, asm)
	if err != nil {
		return nil, r.fail(err)
	}
	var answer CodeAnswer
	if err := parseAnswer(text, codeRequired, &answer); err != nil {
		return nil, r.fail(err)
	}

	r.enter(StateExecuting)
	outcome, err := o.execute(ctx, r, req.Caller, answer.Code)
	if err != nil {
		o.recordInterrupted(ctx, r, req.Caller, req.Query, answer.Code, err)
		return nil, r.fail(err)
	}

	r.enter(StatePersisting)
	err = o.store.AppendProvenance(ctx, storage.ProvenanceRecord{
		CallerID:      req.Caller.ID,
		Query:         req.Query,
		Narrative:     codeNarrative,
		Code:          answer.Code,
		OutputSummary: outcome.String(),
		Metadata:      map[string]string{"model": o.modelID, "run_id": r.id},
	})
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StateDone)
	r.log.WithDuration(time.Since(start)).Info("run finished", "outcome", outcome.Kind)
	return &Result{
		RunID:    r.id,
		State:    StateDone,
		Response: fmt.Sprintf("Disclaimer: %s\n\nFollowups: %s", answer.DisclaimerText(), strings.Join(answer.Followup, ", ")),
		Outcome:  outcome,
		Code:     answer.Code,
	}, nil
}

// execute evaluates generated code. Failures inside the code become error
// outcomes; only cancellation is returned as an error.
func (o *Orchestrator) execute(ctx context.Context, r *run, caller Caller, code string) (evaluator.Outcome, error) {
	ev := evaluator.New(evaluator.Environment{
		Caller: caller.dataScope(),
		Query:  o.querier,
		Files:  o.files,
	}, o.maxExecSteps, r.log)

	outcome, err := ev.Evaluate(ctx, code, resultBinding)
	var execErr *evaluator.ExecutionError
	switch {
	case err == nil:
		return outcome, nil
	case errors.As(err, &execErr):
		r.log.Info("generated code failed", "error", execErr.Msg)
		return evaluator.ErrorOutcome("Execution error: " + execErr.Msg), nil
	case errors.Is(err, evaluator.ErrMissingBinding):
		r.log.Info("generated code set no result")
		return evaluator.ErrorOutcome(missingResultText), nil
	}
	return evaluator.Outcome{}, err
}

// recordInterrupted stores provenance for code that cancellation cut short.
// The write is detached from ctx, which is already done.
func (o *Orchestrator) recordInterrupted(ctx context.Context, r *run, caller Caller, query, code string, cause error) {
	err := o.store.AppendProvenance(context.WithoutCancel(ctx), storage.ProvenanceRecord{
		CallerID:      caller.ID,
		Query:         query,
		Narrative:     codeNarrative,
		Code:          code,
		OutputSummary: evaluator.ErrorOutcome("Execution interrupted: " + cause.Error()).String(),
		Metadata:      map[string]string{"model": o.modelID, "run_id": r.id, "state": string(StateFailed)},
	})
	if err != nil {
		r.log.WithError(err).Warn("failed to record interrupted run")
	}
}

// RunReport runs a long-form research turn. The model writes the report into
// the workspace itself; no code is executed.
func (o *Orchestrator) RunReport(ctx context.Context, req ReportRequest) (res *Result, err error) {
	start := time.Now()
	defer func() { o.observe("report", start, err) }()

	r := o.newRun(req.Caller)
	asm, err := o.assemble(ctx, r, req.Caller, req.Endpoint, req.SkillArchive)
	if err != nil {
		return nil, err
	}
	defer closeAssembly(r, asm)

	r.enter(StateRunning)
	query := enrichReportQuery(req.Query, req.Format)
	messages := []model.Message{
		{Role: "system", Content: systemPrompt(reportInstructions, schemaFor(&ReportAnswer{}), req.Profile)},
		{Role: "user", Content: query, Timestamp: time.Now()},
	}

	text, err := o.modelLoop(ctx, r.log, messages, asm.Tools)
	closeAssembly(r, asm)
	if err != nil {
		return nil, r.fail(err)
	}
	var answer ReportAnswer
	if err := parseAnswer(text, reportRequired, &answer); err != nil {
		return nil, r.fail(err)
	}

	r.enter(StateExecuting)
	outcome := evaluator.Outcome{
		Kind:    evaluator.KindHTML,
		Content: fmt.Sprintf("<p>Research finished! Check your workspace for <b>%s</b></p>", answer.ReportPath),
	}

	r.enter(StatePersisting)
	err = o.store.AppendProvenance(ctx, storage.ProvenanceRecord{
		CallerID:      req.Caller.ID,
		Query:         query,
		Narrative:     reportNarrative,
		OutputSummary: fmt.Sprintf("Report saved to %s\nSummary: %s", answer.ReportPath, answer.Summary),
		Metadata:      map[string]string{"model": o.modelID, "run_id": r.id},
	})
	if err != nil {
		return nil, r.fail(err)
	}

	r.enter(StateDone)
	r.log.WithDuration(time.Since(start)).Info("research finished", "report", answer.ReportPath)
	return &Result{
		RunID:    r.id,
		State:    StateDone,
		Response: fmt.Sprintf("Deep Research completed.\n\nSummary: %s\n\nReport saved at: %s", answer.Summary, answer.ReportPath),
		Outcome:  outcome,
	}, nil
}

// Chat is one interactive turn: it makes sure the user exists, records the
// question, runs it and records the response.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*Result, error) {
	user, err := o.store.EnsureUser(ctx, req.Username)
	if err != nil {
		return nil, err
	}

	// History is read before the new question is stored so it is not sent twice.
	hist, err := o.history.Load(ctx, user.ID, 0)
	if err != nil {
		return nil, err
	}
	if hist == nil {
		hist = []model.Message{}
	}

	if err := o.store.AppendMessage(ctx, user.ID, storage.RoleUser, req.Query); err != nil {
		return nil, err
	}

	res, err := o.Run(ctx, Request{
		Query:        req.Query,
		Caller:       Caller{ID: user.ID, Username: user.Username},
		Profile:      user.Profile,
		Viewport:     req.Viewport,
		Endpoint:     req.Endpoint,
		SkillArchive: req.SkillArchive,
		History:      hist,
	})
	if err != nil {
		return nil, err
	}

	if err := o.store.AppendMessage(ctx, user.ID, storage.RoleModel, res.Response); err != nil {
		return nil, err
	}
	return res, nil
}

// RunScheduled runs a recurring question for callerID, re-reading the
// user's profile each time.
func (o *Orchestrator) RunScheduled(ctx context.Context, callerID, query string) error {
	user, err := o.store.GetUser(ctx, callerID)
	if err != nil {
		return err
	}

	res, err := o.Run(ctx, Request{
		Query:   query,
		Caller:  Caller{ID: user.ID, Username: user.Username},
		Profile: user.Profile,
	})
	if err != nil {
		return err
	}
	o.log.WithCaller(callerID).Info("scheduled run finished", "run_id", res.RunID, "outcome", res.Outcome.Kind)
	return nil
}
