package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/SAP-F-2025/worksheet-session/internal/repositories"
	"github.com/SAP-F-2025/worksheet-session/internal/validator"
	"github.com/google/uuid"
)

// ProblemReloader re-reads a worksheet's problems after a persisted edit.
type ProblemReloader interface {
	ReloadProblems(ctx context.Context, worksheetID string) error
}

type RegenerateRequest struct {
	WorksheetID string `json:"worksheet_id" validate:"required"`
	ProblemID   string `json:"problem_id" validate:"required"`
	Instruction string `json:"instruction,omitempty" validate:"max=2000"`
}

type GenerateRequest struct {
	Subject      models.Subject `json:"subject" validate:"required,subject"`
	Title        string         `json:"title" validate:"required,max=255"`
	ProblemCount int            `json:"problem_count" validate:"required,gt=0,max=100"`
	Difficulty   string         `json:"difficulty,omitempty"`
	Topic        string         `json:"topic,omitempty"`
	ClassroomID  *string        `json:"classroom_id,omitempty"`
}

// ProblemPair pairs a problem with its regenerated version.
type ProblemPair struct {
	Original    models.Problem `json:"original"`
	Regenerated models.Problem `json:"regenerated"`
	Changed     bool           `json:"changed"`
}

type PassagePair struct {
	Original    models.Passage `json:"original"`
	Regenerated models.Passage `json:"regenerated"`
	Changed     bool           `json:"changed"`
}

// Preview is a regeneration result awaiting confirmation. Siblings are the
// other problems sharing the target's passage.
type Preview struct {
	Target      string        `json:"target"`
	WorksheetID string        `json:"worksheet_id"`
	JobID       string        `json:"job_id"`
	Problem     ProblemPair   `json:"problem"`
	Passage     *PassagePair  `json:"passage,omitempty"`
	Siblings    []ProblemPair `json:"siblings,omitempty"`
}

// RegenerationStatus reports the job and, once succeeded, its preview.
type RegenerationStatus struct {
	Job     models.Job `json:"job"`
	Preview *Preview   `json:"preview,omitempty"`
}

type regenerationPayload struct {
	WorksheetID     string           `json:"worksheet_id"`
	Subject         models.Subject   `json:"subject"`
	Problem         models.Problem   `json:"problem"`
	Passage         *models.Passage  `json:"passage,omitempty"`
	RelatedProblems []models.Problem `json:"related_problems,omitempty"`
	Instruction     string           `json:"instruction,omitempty"`
}

type regenerationResult struct {
	Problem         models.Problem   `json:"problem"`
	Passage         *models.Passage  `json:"passage,omitempty"`
	RelatedProblems []models.Problem `json:"related_problems,omitempty"`
}

type tracked struct {
	run     *JobRun
	ready   chan struct{}
	preview *Preview
	err     error
}

// RegenerationService lets a teacher regenerate single problems and whole
// worksheets. Results are only merged after explicit confirmation.
type RegenerationService struct {
	content      repositories.ContentRepository
	jobs         repositories.JobBackend
	orchestrator *JobOrchestrator
	reloader     ProblemReloader
	validator    *validator.Validator
	logger       *ServiceLogger

	baseCtx context.Context
	stop    context.CancelFunc

	mu     sync.Mutex
	drafts map[string]*models.WorksheetContent
	runs   map[string]*tracked
	wg     sync.WaitGroup
}

func NewRegenerationService(
	content repositories.ContentRepository,
	jobs repositories.JobBackend,
	orchestrator *JobOrchestrator,
	reloader ProblemReloader,
	v *validator.Validator,
	logger *slog.Logger,
) *RegenerationService {
	baseCtx, stop := context.WithCancel(context.Background())
	return &RegenerationService{
		content:      content,
		jobs:         jobs,
		orchestrator: orchestrator,
		reloader:     reloader,
		validator:    v,
		logger: NewServiceLogger(logger, LogConfig{
			Service:   "worksheet-session",
			Component: "regeneration",
		}),
		baseCtx: baseCtx,
		stop:    stop,
		drafts:  make(map[string]*models.WorksheetContent),
		runs:    make(map[string]*tracked),
	}
}

// RegenerationTarget identifies the edit target of one problem.
func RegenerationTarget(worksheetID, problemID string) string {
	return worksheetID + ":" + problemID
}

// ===== WORKSHEET GENERATION =====

// Generate runs a generate job and keeps the result as an unsaved draft.
func (s *RegenerationService) Generate(ctx context.Context, req GenerateRequest) (*models.WorksheetContent, error) {
	op := s.logger.WithOperation(ctx, "generate_worksheet", "")

	if err := s.validator.ValidateStruct(req); err != nil {
		op.LogResult("", "worksheet", err)
		return nil, err
	}

	target := "generate:" + uuid.NewString()
	raw, err := s.orchestrator.Run(ctx, BackendJob(s.jobs, target, models.JobGenerate, req))
	if err != nil {
		op.LogResult(target, "worksheet", err)
		return nil, err
	}

	var draft models.WorksheetContent
	if err := json.Unmarshal(raw, &draft); err != nil {
		err = fmt.Errorf("failed to decode generated worksheet: %w", err)
		op.LogResult(target, "worksheet", err)
		return nil, err
	}
	if draft.Worksheet.ID == "" {
		draft.Worksheet.ID = uuid.NewString()
	}
	if draft.Worksheet.Subject == "" {
		draft.Worksheet.Subject = req.Subject
	}
	if draft.Worksheet.Title == "" {
		draft.Worksheet.Title = req.Title
	}
	if draft.Worksheet.Status == "" {
		draft.Worksheet.Status = models.WorksheetAssigned
	}
	if draft.Worksheet.ClassroomID == nil {
		draft.Worksheet.ClassroomID = req.ClassroomID
	}
	for i := range draft.Problems {
		if draft.Problems[i].Subject == "" {
			draft.Problems[i].Subject = draft.Worksheet.Subject
		}
	}
	draft.Persisted = false

	if err := s.validator.Validate(&draft); err != nil {
		op.LogResult(draft.Worksheet.ID, "worksheet", err)
		return nil, err
	}

	s.mu.Lock()
	s.drafts[draft.Worksheet.ID] = &draft
	s.mu.Unlock()

	op.LogResult(draft.Worksheet.ID, "worksheet", nil)
	return cloneContent(&draft), nil
}

// Draft returns a copy of an unsaved worksheet.
func (s *RegenerationService) Draft(worksheetID string) (*models.WorksheetContent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[worksheetID]
	if !ok {
		return nil, false
	}
	return cloneContent(d), true
}

// SaveDraft persists a draft; later edits go through the content repository.
func (s *RegenerationService) SaveDraft(ctx context.Context, worksheetID string) error {
	s.mu.Lock()
	draft, ok := s.drafts[worksheetID]
	var snapshot *models.WorksheetContent
	if ok {
		snapshot = cloneContent(draft)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("draft %s: %w", worksheetID, ErrNotFound)
	}

	if err := s.content.SaveWorksheetContent(ctx, snapshot); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.drafts, worksheetID)
	s.mu.Unlock()
	return nil
}

// ===== PROBLEM REGENERATION =====

// Regenerate starts regenerating one problem. A regeneration already running
// for the same problem is cancelled and its result dropped.
func (s *RegenerationService) Regenerate(ctx context.Context, req RegenerateRequest) (*JobRun, error) {
	op := s.logger.WithOperation(ctx, "regenerate_problem", "")

	if err := s.validator.ValidateStruct(req); err != nil {
		op.LogResult(req.ProblemID, "problem", err)
		return nil, err
	}

	content, err := s.loadContent(ctx, req.WorksheetID)
	if err != nil {
		op.LogResult(req.ProblemID, "problem", err)
		return nil, err
	}
	problem, _ := content.FindProblem(req.ProblemID)
	if problem == nil {
		err := fmt.Errorf("%w: %s", ErrUnknownProblem, req.ProblemID)
		op.LogResult(req.ProblemID, "problem", err)
		return nil, err
	}

	payload := regenerationPayload{
		WorksheetID: req.WorksheetID,
		Subject:     problem.Subject,
		Problem:     *problem,
		Instruction: req.Instruction,
	}
	if pid, ok := problem.PassageID(); ok {
		if passage, _ := content.FindPassage(pid); passage != nil {
			payload.Passage = passage
		}
		payload.RelatedProblems = content.ProblemsSharingPassage(pid, problem.ID)
	}

	target := RegenerationTarget(req.WorksheetID, req.ProblemID)
	run, err := s.orchestrator.Start(s.baseCtx, BackendJob(s.jobs, target, models.JobRegenerate, payload))
	if err != nil {
		op.LogResult(req.ProblemID, "problem", err)
		return nil, err
	}

	entry := &tracked{run: run, ready: make(chan struct{})}
	s.mu.Lock()
	s.runs[target] = entry
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-run.Done()
		raw, runErr := run.Outcome()

		var preview *Preview
		if runErr == nil {
			preview, runErr = buildPreview(target, run.ID(), payload, raw)
		}

		s.mu.Lock()
		entry.preview = preview
		entry.err = runErr
		s.mu.Unlock()
		close(entry.ready)
	}()

	op.LogResult(req.ProblemID, "problem", nil)
	return run, nil
}

func buildPreview(target, jobID string, payload regenerationPayload, raw json.RawMessage) (*Preview, error) {
	var result regenerationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode regeneration result: %w", err)
	}

	regenerated := result.Problem
	regenerated.ID = payload.Problem.ID
	regenerated.Subject = payload.Problem.Subject
	if err := regenerated.CheckVariant(); err != nil {
		return nil, err
	}

	preview := &Preview{
		Target:      target,
		WorksheetID: payload.WorksheetID,
		JobID:       jobID,
		Problem: ProblemPair{
			Original:    payload.Problem,
			Regenerated: regenerated,
			Changed:     !payload.Problem.Equal(regenerated),
		},
	}

	if payload.Passage != nil {
		pair := &PassagePair{Original: *payload.Passage, Regenerated: *payload.Passage}
		if result.Passage != nil {
			pair.Regenerated = *result.Passage
			pair.Regenerated.ID = payload.Passage.ID
			pair.Changed = !payload.Passage.Equal(pair.Regenerated)
		}
		preview.Passage = pair
	}

	updated := make(map[string]models.Problem, len(result.RelatedProblems))
	for _, p := range result.RelatedProblems {
		updated[p.ID] = p
	}
	for _, original := range payload.RelatedProblems {
		pair := ProblemPair{Original: original, Regenerated: original}
		if p, ok := updated[original.ID]; ok {
			p.Subject = original.Subject
			pair.Regenerated = p
			pair.Changed = !original.Equal(p)
		}
		preview.Siblings = append(preview.Siblings, pair)
	}

	return preview, nil
}

// Status reports the regeneration job for target and its preview, if ready.
func (s *RegenerationService) Status(target string) (RegenerationStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.runs[target]
	if !ok {
		return RegenerationStatus{}, false
	}
	status := RegenerationStatus{Job: entry.run.Snapshot(), Preview: entry.preview}
	if entry.err != nil && status.Job.Error == "" {
		status.Job.Error = entry.err.Error()
	}
	return status, true
}

// AwaitPreview blocks until the regeneration for target finishes.
func (s *RegenerationService) AwaitPreview(ctx context.Context, target string) (*Preview, error) {
	s.mu.Lock()
	entry, ok := s.runs[target]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNoPendingReview
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-entry.ready:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs[target] != entry {
		return nil, ErrJobCancelled
	}
	return entry.preview, entry.err
}

// Discard drops the regeneration for target, cancelling it when running.
func (s *RegenerationService) Discard(target string) {
	s.mu.Lock()
	entry, ok := s.runs[target]
	delete(s.runs, target)
	s.mu.Unlock()

	if ok {
		entry.run.Cancel()
		s.logger.Logger().Info("Regeneration discarded", "target", target)
	}
}

// Apply merges a confirmed preview. Drafts change in memory only; persisted
// worksheets get one update per changed entity and are then reloaded.
func (s *RegenerationService) Apply(ctx context.Context, target string) error {
	op := s.logger.WithOperation(ctx, "apply_regeneration", "")

	s.mu.Lock()
	entry, ok := s.runs[target]
	if !ok || entry.preview == nil {
		s.mu.Unlock()
		op.LogResult(target, "problem", ErrNoPendingReview)
		return ErrNoPendingReview
	}
	preview := entry.preview

	if draft, isDraft := s.drafts[preview.WorksheetID]; isDraft {
		draft.ReplaceProblem(preview.Problem.Regenerated)
		if preview.Passage != nil && preview.Passage.Changed {
			draft.ReplacePassage(preview.Passage.Regenerated)
		}
		for _, sib := range preview.Siblings {
			if sib.Changed {
				draft.ReplaceProblem(sib.Regenerated)
			}
		}
		delete(s.runs, target)
		s.mu.Unlock()
		op.LogResult(target, "problem", nil)
		return nil
	}
	s.mu.Unlock()

	if err := s.applyPersisted(ctx, preview); err != nil {
		op.LogResult(target, "problem", err)
		return err
	}

	s.mu.Lock()
	if s.runs[target] == entry {
		delete(s.runs, target)
	}
	s.mu.Unlock()

	var err error
	if s.reloader != nil {
		err = s.reloader.ReloadProblems(ctx, preview.WorksheetID)
	}
	op.LogResult(target, "problem", err)
	return err
}

func (s *RegenerationService) applyPersisted(ctx context.Context, preview *Preview) error {
	if err := s.content.UpdateProblem(ctx, preview.WorksheetID, preview.Problem.Regenerated); err != nil {
		return fmt.Errorf("failed to update problem %s: %w", preview.Problem.Original.ID, err)
	}
	if preview.Passage != nil && preview.Passage.Changed {
		if err := s.content.UpdatePassage(ctx, preview.WorksheetID, preview.Passage.Regenerated); err != nil {
			return fmt.Errorf("failed to update passage %s: %w", preview.Passage.Original.ID, err)
		}
	}
	for _, sib := range preview.Siblings {
		if !sib.Changed {
			continue
		}
		if err := s.content.UpdateProblem(ctx, preview.WorksheetID, sib.Regenerated); err != nil {
			return fmt.Errorf("failed to update problem %s: %w", sib.Original.ID, err)
		}
	}
	return nil
}

func (s *RegenerationService) loadContent(ctx context.Context, worksheetID string) (*models.WorksheetContent, error) {
	s.mu.Lock()
	draft, ok := s.drafts[worksheetID]
	var snapshot *models.WorksheetContent
	if ok {
		snapshot = cloneContent(draft)
	}
	s.mu.Unlock()
	if ok {
		return snapshot, nil
	}

	content, err := s.content.GetWorksheetContent(ctx, worksheetID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrWorksheetLoadFailed, err)
	}
	return content, nil
}

// Close cancels running regenerations and waits for their watchers.
func (s *RegenerationService) Close() {
	s.stop()
	s.wg.Wait()
}

func cloneContent(c *models.WorksheetContent) *models.WorksheetContent {
	cp := *c
	cp.Problems = append([]models.Problem(nil), c.Problems...)
	cp.Passages = append([]models.Passage(nil), c.Passages...)
	return &cp
}
