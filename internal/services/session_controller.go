package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/SAP-F-2025/worksheet-session/internal/events"
	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/SAP-F-2025/worksheet-session/internal/repositories"
	"github.com/SAP-F-2025/worksheet-session/internal/validator"
	"github.com/google/uuid"
)

type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateLoading    SessionState = "loading"
	StateReady      SessionState = "ready"
	StateInProgress SessionState = "in_progress"
	StateSubmitting SessionState = "submitting"
	StateGraded     SessionState = "graded"
	// StateReview displays results of an already finished worksheet.
	StateReview SessionState = "review"
)

// SessionSnapshot is an immutable copy of controller state.
type SessionSnapshot struct {
	State        SessionState                   `json:"state"`
	Worksheet    *models.Worksheet              `json:"worksheet,omitempty"`
	Problems     []models.Problem               `json:"problems,omitempty"`
	Passages     []models.Passage               `json:"passages,omitempty"`
	Session      *models.Session                `json:"session,omitempty"`
	CurrentIndex int                            `json:"current_index"`
	Result       models.GradingResult           `json:"result,omitempty"`
	Review       map[string]models.AnswerStatus `json:"review,omitempty"`
	Summary      *models.ReviewSummary          `json:"summary,omitempty"`
	Remaining    *time.Duration                 `json:"remaining,omitempty"`
	Expired      bool                           `json:"expired"`
	LastError    string                         `json:"last_error,omitempty"`
}

// SessionDeps are the collaborators of a SessionController.
type SessionDeps struct {
	Repositories repositories.AssignmentRepositories
	Jobs         repositories.JobBackend
	Orchestrator *JobOrchestrator
	Answers      *AnswerStore
	Reconciler   *ResultReconciler
	Validator    *validator.Validator
	Notifier     *EventNotifier
	Logger       *slog.Logger
	// TimeLimit enables the session countdown when positive.
	TimeLimit time.Duration
}

// SessionController drives one learner through selecting, starting,
// answering and submitting a worksheet. All state changes happen under mu;
// network calls are made outside it and their results are discarded when the
// selection changed in the meantime.
type SessionController struct {
	studentID string
	deps      SessionDeps
	logger    *ServiceLogger

	mu          sync.Mutex
	generation  uint64
	busy        bool
	state       SessionState
	worksheet   *models.Worksheet
	content     *models.WorksheetContent
	session     *models.Session
	cursor      int
	result      models.GradingResult
	review      map[string]models.AnswerStatus
	assignments []models.Assignment
	lastErr     error
	appliedLink *models.DeepLink
	now         func() time.Time
}

func NewSessionController(studentID string, deps SessionDeps) *SessionController {
	return &SessionController{
		studentID: studentID,
		deps:      deps,
		logger: NewServiceLogger(deps.Logger.With("student_id", studentID), LogConfig{
			Service:   "worksheet-session",
			Component: "session_controller",
		}),
		state: StateIdle,
		now:   time.Now,
	}
}

func (c *SessionController) StudentID() string {
	return c.studentID
}

// SelectWorksheet loads a worksheet and its problems, discarding any session
// of the previous selection. Finished worksheets open in result review.
func (c *SessionController) SelectWorksheet(ctx context.Context, ws models.Worksheet) error {
	op := c.logger.WithOperation(ctx, "select_worksheet", c.studentID)
	_, err := c.selectWorksheet(ctx, ws, nil)
	op.LogResult(ws.ID, "worksheet", err)
	return err
}

// Claim returns a token for the current selection. SelectClaimed and
// StartClaimed fail with ErrSelectionSuperseded once another selection or
// a leave has happened after the claim.
func (c *SessionController) Claim() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// ClaimLink claims link for dispatch unless the same link was already
// applied and its worksheet is still selected.
func (c *SessionController) ClaimLink(link models.DeepLink) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.appliedLink != nil && *c.appliedLink == link && c.worksheet != nil &&
		(c.worksheet.ID == link.AssignmentID || c.worksheet.AssignmentID == link.AssignmentID) {
		return 0, false
	}
	c.appliedLink = &link
	return c.generation, true
}

// SelectClaimed behaves like SelectWorksheet but only while claim is current.
// It returns the token of the new selection for StartClaimed.
func (c *SessionController) SelectClaimed(ctx context.Context, claim uint64, ws models.Worksheet) (uint64, error) {
	op := c.logger.WithOperation(ctx, "select_worksheet", c.studentID)
	token, err := c.selectWorksheet(ctx, ws, &claim)
	op.LogResult(ws.ID, "worksheet", err)
	return token, err
}

func (c *SessionController) selectWorksheet(ctx context.Context, ws models.Worksheet, claim *uint64) (uint64, error) {
	if err := c.deps.Validator.ValidateStruct(ws); err != nil {
		return 0, err
	}
	repo, err := c.deps.Repositories.For(ws.Subject)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	if claim != nil && *claim != c.generation {
		c.mu.Unlock()
		return 0, ErrSelectionSuperseded
	}
	c.generation++
	gen := c.generation
	c.resetLocked()
	c.state = StateLoading
	if status, ok := c.canonicalStatusLocked(ws.ID); ok {
		ws.Status = status
	}
	c.worksheet = &ws
	c.mu.Unlock()

	detail, err := repo.GetAssignmentDetail(ctx, ws.ID, c.studentID)
	if err == nil {
		err = c.checkDetail(ws, detail)
	}

	var results []models.GradingResult
	var resultsErr error
	if err == nil && ws.Status.IsFinished() {
		results, resultsErr = repo.GetResults(ctx, ws.ResultKey())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return 0, ErrSelectionSuperseded
	}
	if err != nil {
		c.resetLocked()
		c.state = StateIdle
		c.lastErr = fmt.Errorf("%w: %w", ErrWorksheetLoadFailed, err)
		return 0, c.lastErr
	}

	c.content = &models.WorksheetContent{
		Worksheet: ws,
		Problems:  detail.Problems,
		Passages:  detail.Passages,
		Persisted: true,
	}

	if !ws.Status.IsFinished() {
		c.state = StateReady
		return gen, nil
	}

	c.state = StateReview
	if resultsErr != nil {
		c.logger.Logger().Warn("Failed to load results for review", "worksheet_id", ws.ID, "error", resultsErr)
		c.lastErr = resultsErr
		c.review = map[string]models.AnswerStatus{}
		return gen, nil
	}
	c.review = c.deps.Reconciler.Reconcile(ctx, ws.ID, c.studentID, detail.Problems, results)
	return gen, nil
}

func (c *SessionController) checkDetail(ws models.Worksheet, detail *models.AssignmentDetail) error {
	content := &models.WorksheetContent{Worksheet: ws, Problems: detail.Problems, Passages: detail.Passages}
	if errs := c.deps.Validator.Content().ValidateStructure(content); len(errs) > 0 {
		return errs
	}
	return nil
}

// canonicalStatusLocked returns the status from the last assignment list.
func (c *SessionController) canonicalStatusLocked(worksheetID string) (models.WorksheetStatus, bool) {
	for _, a := range c.assignments {
		if a.ID == worksheetID {
			return a.Status, true
		}
	}
	return "", false
}

func (c *SessionController) resetLocked() {
	c.worksheet = nil
	c.content = nil
	c.session = nil
	c.cursor = 0
	c.result = nil
	c.review = nil
	c.lastErr = nil
	c.busy = false
}

// Start opens a session on the selected, unfinished worksheet. Subjects
// tracking a remote session open one first.
func (c *SessionController) Start(ctx context.Context) (*models.Session, error) {
	return c.start(ctx, nil, "")
}

// StartClaimed starts worksheetID only while claim, as returned by
// SelectClaimed, is current and that worksheet is still the selection.
func (c *SessionController) StartClaimed(ctx context.Context, claim uint64, worksheetID string) (*models.Session, error) {
	return c.start(ctx, &claim, worksheetID)
}

func (c *SessionController) start(ctx context.Context, claim *uint64, worksheetID string) (*models.Session, error) {
	op := c.logger.WithOperation(ctx, "start_session", c.studentID)

	c.mu.Lock()
	if claim != nil && (*claim != c.generation || c.worksheet == nil || c.worksheet.ID != worksheetID) {
		c.mu.Unlock()
		op.LogResult(worksheetID, "session", ErrSelectionSuperseded)
		return nil, ErrSelectionSuperseded
	}
	if c.state != StateReady || c.busy {
		state := c.state
		c.mu.Unlock()
		err := c.transitionError(state)
		op.LogResult("", "session", err)
		return nil, err
	}
	ws := *c.worksheet
	gen := c.generation
	session := &models.Session{
		ID:          uuid.NewString(),
		WorksheetID: ws.ID,
		Subject:     ws.Subject,
		StudentID:   c.studentID,
		Answers:     make(map[string]string),
		Status:      models.SessionNotStarted,
		StartedAt:   c.now(),
	}
	c.busy = true
	c.mu.Unlock()

	var remoteErr error
	if ws.Subject.TracksRemoteSession() {
		repo, err := c.deps.Repositories.For(ws.Subject)
		if err == nil {
			var remoteID string
			remoteID, err = repo.StartSession(ctx, ws.ID, c.studentID)
			session.RemoteSessionID = &remoteID
		}
		remoteErr = err
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		op.LogResult(ws.ID, "session", ErrSelectionSuperseded)
		return nil, ErrSelectionSuperseded
	}
	c.busy = false
	if remoteErr != nil {
		c.lastErr = remoteErr
		c.mu.Unlock()
		op.LogResult(ws.ID, "session", remoteErr)
		return nil, remoteErr
	}
	session.Status = models.SessionInProgress
	c.session = session
	c.cursor = 0
	c.state = StateInProgress
	c.lastErr = nil
	snap := session.Clone()
	c.mu.Unlock()

	c.deps.Notifier.Notify(ctx, events.NewSessionStartedEvent(snap))
	op.LogResult(ws.ID, "session", nil)
	return snap, nil
}

// Answer records value for problemID. The local value is authoritative;
// the remote autosave that follows may fail without touching it.
func (c *SessionController) Answer(problemID, value string) error {
	c.mu.Lock()
	if c.state != StateInProgress {
		state := c.state
		c.mu.Unlock()
		return c.transitionError(state)
	}
	if p, _ := c.content.FindProblem(problemID); p == nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownProblem, problemID)
	}
	c.session.Answers[problemID] = value
	snap := c.session.Clone()
	c.mu.Unlock()

	if snap.AcceptsAutosave() {
		repo, err := c.deps.Repositories.For(snap.Subject)
		if err == nil {
			c.deps.Answers.Save(repo, snap, problemID, value)
		}
	}
	return nil
}

// Submit grades the session once every problem is answered. On failure the
// session returns to in-progress with its answers intact.
func (c *SessionController) Submit(ctx context.Context) (models.GradingResult, error) {
	op := c.logger.WithOperation(ctx, "submit_session", c.studentID)

	c.mu.Lock()
	if c.state != StateInProgress {
		state := c.state
		c.mu.Unlock()
		err := c.transitionError(state)
		op.LogResult("", "session", err)
		return nil, err
	}

	total := len(c.content.Problems)
	answered := 0
	for _, p := range c.content.Problems {
		if _, ok := c.session.Answers[p.ID]; ok {
			answered++
		}
	}
	if answered < total {
		ws := c.worksheet.ID
		c.mu.Unlock()
		err := NewSubmissionGateError(answered, total)
		op.LogResult(ws, "session", err)
		return nil, err
	}

	gen := c.generation
	ws := *c.worksheet
	problems := c.content.Problems
	c.state = StateSubmitting
	c.session.Status = models.SessionSubmitting
	snap := c.session.Clone()
	c.mu.Unlock()

	elapsed := int(c.now().Sub(snap.StartedAt).Seconds())
	req := models.SubmitRequest{
		WorksheetID: ws.ID,
		SessionID:   snap.RemoteSessionID,
		StudentID:   c.studentID,
		Answers:     snap.Answers,
		TimeSpent:   &elapsed,
	}

	c.deps.Notifier.Notify(ctx, events.NewSessionSubmittedEvent(snap))

	content := &models.WorksheetContent{Worksheet: ws, Problems: problems}
	result, err := c.submitRemote(ctx, content, req)
	var review map[string]models.AnswerStatus
	if err == nil {
		review = c.deps.Reconciler.ReconcileResult(ctx, ws.ID, c.studentID, problems, result)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		op.LogResult(ws.ID, "session", ErrSelectionSuperseded)
		return nil, ErrSelectionSuperseded
	}
	if err != nil {
		c.state = StateInProgress
		c.session.Status = models.SessionInProgress
		c.lastErr = err
		c.mu.Unlock()
		op.LogResult(ws.ID, "session", err)
		return nil, err
	}
	c.state = StateGraded
	c.session.Status = models.SessionDone
	c.result = result
	c.review = review
	c.cursor = 0
	c.lastErr = nil
	graded := c.session.Clone()
	c.mu.Unlock()

	c.deps.Notifier.Notify(ctx, events.NewSessionGradedEvent(graded, result))
	op.LogResult(ws.ID, "session", nil)

	if _, err := c.RefreshAssignments(ctx); err != nil {
		c.logger.Logger().Warn("Assignment refresh after submit failed", "worksheet_id", ws.ID, "error", err)
	}
	return result, nil
}

func (c *SessionController) submitRemote(ctx context.Context, content *models.WorksheetContent, req models.SubmitRequest) (models.GradingResult, error) {
	if err := c.deps.Validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if errs := c.deps.Validator.Content().ValidateAnswers(content, req.Answers); len(errs) > 0 {
		return nil, errs
	}
	repo, err := c.deps.Repositories.For(content.Worksheet.Subject)
	if err != nil {
		return nil, err
	}
	return repo.SubmitAnswers(ctx, req)
}

// GoTo moves the cursor, clamped to the problem range.
func (c *SessionController) GoTo(index int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateInProgress, StateGraded, StateReview:
	default:
		return c.cursor, c.transitionError(c.state)
	}

	n := len(c.content.Problems)
	switch {
	case n == 0 || index < 0:
		index = 0
	case index >= n:
		index = n - 1
	}
	c.cursor = index
	if c.session != nil {
		c.session.CurrentIndex = index
	}
	return index, nil
}

// CaptureHandwriting sends a handwriting image for recognition and feeds the
// extracted text back through Answer. Failures leave the answer untouched.
func (c *SessionController) CaptureHandwriting(ctx context.Context, problemID string, image []byte, filename string) (*models.OcrResult, error) {
	op := c.logger.WithOperation(ctx, "capture_handwriting", c.studentID)

	c.mu.Lock()
	if c.state != StateInProgress {
		state := c.state
		c.mu.Unlock()
		return nil, c.transitionError(state)
	}
	if !c.session.AcceptsAutosave() {
		c.mu.Unlock()
		return nil, ErrNoRemoteSession
	}
	if p, _ := c.content.FindProblem(problemID); p == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownProblem, problemID)
	}
	req := models.OcrRequest{
		SessionID: *c.session.RemoteSessionID,
		ProblemID: problemID,
		Answer:    c.session.Answers[problemID],
		Image:     image,
		Filename:  filename,
	}
	c.mu.Unlock()

	result, err := c.recognize(ctx, req)
	if err != nil {
		c.logger.Logger().Warn("Handwriting recognition failed", "problem_id", problemID, "error", err)
		op.LogResult(problemID, "problem", err)
		return nil, err
	}

	if result.ExtractedText != nil && *result.ExtractedText != "" {
		if err := c.Answer(problemID, *result.ExtractedText); err != nil {
			op.LogResult(problemID, "problem", err)
			return result, err
		}
	}
	op.LogResult(problemID, "problem", nil)
	return result, nil
}

func (c *SessionController) recognize(ctx context.Context, req models.OcrRequest) (*models.OcrResult, error) {
	if err := c.deps.Validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	result, err := c.deps.Jobs.SubmitOcr(ctx, req)
	if err != nil {
		return nil, err
	}
	if result.TaskID == "" || result.ExtractedText != nil {
		return result, nil
	}

	// Queued recognition: poll the ocr job until it settles.
	taskID := result.TaskID
	raw, err := c.deps.Orchestrator.Run(ctx, JobSpec{
		Target: "ocr:" + req.SessionID + ":" + req.ProblemID,
		Kind:   models.JobOCR,
		Submit: func(context.Context) (string, error) { return taskID, nil },
		Status: c.deps.Jobs.GetJobStatus,
	})
	if err != nil {
		return nil, err
	}

	var polled models.OcrResult
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &polled); err != nil {
			return nil, fmt.Errorf("failed to decode ocr result: %w", err)
		}
	}
	polled.TaskID = taskID
	return &polled, nil
}

// RefreshAssignments re-reads the canonical assignment list from every
// subject backend. Subjects that fail are skipped and reported.
func (c *SessionController) RefreshAssignments(ctx context.Context) ([]models.Assignment, error) {
	var (
		list []models.Assignment
		errs []error
	)
	for _, subject := range models.Subjects {
		repo, ok := c.deps.Repositories[subject]
		if !ok {
			continue
		}
		items, err := repo.ListAssignments(ctx, c.studentID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", subject, err))
			continue
		}
		list = append(list, items...)
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].DeployedAt.After(list[j].DeployedAt)
	})

	c.mu.Lock()
	c.assignments = list
	if c.worksheet != nil {
		if status, ok := c.canonicalStatusLocked(c.worksheet.ID); ok && c.worksheet.Status.CanAdvanceTo(status) {
			c.worksheet.Status = status
		}
	}
	out := append([]models.Assignment(nil), list...)
	c.mu.Unlock()

	return out, errors.Join(errs...)
}

// Assignments returns the last fetched assignment list.
func (c *SessionController) Assignments() []models.Assignment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Assignment(nil), c.assignments...)
}

// FindAssignment looks up an assignment by its assignment or worksheet id.
func (c *SessionController) FindAssignment(id string) (models.Assignment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.assignments {
		if a.ID == id || (a.AssignmentID != "" && a.AssignmentID == id) {
			return a, true
		}
	}
	return models.Assignment{}, false
}

// ReloadProblems re-fetches the problems of worksheetID when it is the
// current selection. Answers to problems that disappeared are dropped.
func (c *SessionController) ReloadProblems(ctx context.Context, worksheetID string) error {
	c.mu.Lock()
	if c.worksheet == nil || c.worksheet.ID != worksheetID || c.content == nil {
		c.mu.Unlock()
		return nil
	}
	ws := *c.worksheet
	gen := c.generation
	c.mu.Unlock()

	repo, err := c.deps.Repositories.For(ws.Subject)
	if err != nil {
		return err
	}
	detail, err := repo.GetAssignmentDetail(ctx, ws.ID, c.studentID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWorksheetLoadFailed, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return ErrSelectionSuperseded
	}

	c.content.Problems = detail.Problems
	c.content.Passages = detail.Passages
	if c.session != nil {
		for id := range c.session.Answers {
			if p, _ := c.content.FindProblem(id); p == nil {
				delete(c.session.Answers, id)
			}
		}
	}
	if n := len(c.content.Problems); c.cursor >= n {
		c.cursor = max(n-1, 0)
	}
	return nil
}

// Leave discards the selection and any session without saving.
func (c *SessionController) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.resetLocked()
	c.state = StateIdle
}

func (c *SessionController) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a deep copy of the current state.
func (c *SessionController) Snapshot() SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := SessionSnapshot{
		State:        c.state,
		CurrentIndex: c.cursor,
		Session:      c.session.Clone(),
	}
	if c.worksheet != nil {
		ws := *c.worksheet
		snap.Worksheet = &ws
	}
	if c.content != nil {
		snap.Problems = append([]models.Problem(nil), c.content.Problems...)
		snap.Passages = append([]models.Passage(nil), c.content.Passages...)
	}
	if c.result != nil {
		snap.Result = make(models.GradingResult, len(c.result))
		for k, v := range c.result {
			snap.Result[k] = v
		}
	}
	if c.review != nil {
		snap.Review = make(map[string]models.AnswerStatus, len(c.review))
		for k, v := range c.review {
			snap.Review[k] = v
		}
		summary := models.Summarize(c.content.ProblemIDs(), c.review)
		snap.Summary = &summary
	}
	if c.session != nil && c.deps.TimeLimit > 0 {
		countdown := NewCountdown(c.session.StartedAt, c.deps.TimeLimit)
		countdown.now = c.now
		remaining := countdown.Remaining()
		snap.Remaining = &remaining
		snap.Expired = remaining == 0
	}
	if c.lastErr != nil {
		snap.LastError = UserMessage(c.lastErr)
	}
	return snap
}

// Countdown returns the time limit observer of the running session. It
// reports false when no session is in progress or no limit is configured.
func (c *SessionController) Countdown() (*Countdown, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress || c.session == nil || c.deps.TimeLimit <= 0 {
		return nil, false
	}
	countdown := NewCountdown(c.session.StartedAt, c.deps.TimeLimit)
	countdown.now = c.now
	return countdown, true
}

func (c *SessionController) transitionError(state SessionState) error {
	switch state {
	case StateIdle:
		return ErrNoWorksheetSelected
	case StateReview, StateGraded:
		return fmt.Errorf("%w: %w", ErrWorksheetFinished, ErrInvalidTransition)
	}
	return fmt.Errorf("%w (state %s)", ErrInvalidTransition, state)
}
