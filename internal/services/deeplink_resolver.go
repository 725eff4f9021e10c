package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/SAP-F-2025/worksheet-session/internal/models"
)

// Dispatch describes a deep link that was applied to a controller.
type Dispatch struct {
	Source  models.HandoffSource `json:"source"`
	Link    models.DeepLink      `json:"link"`
	Started bool                 `json:"started"`
}

// DeepLinkResolver turns an external assignment reference into a controller
// action. The controller selection is claimed together with the reference,
// so a manual selection made meanwhile is never overwritten by a stale
// reference. A URL reference is recorded on the controller and is applied
// again only after its worksheet stopped being the selection.
type DeepLinkResolver struct {
	controller *SessionController
	store      *HandoffStore
	logger     *slog.Logger
}

// NewDeepLinkResolver creates a resolver for one request. It keeps no state
// of its own.
func NewDeepLinkResolver(controller *SessionController, store *HandoffStore, logger *slog.Logger) *DeepLinkResolver {
	return &DeepLinkResolver{
		controller: controller,
		store:      store,
		logger:     logger.With("student_id", controller.StudentID()),
	}
}

// Resolve applies urlLink when present, otherwise the stored handoff. A URL
// reference takes precedence and leaves the stored handoff in place. It
// returns nil when there was nothing to apply.
func (r *DeepLinkResolver) Resolve(ctx context.Context, urlLink *models.DeepLink) (*Dispatch, error) {
	if !urlLink.IsZero() {
		claim, ok := r.controller.ClaimLink(*urlLink)
		if !ok {
			r.logger.Debug("Deep link already applied", "assignment_id", urlLink.AssignmentID)
			return nil, nil
		}
		return r.dispatch(ctx, claim, models.HandoffFromURL, *urlLink)
	}

	claim := r.controller.Claim()
	link, err := r.store.Take(ctx, r.controller.StudentID())
	if err != nil || link == nil {
		return nil, err
	}
	return r.dispatch(ctx, claim, models.HandoffFromStorage, *link)
}

// Next waits for the next handoff pushed for this learner and applies it.
// A handoff already pending when Next is called is applied immediately.
func (r *DeepLinkResolver) Next(ctx context.Context) (*Dispatch, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	notices, err := r.store.Subscribe(ctx, r.controller.StudentID())
	if err != nil {
		return nil, err
	}

	claim := r.controller.Claim()
	if link, err := r.store.Take(ctx, r.controller.StudentID()); err != nil {
		return nil, err
	} else if link != nil {
		return r.dispatch(ctx, claim, models.HandoffFromStorage, *link)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case notice, ok := <-notices:
			if !ok {
				return nil, ctx.Err()
			}
			claim := r.controller.Claim()
			link, err := r.store.Take(ctx, notice.StudentID)
			if err != nil {
				return nil, err
			}
			if link == nil {
				// Another reader claimed it first.
				r.logger.Debug("Handoff already consumed", "assignment_id", notice.Link.AssignmentID)
				continue
			}
			return r.dispatch(ctx, claim, models.HandoffFromPush, *link)
		}
	}
}

// dispatch selects and, unless only results were asked for, starts the linked
// worksheet. Both steps fail with ErrSelectionSuperseded when the learner
// changed the selection after claim was taken.
func (r *DeepLinkResolver) dispatch(ctx context.Context, claim uint64, source models.HandoffSource, link models.DeepLink) (*Dispatch, error) {
	r.logger.Info("Dispatching deep link",
		"source", source,
		"assignment_id", link.AssignmentID,
		"subject", link.Subject,
		"view_result", link.ViewResult)

	ws := r.worksheetFor(ctx, link)
	selected, err := r.controller.SelectClaimed(ctx, claim, ws)
	if err != nil {
		if errors.Is(err, ErrSelectionSuperseded) {
			r.logger.Info("Deep link dropped, selection changed", "assignment_id", link.AssignmentID)
		}
		return nil, err
	}

	d := &Dispatch{Source: source, Link: link}
	if link.ViewResult {
		return d, nil
	}
	if _, err := r.controller.StartClaimed(ctx, selected, ws.ID); err != nil {
		if errors.Is(err, ErrWorksheetFinished) {
			// Opened in result review.
			return d, nil
		}
		return d, err
	}
	d.Started = true
	return d, nil
}

// worksheetFor prefers the canonical assignment entry over the link contents.
func (r *DeepLinkResolver) worksheetFor(ctx context.Context, link models.DeepLink) models.Worksheet {
	if a, ok := r.controller.FindAssignment(link.AssignmentID); ok {
		return a.Worksheet
	}
	if _, err := r.controller.RefreshAssignments(ctx); err != nil {
		r.logger.Warn("Assignment refresh during deep link failed", "error", err)
	}
	if a, ok := r.controller.FindAssignment(link.AssignmentID); ok {
		return a.Worksheet
	}

	status := models.WorksheetAssigned
	if link.ViewResult {
		status = models.WorksheetCompleted
	}
	return models.Worksheet{
		ID:           link.AssignmentID,
		AssignmentID: link.AssignmentID,
		Subject:      link.Subject,
		Title:        link.AssignmentTitle,
		Status:       status,
	}
}
