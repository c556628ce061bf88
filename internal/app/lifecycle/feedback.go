package lifecycle

import (
	"context"
	"fmt"

	"github.com/firstdate-app/firstdate/internal/domain"
)

// ─── Feedback & Mutual Interest ─────────────────────────────────────────────

// SubmitFeedback records one participant's post-call decision. The
// mutual-interest decision is computed only once both records exist; nothing
// about the other side's decision is ever visible before then.
func (s *Service) SubmitFeedback(ctx context.Context, eventID, userID string, interest domain.InterestLevel) error {
	if !interest.Valid() {
		return fmt.Errorf("%w: unknown interest level %q", domain.ErrValidation, interest)
	}

	e, err := s.db.GetEvent(eventID)
	if err != nil {
		return err
	}
	if !e.Participant(userID) {
		return fmt.Errorf("%w: user is not a participant of this event", domain.ErrValidation)
	}
	if e.State != domain.EventCompleted {
		return fmt.Errorf("%w: feedback is only accepted for completed dates", domain.ErrInvariantViolation)
	}

	if err := s.db.InsertFeedback(domain.FeedbackRecord{
		EventID:     eventID,
		UserID:      userID,
		Interest:    interest,
		SubmittedAt: s.clock.Now(),
	}); err != nil {
		return err
	}
	return s.decideMutualInterest(ctx, e, false)
}

// MessagingUnlocked reports whether post-date messaging has been unlocked
// for the event. decided is false while either side's feedback is pending.
func (s *Service) MessagingUnlocked(eventID string) (unlocked, decided bool, err error) {
	return s.db.GetMessagingUnlock(eventID)
}

// decideMutualInterest computes the gate once both records are in. With
// timedOut set, a missing record counts as not_interested — the 72 h window
// has closed.
func (s *Service) decideMutualInterest(ctx context.Context, e *domain.SpeedDateEvent, timedOut bool) error {
	fbA, err := s.db.GetFeedback(e.ID, e.ParticipantA)
	if err != nil {
		return err
	}
	fbB, err := s.db.GetFeedback(e.ID, e.ParticipantB)
	if err != nil {
		return err
	}
	if (fbA == nil || fbB == nil) && !timedOut {
		return nil // wait for the other side; leak nothing
	}
	if fbA == nil {
		fbA = &domain.FeedbackRecord{EventID: e.ID, UserID: e.ParticipantA, Interest: domain.NotInterested}
	}
	if fbB == nil {
		fbB = &domain.FeedbackRecord{EventID: e.ID, UserID: e.ParticipantB, Interest: domain.NotInterested}
	}

	mutual := domain.MutualInterest(*fbA, *fbB)
	wrote, err := s.db.SetMessagingUnlock(e.ID, mutual, s.clock.Now())
	if err != nil {
		return err
	}
	if wrote && mutual {
		s.notifier.Publish(ctx, domain.NotifyMessagingUnlocked, map[string]interface{}{
			"event_id":     e.ID,
			"participants": []string{e.ParticipantA, e.ParticipantB},
		})
	}
	return nil
}
