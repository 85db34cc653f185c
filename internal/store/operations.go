package store

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/state"
)

// Mutating operations apply their change under the write lock and then flush.
// When the flush fails the change stays applied in memory: they report the change
// together with the error and the store is marked dirty until a later flush
// succeeds.

// AddAdmin registers an admin and merges new profile data. It reports false,
// without writing, when nothing changed.
func (s *Store) AddAdmin(ctx context.Context, userID int64, username, fullName string) (bool, error) {
	s.mu.Lock()
	changed := s.state.AddAdmin(userID, username, fullName)
	s.mu.Unlock()
	if !changed {
		return false, nil
	}
	return true, s.commit(ctx, "admin added", zap.Int64("user_id", userID))
}

// RemoveAdmin drops an admin and its profile.
func (s *Store) RemoveAdmin(ctx context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	removed := s.state.RemoveAdmin(userID)
	s.mu.Unlock()
	if !removed {
		return false, nil
	}
	return true, s.commit(ctx, "admin removed", zap.Int64("user_id", userID))
}

// NewApplication is the applicant-supplied part of an application.
type NewApplication struct {
	UserID       int64
	FullName     string
	Username     string
	Answer       string
	LanguageCode string
	Responses    []state.Response
}

// AddApplication stores a pending application. Approved users and users with a
// live application are refused.
func (s *Store) AddApplication(ctx context.Context, application NewApplication) (bool, error) {
	now := s.clock.Now()
	s.mu.Lock()
	added := s.state.AddApplication(state.Application{
		UserID:       application.UserID,
		FullName:     application.FullName,
		Username:     application.Username,
		Answer:       application.Answer,
		LanguageCode: application.LanguageCode,
		Responses:    slices.Clone(application.Responses),
	}, now)
	s.mu.Unlock()
	if !added {
		return false, nil
	}
	return true, s.commit(ctx, "application added", zap.Int64("user_id", application.UserID))
}

// PopApplication removes the live application of userID for review. It returns
// nil when there is none.
func (s *Store) PopApplication(ctx context.Context, userID int64) (*state.Application, error) {
	s.mu.Lock()
	application, ok := s.state.PopApplication(userID)
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return &application, s.commit(ctx, "application popped", zap.Int64("user_id", userID))
}

// WithdrawApplication removes the live application of userID and records the
// withdrawal.
func (s *Store) WithdrawApplication(ctx context.Context, userID int64) (bool, error) {
	now := s.clock.Now()
	s.mu.Lock()
	withdrawn := s.state.WithdrawApplication(userID, now)
	s.mu.Unlock()
	if !withdrawn {
		return false, nil
	}
	return true, s.commit(ctx, "application withdrawn", zap.Int64("user_id", userID))
}

// MarkApplicationStatus records a decision for userID. An empty languageCode keeps
// the previously recorded language.
func (s *Store) MarkApplicationStatus(ctx context.Context, userID int64, status state.Status, note, languageCode string) error {
	now := s.clock.Now()
	s.mu.Lock()
	s.state.MarkApplicationStatus(userID, status, note, languageCode, now)
	s.mu.Unlock()
	return s.commit(ctx, "application status updated",
		zap.Int64("user_id", userID),
		zap.String("status", string(status)))
}

// SetApplicationQuestion sets a prompt override, or removes it when prompt is
// blank. It reports whether the overrides changed.
func (s *Store) SetApplicationQuestion(ctx context.Context, questionID, prompt, languageCode string) (bool, error) {
	s.mu.Lock()
	changed := s.state.SetQuestion(questionID, prompt, languageCode)
	s.mu.Unlock()
	if !changed {
		return false, nil
	}
	return true, s.commit(ctx, "application question updated",
		zap.String("question_id", questionID),
		zap.String("language", state.NormalizeLanguageKey(languageCode)))
}

// AddXP adds amount to a member's score and returns the new total.
func (s *Store) AddXP(ctx context.Context, chatID, userID, amount int64, identity state.XPIdentity) (int64, error) {
	instant := s.clock.Instant()
	display := s.clock.Format(instant)
	s.mu.Lock()
	total := s.state.AddXP(chatID, userID, amount, identity, instant, display)
	s.mu.Unlock()

	if err := s.Save(ctx); err != nil {
		return total, err
	}
	s.logger.Debug("xp added",
		zap.Int64("chat_id", chatID),
		zap.Int64("user_id", userID),
		zap.Int64("amount", amount),
		zap.Int64("total", total))
	return total, nil
}

// AddCup appends a cup to the history of chatID.
func (s *Store) AddCup(ctx context.Context, chatID int64, title, description string, podium []string) error {
	cup := state.Cup{
		Title:       title,
		Description: description,
		Podium:      slices.Clone(podium),
		CreatedAt:   s.clock.Now(),
	}
	s.mu.Lock()
	s.state.AddCup(chatID, cup)
	s.mu.Unlock()
	return s.commit(ctx, "cup added", zap.Int64("chat_id", chatID), zap.String("title", title))
}
