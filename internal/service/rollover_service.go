package service

import (
	"context"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"dayplanner/internal/model"
	"dayplanner/internal/repository"
	"dayplanner/internal/timebucket"
)

// RolloverReport summarizes one invocation of the midnight job.
type RolloverReport struct {
	Users              int `json:"users"`
	Processed          int `json:"processed"`
	Skipped            int `json:"skipped"`
	Failed             int `json:"failed"`
	Archived           int `json:"archived"`
	Promoted           int `json:"promoted"`
	SuggestionsDeleted int `json:"suggestionsDeleted"`
}

// RolloverService closes each user's day at their local midnight.
type RolloverService struct {
	prefsRepo    *repository.PreferencesRepository
	rolloverRepo *repository.RolloverRepository
	clk          clock.Clock
	logger       *zap.SugaredLogger
}

func NewRolloverService(prefsRepo *repository.PreferencesRepository, rolloverRepo *repository.RolloverRepository, clk clock.Clock, logger *zap.SugaredLogger) *RolloverService {
	return &RolloverService{prefsRepo: prefsRepo, rolloverRepo: rolloverRepo, clk: clk, logger: logger}
}

// Run checks every user against the midnight gate and applies the rollover
// batch to those inside it. A failing user is logged and skipped.
func (s *RolloverService) Run(ctx context.Context) (RolloverReport, error) {
	prefs, err := s.prefsRepo.ListAll(ctx)
	if err != nil {
		return RolloverReport{}, err
	}

	report := RolloverReport{Users: len(prefs)}
	for _, p := range prefs {
		res, ran, err := s.RolloverUser(ctx, p)
		if err != nil {
			report.Failed++
			s.logger.Errorw("rollover failed", "user", p.UserID, "err", err)
			continue
		}
		if !ran {
			continue
		}
		if res.AlreadyApplied {
			report.Skipped++
			continue
		}
		report.Processed++
		report.Archived += res.Archived
		report.Promoted += res.Promoted
		report.SuggestionsDeleted += res.SuggestionsDeleted
	}

	s.logger.Infow("rollover run finished",
		"users", report.Users, "processed", report.Processed, "skipped", report.Skipped, "failed", report.Failed,
		"archived", report.Archived, "promoted", report.Promoted)
	return report, nil
}

// RolloverUser applies the batch for one user when their local clock is inside
// the midnight window. ran is false when the gate is closed. A second run for
// the same local day reports AlreadyApplied and changes nothing.
func (s *RolloverService) RolloverUser(ctx context.Context, prefs model.UserPreferences) (repository.RolloverResult, bool, error) {
	now := s.clk.Now()
	if !timebucket.ShouldRollover(now, prefs.Timezone) {
		return repository.RolloverResult{}, false, nil
	}

	yesterday, today, _ := timebucket.Days(now, prefs.Timezone)
	res, err := s.rolloverRepo.Apply(ctx, repository.RolloverBatch{
		UserID:     prefs.UserID,
		Yesterday:  yesterday,
		Today:      today,
		DayOfWeek:  timebucket.DayOfWeek(timebucket.LocalNow(now, prefs.Timezone)),
		ArchivedAt: now.UnixMilli(),
	})
	if err != nil {
		return repository.RolloverResult{}, false, err
	}
	if res.AlreadyApplied {
		s.logger.Debugw("rollover already applied", "user", prefs.UserID, "day", today)
		return res, true, nil
	}

	s.logger.Infow("rollover applied", "user", prefs.UserID, "day", today,
		"archived", res.Archived, "promoted", res.Promoted, "suggestions", res.SuggestionsDeleted)
	return res, true, nil
}
