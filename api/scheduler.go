/*
scheduler.go - Scheduled quota generation

PURPOSE:
  Generates every due period's quotas for every active recurring concept
  without an administrator having to trigger each run.

DESIGN:
  - Runs on robfig/cron with a configurable spec (default "5 0 * * *",
    five past midnight every day)
  - For each concept, every period whose issue date has passed is
    generated, oldest first (quotas.DuePeriods), so missed runs backfill
  - Concepts with an active generation rule are priced by rules; the rest
    by their assignments
  - A period that already has quotas answers CONFLICT; that is counted as
    already generated, not as a failure
  - Periods that cannot generate (no assignments, no covering rule) are
    skipped with a warning and retried on the next run
  - An internal error stops the concept's remaining periods for this pass

USAGE:
  scheduler := NewGenerationScheduler(store, generator, resolver, cfg.SchedulerSpec, nil)
  if err := scheduler.Start(); err != nil { ... }
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GenerateQuotas endpoint (manual generation)
  - quotas/generator.go: Generate
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/warp/quota-engine/generic"
	"github.com/warp/quota-engine/logging"
	"github.com/warp/quota-engine/quotas"
	"github.com/warp/quota-engine/rules"
)

// DefaultScheduleSpec runs generation daily at 00:05.
const DefaultScheduleSpec = "5 0 * * *"

// SchedulerActor is recorded as GeneratedBy on scheduled runs.
const SchedulerActor = "scheduler"

// GenerationScheduler handles automated recurring generation.
type GenerationScheduler struct {
	Spec string

	store     quotas.Store
	generator *quotas.Generator
	rules     *rules.Resolver // nil prices by assignments only
	today     func() generic.TimePoint
	log       *logrus.Entry

	cron *cron.Cron
	mu   sync.Mutex
}

// RunReport counts what one pass did. Generated, AlreadyGenerated,
// Skipped and Failed count periods; Checked and NotDue count concepts.
type RunReport struct {
	Checked          int `json:"checked"`
	Generated        int `json:"generated"`
	AlreadyGenerated int `json:"already_generated"`
	NotDue           int `json:"not_due"`
	Skipped          int `json:"skipped"`
	Failed           int `json:"failed"`
}

// NewGenerationScheduler creates a new scheduler. An empty spec uses
// DefaultScheduleSpec; a nil log uses the shared logger.
func NewGenerationScheduler(store quotas.Store, generator *quotas.Generator, resolver *rules.Resolver, spec string, log *logrus.Entry) *GenerationScheduler {
	if spec == "" {
		spec = DefaultScheduleSpec
	}
	if log == nil {
		log = logging.Component("scheduler")
	}
	return &GenerationScheduler{
		Spec:      spec,
		store:     store,
		generator: generator,
		rules:     resolver,
		today:     generic.Today,
		log:       log,
	}
}

// Start registers the job and starts the cron runner.
func (s *GenerationScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(s.Spec, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.log.WithError(err).Error("scheduled generation failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.Spec, err)
	}
	c.Start()
	s.cron = c

	s.log.WithField("spec", s.Spec).Info("scheduler started")
	return nil
}

// Stop stops the cron runner and waits for a running pass to finish.
func (s *GenerationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.log.Info("scheduler stopped")
}

// RunOnce generates every due period of every active recurring concept.
// Per-period failures are logged and counted; only failing to list the
// concepts is returned as an error.
func (s *GenerationScheduler) RunOnce(ctx context.Context) (RunReport, error) {
	var report RunReport

	concepts, err := s.store.ListActiveRecurringConcepts(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list recurring concepts: %w", err)
	}

	today := s.today()
	for _, concept := range concepts {
		report.Checked++

		periods := quotas.DuePeriods(concept, today)
		if len(periods) == 0 {
			report.NotDue++
			continue
		}

		generate, err := s.generateFunc(ctx, concept)
		if err != nil {
			report.Failed++
			s.log.WithField("concept_id", concept.ID).WithError(err).Error("scheduled generation failed")
			continue
		}

	backfill:
		for _, period := range periods {
			entry := s.log.WithFields(logrus.Fields{
				"concept_id": concept.ID,
				"period":     period.String(),
			})

			err := generate(quotas.GenerateInput{
				ConceptID:   concept.ID,
				PeriodYear:  period.Year,
				PeriodMonth: int(period.Month),
				GeneratedBy: SchedulerActor,
				Method:      quotas.MethodScheduled,
			})
			switch {
			case err == nil:
				report.Generated++
			case generic.IsConflict(err):
				report.AlreadyGenerated++
			case generic.IsClientError(err):
				report.Skipped++
				entry.WithError(err).Warn("skipped scheduled generation")
			default:
				report.Failed++
				entry.WithError(err).Error("scheduled generation failed")
				break backfill
			}
		}
	}

	s.log.WithFields(logrus.Fields{
		"checked":           report.Checked,
		"generated":         report.Generated,
		"already_generated": report.AlreadyGenerated,
		"not_due":           report.NotDue,
		"skipped":           report.Skipped,
		"failed":            report.Failed,
	}).Info("scheduled generation completed")

	return report, nil
}

// generateFunc picks rule pricing when the concept has an active rule.
func (s *GenerationScheduler) generateFunc(ctx context.Context, concept quotas.PaymentConcept) (func(quotas.GenerateInput) error, error) {
	byRules := false
	if s.rules != nil {
		var err error
		if byRules, err = s.rules.HasActiveRules(ctx, concept); err != nil {
			return nil, err
		}
	}
	if byRules {
		return func(in quotas.GenerateInput) error {
			_, err := s.rules.Generate(ctx, s.generator, in, nil)
			return err
		}, nil
	}
	return func(in quotas.GenerateInput) error {
		_, err := s.generator.Generate(ctx, in)
		return err
	}, nil
}

// RunScheduledGeneration runs one scheduler pass on demand.
func (h *Handler) RunScheduledGeneration(w http.ResponseWriter, r *http.Request) {
	s := NewGenerationScheduler(h.Store, h.Generator, h.Rules, "", h.log.WithField("component", "scheduler"))
	report, err := s.RunOnce(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
