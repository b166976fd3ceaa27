package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"casegate/internal/classifier"
	"casegate/internal/intake/fingerprint"
	"casegate/internal/intake/models"
	dErrors "casegate/pkg/domain-errors"
	audit "casegate/pkg/platform/audit"
	"casegate/pkg/platform/sentinel"
	"casegate/pkg/requestcontext"
)

// Submit runs one submission to a terminal state. Duplicates and outliers are
// outcomes, not errors; an error means the submission reached no terminal
// state and nothing was persisted.
func (s *Service) Submit(ctx context.Context, sub models.Submission) (*models.Outcome, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "intake.Submit")
	defer span.End()
	defer func() { s.metrics.ObserveSubmitLatency(time.Since(start)) }()

	s.transition(ctx, "", models.StateReceived)
	if err := sub.Validate(); err != nil {
		return nil, s.fail(ctx, "", sub, err)
	}

	fp := fingerprint.Generate(sub.GivenName, sub.FamilyName, sub.DateOfBirthText, sub.OriginCode)
	span.SetAttributes(attribute.String("intake.fingerprint", fp))
	s.transition(ctx, fp, models.StateFingerprinted)

	existing, found, err := s.duplicates.Check(ctx, fp)
	if err != nil {
		return nil, s.fail(ctx, fp, sub, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to check for duplicate"))
	}
	if found {
		s.transition(ctx, fp, models.StateDuplicate)
		return s.finish(ctx, sub, duplicateOutcome(existing)), nil
	}

	s.transition(ctx, fp, models.StateClassifying)
	features := sub.Features()
	verdict := s.classifier.Classify(features.Amount, sub.Categories.Count())
	s.metrics.IncrementVerdict(verdict.String())
	if verdict == classifier.Outlier {
		return s.finish(ctx, sub, &models.Outcome{
			Fingerprint: models.SentinelFingerprint,
			Tag:         models.TagRejectedOutlier,
			State:       models.StateRejectedOutlier,
		}), nil
	}

	if _, err := s.store.FindCrisis(ctx, sub.CrisisID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.fail(ctx, fp, sub, dErrors.New(dErrors.CodeNotFound, "crisis not found"))
		}
		return nil, s.fail(ctx, fp, sub, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load crisis"))
	}

	record := &models.Record{
		GivenName:   sub.GivenName,
		FamilyName:  sub.FamilyName,
		DateOfBirth: sub.DateOfBirth,
		OriginCode:  sub.OriginCode,
		CrisisID:    sub.CrisisID,
		Categories:  sub.Categories,
		Amount:      sub.Amount,
		Fingerprint: fp,
	}
	if err := s.store.Create(ctx, record); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			// Lost the race to an identical submission; report the winner.
			winner, found, checkErr := s.duplicates.Check(ctx, fp)
			if checkErr != nil || !found {
				return nil, s.fail(ctx, fp, sub, dErrors.Wrap(err, dErrors.CodeConflict, "record committed concurrently"))
			}
			s.transition(ctx, fp, models.StateDuplicate)
			return s.finish(ctx, sub, duplicateOutcome(winner)), nil
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, s.fail(ctx, fp, sub, dErrors.New(dErrors.CodeNotFound, "crisis not found"))
		default:
			return nil, s.fail(ctx, fp, sub, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to commit record"))
		}
	}

	return s.finish(ctx, sub, &models.Outcome{
		Fingerprint: fp,
		Tag:         models.TagNew,
		State:       models.StateCommitted,
		RecordID:    record.ID,
	}), nil
}

// Reject records a submission that failed before it could be run, such as a
// payload that does not parse, and returns err unchanged.
func (s *Service) Reject(ctx context.Context, err error) error {
	return s.fail(ctx, "", models.Submission{}, err)
}

func duplicateOutcome(existing *models.Record) *models.Outcome {
	return &models.Outcome{
		Fingerprint: existing.Fingerprint,
		Tag:         models.TagDuplicate,
		State:       models.StateRejectedDuplicate,
		RecordID:    existing.ID,
	}
}

func (s *Service) transition(ctx context.Context, fp string, state models.State) {
	s.logger.DebugContext(ctx, "intake transition",
		"request_id", requestcontext.RequestID(ctx),
		"fingerprint", fp,
		"state", state,
	)
}

func (s *Service) finish(ctx context.Context, sub models.Submission, outcome *models.Outcome) *models.Outcome {
	s.transition(ctx, outcome.Fingerprint, outcome.State)
	s.metrics.IncrementOutcome(string(outcome.Tag))
	s.logger.InfoContext(ctx, "intake submission processed",
		"request_id", requestcontext.RequestID(ctx),
		"fingerprint", outcome.Fingerprint,
		"state", outcome.State,
		"tag", outcome.Tag,
		"crisis_id", sub.CrisisID,
	)
	s.emitAudit(ctx, audit.Event{
		Action:      auditAction(outcome.State),
		Fingerprint: outcome.Fingerprint,
		CrisisID:    sub.CrisisID,
		Tag:         string(outcome.Tag),
	})
	return outcome
}

func (s *Service) fail(ctx context.Context, fp string, sub models.Submission, err error) error {
	code := dErrors.CodeOf(err)
	s.metrics.IncrementOutcome("error_" + string(code))
	if code == dErrors.CodeUnavailable || code == dErrors.CodeInternal {
		s.logger.ErrorContext(ctx, "intake submission failed",
			"request_id", requestcontext.RequestID(ctx),
			"fingerprint", fp,
			"error", err,
		)
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
	} else {
		s.logger.InfoContext(ctx, "intake submission rejected",
			"request_id", requestcontext.RequestID(ctx),
			"fingerprint", fp,
			"code", code,
			"error", err,
		)
	}
	s.emitAudit(ctx, audit.Event{
		Action:      audit.ActionIntakeFailed,
		Fingerprint: fp,
		CrisisID:    sub.CrisisID,
		Reason:      dErrors.MessageOf(err),
	})
	return err
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}

func auditAction(state models.State) audit.Action {
	switch state {
	case models.StateCommitted:
		return audit.ActionIntakeAccepted
	case models.StateRejectedDuplicate:
		return audit.ActionIntakeDuplicate
	case models.StateRejectedOutlier:
		return audit.ActionIntakeRejectedOutlier
	default:
		return audit.ActionIntakeFailed
	}
}
