package services

import (
	"context"

	"github.com/dmitrijs2005/learnkeeper/internal/common"
	"github.com/dmitrijs2005/learnkeeper/internal/logging"
	"github.com/dmitrijs2005/learnkeeper/internal/server/billing"
	"github.com/dmitrijs2005/learnkeeper/internal/server/models"
	"github.com/dmitrijs2005/learnkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/learnkeeper/internal/server/sessions"
)

// PaymentService answers entitlement questions and applies processor
// webhook side effects.
type PaymentService struct {
	*Deps
	logger logging.Logger
}

func NewPaymentService(d *Deps) *PaymentService {
	return &PaymentService{Deps: d, logger: d.Logger.With("module", "payments")}
}

func (s *PaymentService) knownCourse(courseID string) error {
	if !s.Catalog.Current().HasCourse(courseID) {
		return common.Policy("course_id", "unknown course")
	}
	return nil
}

// CheckIfPaidFor reports whether userID may access courseID, either through
// a per-course purchase or an active subscription of their own or of their
// institution.
func (s *PaymentService) CheckIfPaidFor(ctx context.Context, userID, courseID string) (bool, error) {
	if err := s.knownCourse(courseID); err != nil {
		return false, err
	}

	repos := s.read()
	p, err := repos.Payments.GetByUserID(ctx, userID)
	if err != nil {
		return false, err
	}
	if p.PaidCourses[courseID] || p.SubscriptionID != "" {
		return true, nil
	}
	if p.InstitutionID == "" {
		return false, nil
	}

	inst, err := repos.Institutions.GetByID(ctx, p.InstitutionID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return inst.SubscriptionID != "", nil
}

// RecordPayment marks courseID as bought by userID.
func (s *PaymentService) RecordPayment(ctx context.Context, userID, courseID string) error {
	if err := s.knownCourse(courseID); err != nil {
		return err
	}
	return s.Tx.Run(ctx, "payment.record", func(ctx context.Context, r *repomanager.Repositories) error {
		return r.Payments.MarkPaid(ctx, userID, courseID)
	})
}

// SetSubscription stores the subscription reference of userID; an empty
// reference ends the subscription. An admin's subscription is shared with
// their institution.
func (s *PaymentService) SetSubscription(ctx context.Context, userID, subscriptionID string) error {
	return s.Tx.Run(ctx, "payment.subscription", func(ctx context.Context, r *repomanager.Repositories) error {
		acc, err := r.Accounts.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if err := r.Payments.SetSubscription(ctx, userID, subscriptionID); err != nil {
			return err
		}
		if acc.Kind != models.KindAdmin {
			return nil
		}
		inst, err := r.Institutions.GetByAdmin(ctx, userID)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		return r.Institutions.SetSubscription(ctx, inst.InstitutionID, subscriptionID)
	})
}

// StartCheckout asks the processor for a checkout page selling courseID to
// the caller.
func (s *PaymentService) StartCheckout(ctx context.Context, c *sessions.Claims, courseID, successURL, cancelURL string) (string, error) {
	if err := requireStage(c, sessions.Authenticated); err != nil {
		return "", err
	}
	if err := s.knownCourse(courseID); err != nil {
		return "", err
	}

	p, err := s.read().Payments.GetByUserID(ctx, c.UserID)
	if err != nil {
		return "", err
	}

	url, err := s.Processor.CreateCheckout(ctx, billing.CheckoutRequest{
		CustomerID: p.CustomerID,
		CourseID:   courseID,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
	if err != nil {
		return "", common.External("payment processor", err)
	}
	return url, nil
}
