package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-enrollment/internal/identity"
	"ms-enrollment/internal/models"
	"ms-enrollment/internal/notify"

	"golang.org/x/sync/errgroup"
)

// OrderLookup returns nil rows without error when nothing matches.
type OrderLookup interface {
	GetOrderCreatedSince(ctx context.Context, id int64, since time.Time) (*models.Order, error)
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

type EmailLookup interface {
	CanonicalEmail(ctx context.Context, userID string) (string, error)
}

type CourseLookup interface {
	CourseByID(ctx context.Context, courseID string) (*models.Course, error)
}

// Resolver gathers everything a reminder needs. Any missing piece aborts the
// whole dispatch before a single channel is contacted.
type Resolver struct {
	Orders  OrderLookup
	Emails  EmailLookup
	Courses CourseLookup
	Now     func() time.Time
}

func NewResolver(orders OrderLookup, emails EmailLookup, courses CourseLookup) *Resolver {
	return &Resolver{Orders: orders, Emails: emails, Courses: courses, Now: time.Now}
}

func (r *Resolver) Resolve(ctx context.Context, orderID int64) (notify.Input, error) {
	// The window keeps long-dead order ids from being replayed to spam buyers
	since := r.Now().Add(-models.PaymentWindow)
	o, err := r.Orders.GetOrderCreatedSince(ctx, orderID, since)
	if err != nil {
		return notify.Input{}, UnexpectedError(fmt.Errorf("load order #%d: %w", orderID, err))
	}
	if o == nil {
		return notify.Input{}, NotFoundError("order within payment window", orderID)
	}

	var (
		profile *models.Profile
		email   string
		course  *models.Course
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p, err := r.Orders.GetProfile(gctx, o.UserID)
		if err != nil {
			return UnexpectedError(fmt.Errorf("load profile %s: %w", o.UserID, err))
		}
		if p == nil {
			return NotFoundError("profile", orderID)
		}
		profile = p
		return nil
	})

	g.Go(func() error {
		e, err := r.Emails.CanonicalEmail(gctx, o.UserID)
		if errors.Is(err, identity.ErrUserNotFound) || errors.Is(err, identity.ErrNoEmail) {
			return NotFoundError("canonical email", orderID)
		}
		if err != nil {
			return UnexpectedError(fmt.Errorf("resolve email for %s: %w", o.UserID, err))
		}
		email = e
		return nil
	})

	g.Go(func() error {
		c, err := r.Courses.CourseByID(gctx, o.CourseID)
		if err != nil {
			return UnexpectedError(fmt.Errorf("load course %s: %w", o.CourseID, err))
		}
		if c == nil {
			return NotFoundError("course", orderID)
		}
		course = c
		return nil
	})

	if err := g.Wait(); err != nil {
		return notify.Input{}, err
	}

	return notify.Input{Order: *o, Profile: *profile, Email: email, Course: *course}, nil
}
