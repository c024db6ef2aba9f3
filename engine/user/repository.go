package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/modelstore/engine/core"
	"github.com/compozy/modelstore/engine/model"
	"github.com/compozy/modelstore/engine/query"
	"github.com/compozy/modelstore/pkg/logger"
)

// Schema declares the users collection.
var Schema = model.Schema{
	Name: "users",
	Indexes: []query.Index{
		{Name: "email_unique", Keys: []query.IndexKey{{Field: "email"}}, Unique: true},
		{Name: "role_created", Keys: []query.IndexKey{{Field: "role"}, {Field: "created_at", Desc: true}}},
	},
}

// Repository is the users Model plus user-specific operations.
type Repository struct {
	*model.Collection[User]
	now func() time.Time
}

func NewRepository(leaser model.Leaser) (*Repository, error) {
	c, err := model.NewCollection[User](leaser, Schema)
	if err != nil {
		return nil, err
	}
	return &Repository{Collection: c, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Register creates an active user with a normalized email.
func (r *Repository) Register(ctx context.Context, email string, name string, role Role) (*User, error) {
	normalized, err := parseEmail(email)
	if err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	created, err := r.Create(ctx, User{
		Email:     normalized,
		Name:      name,
		Role:      role,
		Status:    StatusActive,
		CreatedAt: core.NewTimestamp(r.now()),
	})
	if err != nil {
		if errors.Is(err, core.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEmail, normalized)
		}
		return nil, err
	}
	logger.FromContext(ctx).Info("User registered", "user_id", created.ID, "role", created.Role)
	return &created, nil
}

// FindByEmail returns the user owning email, or nil.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.FindOne(ctx, query.Eq("email", NormalizeEmail(email)))
}

// RecordLogin bumps the login counter of an active user and returns the
// updated record.
func (r *Repository) RecordLogin(ctx context.Context, id string) (*User, error) {
	at := core.NewTimestamp(r.now())
	u, err := r.FindOneAndUpdate(ctx,
		query.ByID(id).And(query.Eq("status", StatusActive)),
		query.Inc("login_count", 1).Set("last_login_at", at),
	)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

// SetStatus moves a user to status. Setting the current status again is
// allowed and reported as unchanged.
func (r *Repository) SetStatus(ctx context.Context, id string, status Status) (bool, error) {
	if status != StatusActive && status != StatusSuspended {
		return false, ErrInvalidTransition
	}
	res, err := r.UpdateOne(ctx, query.ByID(id), query.Set("status", status))
	if err != nil {
		return false, err
	}
	if res.Matched == 0 {
		return false, ErrUserNotFound
	}
	return res.Modified > 0, nil
}

// PurgeSuspended deletes suspended users created strictly before cutoff.
func (r *Repository) PurgeSuspended(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := query.Eq("status", StatusSuspended).And(query.Lt("created_at", core.NewTimestamp(cutoff)))
	res, err := r.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.Deleted, nil
}

// CountByRole returns how many users hold each role.
func (r *Repository) CountByRole(ctx context.Context) (map[Role]int64, error) {
	type bucket struct {
		Role  Role  `json:"_id"`
		Count int64 `json:"count"`
	}
	buckets, err := model.AggregateAs[bucket](ctx, r, query.NewPipeline(
		query.Group("role", query.Count("count")),
	))
	if err != nil {
		return nil, err
	}
	out := make(map[Role]int64, len(buckets))
	for _, b := range buckets {
		out[b.Role] = b.Count
	}
	return out, nil
}
