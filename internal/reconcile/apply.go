package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Target executes plan steps for one entity type.
type Target[T Record] interface {
	// InsertLocal stores a remote record locally, marked synced.
	InsertLocal(ctx context.Context, item T) error
	// DeleteLocal removes a local record and its dependents.
	DeleteLocal(ctx context.Context, item T) error
	// DeleteRemote removes a remote document.
	DeleteRemote(ctx context.Context, item T) error
	// Resubmit marks a local record unsynced so the next upload re-sends it.
	Resubmit(ctx context.Context, item T) error
}

// Result counts what a pass changed. Errors holds per-record failures that
// did not abort the pass.
type Result struct {
	Inserted          int     `json:"inserted"`
	Refreshed         int     `json:"refreshed"`
	Updated           int     `json:"updated"`
	DeletedLocal      int     `json:"deleted_local"`
	DuplicatesRemoved int     `json:"duplicates_removed"`
	DeletedRemote     int     `json:"deleted_remote"`
	Resubmitted       int     `json:"resubmitted"`
	Skipped           int     `json:"skipped"`
	Ambiguous         int     `json:"ambiguous"`
	Errors            []error `json:"-"`
}

// Changed reports whether local data moved.
func (r Result) Changed() bool {
	return r.Inserted+r.Refreshed+r.Updated+r.DeletedLocal+r.DuplicatesRemoved+r.Resubmitted > 0
}

// Err joins the per-record failures.
func (r Result) Err() error {
	return errors.Join(r.Errors...)
}

// Merge adds o's counts into r.
func (r *Result) Merge(o Result) {
	r.Inserted += o.Inserted
	r.Refreshed += o.Refreshed
	r.Updated += o.Updated
	r.DeletedLocal += o.DeletedLocal
	r.DuplicatesRemoved += o.DuplicatesRemoved
	r.DeletedRemote += o.DeletedRemote
	r.Resubmitted += o.Resubmitted
	r.Skipped += o.Skipped
	r.Ambiguous += o.Ambiguous
	r.Errors = append(r.Errors, o.Errors...)
}

// Apply executes plan against target. A failed step is recorded and the pass
// continues; a cancelled context stops it.
func Apply[T Record](ctx context.Context, plan Plan[T], target Target[T], logger *zap.Logger) Result {
	res := Result{Skipped: plan.Skipped, Ambiguous: len(plan.Ambiguous)}

	for _, a := range plan.Ambiguous {
		logger.Warn("Ambiguous reconciliation, keeping both sides",
			zap.String("remote_key", a.Remote.BusinessKey()),
			zap.String("remote_id", a.Remote.Identity()),
			zap.Int("candidates", len(a.Candidates)),
		)
	}

	step := func(name string, item T, fn func(context.Context, T) error, counter *int) bool {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err)
			return false
		}
		if err := fn(ctx, item); err != nil {
			logger.Error("Reconciliation step failed",
				zap.String("step", name),
				zap.String("key", item.BusinessKey()),
				zap.Error(err),
			)
			res.Errors = append(res.Errors, fmt.Errorf("%s %s: %w", name, item.BusinessKey(), err))
			return true
		}
		*counter++
		return true
	}

	for _, item := range plan.LocalDuplicates {
		if !step("delete_duplicate", item, target.DeleteLocal, &res.DuplicatesRemoved) {
			return res
		}
	}
	for _, u := range plan.Updates {
		var removed int
		if !step("replace_local", u.Old, target.DeleteLocal, &removed) {
			return res
		}
		if removed == 0 {
			continue
		}
		if !step("insert_replacement", u.New, target.InsertLocal, &res.Updated) {
			return res
		}
	}
	for _, item := range plan.Insert {
		if !step("insert_local", item, target.InsertLocal, &res.Inserted) {
			return res
		}
	}
	for _, item := range plan.Refresh {
		if !step("refresh_local", item, target.InsertLocal, &res.Refreshed) {
			return res
		}
	}
	for _, item := range plan.DeleteLocal {
		if !step("delete_local", item, target.DeleteLocal, &res.DeletedLocal) {
			return res
		}
	}
	for _, item := range plan.DeleteRemote {
		if !step("delete_remote", item, target.DeleteRemote, &res.DeletedRemote) {
			return res
		}
	}
	for _, item := range plan.Resubmit {
		if !step("resubmit", item, target.Resubmit, &res.Resubmitted) {
			return res
		}
	}
	return res
}

// Run builds and applies a plan in one call.
func Run[T Record](ctx context.Context, local, remote []T, opts Options[T], target Target[T], logger *zap.Logger) Result {
	return Apply(ctx, Build(local, remote, opts), target, logger)
}
