package coordinator

import (
	"errors"
	"time"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/reconcile"
	"github.com/mamadbah2/dairysync/internal/service/entities"
)

// Mode names the path a run took.
type Mode string

const (
	ModeFullRestore Mode = "full_restore"
	ModeQuickSync   Mode = "quick_sync"
	ModeOffline     Mode = "offline"
)

// KindReport is the outcome of one entity type within a run.
type KindReport struct {
	Kind     models.EntityType `json:"kind"`
	Uploaded int               `json:"uploaded"`
	Result   reconcile.Result  `json:"result"`
	Errors   []string          `json:"errors,omitempty"`
}

func (k *KindReport) fail(err error) {
	k.Errors = append(k.Errors, err.Error())
}

// Failures counts recorded errors, including per-record reconciliation errors.
func (k KindReport) Failures() int {
	return len(k.Errors) + len(k.Result.Errors)
}

// Report summarises a run.
type Report struct {
	OwnerID    string        `json:"owner_id"`
	Mode       Mode          `json:"mode"`
	Online     bool          `json:"online"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Replayed   int           `json:"replayed"`
	Recomputed int           `json:"recomputed"`
	Kinds      []KindReport  `json:"kinds"`
	Errors     []string      `json:"errors,omitempty"`
}

func newReport(ownerID string, syncers []entities.Syncer, now time.Time) Report {
	r := Report{OwnerID: ownerID, StartedAt: now}
	for _, s := range syncers {
		r.Kinds = append(r.Kinds, KindReport{Kind: s.Kind()})
	}
	return r
}

func (r *Report) kind(kind models.EntityType) *KindReport {
	for i := range r.Kinds {
		if r.Kinds[i].Kind == kind {
			return &r.Kinds[i]
		}
	}
	r.Kinds = append(r.Kinds, KindReport{Kind: kind})
	return &r.Kinds[len(r.Kinds)-1]
}

func (r *Report) fail(err error) {
	r.Errors = append(r.Errors, err.Error())
}

// Kind returns the report of kind.
func (r Report) Kind(kind models.EntityType) (KindReport, bool) {
	for _, k := range r.Kinds {
		if k.Kind == kind {
			return k, true
		}
	}
	return KindReport{}, false
}

// Failures counts every recorded error of the run.
func (r Report) Failures() int {
	n := len(r.Errors)
	for _, k := range r.Kinds {
		n += k.Failures()
	}
	return n
}

// Err joins the run-level errors.
func (r Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, errors.New(e))
	}
	return errors.Join(errs...)
}
