package anomaly

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/attenx/attenx/core"
)

var (
	// errors
	ErrNotFound      = errors.New("anomaly not found")
	ErrInvalidStatus = errors.New("invalid status")
)

type (
	Repository interface {
		CreateAnomaly(ctx context.Context, an Anomaly) (Anomaly, error)
		GetAnomalyByID(ctx context.Context, id int) (Anomaly, error)
		// QueryAnomalies applies AND operation on available QueryFilter fields
		// and returns the matching page plus the unpaginated total.
		QueryAnomalies(ctx context.Context, filter *QueryFilter, ordering core.DBOrdering, pg Pagination) ([]Anomaly, int, error)
		// UpdateAnomalyStatus sets status, resolution notes, reviewer and review
		// timestamp in a single atomic statement. Returns ErrNotFound when no
		// row matched.
		UpdateAnomalyStatus(ctx context.Context, id int, status string, notes null.String, reviewer Reviewer, reviewedAt time.Time) (Anomaly, error)
		// CountAnomalies returns counts grouped by severity, status and type for
		// rows created at or after `since` (all rows when zero).
		CountAnomalies(ctx context.Context, since null.Time) (Stats, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, an Anomaly) (Anomaly, error) {
	now := time.Now().UTC()
	if an.Status == "" {
		an.Status = StatusPending
	}
	an.CreatedAt = now
	an.UpdatedAt = now
	return svc.repo.CreateAnomaly(ctx, an)
}

func (svc *Service) GetByID(ctx context.Context, id int) (Anomaly, error) {
	return svc.repo.GetAnomalyByID(ctx, id)
}

func (svc *Service) List(ctx context.Context, filter *QueryFilter, ordering *core.DBOrdering, pg Pagination) (Page, error) {
	if filter != nil {
		filter.Clean()
	}
	pg.Clean()

	ord := defaultOrdering
	if ordering != nil && sortColumns[ordering.Field] {
		ord = *ordering
	}

	items, total, err := svc.repo.QueryAnomalies(ctx, filter, ord, pg)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []Anomaly{}
	}
	return Page{
		Items: items,
		Pagination: PageMeta{
			Page:  pg.Page,
			Limit: pg.Limit,
			Total: total,
			Pages: (total + pg.Limit - 1) / pg.Limit,
		},
	}, nil
}

func (svc *Service) UpdateStatus(ctx context.Context, id int, data UpdateAnomaly, reviewer Reviewer) (Anomaly, error) {
	if !ValidStatus(data.Status) {
		return Anomaly{}, ErrInvalidStatus
	}
	notes := null.NewString(data.ResolutionNotes, data.ResolutionNotes != "")
	return svc.repo.UpdateAnomalyStatus(ctx, id, data.Status, notes, reviewer, time.Now().UTC())
}

// Stats returns grouped counts, optionally restricted to a relative window.
// Recognized timeframes: "7d", "30d", "90d"; anything else means all time.
func (svc *Service) Stats(ctx context.Context, timeframe string) (Stats, error) {
	var since null.Time
	switch timeframe {
	case "7d":
		since = null.TimeFrom(time.Now().UTC().AddDate(0, 0, -7))
	case "30d":
		since = null.TimeFrom(time.Now().UTC().AddDate(0, 0, -30))
	case "90d":
		since = null.TimeFrom(time.Now().UTC().AddDate(0, 0, -90))
	}
	return svc.repo.CountAnomalies(ctx, since)
}
