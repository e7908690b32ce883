package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/attenx/attenx/core"
	"github.com/attenx/attenx/core/anomaly"
)

type anomalyRepository struct {
	mu        sync.Mutex
	anomalies map[int]anomaly.Anomaly
	pkCount   int

	sheets *sheetRepository // joined sheet summaries
}

var _ anomaly.Repository = (*anomalyRepository)(nil) // interface compliance check

func NewAnomalyRepository(sheets *sheetRepository) *anomalyRepository {
	return &anomalyRepository{
		anomalies: make(map[int]anomaly.Anomaly),
		sheets:    sheets,
	}
}

func (repo *anomalyRepository) CreateAnomaly(ctx context.Context, an anomaly.Anomaly) (anomaly.Anomaly, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.pkCount++
	an.ID = repo.pkCount
	repo.anomalies[an.ID] = an
	return an, nil
}

func (repo *anomalyRepository) GetAnomalyByID(ctx context.Context, id int) (anomaly.Anomaly, error) {
	repo.mu.Lock()
	an, ok := repo.anomalies[id]
	repo.mu.Unlock()
	if !ok {
		return anomaly.Anomaly{}, anomaly.ErrNotFound
	}
	repo.attachJoins(&an)
	return an, nil
}

func (repo *anomalyRepository) QueryAnomalies(
	ctx context.Context,
	filter *anomaly.QueryFilter,
	ordering core.DBOrdering,
	pg anomaly.Pagination,
) ([]anomaly.Anomaly, int, error) {
	repo.mu.Lock()
	all := make([]anomaly.Anomaly, 0, len(repo.anomalies))
	for _, an := range repo.anomalies {
		all = append(all, an)
	}
	repo.mu.Unlock()

	matched := all[:0]
	for _, an := range all {
		if repo.matches(an, filter) {
			matched = append(matched, an)
		}
	}
	sortAnomalies(matched, ordering)

	total := len(matched)
	start := pg.Offset()
	if start > total {
		start = total
	}
	end := start + pg.Limit
	if end > total {
		end = total
	}
	page := make([]anomaly.Anomaly, end-start)
	copy(page, matched[start:end])
	for i := range page {
		repo.attachJoins(&page[i])
	}
	return page, total, nil
}

func (repo *anomalyRepository) UpdateAnomalyStatus(
	ctx context.Context,
	id int,
	status string,
	notes null.String,
	reviewer anomaly.Reviewer,
	reviewedAt time.Time,
) (anomaly.Anomaly, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	an, ok := repo.anomalies[id]
	if !ok {
		return anomaly.Anomaly{}, anomaly.ErrNotFound
	}
	an.Status = status
	an.ResolutionNotes = notes
	an.ReviewedBy = null.IntFrom(reviewer.ID)
	an.ReviewerName = null.StringFrom(reviewer.Name)
	an.ReviewedAt = null.TimeFrom(reviewedAt.UTC())
	an.UpdatedAt = reviewedAt.UTC()
	repo.anomalies[id] = an
	return an, nil
}

func (repo *anomalyRepository) CountAnomalies(ctx context.Context, since null.Time) (anomaly.Stats, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	stats := anomaly.Stats{
		BySeverity: make(map[string]int),
		ByStatus:   make(map[string]int),
		ByType:     make(map[string]int),
	}
	for _, an := range repo.anomalies {
		if since.Valid && an.CreatedAt.Before(since.Time) {
			continue
		}
		stats.Total++
		stats.BySeverity[an.Severity]++
		stats.ByStatus[an.Status]++
		stats.ByType[an.Type]++
	}
	return stats, nil
}

func (repo *anomalyRepository) matches(an anomaly.Anomaly, filter *anomaly.QueryFilter) bool {
	if filter == nil || filter.IsEmpty() {
		return true
	}
	if filter.Status != "" && an.Status != filter.Status {
		return false
	}
	if filter.Severity != "" && an.Severity != filter.Severity {
		return false
	}
	if filter.EmployeeID != "" && an.EmployeeID != filter.EmployeeID {
		return false
	}
	if filter.SheetID != "" {
		sht, err := repo.sheets.GetSheetByID(context.Background(), an.SheetID)
		if err != nil || sht.SheetID != filter.SheetID {
			return false
		}
	}
	return true
}

func (repo *anomalyRepository) attachJoins(an *anomaly.Anomaly) {
	if repo.sheets == nil {
		return
	}
	if sht, err := repo.sheets.GetSheetByID(context.Background(), an.SheetID); err == nil {
		an.Sheet = &anomaly.SheetInfo{
			SheetID:    sht.SheetID,
			Filename:   sht.OriginalFilename,
			UploadDate: sht.UploadDate,
			ShiftType:  sht.ShiftType,
		}
	}
	if an.SignatureID.Valid {
		repo.sheets.mu.Lock()
		if sig, ok := repo.sheets.signatures[an.SignatureID.Int]; ok {
			an.EmployeeName = null.StringFrom(sig.EmployeeName)
		}
		repo.sheets.mu.Unlock()
	}
}

func sortAnomalies(anomalies []anomaly.Anomaly, ordering core.DBOrdering) {
	less := func(a, b anomaly.Anomaly) bool {
		switch ordering.Field {
		case "updated_at":
			return a.UpdatedAt.Before(b.UpdatedAt)
		case "anomaly_type":
			return a.Type < b.Type
		case "severity":
			return a.Severity < b.Severity
		case "status":
			return a.Status < b.Status
		case "confidence_score":
			return a.ConfidenceScore < b.ConfidenceScore
		case "employee_id":
			return a.EmployeeID < b.EmployeeID
		case "reviewed_at":
			return a.ReviewedAt.Time.Before(b.ReviewedAt.Time)
		default: // created_at
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(anomalies, func(i, j int) bool {
		a, b := anomalies[i], anomalies[j]
		if ordering.Ascending {
			if less(a, b) {
				return true
			}
			if less(b, a) {
				return false
			}
		} else {
			if less(b, a) {
				return true
			}
			if less(a, b) {
				return false
			}
		}
		return a.ID < b.ID // stable tiebreak
	})
}
