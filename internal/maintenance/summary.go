package maintenance

import (
	"sort"
	"time"

	"garage-backend/internal/models"
)

// NoServiceDate is reported as the last service date of a vehicle with no records.
const NoServiceDate = "none"

// RecentLimit is how many records the vehicle overview shows.
const RecentLimit = 9

type Summary struct {
	TotalSpent      float64 `json:"totalSpent"`
	ServiceCount    int     `json:"serviceCount"`
	LastServiceDate string  `json:"lastServiceDate"`
}

// Summarize expects records newest first.
func Summarize(records []*models.MaintenanceRecord) Summary {
	if len(records) == 0 {
		return Summary{LastServiceDate: NoServiceDate}
	}

	totals := make([]float64, 0, len(records))
	for _, r := range records {
		totals = append(totals, r.TotalCost)
	}

	return Summary{
		TotalSpent:      SumTotals(totals),
		ServiceCount:    len(records),
		LastServiceDate: records[0].Date,
	}
}

// SortByDateDesc orders records newest first in place. Records whose date
// does not parse sort last; ties fall back to creation time.
func SortByDateDesc(records []*models.MaintenanceRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		di, erri := time.Parse(DateLayout, records[i].Date)
		dj, errj := time.Parse(DateLayout, records[j].Date)
		switch {
		case erri != nil && errj != nil:
			return false
		case erri != nil:
			return false
		case errj != nil:
			return true
		case !di.Equal(dj):
			return di.After(dj)
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

// Recent returns at most limit records and whether more exist.
func Recent(records []*models.MaintenanceRecord, limit int) ([]*models.MaintenanceRecord, bool) {
	if limit <= 0 || len(records) <= limit {
		return records, false
	}
	return records[:limit], true
}
