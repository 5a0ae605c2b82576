// Package board holds the status dataset codec and the edit operations
// that commit changes back to the backing store.
package board

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cedadev/ceda-status-bot/internal/domain"
)

// TimeLayout is the timestamp format used in the persisted file and in
// the Slack edit forms. Minute precision, interpreted as UTC.
const TimeLayout = "2006-01-02T15:04"

// serviceRecord is the persisted shape of a service. Field names match
// the historical status.json layout consumed by the status website.
type serviceRecord struct {
	ID      string         `json:"id"`
	Name    string         `json:"affectedServices"`
	Status  string         `json:"status"`
	Updates []updateRecord `json:"updates"`
}

type updateRecord struct {
	Date    string `json:"date"`
	Status  string `json:"status"`
	Details string `json:"details"`
	URL     string `json:"url,omitempty"`
}

// Parse decodes and validates persisted status content. It returns a
// *ParseError describing the first structural violation found: duplicate
// service id, unknown status value, or malformed timestamp.
func Parse(raw []byte) (*domain.Dataset, error) {
	var records []serviceRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	ds := &domain.Dataset{Services: make([]domain.Service, 0, len(records))}
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		if rec.ID == "" {
			return nil, &ParseError{Reason: fmt.Sprintf("service %q has no id", rec.Name)}
		}
		if seen[rec.ID] {
			return nil, &ParseError{Reason: fmt.Sprintf("duplicate service id %q", rec.ID)}
		}
		seen[rec.ID] = true

		status := domain.Status(rec.Status)
		if !status.IsValid() {
			return nil, &ParseError{Reason: fmt.Sprintf("service %q: unknown status %q", rec.ID, rec.Status)}
		}

		svc := domain.Service{
			ID:      rec.ID,
			Name:    rec.Name,
			Status:  status,
			Updates: make([]domain.StatusUpdate, 0, len(rec.Updates)),
		}

		for _, u := range rec.Updates {
			ts, err := ParseTime(u.Date)
			if err != nil {
				return nil, &ParseError{Reason: fmt.Sprintf("service %q: malformed timestamp %q", rec.ID, u.Date)}
			}
			us := domain.Status(u.Status)
			if !us.IsValid() {
				return nil, &ParseError{Reason: fmt.Sprintf("service %q: unknown update status %q", rec.ID, u.Status)}
			}
			svc.Updates = append(svc.Updates, domain.StatusUpdate{
				Date:    ts,
				Status:  us,
				Details: u.Details,
				URL:     u.URL,
			})
		}

		ds.Services = append(ds.Services, svc)
	}

	return ds, nil
}

// Serialize renders a dataset as the persisted file content. The output
// is deterministic: the same dataset always serializes to byte-identical
// text, so no-op edits produce no spurious diff.
func Serialize(ds *domain.Dataset) []byte {
	records := make([]serviceRecord, 0, len(ds.Services))
	for _, svc := range ds.Services {
		rec := serviceRecord{
			ID:      svc.ID,
			Name:    svc.Name,
			Status:  string(svc.Status),
			Updates: make([]updateRecord, 0, len(svc.Updates)),
		}
		for _, u := range svc.Updates {
			rec.Updates = append(rec.Updates, updateRecord{
				Date:    FormatTime(u.Date),
				Status:  string(u.Status),
				Details: u.Details,
				URL:     u.URL,
			})
		}
		records = append(records, rec)
	}

	// Marshalling fixed structs cannot fail.
	out, _ := json.MarshalIndent(records, "", "  ")
	return append(out, '\n')
}

// ParseTime parses a wire-format timestamp as UTC.
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, time.UTC)
}

// FormatTime renders a timestamp in the wire format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
