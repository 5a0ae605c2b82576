package domain

import (
	"errors"
	"time"
)

// Lookup errors returned by dataset operations.
var (
	ErrServiceNotFound = errors.New("service not found")
	ErrUpdateNotFound  = errors.New("status update not found")
)

// StatusUpdate is a timestamped status change with an explanatory message.
type StatusUpdate struct {
	Date    time.Time
	Status  Status
	Details string
	URL     string
}

// Service is a monitored offering with a name and a status history.
// Identity is the ID; Name is mutable. Updates are kept most-recent-first.
type Service struct {
	ID      string
	Name    string
	Status  Status
	Updates []StatusUpdate
}

// LatestUpdate returns the most recent update, if any.
func (s *Service) LatestUpdate() (StatusUpdate, bool) {
	if len(s.Updates) == 0 {
		return StatusUpdate{}, false
	}
	return s.Updates[0], true
}

// Dataset is the full status board state. Service order is display order.
// Revision is the store's concurrency token captured at read time; it is
// not part of the serialized content.
type Dataset struct {
	Services []Service
	Revision string
}

// Clone returns a deep copy. All mutation operations work on a clone so
// that callers never observe shared state changing underneath them.
func (d Dataset) Clone() Dataset {
	out := Dataset{Revision: d.Revision}
	if d.Services == nil {
		return out
	}
	out.Services = make([]Service, len(d.Services))
	for i, svc := range d.Services {
		cp := svc
		cp.Updates = make([]StatusUpdate, len(svc.Updates))
		copy(cp.Updates, svc.Updates)
		out.Services[i] = cp
	}
	return out
}

// FindService returns the index of the service with the given id, or -1.
func (d Dataset) FindService(id string) int {
	for i := range d.Services {
		if d.Services[i].ID == id {
			return i
		}
	}
	return -1
}

// WithService appends a service to the dataset. The caller is responsible
// for supplying a unique id. The service's current status is aligned with
// its newest update when it has any.
func (d Dataset) WithService(svc Service) Dataset {
	out := d.Clone()
	sortUpdates(&svc)
	if upd, ok := svc.LatestUpdate(); ok {
		svc.Status = upd.Status
	}
	if svc.Updates == nil {
		svc.Updates = []StatusUpdate{}
	}
	out.Services = append(out.Services, svc)
	return out
}

// EditService renames a service and sets its current status.
func (d Dataset) EditService(id, name string, status Status) (Dataset, error) {
	i := d.FindService(id)
	if i < 0 {
		return Dataset{}, ErrServiceNotFound
	}
	out := d.Clone()
	out.Services[i].Name = name
	out.Services[i].Status = status
	return out, nil
}

// DeleteService removes a service and all of its updates.
func (d Dataset) DeleteService(id string) (Dataset, error) {
	i := d.FindService(id)
	if i < 0 {
		return Dataset{}, ErrServiceNotFound
	}
	out := d.Clone()
	out.Services = append(out.Services[:i], out.Services[i+1:]...)
	return out, nil
}

// AddUpdate inserts a status update into a service's history, keeping the
// history ordered most-recent-first, and aligns the service's current
// status with the newest update.
func (d Dataset) AddUpdate(serviceID string, upd StatusUpdate) (Dataset, error) {
	i := d.FindService(serviceID)
	if i < 0 {
		return Dataset{}, ErrServiceNotFound
	}
	out := d.Clone()
	svc := &out.Services[i]
	svc.Updates = append(svc.Updates, upd)
	sortUpdates(svc)
	svc.Status = svc.Updates[0].Status
	return out, nil
}

// EditUpdate replaces the update at the given history index.
func (d Dataset) EditUpdate(serviceID string, index int, upd StatusUpdate) (Dataset, error) {
	i := d.FindService(serviceID)
	if i < 0 {
		return Dataset{}, ErrServiceNotFound
	}
	if index < 0 || index >= len(d.Services[i].Updates) {
		return Dataset{}, ErrUpdateNotFound
	}
	out := d.Clone()
	svc := &out.Services[i]
	svc.Updates[index] = upd
	sortUpdates(svc)
	svc.Status = svc.Updates[0].Status
	return out, nil
}

// DeleteUpdate removes the update at the given history index. When the
// last update is removed the service keeps its current status.
func (d Dataset) DeleteUpdate(serviceID string, index int) (Dataset, error) {
	i := d.FindService(serviceID)
	if i < 0 {
		return Dataset{}, ErrServiceNotFound
	}
	if index < 0 || index >= len(d.Services[i].Updates) {
		return Dataset{}, ErrUpdateNotFound
	}
	out := d.Clone()
	svc := &out.Services[i]
	svc.Updates = append(svc.Updates[:index], svc.Updates[index+1:]...)
	if len(svc.Updates) > 0 {
		svc.Status = svc.Updates[0].Status
	}
	return out, nil
}

// sortUpdates orders a service's history newest first. The sort is stable
// so that updates sharing a timestamp keep their relative order.
func sortUpdates(svc *Service) {
	updates := svc.Updates
	for i := 1; i < len(updates); i++ {
		for j := i; j > 0 && updates[j].Date.After(updates[j-1].Date); j-- {
			updates[j], updates[j-1] = updates[j-1], updates[j]
		}
	}
}
