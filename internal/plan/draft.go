package plan

import (
	"time"

	"greensitter/internal/models"
)

// Steps of the scheduling flow
const (
	StepDate = iota
	StepPlace
	StepNotification
	StepConfirm
)

// Draft holds the state of the scheduling flow until the plan is sent
type Draft struct {
	Date               time.Time
	Place              *models.Location
	OwnerNotification  bool
	SitterNotification bool
	Progress           int
	IsPlaceSelected    bool
}

// NewDraft starts a flow at date with both notifications enabled
func NewDraft(date time.Time) *Draft {
	place := models.SeoulLocation
	return &Draft{
		Date:               Round(date),
		Place:              &place,
		OwnerNotification:  true,
		SitterNotification: true,
	}
}

// SetDate stores the picked date aligned to the slot grid
func (d *Draft) SetDate(t time.Time) {
	d.Date = Round(t)
}

// SetPlace stores the picked place; nil clears the selection
func (d *Draft) SetPlace(place *models.Location) {
	d.Place = place
	d.IsPlaceSelected = place != nil
}

// Next advances the flow and reports whether it moved
func (d *Draft) Next() bool {
	if d.Progress >= StepConfirm {
		return false
	}
	d.Progress++
	return true
}

// Back goes one step back and reports whether it moved
func (d *Draft) Back() bool {
	if d.Progress <= StepDate {
		return false
	}
	d.Progress--
	return true
}

// Plan finalizes the draft
func (d *Draft) Plan(now time.Time) models.Plan {
	return New(d.Date, d.Place, d.OwnerNotification, d.SitterNotification, now)
}
