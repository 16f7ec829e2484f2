// Package plan builds the appointments two chat participants agree on.
package plan

import (
	"math"
	"time"

	"greensitter/internal/models"

	"github.com/google/uuid"
)

// Interval is the slot size plan dates are aligned to
const Interval = 5

// Round moves t to the nearest Interval-minute boundary of the same hour, dropping seconds.
// Minute 58 and later roll into the next hour. The zero time is returned unchanged.
func Round(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}

	minute := int(math.Floor((float64(t.Minute())+Interval/2.0)/Interval)) * Interval
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), minute, 0, 0, t.Location())
}

// New returns an unaccepted plan scheduled at the rounded date
func New(date time.Time, place *models.Location, ownerNotification, sitterNotification bool, now time.Time) models.Plan {
	return models.Plan{
		ID:                 uuid.NewString(),
		Enabled:            true,
		CreateDate:         now,
		UpdateDate:         now,
		PlanDate:           Round(date),
		PlanPlace:          place,
		Contract:           nil,
		OwnerNotification:  ownerNotification,
		SitterNotification: sitterNotification,
		IsAccepted:         false,
	}
}
