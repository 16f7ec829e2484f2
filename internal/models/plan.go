package models

import "time"

// Plan is an appointment proposed inside a chat room
type Plan struct {
	ID                 string    `json:"planId"`
	Enabled            bool      `json:"enabled"`
	CreateDate         time.Time `json:"createDate"`
	UpdateDate         time.Time `json:"updateDate"`
	PlanDate           time.Time `json:"planDate"`
	PlanPlace          *Location `json:"planPlace,omitempty"`
	Contract           *string   `json:"contract,omitempty"`
	OwnerNotification  bool      `json:"ownerNotification"`
	SitterNotification bool      `json:"sitterNotification"`
	IsAccepted         bool      `json:"isAccepted"`
}
