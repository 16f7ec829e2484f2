package models

import "time"

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
	PlaceName string  `json:"placeName,omitempty"`
}

// SeoulLocation is used when a user has not picked a location yet
var SeoulLocation = Location{
	Latitude:  37.5665,
	Longitude: 126.9780,
	Address:   "서울특별시",
	PlaceName: "서울시청",
}

type User struct {
	ID               string    `json:"id"`
	Enabled          bool      `json:"enabled"`
	CreateDate       time.Time `json:"createDate"`
	UpdateDate       time.Time `json:"updateDate"`
	ProfileImage     string    `json:"profileImage"`
	Nickname         string    `json:"nickname"`
	Location         Location  `json:"location"`
	Platform         string    `json:"platform"`
	LevelPoint       int       `json:"levelPoint"`
	AboutMe          string    `json:"aboutMe"`
	ChatNotification bool      `json:"chatNotification"`
}
