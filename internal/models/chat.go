package models

import "time"

// ChatRoom is a conversation between the author of a post and an interested user
type ChatRoom struct {
	ID                   string    `json:"id"`
	Enabled              bool      `json:"enabled"`
	CreateDate           time.Time `json:"createDate"`
	UpdateDate           time.Time `json:"updateDate"`
	UserID               string    `json:"userId"`
	PostUserID           string    `json:"postUserId"`
	PostID               string    `json:"postId,omitempty"`
	UserNotification     bool      `json:"userNotification"`
	PostUserNotification bool      `json:"postUserNotification"`
}

// Receiver returns the participant a message from sender is addressed to.
// The post owner receives messages from the room's user and vice versa.
func (c ChatRoom) Receiver(sender string) string {
	if sender == c.UserID {
		return c.PostUserID
	}
	return c.UserID
}

// HasParticipant reports whether userID takes part in the room
func (c ChatRoom) HasParticipant(userID string) bool {
	return userID == c.UserID || userID == c.PostUserID
}

// NotificationFor returns the notification flag of the given participant
func (c ChatRoom) NotificationFor(userID string) bool {
	if userID == c.PostUserID {
		return c.PostUserNotification
	}
	return c.UserNotification
}
