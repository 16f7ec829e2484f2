package testing

import (
	"time"

	"greensitter/internal/models"
)

// BatchUserIDs pairs the first provided userID with each of the others
// e.g. [a, b, c, d] -> [[a,b], [a,c], [a,d]]
func BatchUserIDs(userIDs []string) [][]string {
	if len(userIDs) < 2 {
		return nil
	}

	batches := make([][]string, 0, len(userIDs)-1)
	for i := 1; i < len(userIDs); i++ {
		batches = append(batches, []string{userIDs[0], userIDs[i]})
	}

	return batches
}

// ChatRooms builds one chat room per batch, the first user of the batch being the post owner
func ChatRooms(batches [][]string) []models.ChatRoom {
	rooms := make([]models.ChatRoom, 0, len(batches))
	now := time.Now()
	for _, b := range batches {
		rooms = append(rooms, models.ChatRoom{
			ID:                   RandString(),
			Enabled:              true,
			CreateDate:           now,
			UpdateDate:           now,
			UserID:               b[1],
			PostUserID:           b[0],
			UserNotification:     true,
			PostUserNotification: true,
		})
	}
	return rooms
}
