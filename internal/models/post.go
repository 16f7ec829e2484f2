package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownPostType   = errors.New("unknown post type")
	ErrUnknownPostStatus = errors.New("unknown post status")
	ErrEmptyPostImages   = errors.New("post images must be nil or non-empty")
)

type PostType string

const (
	PostTypeLookingForSitter PostType = "lookingForSitter"
	PostTypeOfferingToSitter PostType = "offeringToSitter"
)

func ParsePostType(s string) (PostType, error) {
	switch t := PostType(s); t {
	case PostTypeLookingForSitter, PostTypeOfferingToSitter:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPostType, s)
}

type PostStatus string

const (
	PostStatusBeforeTrade    PostStatus = "beforeTrade"
	PostStatusInTrade        PostStatus = "inTrade"
	PostStatusCompletedTrade PostStatus = "completedTrade"
)

func ParsePostStatus(s string) (PostStatus, error) {
	switch st := PostStatus(s); st {
	case PostStatusBeforeTrade, PostStatusInTrade, PostStatusCompletedTrade:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPostStatus, s)
}

// Post is a marketplace entry. Author fields are a snapshot taken when the post was written.
type Post struct {
	ID         string    `json:"id"`
	Enabled    bool      `json:"enabled"`
	CreateDate time.Time `json:"createDate"`
	UpdateDate time.Time `json:"updateDate"`

	UserID           string   `json:"userId"`
	ProfileImage     string   `json:"profileImage"`
	Nickname         string   `json:"nickname"`
	UserLocation     Location `json:"userLocation"`
	UserNotification bool     `json:"userNotification"`

	PostType   PostType   `json:"postType"`
	PostTitle  string     `json:"postTitle"`
	PostBody   string     `json:"postBody"`
	PostImages []string   `json:"postImages,omitempty"`
	PostStatus PostStatus `json:"postStatus"`
	Location   *Location  `json:"location,omitempty"`
}

// Validate checks the persisted form of a post
func (p Post) Validate() error {
	if p.PostImages != nil && len(p.PostImages) == 0 {
		return ErrEmptyPostImages
	}
	if _, err := ParsePostType(string(p.PostType)); err != nil {
		return err
	}
	if _, err := ParsePostStatus(string(p.PostStatus)); err != nil {
		return err
	}
	return nil
}
