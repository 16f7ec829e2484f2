package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrEmptyText          = errors.New("text message without text")
	ErrNoImages           = errors.New("image message without image paths")
	ErrNoPlan             = errors.New("plan message without plan")
	ErrPayloadMismatch    = errors.New("message carries a payload of another type")
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypePlan  MessageType = "plan"
)

// ParseMessageType converts raw string into MessageType
func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(s); t {
	case MessageTypeText, MessageTypeImage, MessageTypePlan:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMessageType, s)
}

// Message is a single chat entry. Exactly one of Text, Image and Plan is set,
// the one matching MessageType.
type Message struct {
	ID             string      `json:"id"`
	Enabled        bool        `json:"enabled"`
	CreateDate     time.Time   `json:"createDate"`
	UpdateDate     time.Time   `json:"updateDate"`
	SenderUserID   string      `json:"senderUserId"`
	ReceiverUserID string      `json:"receiverUserId"`
	IsRead         bool        `json:"isRead"`
	MessageType    MessageType `json:"messageType"`
	Text           *string     `json:"text,omitempty"`
	Image          []string    `json:"image,omitempty"`
	Plan           *Plan       `json:"plan,omitempty"`
}

func newMessage(sender, receiver string, t MessageType, now time.Time) Message {
	return Message{
		ID:             uuid.NewString(),
		Enabled:        true,
		CreateDate:     now,
		UpdateDate:     now,
		SenderUserID:   sender,
		ReceiverUserID: receiver,
		IsRead:         false,
		MessageType:    t,
	}
}

func NewTextMessage(sender, receiver, text string, now time.Time) Message {
	m := newMessage(sender, receiver, MessageTypeText, now)
	m.Text = &text
	return m
}

// NewImageMessage copies paths so later changes to the caller's slice do not leak into the message
func NewImageMessage(sender, receiver string, paths []string, now time.Time) Message {
	m := newMessage(sender, receiver, MessageTypeImage, now)
	m.Image = append([]string(nil), paths...)
	return m
}

func NewPlanMessage(sender, receiver string, plan Plan, now time.Time) Message {
	m := newMessage(sender, receiver, MessageTypePlan, now)
	m.Plan = &plan
	return m
}

// Validate checks that the populated payload matches MessageType
func (m Message) Validate() error {
	switch m.MessageType {
	case MessageTypeText:
		if m.Text == nil || *m.Text == "" {
			return ErrEmptyText
		}
		if m.Image != nil || m.Plan != nil {
			return ErrPayloadMismatch
		}
	case MessageTypeImage:
		if len(m.Image) == 0 {
			return ErrNoImages
		}
		if m.Text != nil || m.Plan != nil {
			return ErrPayloadMismatch
		}
	case MessageTypePlan:
		if m.Plan == nil {
			return ErrNoPlan
		}
		if m.Text != nil || m.Image != nil {
			return ErrPayloadMismatch
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, m.MessageType)
	}
	return nil
}
