// Package conversation is the top-level turn handler.
package conversation

// MaxCarouselCards is the most cards a single carousel may carry.
const MaxCarouselCards = 10

// ReplyKind is the outbound message shape.
type ReplyKind string

const (
	ReplyText         ReplyKind = "text"
	ReplyImage        ReplyKind = "image"
	ReplyCarousel     ReplyKind = "carousel"
	ReplyQuickReplies ReplyKind = "quick_replies"
)

// Card is one carousel element.
type Card struct {
	Title         string `json:"title"`
	Subtitle      string `json:"subtitle,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
	ButtonTitle   string `json:"button_title,omitempty"`
	ButtonPayload string `json:"button_payload,omitempty"`
}

// QuickReply is a tappable suggestion. Its payload comes back as the next message.
type QuickReply struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// Reply is one outbound message.
type Reply struct {
	Kind         ReplyKind    `json:"kind"`
	Text         string       `json:"text,omitempty"`
	ImageURL     string       `json:"image_url,omitempty"`
	Cards        []Card       `json:"cards,omitempty"`
	QuickReplies []QuickReply `json:"quick_replies,omitempty"`
}

// Text returns a plain text reply.
func Text(s string) Reply {
	return Reply{Kind: ReplyText, Text: s}
}

// Image returns a single-image reply.
func Image(url string) Reply {
	return Reply{Kind: ReplyImage, ImageURL: url}
}

// Carousel returns a carousel reply, truncated to MaxCarouselCards.
func Carousel(cards []Card) Reply {
	if len(cards) > MaxCarouselCards {
		cards = cards[:MaxCarouselCards]
	}
	return Reply{Kind: ReplyCarousel, Cards: cards}
}

// Choices returns a text reply with quick replies. Without choices it is plain text.
func Choices(text string, replies []QuickReply) Reply {
	if len(replies) == 0 {
		return Text(text)
	}
	return Reply{Kind: ReplyQuickReplies, Text: text, QuickReplies: replies}
}
