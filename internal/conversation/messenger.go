package conversation

import (
	"context"
	"fmt"
)

// Messenger is the outbound messaging collaborator.
type Messenger interface {
	SendText(ctx context.Context, userID, text string) error
	SendImage(ctx context.Context, userID, url string) error
	SendCarousel(ctx context.Context, userID string, cards []Card) error
	SendQuickReplies(ctx context.Context, userID, text string, replies []QuickReply) error
}

// Deliver sends replies in order and stops at the first failure.
// A carousel never goes out with more than MaxCarouselCards cards.
func Deliver(ctx context.Context, m Messenger, userID string, replies []Reply) error {
	for i, r := range replies {
		var err error
		switch r.Kind {
		case ReplyText:
			err = m.SendText(ctx, userID, r.Text)
		case ReplyImage:
			err = m.SendImage(ctx, userID, r.ImageURL)
		case ReplyCarousel:
			cards := r.Cards
			if len(cards) > MaxCarouselCards {
				cards = cards[:MaxCarouselCards]
			}
			err = m.SendCarousel(ctx, userID, cards)
		case ReplyQuickReplies:
			err = m.SendQuickReplies(ctx, userID, r.Text, r.QuickReplies)
		default:
			err = fmt.Errorf("unknown reply kind %q", r.Kind)
		}
		if err != nil {
			return fmt.Errorf("deliver reply %d (%s): %w", i, r.Kind, err)
		}
	}
	return nil
}
