package dispatch

import (
	"fmt"

	"postbot/internal/model"
)

// Callback data formats shared with the conversational front-end.
const (
	ParticipatePrefix = "part_"
	ReactPrefix       = "react_"
)

func ParticipateData(postID int64) string {
	return fmt.Sprintf("%s%d", ParticipatePrefix, postID)
}

func ReactData(postID int64, buttonID string) string {
	return fmt.Sprintf("%s%d_%s", ReactPrefix, postID, buttonID)
}

// BuildMarkup renders a post's inline keyboard with live counts, in fixed
// order: URL buttons (one row each), the reaction row, then the participate
// button. Reaction labels carry a count suffix only when the count is
// positive; the participate label always shows its count. Returns nil when no
// buttons apply, so the message goes out bare.
func BuildMarkup(p model.Post, participants int, reactions map[string]int) *Markup {
	var rows [][]Button

	for _, b := range p.URLButtons {
		if b.Text == "" || b.URL == "" {
			continue
		}
		rows = append(rows, []Button{{Text: b.Text, URL: b.URL}})
	}

	if len(p.ReactionButtons) > 0 {
		row := make([]Button, 0, len(p.ReactionButtons))
		for _, rb := range p.ReactionButtons {
			text := rb.Text
			if n := reactions[rb.ID]; n > 0 {
				text = fmt.Sprintf("%s (%d)", rb.Text, n)
			}
			row = append(row, Button{Text: text, Data: ReactData(p.ID, rb.ID)})
		}
		rows = append(rows, row)
	}

	if p.HasParticipate {
		label := p.ButtonText
		if label == "" {
			label = model.DefaultButtonText
		}
		rows = append(rows, []Button{{
			Text: fmt.Sprintf("%s (%d)", label, participants),
			Data: ParticipateData(p.ID),
		}})
	}

	if len(rows) == 0 {
		return nil
	}
	return &Markup{Rows: rows}
}
