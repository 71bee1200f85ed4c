package telegram

import (
	tele "gopkg.in/telebot.v4"

	"postbot/internal/dispatch"
)

// replyMarkup converts the adapter-agnostic markup into telebot's inline
// keyboard. Nil stays nil so bare posts go out without any markup attached.
func replyMarkup(m *dispatch.Markup) *tele.ReplyMarkup {
	if m == nil || len(m.Rows) == 0 {
		return nil
	}
	keyboard := make([][]tele.InlineButton, 0, len(m.Rows))
	for _, row := range m.Rows {
		btns := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tele.InlineButton{Text: b.Text, URL: b.URL, Data: b.Data})
		}
		keyboard = append(keyboard, btns)
	}
	return &tele.ReplyMarkup{InlineKeyboard: keyboard}
}
