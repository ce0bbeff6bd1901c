package handler

import (
	"context"
	"fmt"
)

// Commands accepted over the websocket. Everything else goes through the
// JSON API.
const (
	CommandTyping = "typing"
	CommandSend   = "send"
	CommandMood   = "mood"
	CommandStatus = "status"
)

func (h *Handler) handleCommand(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case CommandTyping:
		return h.Session.TypingInput(ctx)
	case CommandSend:
		return h.Session.Send(ctx, cmd.Text)
	case CommandMood:
		return h.Session.SetMood(ctx, cmd.Text)
	case CommandStatus:
		return h.Session.SetStatus(ctx, cmd.Text)
	}
	return fmt.Errorf("unknown command %q", cmd.Type)
}
