package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"couplesync/backend/internal/logging"
)

const commandTimeout = 10 * time.Second

// Updater is the part of *tgbotapi.BotAPI the command bridge uses.
type Updater interface {
	Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// CommandSession is what a Telegram user may do to the running session.
type CommandSession interface {
	Send(ctx context.Context, text string) error
	SendEmergency(ctx context.Context, text string) error
	SetMood(ctx context.Context, value string) error
	SetStatus(ctx context.Context, text string) error
}

// Commands lets the owner of the configured chat act from Telegram:
//
//	/mood tired    set own mood
//	/status busy   set own status (empty clears it)
//	/sos text      send an emergency message
//	anything else  sent as a chat message
//
// Updates from any other chat are ignored.
type Commands struct {
	bot     Updater
	session CommandSession
	chatID  int64
	log     zerolog.Logger
}

func NewCommands(bot Updater, session CommandSession, chatID int64) *Commands {
	return &Commands{
		bot:     bot,
		session: session,
		chatID:  chatID,
		log:     logging.Component("telegram"),
	}
}

// Serve receives updates until ctx is done. It satisfies suture.Service.
func (c *Commands) Serve(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)
	defer c.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			reply, handled := c.Handle(ctx, update)
			if !handled || reply == "" {
				continue
			}
			msg := tgbotapi.NewMessage(c.chatID, reply)
			msg.ReplyToMessageID = update.Message.MessageID
			if _, err := c.bot.Send(msg); err != nil {
				c.log.Warn().Err(err).Msg("failed to send command reply")
			}
		}
	}
}

func (c *Commands) String() string { return "telegram-commands" }

// Handle runs one update and returns the reply text. handled is false for
// updates the bridge does not act on.
func (c *Commands) Handle(ctx context.Context, update tgbotapi.Update) (reply string, handled bool) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Chat.ID != c.chatID {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var err error
	switch msg.Command() {
	case "":
		text := extractMessageContent(msg)
		if strings.TrimSpace(text) == "" {
			return "", false
		}
		err = c.session.Send(ctx, text)
		reply = ""
	case "mood":
		err = c.session.SetMood(ctx, msg.CommandArguments())
		reply = "Mood updated."
	case "status":
		err = c.session.SetStatus(ctx, msg.CommandArguments())
		reply = "Status updated."
	case "sos":
		err = c.session.SendEmergency(ctx, msg.CommandArguments())
		reply = "Emergency message sent."
	case "start", "help":
		reply = "Commands: /mood <mood>, /status <text>, /sos <text>. Any other text is sent as a message."
	default:
		reply = "Unknown command. Try /help."
	}
	if err != nil {
		c.log.Debug().Err(err).Str("command", msg.Command()).Msg("command rejected")
		return "Failed: " + err.Error(), true
	}
	return reply, true
}

// extractMessageContent returns the text or, for media, the caption.
func extractMessageContent(msg *tgbotapi.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}
