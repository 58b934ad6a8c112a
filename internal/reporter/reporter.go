package reporter

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is implemented by *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Reporter sends short error notification messages to a Telegram admin chat.
// It is nil-safe: if adminID is 0, the sender is nil or the receiver is nil, Notify is a no-op.
type Reporter struct {
	sender  Sender
	adminID int64
	log     *zap.Logger
}

func New(sender Sender, adminID int64, log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{sender: sender, adminID: adminID, log: log}
}

func (r *Reporter) Notify(msg string) {
	if r == nil || r.sender == nil || r.adminID == 0 {
		return
	}
	if _, err := r.sender.Send(tgbotapi.NewMessage(r.adminID, msg)); err != nil {
		r.log.Error("failed to send error notification", zap.Error(err))
	}
}
