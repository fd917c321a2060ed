package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"galaxo-monitor/internal/models"
)

// Notifier envia ao chat configurado os produtos que mudaram de preço ou
// atingiram o mínimo histórico. Implementa monitor.Notifier.
type Notifier struct {
	api    Sender
	chatID int64
	logger *slog.Logger
}

// NewNotifier cria o notificador. Sem chatID as notificações são descartadas.
func NewNotifier(api Sender, chatID int64, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{api: api, chatID: chatID, logger: logger}
}

func (n *Notifier) NotifyChanges(ctx context.Context, products []models.Product) error {
	if n.chatID == 0 {
		n.logger.Debug("TELEGRAM_CHAT_ID não configurado, notificações ignoradas", "count", len(products))
		return nil
	}

	var errs []error
	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(n.chatID, formatChange(p))
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := n.api.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("produto %d: %w", p.ID, err))
			continue
		}
		n.logger.Info("notificação enviada", "product_id", p.ID)
	}
	return errors.Join(errs...)
}
