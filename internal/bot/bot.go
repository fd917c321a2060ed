// Package bot expõe o monitor pelo Telegram: comandos de gerenciamento e
// avisos de mudança de preço para o chat configurado.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"galaxo-monitor/internal/models"
	"galaxo-monitor/internal/monitor"
)

// Sender é o subconjunto da API do Telegram usado pelo pacote
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Tracker são as operações do monitor acionadas pelos comandos
type Tracker interface {
	ListTracked() []models.Product
	GetTracked(id int64) (models.Product, bool)
	AddFavoriteByURL(ctx context.Context, rawURL string) (models.Product, error)
	DeleteTracked(ctx context.Context, id int64) error
	CheckProduct(ctx context.Context, id int64) (models.Product, error)
	RefreshAllPrices(ctx context.Context) (monitor.Outcome, error)
}

// Init inicializa o bot do Telegram
func Init(token string, logger *slog.Logger) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN não configurado. Verifique o arquivo .env")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		if err.Error() == "Unauthorized" {
			return nil, fmt.Errorf("token do Telegram inválido ou expirado. Verifique o TELEGRAM_BOT_TOKEN no arquivo .env. Para obter um token, fale com @BotFather no Telegram")
		}
		return nil, fmt.Errorf("erro ao conectar com Telegram: %w", err)
	}

	api.Debug = false
	if logger != nil {
		logger.Info("bot autorizado", "username", api.Self.UserName)
	}
	return api, nil
}

// Bot processa os comandos recebidos. Com chatID diferente de zero, apenas
// esse chat pode usar comandos além de /start e /help.
type Bot struct {
	api     Sender
	tracker Tracker
	chatID  int64
	logger  *slog.Logger
}

// New cria o processador de comandos
func New(api Sender, tracker Tracker, chatID int64, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{api: api, tracker: tracker, chatID: chatID, logger: logger}
}

// Run consome as atualizações até o canal fechar ou o contexto ser cancelado
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// Listen abre o long polling e processa os comandos até o contexto ser cancelado
func Listen(ctx context.Context, api *tgbotapi.BotAPI, b *Bot) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()
	b.Run(ctx, updates)
}
