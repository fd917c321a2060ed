package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"galaxo-monitor/internal/models"
)

// escapeHTML escapa caracteres especiais do HTML
func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

// parseCommand separa o comando (sem @botname) dos argumentos
func parseCommand(text string) (string, []string) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil
	}
	command := strings.ToLower(parts[0])
	if idx := strings.Index(command, "@"); idx > 0 {
		command = command[:idx]
	}
	return command, parts[1:]
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.Text == "" || message.Chat == nil {
		return
	}
	command, args := parseCommand(message.Text)
	if command == "" {
		return
	}
	chatID := message.Chat.ID

	// Comandos públicos não precisam de autorização
	isPublicCommand := command == "/start" || command == "/help"
	if !isPublicCommand && b.chatID != 0 && chatID != b.chatID {
		b.reply(chatID, "Você não está autorizado a usar este bot.", false)
		return
	}

	switch command {
	case "/start", "/help":
		b.reply(chatID, helpText, true)
	case "/add":
		b.handleAdd(ctx, chatID, args)
	case "/list":
		b.handleList(chatID, args)
	case "/remove":
		b.handleRemove(ctx, chatID, args)
	case "/check":
		b.handleCheck(ctx, chatID, args)
	case "/refresh":
		b.handleRefresh(ctx, chatID)
	default:
		b.reply(chatID, "Comando não reconhecido. Use /help para ver os comandos disponíveis.", false)
	}
}

const helpText = `🤖 <b>Monitor de Preços Galaxus</b>

<b>Comandos disponíveis:</b>

<b>/add &lt;URL&gt;</b> - Monitorar um produto
Exemplo: /add https://www.galaxus.ch/de/s1/product/apple-airpods-pro-12345678

<b>/list [min|updates|busca]</b> - Listar produtos monitorados
<b>/remove &lt;id&gt;</b> - Parar de monitorar um produto
<b>/check &lt;id&gt;</b> - Verificar o preço de um produto agora
<b>/refresh</b> - Atualizar todos os preços agora
<b>/help</b> - Mostrar esta mensagem de ajuda
`

// reply envia a mensagem; com HTML, tenta de novo sem formatação em caso de erro
func (b *Bot) reply(chatID int64, text string, html bool) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if html {
		msg.ParseMode = tgbotapi.ModeHTML
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("erro ao enviar mensagem", "chat_id", chatID, "error", err)
		if html {
			msg.ParseMode = ""
			if _, err := b.api.Send(msg); err != nil {
				b.logger.Error("erro ao enviar mensagem sem formatação", "chat_id", chatID, "error", err)
			}
		}
	}
}

func parseID(args []string) (int64, bool) {
	if len(args) < 1 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args []string) {
	if len(args) < 1 {
		b.reply(chatID, "❌ Formato incorreto.\n\nUso: /add <URL>", false)
		return
	}

	product, err := b.tracker.AddFavoriteByURL(ctx, args[0])
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		b.reply(chatID, "❌ URL inválida: o endereço precisa terminar com o ID numérico do produto.", false)
		return
	case errors.Is(err, models.ErrDuplicate):
		b.reply(chatID, "ℹ️ Este produto já está sendo monitorado.\n\n"+formatProduct(product), true)
		return
	case err != nil:
		b.logger.Error("erro ao adicionar produto", "url", args[0], "error", err)
		b.reply(chatID, fmt.Sprintf("❌ Erro ao adicionar produto: %v", err), false)
		return
	}
	b.reply(chatID, "✅ Produto adicionado com sucesso!\n\n"+formatProduct(product), true)
}

// listFilter interpreta o argumento opcional de /list
func listFilter(args []string) models.Filter {
	if len(args) == 0 {
		return models.Filter{}
	}
	switch strings.ToLower(args[0]) {
	case "min":
		return models.Filter{MinReachedOnly: true}
	case "updates":
		return models.Filter{OnlyUpdates: true}
	default:
		return models.Filter{Search: strings.Join(args, " ")}
	}
}

func (b *Bot) handleList(chatID int64, args []string) {
	products := models.Apply(b.tracker.ListTracked(), listFilter(args), models.SortLossDesc)
	if len(products) == 0 {
		b.reply(chatID, "📋 Nenhum produto encontrado.", false)
		return
	}
	for _, chunk := range formatList(products) {
		b.reply(chatID, chunk, true)
	}
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args []string) {
	id, ok := parseID(args)
	if !ok {
		b.reply(chatID, "❌ Formato incorreto.\n\nUso: /remove <id>", false)
		return
	}
	product, found := b.tracker.GetTracked(id)
	if !found {
		b.reply(chatID, "❌ Produto não encontrado.", false)
		return
	}
	if err := b.tracker.DeleteTracked(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("❌ Erro ao remover produto: %v", err), false)
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ Produto removido: %s", product.Name), false)
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64, args []string) {
	id, ok := parseID(args)
	if !ok {
		b.reply(chatID, "❌ Formato incorreto.\n\nUso: /check <id>", false)
		return
	}

	product, err := b.tracker.CheckProduct(ctx, id)
	switch {
	case errors.Is(err, models.ErrNotFound):
		b.reply(chatID, "❌ Produto não encontrado.", false)
	case err != nil:
		b.reply(chatID, fmt.Sprintf("❌ Erro ao verificar preço: %v", err), false)
	default:
		b.reply(chatID, formatProduct(product), true)
	}
}

func (b *Bot) handleRefresh(ctx context.Context, chatID int64) {
	outcome, err := b.tracker.RefreshAllPrices(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("❌ Erro ao atualizar preços: %v", err), false)
		return
	}
	b.reply(chatID, formatOutcome(outcome), false)
}
