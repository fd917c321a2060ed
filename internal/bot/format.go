package bot

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"galaxo-monitor/internal/models"
	"galaxo-monitor/internal/monitor"
)

// Limite de caracteres de uma mensagem do Telegram, com folga para o HTML
const maxMessageLen = 3800

var locale = language.MustParse("de-CH")

func formatPrice(v float64) string {
	return message.NewPrinter(locale).Sprintf("CHF %.2f", v)
}

// formatProduct monta o resumo HTML de um produto
func formatProduct(p models.Product) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📦 <b>%s</b>\n", escapeHTML(p.Name))
	if meta := joinNonEmpty(" · ", p.Brand, p.Category); meta != "" {
		fmt.Fprintf(&sb, "🏷 %s\n", escapeHTML(meta))
	}
	fmt.Fprintf(&sb, "🆔 ID: %d\n", p.ID)

	if p.ChangeKind() == models.ChangeUnavailable {
		sb.WriteString("💰 <b>Preço atual: indisponível</b>\n")
	} else {
		fmt.Fprintf(&sb, "💰 <b>Preço atual: %s</b> (%s)\n", formatPrice(p.CurrentPrice), p.PriceChangeLabel)
		if p.OldPrice != p.CurrentPrice {
			fmt.Fprintf(&sb, "↩️ Preço anterior: %s\n", formatPrice(p.OldPrice))
		}
	}
	fmt.Fprintf(&sb, "📊 Mín: %s · Máx: %s\n", formatPrice(p.MinPrice), formatPrice(p.MaxPrice))
	fmt.Fprintf(&sb, "📦 Estoque: %s\n", p.StockChangeLabel)
	if p.LossPercentage > 0 {
		fmt.Fprintf(&sb, "📉 %d%% abaixo do máximo\n", p.LossPercentage)
	}
	if p.MinReached {
		sb.WriteString("✅ <b>Mínimo histórico atingido!</b>\n")
	}
	if p.URL != "" {
		fmt.Fprintf(&sb, "🔗 %s\n", p.URL)
	}
	return sb.String()
}

// formatList divide a lista em mensagens que cabem no limite do Telegram
func formatList(products []models.Product) []string {
	var chunks []string
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 <b>Produtos em monitoramento (%d):</b>\n\n", len(products)))
	for _, p := range products {
		entry := formatProduct(p) + "\n"
		if sb.Len()+len(entry) > maxMessageLen && sb.Len() > 0 {
			chunks = append(chunks, sb.String())
			sb.Reset()
		}
		sb.WriteString(entry)
	}
	if sb.Len() > 0 {
		chunks = append(chunks, sb.String())
	}
	return chunks
}

// formatChange monta o aviso enviado após uma atualização
func formatChange(p models.Product) string {
	var header string
	switch {
	case p.PriceChanged && p.CurrentPrice < p.OldPrice:
		header = "🎉 <b>PREÇO CAIU!</b>"
	case p.PriceChanged:
		header = "📈 <b>PREÇO SUBIU</b>"
	default:
		header = "🏁 <b>MÍNIMO HISTÓRICO ATINGIDO</b>"
	}
	return header + "\n\n" + formatProduct(p)
}

func formatOutcome(o monitor.Outcome) string {
	text := fmt.Sprintf("✅ Atualização concluída: %d de %d produtos atualizados.", o.Updated, o.Total)
	if len(o.Failed) == 0 {
		return text
	}
	ids := make([]int64, 0, len(o.Failed))
	for id := range o.Failed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return text + "\n⚠️ Falharam: " + strings.Join(parts, ", ")
}

func joinNonEmpty(sep string, values ...string) string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}
