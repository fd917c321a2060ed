package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var trailingDigits = regexp.MustCompile(`(\d+)$`)

// ProductIDFromURL extrai o ID numérico do final da URL do produto.
// A query string é descartada antes da busca.
// Exemplo: https://www.galaxus.ch/de/s1/product/apple-airpods-12345678?x=1 -> 12345678
func ProductIDFromURL(rawURL string) (int64, error) {
	cleaned := strings.TrimSpace(rawURL)
	if idx := strings.IndexAny(cleaned, "?#"); idx >= 0 {
		cleaned = cleaned[:idx]
	}
	cleaned = strings.TrimRight(cleaned, "/")

	match := trailingDigits.FindStringSubmatch(cleaned)
	if len(match) < 2 {
		return 0, fmt.Errorf("%w: nenhum ID numérico na URL %q", ErrInvalidArgument, rawURL)
	}

	id, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: ID inválido na URL %q", ErrInvalidArgument, rawURL)
	}
	return id, nil
}
