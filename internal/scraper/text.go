package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// cleanText remove fragmentos HTML e entidades que a API às vezes devolve
// em nomes e marcas, e normaliza os espaços
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}
