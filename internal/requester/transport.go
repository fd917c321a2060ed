package requester

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodySize limita o tamanho de uma resposta lida em memória
const maxBodySize = 10 << 20

// Request é uma requisição lógica: o payload é serializado em JSON e enviado via POST
type Request struct {
	Endpoint string
	Payload  any
	Header   http.Header
}

// Response é a resposta bruta devolvida pelo transporte
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport executa uma única tentativa de envio. Implementações diferentes
// (HTTP simples, pool compartilhado, navegador) são intercambiáveis.
type Transport interface {
	Do(ctx context.Context, endpoint string, body []byte, header http.Header) (*Response, error)
	Close() error
}

// HTTPTransport envia requisições com um http.Client cujo pool de conexões
// pertence a esta instância. Close libera as conexões ociosas.
type HTTPTransport struct {
	client *http.Client
	header http.Header
}

// NewHTTPTransport cria o transporte com os cabeçalhos estáticos anexados a
// toda requisição e um pool de até maxConns conexões por host
func NewHTTPTransport(header http.Header, maxConns int) *HTTPTransport {
	if maxConns <= 0 {
		maxConns = 100
	}
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.MaxIdleConns = maxConns
	base.MaxIdleConnsPerHost = maxConns
	base.MaxConnsPerHost = maxConns
	base.IdleConnTimeout = 90 * time.Second

	return &HTTPTransport{
		client: &http.Client{Transport: base},
		header: header.Clone(),
	}
}

// Do envia o corpo JSON para o endpoint. O timeout vem do contexto.
func (t *HTTPTransport) Do(ctx context.Context, endpoint string, body []byte, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for key, values := range t.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	for key, values := range header {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("erro ao ler resposta: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// Close fecha as conexões ociosas do pool
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
