// Package storage mantém a lista canônica de produtos em memória e a grava
// em um arquivo JSON local, com backups deduplicados e rotacionados.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"galaxo-monitor/internal/metrics"
	"galaxo-monitor/internal/models"
)

const (
	DefaultPath         = "./galaxo_data.json"
	DefaultBackupDir    = "./Backup"
	DefaultBackupPrefix = "galaxo_data_backup_"
	DefaultKeep         = 5
)

// Options configura o Store. Campos vazios usam os valores padrão.
type Options struct {
	Path         string
	BackupDir    string
	BackupPrefix string
	Keep         int
	Now          func() time.Time
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	// Recalculate recompõe os campos derivados de registros carregados do disco
	Recalculate func(models.Product) models.Product
}

// Store é o único dono da lista de produtos. Leituras e escritas em memória
// são protegidas; Persist serializa as gravações em disco.
type Store struct {
	opts Options

	mu       sync.RWMutex
	products []models.Product
	index    map[int64]int

	persistMu sync.Mutex
}

// New cria um Store vazio. Use Load para ler o arquivo existente.
func New(opts Options) *Store {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.BackupDir == "" {
		opts.BackupDir = DefaultBackupDir
	}
	if opts.BackupPrefix == "" {
		opts.BackupPrefix = DefaultBackupPrefix
	}
	if opts.Keep <= 0 {
		opts.Keep = DefaultKeep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{opts: opts, index: map[int64]int{}}
}

// Path retorna o caminho do arquivo de dados
func (s *Store) Path() string {
	return s.opts.Path
}

// record aceita arquivos antigos: campos ausentes ficam nil e recebem padrões
type record struct {
	models.Product
	OldPrice   *float64 `json:"old_price"`
	OldStock   *int     `json:"old_stock"`
	InsertedAt *float64 `json:"inserted_at"`
	InsertDate *float64 `json:"insert_date"`
}

// Load substitui a lista em memória pelo conteúdo do arquivo.
// Um arquivo inexistente resulta em lista vazia.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.opts.Path)
	if errors.Is(err, fs.ErrNotExist) {
		s.opts.Logger.Info("arquivo de dados não encontrado, iniciando vazio", "path", s.opts.Path)
		s.ReplaceAll(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: erro ao ler %s: %w", s.opts.Path, err)
	}

	var records []record
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("storage: arquivo %s inválido: %w", s.opts.Path, err)
		}
	}

	now := s.opts.Now().Unix()
	products := make([]models.Product, 0, len(records))
	for _, r := range records {
		products = append(products, s.normalize(r, now))
	}
	s.ReplaceAll(products)
	s.opts.Logger.Info("produtos carregados", "path", s.opts.Path, "count", s.Len())
	return nil
}

func (s *Store) normalize(r record, now int64) models.Product {
	p := r.Product
	p.OldPrice = p.CurrentPrice
	if r.OldPrice != nil {
		p.OldPrice = *r.OldPrice
	}
	p.OldStock = p.StockCount
	if r.OldStock != nil {
		p.OldStock = *r.OldStock
	}
	switch {
	case r.InsertedAt != nil:
		p.InsertedAt = int64(*r.InsertedAt)
	case r.InsertDate != nil:
		p.InsertedAt = int64(*r.InsertDate)
	default:
		p.InsertedAt = now
	}
	if s.opts.Recalculate != nil {
		p = s.opts.Recalculate(p)
	}
	return p
}

// Add inclui o produto. Um ID já existente não altera nada e retorna false.
func (s *Store) Add(p models.Product) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[p.ID]; ok {
		return false
	}
	s.index[p.ID] = len(s.products)
	s.products = append(s.products, p)
	return true
}

// Remove exclui o produto e retorna se ele existia
func (s *Store) Remove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.products = append(s.products[:i], s.products[i+1:]...)
	s.reindex()
	return true
}

// Update substitui o registro de mesmo ID e retorna se ele existia
func (s *Store) Update(p models.Product) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[p.ID]
	if !ok {
		return false
	}
	s.products[i] = p
	return true
}

// Get retorna uma cópia do produto
func (s *Store) Get(id int64) (models.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return models.Product{}, false
	}
	return s.products[i], true
}

// List retorna uma cópia da lista na ordem de inserção
func (s *Store) List() []models.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Product, len(s.products))
	copy(out, s.products)
	return out
}

// IDs retorna os IDs monitorados
func (s *Store) IDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, len(s.products))
	for i, p := range s.products {
		ids[i] = p.ID
	}
	return ids
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)
}

// ReplaceAll troca a lista inteira. IDs repetidos mantêm a primeira ocorrência.
func (s *Store) ReplaceAll(products []models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = make([]models.Product, 0, len(products))
	s.index = make(map[int64]int, len(products))
	for _, p := range products {
		if _, ok := s.index[p.ID]; ok {
			continue
		}
		s.index[p.ID] = len(s.products)
		s.products = append(s.products, p)
	}
}

func (s *Store) reindex() {
	s.index = make(map[int64]int, len(s.products))
	for i, p := range s.products {
		s.index[p.ID] = i
	}
}

// Persist grava a lista completa, sobrescrevendo o arquivo. Antes disso o
// conteúdo anterior vira backup, a menos que o backup mais recente seja idêntico.
func (s *Store) Persist() error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	data, err := json.MarshalIndent(s.List(), "", "  ")
	if err != nil {
		return fmt.Errorf("storage: erro ao serializar produtos: %w", err)
	}
	data = append(data, '\n')

	previous, err := os.ReadFile(s.opts.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("storage: erro ao ler %s: %w", s.opts.Path, err)
	case bytes.Equal(previous, data):
		s.opts.Logger.Debug("conteúdo inalterado, nada a gravar", "path", s.opts.Path)
		return nil
	default:
		if err := s.backup(previous); err != nil {
			return err
		}
	}

	if err := writeAtomic(s.opts.Path, data); err != nil {
		return fmt.Errorf("storage: erro ao gravar %s: %w", s.opts.Path, err)
	}
	s.opts.Logger.Info("produtos gravados", "path", s.opts.Path, "count", s.Len())
	return nil
}

// writeAtomic grava em um arquivo temporário no mesmo diretório e renomeia
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
