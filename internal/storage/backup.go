package storage

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const backupTimeLayout = "20060102_150405"

type backupFile struct {
	path    string
	modTime time.Time
}

// backup copia o conteúdo anterior para o diretório de backups, a menos que
// o backup mais recente tenha o mesmo hash MD5, e depois aplica a retenção
func (s *Store) backup(content []byte) error {
	if err := os.MkdirAll(s.opts.BackupDir, 0o755); err != nil {
		return fmt.Errorf("storage: erro ao criar diretório de backup: %w", err)
	}

	existing, err := s.listBackups()
	if err != nil {
		return err
	}
	hash := md5Hex(content)
	if len(existing) > 0 {
		latest := existing[0]
		data, err := os.ReadFile(latest.path)
		if err != nil {
			s.opts.Logger.Warn("erro ao ler backup", "path", latest.path, "error", err)
		} else if md5Hex(data) == hash {
			s.opts.Logger.Debug("backup mais recente é idêntico, ignorando", "path", latest.path, "md5", hash)
			s.opts.Metrics.Backup("skipped")
			return nil
		}
	}

	now := s.opts.Now()
	path := s.backupPath(now)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("storage: erro ao criar backup: %w", err)
	}
	if err := os.Chtimes(path, now, now); err != nil {
		s.opts.Logger.Warn("erro ao ajustar data do backup", "path", path, "error", err)
	}
	s.opts.Metrics.Backup("created")
	s.opts.Logger.Info("backup criado", "path", path, "md5", hash)

	s.prune()
	return nil
}

// backupPath gera o nome com timestamp, com sufixo numérico em caso de colisão
func (s *Store) backupPath(now time.Time) string {
	base := s.opts.BackupPrefix + now.Format(backupTimeLayout)
	path := filepath.Join(s.opts.BackupDir, base+".json")
	for i := 1; fileExists(path); i++ {
		path = filepath.Join(s.opts.BackupDir, fmt.Sprintf("%s_%d.json", base, i))
	}
	return path
}

// listBackups retorna os backups do mais recente para o mais antigo
func (s *Store) listBackups() ([]backupFile, error) {
	entries, err := os.ReadDir(s.opts.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("storage: erro ao listar backups: %w", err)
	}
	var files []backupFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, s.opts.BackupPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, backupFile{path: filepath.Join(s.opts.BackupDir, name), modTime: info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path > files[j].path
		}
		return files[i].modTime.After(files[j].modTime)
	})
	return files, nil
}

// Backups lista os caminhos dos backups retidos, do mais recente ao mais antigo
func (s *Store) Backups() ([]string, error) {
	files, err := s.listBackups()
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// prune mantém apenas os Keep backups mais recentes. Falhas só geram log.
func (s *Store) prune() {
	files, err := s.listBackups()
	if err != nil {
		s.opts.Logger.Warn("erro ao listar backups para limpeza", "error", err)
		return
	}
	if len(files) <= s.opts.Keep {
		return
	}
	for _, f := range files[s.opts.Keep:] {
		if err := os.Remove(f.path); err != nil {
			s.opts.Logger.Warn("erro ao remover backup antigo", "path", f.path, "error", err)
			continue
		}
		s.opts.Metrics.Backup("pruned")
		s.opts.Logger.Info("backup antigo removido", "path", f.path)
	}
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
