// Package database espelha a lista persistida de produtos em um banco SQLite,
// para consultas externas com ferramentas SQL.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"galaxo-monitor/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Mirror encapsula a conexão com o banco de dados
type Mirror struct {
	conn   *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// New abre (ou cria) o banco e garante o esquema
func New(dbPath string, logger *slog.Logger) (*Mirror, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite aceita apenas um escritor por vez
	conn.SetMaxOpenConns(1)

	db := &Mirror{conn: conn, logger: logger, now: time.Now}

	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("banco de dados inicializado com sucesso", "path", dbPath)
	return db, nil
}

// Close fecha a conexão com o banco de dados
func (db *Mirror) Close() error {
	return db.conn.Close()
}

// init cria as tabelas necessárias
func (db *Mirror) init() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS products (
		product_id INTEGER PRIMARY KEY,
		name TEXT,
		brand TEXT,
		category TEXT,
		current_price REAL,
		old_price REAL,
		stock_count INTEGER,
		old_stock INTEGER,
		min_price REAL,
		max_price REAL,
		percentage_diff REAL,
		price_changed BOOLEAN DEFAULT 0,
		stock_changed BOOLEAN DEFAULT 0,
		min_reached BOOLEAN DEFAULT 0,
		loss_percentage INTEGER,
		url TEXT,
		image_url TEXT,
		inserted_at INTEGER,
		synced_at DATETIME
	);
	`

	_, err := db.conn.Exec(createTableSQL)
	return err
}

// Sync substitui o conteúdo da tabela pela lista informada em uma única transação
func (db *Mirror) Sync(ctx context.Context, products []models.Product) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database: erro ao iniciar transação: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM products"); err != nil {
		return fmt.Errorf("database: erro ao limpar produtos: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO products (
		product_id, name, brand, category, current_price, old_price, stock_count, old_stock,
		min_price, max_price, percentage_diff, price_changed, stock_changed, min_reached,
		loss_percentage, url, image_url, inserted_at, synced_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("database: erro ao preparar inserção: %w", err)
	}
	defer stmt.Close()

	syncedAt := db.now().UTC()
	for _, p := range products {
		if _, err = stmt.ExecContext(ctx,
			p.ID, p.Name, p.Brand, p.Category, p.CurrentPrice, p.OldPrice, p.StockCount, p.OldStock,
			p.MinPrice, p.MaxPrice, p.PercentageDiff, p.PriceChanged, p.StockChanged, p.MinReached,
			p.LossPercentage, p.URL, p.ImageURL, p.InsertedAt, syncedAt,
		); err != nil {
			return fmt.Errorf("database: erro ao inserir produto %d: %w", p.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("database: erro ao confirmar transação: %w", err)
	}
	db.logger.Debug("espelho SQLite sincronizado", "count", len(products))
	return nil
}
