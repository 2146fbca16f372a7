package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"

	"github.com/matheusmosca/vending-machine/vending"
)

const (
	tableSales    = "sales"
	tableProducts = "products"
)

var (
	dialect     = goqu.Dialect("postgres")
	saleColumns = []interface{}{
		"id", "product_id", "product_name", "price", "paid", "change",
		"status", "reason", "created_at", "updated_at",
	}
)

// Repository define a interface para o ledger de vendas e o catálogo
type Repository interface {
	BeginTx(ctx context.Context) (Tx, error)
	CreateSale(ctx context.Context, tx Tx, sale *Sale) error
	GetSale(ctx context.Context, id string) (*Sale, error)
	GetSaleForUpdate(ctx context.Context, tx Tx, id string) (*Sale, error)
	UpdateSale(ctx context.Context, tx Tx, sale *Sale) error
	ListProducts(ctx context.Context) ([]vending.Product, error)
}

// Tx interface para transações
type Tx interface {
	Commit() error
	Rollback() error
}

// PostgresRepository implementa Repository usando PostgreSQL
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository cria uma nova instância de PostgresRepository
func NewPostgresRepository(db *pgxpool.Pool) Repository {
	return &PostgresRepository{
		db: db,
	}
}

// PostgresTx implementa a interface Tx
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit() error {
	return t.tx.Commit(context.Background())
}

func (t *PostgresTx) Rollback() error {
	return t.tx.Rollback(context.Background())
}

// BeginTx inicia uma nova transação
func (r *PostgresRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &PostgresTx{tx: tx}, nil
}

// CreateSale insere uma venda no ledger
func (r *PostgresRepository) CreateSale(ctx context.Context, tx Tx, sale *Sale) error {
	pgTx := tx.(*PostgresTx).tx

	query, args, err := insertSaleSQL(sale)
	if err != nil {
		return fmt.Errorf("failed to build insert sale query: %w", err)
	}

	if _, err := pgTx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert sale: %w", err)
	}
	return nil
}

// GetSale busca uma venda pelo ID
func (r *PostgresRepository) GetSale(ctx context.Context, id string) (*Sale, error) {
	query, args, err := selectSaleSQL(id, false)
	if err != nil {
		return nil, fmt.Errorf("failed to build select sale query: %w", err)
	}
	return scanSale(r.db.QueryRow(ctx, query, args...))
}

// GetSaleForUpdate obtém a venda com lock pessimista (FOR UPDATE)
func (r *PostgresRepository) GetSaleForUpdate(ctx context.Context, tx Tx, id string) (*Sale, error) {
	pgTx := tx.(*PostgresTx).tx

	query, args, err := selectSaleSQL(id, true)
	if err != nil {
		return nil, fmt.Errorf("failed to build select sale query: %w", err)
	}
	return scanSale(pgTx.QueryRow(ctx, query, args...))
}

// UpdateSale persiste status, troco e motivo da venda
func (r *PostgresRepository) UpdateSale(ctx context.Context, tx Tx, sale *Sale) error {
	pgTx := tx.(*PostgresTx).tx

	query, args, err := updateSaleSQL(sale)
	if err != nil {
		return fmt.Errorf("failed to build update sale query: %w", err)
	}

	tag, err := pgTx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrSaleNotFound, sale.ID)
	}
	return nil
}

// ListProducts carrega o catálogo
func (r *PostgresRepository) ListProducts(ctx context.Context) ([]vending.Product, error) {
	query, args, err := selectProductsSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select products query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []vending.Product
	for rows.Next() {
		var p vending.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func insertSaleSQL(sale *Sale) (string, []interface{}, error) {
	paid, change, err := encodeCoins(sale)
	if err != nil {
		return "", nil, err
	}

	return dialect.Insert(tableSales).Prepared(true).Rows(goqu.Record{
		"id":           sale.ID,
		"product_id":   sale.ProductID,
		"product_name": sale.ProductName,
		"price":        sale.Price,
		"paid":         paid,
		"change":       change,
		"status":       sale.Status,
		"reason":       sale.Reason,
		"created_at":   sale.CreatedAt,
		"updated_at":   sale.UpdatedAt,
	}).ToSQL()
}

func selectSaleSQL(id string, forUpdate bool) (string, []interface{}, error) {
	ds := dialect.From(tableSales).Prepared(true).
		Select(saleColumns...).
		Where(goqu.C("id").Eq(id))
	if forUpdate {
		ds = ds.ForUpdate(exp.Wait)
	}
	return ds.ToSQL()
}

func updateSaleSQL(sale *Sale) (string, []interface{}, error) {
	_, change, err := encodeCoins(sale)
	if err != nil {
		return "", nil, err
	}

	return dialect.Update(tableSales).Prepared(true).Set(goqu.Record{
		"product_name": sale.ProductName,
		"price":        sale.Price,
		"change":       change,
		"status":       sale.Status,
		"reason":       sale.Reason,
		"updated_at":   sale.UpdatedAt,
	}).Where(goqu.C("id").Eq(sale.ID)).ToSQL()
}

func selectProductsSQL() (string, []interface{}, error) {
	return dialect.From(tableProducts).Prepared(true).
		Select("id", "name", "price").
		Order(goqu.C("id").Asc()).
		ToSQL()
}

// coinCount is the jsonb shape of one change line
type coinCount struct {
	Denomination int `json:"denomination"`
	Count        int `json:"count"`
}

func encodeCoins(sale *Sale) (string, string, error) {
	paid, err := jsoniter.ConfigFastest.Marshal(sale.Paid)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode paid coins: %w", err)
	}

	lines := make([]coinCount, 0, len(sale.Change))
	for _, d := range vending.Denominations() {
		lines = append(lines, coinCount{Denomination: int(d), Count: sale.Change[d]})
	}
	change, err := jsoniter.ConfigFastest.Marshal(lines)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode change: %w", err)
	}

	return string(paid), string(change), nil
}

func decodeCoins(sale *Sale, paidJSON, changeJSON []byte) error {
	sale.Paid = nil
	if err := jsoniter.ConfigFastest.Unmarshal(paidJSON, &sale.Paid); err != nil {
		return fmt.Errorf("failed to decode paid coins: %w", err)
	}

	var lines []coinCount
	if err := jsoniter.ConfigFastest.Unmarshal(changeJSON, &lines); err != nil {
		return fmt.Errorf("failed to decode change: %w", err)
	}
	sale.Change = vending.NewCoins()
	for _, l := range lines {
		sale.Change[vending.Denomination(l.Denomination)] = l.Count
	}
	return nil
}

func scanSale(row pgx.Row) (*Sale, error) {
	var (
		sale       Sale
		paidJSON   []byte
		changeJSON []byte
	)
	err := row.Scan(
		&sale.ID,
		&sale.ProductID,
		&sale.ProductName,
		&sale.Price,
		&paidJSON,
		&changeJSON,
		&sale.Status,
		&sale.Reason,
		&sale.CreatedAt,
		&sale.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sale: %w", err)
	}

	if err := decodeCoins(&sale, paidJSON, changeJSON); err != nil {
		return nil, err
	}
	return &sale, nil
}
