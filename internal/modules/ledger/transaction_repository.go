package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/holdings/internal/database"
	"github.com/aristath/holdings/internal/domain"
)

// transactionsColumns is the list of columns for the transactions table
// Column order must match scanTransaction()
var transactionsColumns = []string{
	"id", "portfolio_id", "trading_account_id", "asset_id", "type", "side", "status",
	"quantity", "price", "total_amount", "fees", "currency", "notes", "tags",
	"import_batch_id", "executed_at", "settled_at", "created_at", "updated_at",
}

func columnList(alias string) string {
	if alias == "" {
		return strings.Join(transactionsColumns, ", ")
	}
	prefixed := make([]string, len(transactionsColumns))
	for i, c := range transactionsColumns {
		prefixed[i] = alias + "." + c
	}
	return strings.Join(prefixed, ", ")
}

var sortColumns = map[string]string{
	SortExecutedAt:  "t.executed_at",
	SortTotalAmount: "CAST(t.total_amount AS REAL)",
	SortCreatedAt:   "t.created_at",
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// TransactionRepository handles transaction database operations (ledger.db).
// Reads that take an owner id only see transactions of portfolios that owner holds.
type TransactionRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(ledgerDB *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "transaction").Logger(),
	}
}

// Insert stores one transaction
func (r *TransactionRepository) Insert(ctx context.Context, tx domain.Transaction) error {
	if err := r.insert(ctx, r.ledgerDB, tx); err != nil {
		return err
	}

	r.log.Debug().
		Str("transaction_id", tx.ID).
		Str("portfolio_id", tx.PortfolioID).
		Str("type", string(tx.Type)).
		Msg("Transaction created")
	return nil
}

// InsertBatch stores every transaction in one database transaction: all rows or none.
// The caller bounds the commit through ctx.
func (r *TransactionRepository) InsertBatch(ctx context.Context, txs []domain.Transaction) error {
	err := database.WithTransaction(ctx, r.ledgerDB, func(sqlTx *sql.Tx) error {
		for i := range txs {
			if err := r.insert(ctx, sqlTx, txs[i]); err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert transaction batch: %w", err)
	}

	r.log.Info().Int("count", len(txs)).Msg("Transaction batch committed")
	return nil
}

func (r *TransactionRepository) insert(ctx context.Context, q database.Querier, tx domain.Transaction) error {
	tags, err := encodeTags(tx.Tags)
	if err != nil {
		return err
	}

	query := "INSERT INTO transactions (" + columnList("") + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = q.ExecContext(ctx, query,
		tx.ID,
		tx.PortfolioID,
		tx.TradingAccountID,
		tx.AssetID,
		string(tx.Type),
		string(tx.Side),
		string(tx.Status),
		tx.Quantity.String(),
		tx.Price.String(),
		tx.TotalAmount.String(),
		tx.Fees.String(),
		tx.Currency,
		nullString(tx.Notes),
		tags,
		nullString(tx.ImportBatchID),
		tx.ExecutedAt.Unix(),
		nullUnix(tx.SettledAt),
		tx.CreatedAt.Unix(),
		tx.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", tx.ID, err)
	}
	return nil
}

// GetOwned returns a transaction of a portfolio the owner holds, or a NotFoundError
func (r *TransactionRepository) GetOwned(ctx context.Context, ownerID, id string) (*domain.Transaction, error) {
	query := "SELECT " + columnList("t") + ` FROM transactions t
		JOIN portfolios p ON p.id = t.portfolio_id
		WHERE t.id = ? AND p.owner_id = ?`

	tx, err := r.scanTransaction(r.ledgerDB.QueryRowContext(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return tx, nil
}

// Exists reports whether a row with the id is still stored, regardless of owner
func (r *TransactionRepository) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.ledgerDB.QueryRowContext(ctx, "SELECT 1 FROM transactions WHERE id = ? LIMIT 1", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}
	return true, nil
}

// Update overwrites the mutable fields of a transaction
func (r *TransactionRepository) Update(ctx context.Context, tx domain.Transaction) error {
	tags, err := encodeTags(tx.Tags)
	if err != nil {
		return err
	}

	query := `UPDATE transactions SET
			type = ?,
			side = ?,
			status = ?,
			quantity = ?,
			price = ?,
			total_amount = ?,
			fees = ?,
			currency = ?,
			notes = ?,
			tags = ?,
			executed_at = ?,
			settled_at = ?,
			updated_at = ?
		WHERE id = ?`

	result, err := r.ledgerDB.ExecContext(ctx, query,
		string(tx.Type),
		string(tx.Side),
		string(tx.Status),
		tx.Quantity.String(),
		tx.Price.String(),
		tx.TotalAmount.String(),
		tx.Fees.String(),
		tx.Currency,
		nullString(tx.Notes),
		tags,
		tx.ExecutedAt.Unix(),
		nullUnix(tx.SettledAt),
		tx.UpdatedAt.Unix(),
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", tx.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.NewNotFoundError("transaction", tx.ID)
	}

	r.log.Debug().Str("transaction_id", tx.ID).Msg("Transaction updated")
	return nil
}

// DeleteOwned deletes a transaction of a portfolio the owner holds and returns the number of rows removed
func (r *TransactionRepository) DeleteOwned(ctx context.Context, ownerID, id string) (int64, error) {
	result, err := r.ledgerDB.ExecContext(ctx, `DELETE FROM transactions
		WHERE id = ? AND portfolio_id IN (SELECT id FROM portfolios WHERE owner_id = ?)`, id, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// List returns one page of the owner's transactions matching the filter and the total match count.
// The filter must already be normalized.
func (r *TransactionRepository) List(ctx context.Context, ownerID string, f Filter) ([]domain.Transaction, int, error) {
	where, args := buildWhere(ownerID, f)
	from := " FROM transactions t JOIN portfolios p ON p.id = t.portfolio_id WHERE " + where

	var total int
	if err := r.ledgerDB.QueryRowContext(ctx, "SELECT COUNT(*)"+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	direction := "ASC"
	if f.SortDesc {
		direction = "DESC"
	}
	orderBy := sortColumns[f.SortBy]
	if orderBy == "" {
		orderBy = sortColumns[SortExecutedAt]
	}

	query := "SELECT " + columnList("t") + from +
		" ORDER BY " + orderBy + " " + direction + ", t.id " + direction +
		" LIMIT ? OFFSET ?"
	pageArgs := append(append([]interface{}{}, args...), f.Limit, (f.Page-1)*f.Limit)

	items, err := r.queryTransactions(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListForKey returns every transaction of a position key in execution order
func (r *TransactionRepository) ListForKey(ctx context.Context, key domain.PositionKey) ([]domain.Transaction, error) {
	query := "SELECT " + columnList("") + ` FROM transactions
		WHERE portfolio_id = ? AND trading_account_id = ? AND asset_id = ?
		ORDER BY executed_at ASC, created_at ASC, rowid ASC`

	return r.queryTransactions(ctx, query, key.PortfolioID, key.TradingAccountID, key.AssetID)
}

// ListKeys returns the distinct position keys with at least one transaction in the portfolio
func (r *TransactionRepository) ListKeys(ctx context.Context, portfolioID string) ([]domain.PositionKey, error) {
	rows, err := r.ledgerDB.QueryContext(ctx, `SELECT DISTINCT trading_account_id, asset_id
		FROM transactions WHERE portfolio_id = ?`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.PositionKey
	for rows.Next() {
		key := domain.PositionKey{PortfolioID: portfolioID}
		if err := rows.Scan(&key.TradingAccountID, &key.AssetID); err != nil {
			return nil, fmt.Errorf("failed to scan transaction key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// CountByBatch returns the number of stored rows of an import batch
func (r *TransactionRepository) CountByBatch(ctx context.Context, batchID string) (int, error) {
	var count int
	err := r.ledgerDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE import_batch_id = ?", batchID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count batch transactions: %w", err)
	}
	return count, nil
}

func (r *TransactionRepository) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]domain.Transaction, error) {
	rows, err := r.ledgerDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0)
	for rows.Next() {
		tx, err := r.scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txs, nil
}

func buildWhere(ownerID string, f Filter) (string, []interface{}) {
	clauses := []string{"p.owner_id = ?"}
	args := []interface{}{ownerID}

	add := func(clause string, values ...interface{}) {
		clauses = append(clauses, clause)
		args = append(args, values...)
	}

	if f.PortfolioID != "" {
		add("t.portfolio_id = ?", f.PortfolioID)
	}
	if f.TradingAccountID != "" {
		add("t.trading_account_id = ?", f.TradingAccountID)
	}
	if f.AssetID != "" {
		add("t.asset_id = ?", f.AssetID)
	}
	if len(f.Types) > 0 {
		values := make([]interface{}, len(f.Types))
		for i, typ := range f.Types {
			values[i] = string(typ)
		}
		add("t.type IN ("+placeholders(len(values))+")", values...)
	}
	if f.Side != "" {
		add("t.side = ?", string(f.Side))
	}
	if f.Status != "" {
		add("t.status = ?", string(f.Status))
	}
	if f.From != nil {
		add("t.executed_at >= ?", f.From.Unix())
	}
	if f.To != nil {
		add("t.executed_at <= ?", f.To.Unix())
	}
	if f.MinAmount != nil {
		add("CAST(t.total_amount AS REAL) >= ?", f.MinAmount.InexactFloat64())
	}
	if f.MaxAmount != nil {
		add("CAST(t.total_amount AS REAL) <= ?", f.MaxAmount.InexactFloat64())
	}
	if len(f.Tags) > 0 {
		values := make([]interface{}, len(f.Tags))
		for i, tag := range f.Tags {
			values[i] = tag
		}
		add("EXISTS (SELECT 1 FROM json_each(t.tags) WHERE json_each.value IN ("+placeholders(len(values))+"))", values...)
	}

	return strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// scanTransaction scans a database row into a Transaction struct
func (r *TransactionRepository) scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var typ, side, status string
	var quantity, price, totalAmount, fees string
	var notes, batchID sql.NullString
	var tags string
	var settledAt sql.NullInt64
	var executedAt, createdAt, updatedAt int64

	err := row.Scan(
		&tx.ID,
		&tx.PortfolioID,
		&tx.TradingAccountID,
		&tx.AssetID,
		&typ,
		&side,
		&status,
		&quantity,
		&price,
		&totalAmount,
		&fees,
		&tx.Currency,
		&notes,
		&tags,
		&batchID,
		&executedAt,
		&settledAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Type = domain.TransactionType(typ)
	tx.Side = domain.Side(side)
	tx.Status = domain.TransactionStatus(status)

	amounts := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"quantity", quantity, &tx.Quantity},
		{"price", price, &tx.Price},
		{"total_amount", totalAmount, &tx.TotalAmount},
		{"fees", fees, &tx.Fees},
	}
	for _, a := range amounts {
		if *a.dst, err = decimal.NewFromString(a.raw); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", a.name, a.raw, err)
		}
	}

	tx.Notes = notes.String
	tx.ImportBatchID = batchID.String
	if err := json.Unmarshal([]byte(tags), &tx.Tags); err != nil {
		return nil, fmt.Errorf("invalid tags %q: %w", tags, err)
	}
	if tx.Tags == nil {
		tx.Tags = []string{}
	}

	tx.ExecutedAt = time.Unix(executedAt, 0).UTC()
	if settledAt.Valid {
		t := time.Unix(settledAt.Int64, 0).UTC()
		tx.SettledAt = &t
	}
	tx.CreatedAt = time.Unix(createdAt, 0).UTC()
	tx.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &tx, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(b), nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
