// Package repository содержит хранилища балансов и журнала операций леджера FODI.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/Fodi999/fodi-ledger/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository хранит балансы и журнал операций в PostgreSQL.
// Изменения одного пользователя сериализуются блокировкой строки balances (SELECT ... FOR UPDATE).
type PostgresRepository struct {
	pool   *pgxpool.Pool
	clock  *commitClock
	delays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		clock:  newCommitClock(),
		delays: []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 500 * time.Millisecond},
	}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет транзакцию только при конфликте сериализации или дедлоке:
// в этих случаях PostgreSQL уже откатил транзакцию и ничего не применено.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error

	for i := 0; i <= len(r.delays); i++ {
		err = fn()
		if err == nil || !isRetryable(err) || i == len(r.delays) {
			return err
		}

		timer := time.NewTimer(r.delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return false
}

// classify оставляет бизнес-ошибки и ошибки контекста как есть, остальное считает отказом хранилища.
func classify(op string, err error) error {
	if err == nil || IsBusinessError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return storageError(op, err)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// withUsers выполняет fn в одной транзакции БД, предварительно заблокировав строки балансов
// указанных пользователей в лексикографическом порядке.
func (r *PostgresRepository) withUsers(ctx context.Context, op string, userIDs []string, fn func(tx pgx.Tx, balances map[string]model.Balance) error) error {
	ids := slices.Clone(userIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		balances := make(map[string]model.Balance, len(ids))
		for _, id := range ids {
			b, err := lockBalanceRow(ctx, tx, id)
			if err != nil {
				return err
			}
			balances[id] = b
		}

		if err := fn(tx, balances); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})

	return classify(op, err)
}

func lockBalanceRow(ctx context.Context, tx pgx.Tx, userID string) (model.Balance, error) {
	_, err := tx.Exec(ctx,
		`INSERT INTO balances (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return model.Balance{}, fmt.Errorf("ensure balance: %w", err)
	}

	var total, locked int64
	err = tx.QueryRow(ctx,
		`SELECT total, locked FROM balances WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&total, &locked)
	if err != nil {
		return model.Balance{}, fmt.Errorf("lock balance for update: %w", err)
	}

	return model.Balance{UserID: userID, Total: uint64(total), Locked: uint64(locked)}, nil
}

func saveBalance(ctx context.Context, tx pgx.Tx, b model.Balance) error {
	_, err := tx.Exec(ctx,
		`UPDATE balances SET total = $2, locked = $3, updated_at = now() WHERE user_id = $1`,
		b.UserID, int64(b.Total), int64(b.Locked),
	)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

func (r *PostgresRepository) insertTransaction(ctx context.Context, tx pgx.Tx, userID string, kind model.TransactionKind, amount uint64, metadata map[string]string) (model.Transaction, error) {
	t := model.Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		Timestamp: r.clock.next(),
		Metadata:  metadata,
	}

	var seq int64
	err := tx.QueryRow(ctx,
		`INSERT INTO transactions (id, user_id, kind, amount, created_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING seq`,
		t.ID, t.UserID, string(t.Kind), int64(t.Amount), t.Timestamp, t.Metadata,
	).Scan(&seq)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	t.Seq = uint64(seq)
	return t, nil
}

// GetBalance возвращает баланс пользователя или нулевой баланс, если пользователь неизвестен.
func (r *PostgresRepository) GetBalance(ctx context.Context, userID string) (model.Balance, error) {
	var total, locked int64
	err := r.pool.QueryRow(ctx,
		`SELECT total, locked FROM balances WHERE user_id = $1`,
		userID,
	).Scan(&total, &locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Balance{UserID: userID}, nil
		}
		return model.Balance{}, classify("get balance", err)
	}

	return model.Balance{UserID: userID, Total: uint64(total), Locked: uint64(locked)}, nil
}

// Credit увеличивает баланс пользователя и добавляет операцию в журнал в одной транзакции БД.
func (r *PostgresRepository) Credit(ctx context.Context, userID string, amount uint64, kind model.TransactionKind, metadata map[string]string) (model.Balance, model.Transaction, error) {
	if err := checkCreditKind(kind); err != nil {
		return model.Balance{}, model.Transaction{}, err
	}

	var (
		bal model.Balance
		txn model.Transaction
	)
	err := r.withUsers(ctx, "credit", []string{userID}, func(tx pgx.Tx, balances map[string]model.Balance) error {
		b, err := creditBalance(balances[userID], amount, postgresCeiling)
		if err != nil {
			return err
		}
		if err := saveBalance(ctx, tx, b); err != nil {
			return err
		}
		t, err := r.insertTransaction(ctx, tx, userID, kind, amount, copyMetadata(metadata))
		if err != nil {
			return err
		}
		bal, txn = b, t
		return nil
	})
	if err != nil {
		return model.Balance{}, model.Transaction{}, err
	}

	return bal, txn, nil
}

// Debit уменьшает баланс пользователя, если доступных средств достаточно.
func (r *PostgresRepository) Debit(ctx context.Context, userID string, amount uint64, kind model.TransactionKind, metadata map[string]string) (model.Balance, model.Transaction, error) {
	if err := checkDebitKind(kind); err != nil {
		return model.Balance{}, model.Transaction{}, err
	}

	var (
		bal model.Balance
		txn model.Transaction
	)
	err := r.withUsers(ctx, "debit", []string{userID}, func(tx pgx.Tx, balances map[string]model.Balance) error {
		b, err := debitBalance(balances[userID], amount)
		if err != nil {
			return err
		}
		if err := saveBalance(ctx, tx, b); err != nil {
			return err
		}
		t, err := r.insertTransaction(ctx, tx, userID, kind, amount, copyMetadata(metadata))
		if err != nil {
			return err
		}
		bal, txn = b, t
		return nil
	})
	if err != nil {
		return model.Balance{}, model.Transaction{}, err
	}

	return bal, txn, nil
}

// Transfer переводит доступные средства между пользователями и пишет две операции перевода.
func (r *PostgresRepository) Transfer(ctx context.Context, fromID, toID string, amount uint64, metadata map[string]string) (model.Balance, model.Transaction, error) {
	if fromID == toID {
		return model.Balance{}, model.Transaction{}, ErrSameUser
	}

	var (
		bal model.Balance
		txn model.Transaction
	)
	err := r.withUsers(ctx, "transfer", []string{fromID, toID}, func(tx pgx.Tx, balances map[string]model.Balance) error {
		from, err := debitBalance(balances[fromID], amount)
		if err != nil {
			return err
		}
		to, err := creditBalance(balances[toID], amount, postgresCeiling)
		if err != nil {
			return err
		}
		if err := saveBalance(ctx, tx, from); err != nil {
			return err
		}
		if err := saveBalance(ctx, tx, to); err != nil {
			return err
		}

		out, err := r.insertTransaction(ctx, tx, fromID, model.KindTransfer, amount,
			copyMetadata(metadata, model.MetaDirection, model.DirectionOut, model.MetaCounterparty, toID))
		if err != nil {
			return err
		}
		if _, err := r.insertTransaction(ctx, tx, toID, model.KindTransfer, amount,
			copyMetadata(metadata, model.MetaDirection, model.DirectionIn, model.MetaCounterparty, fromID)); err != nil {
			return err
		}

		bal, txn = from, out
		return nil
	})
	if err != nil {
		return model.Balance{}, model.Transaction{}, err
	}

	return bal, txn, nil
}

// Lock переводит средства из доступных в заблокированные.
func (r *PostgresRepository) Lock(ctx context.Context, userID string, amount uint64) (model.Balance, error) {
	return r.adjust(ctx, "lock", userID, func(b model.Balance) (model.Balance, error) {
		return lockBalance(b, amount)
	})
}

// Unlock возвращает заблокированные средства в доступные.
func (r *PostgresRepository) Unlock(ctx context.Context, userID string, amount uint64) (model.Balance, error) {
	return r.adjust(ctx, "unlock", userID, func(b model.Balance) (model.Balance, error) {
		return unlockBalance(b, amount)
	})
}

func (r *PostgresRepository) adjust(ctx context.Context, op, userID string, fn func(model.Balance) (model.Balance, error)) (model.Balance, error) {
	var bal model.Balance
	err := r.withUsers(ctx, op, []string{userID}, func(tx pgx.Tx, balances map[string]model.Balance) error {
		b, err := fn(balances[userID])
		if err != nil {
			return err
		}
		if err := saveBalance(ctx, tx, b); err != nil {
			return err
		}
		bal = b
		return nil
	})
	if err != nil {
		return model.Balance{}, err
	}
	return bal, nil
}

const transactionColumns = `id, seq, user_id, kind, amount, created_at, signature, metadata`

// ListTransactions возвращает операции пользователя, начиная с самой новой.
func (r *PostgresRepository) ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC, seq DESC
		 LIMIT $2`,
		userID, normalizeLimit(limit),
	)
	if err != nil {
		return nil, classify("select transactions", err)
	}
	return collectTransactions(rows)
}

// ListUnsettled возвращает операции без внешней подписи с Seq больше afterSeq, начиная с самой старой.
func (r *PostgresRepository) ListUnsettled(ctx context.Context, afterSeq uint64, limit int) ([]model.Transaction, error) {
	if afterSeq > math.MaxInt64 {
		return []model.Transaction{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions
		 WHERE signature IS NULL AND seq > $1
		 ORDER BY seq
		 LIMIT $2`,
		int64(afterSeq), normalizeLimit(limit),
	)
	if err != nil {
		return nil, classify("select unsettled transactions", err)
	}
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]model.Transaction, error) {
	defer rows.Close()

	res := []model.Transaction{}
	for rows.Next() {
		var (
			t      model.Transaction
			seq    int64
			kind   string
			amount int64
		)
		if err := rows.Scan(&t.ID, &seq, &t.UserID, &kind, &amount, &t.Timestamp, &t.Signature, &t.Metadata); err != nil {
			return nil, classify("scan transaction", err)
		}
		t.Seq = uint64(seq)
		t.Kind = model.TransactionKind(kind)
		t.Amount = uint64(amount)
		t.Timestamp = t.Timestamp.UTC()
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("rows error", err)
	}

	return res, nil
}

// AttachSignature привязывает внешнюю подпись к операции. Повторный вызов с той же подписью ничего не меняет.
func (r *PostgresRepository) AttachSignature(ctx context.Context, txID, signature string) error {
	var userID string
	err := r.pool.QueryRow(ctx,
		`SELECT user_id FROM transactions WHERE id = $1`,
		txID,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return classify("select transaction owner", err)
	}

	return r.withUsers(ctx, "attach signature", []string{userID}, func(tx pgx.Tx, _ map[string]model.Balance) error {
		var existing *string
		err := tx.QueryRow(ctx,
			`SELECT signature FROM transactions WHERE id = $1 FOR UPDATE`,
			txID,
		).Scan(&existing)
		if err != nil {
			return fmt.Errorf("lock transaction: %w", err)
		}

		if existing != nil {
			if *existing == signature {
				return nil
			}
			return ErrSignatureConflict
		}

		_, err = tx.Exec(ctx,
			`UPDATE transactions SET signature = $2 WHERE id = $1`,
			txID, signature,
		)
		if err != nil {
			return fmt.Errorf("update signature: %w", err)
		}
		return nil
	})
}
