package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/Fodi999/fodi-ledger/internal/model"
)

// MemoryRepository хранит балансы и журнал операций в памяти процесса.
// Изменяющие операции сериализуются по пользователю через userLocks,
// mu защищает только сами структуры данных.
type MemoryRepository struct {
	locks *userLocks
	clock *commitClock

	mu       sync.RWMutex
	seq      uint64
	balances map[string]model.Balance
	txs      map[string]*model.Transaction
	byUser   map[string][]string
	// неподписанные операции по возрастанию Seq
	pending []*model.Transaction
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		locks:    newUserLocks(),
		clock:    newCommitClock(),
		balances: make(map[string]model.Balance),
		txs:      make(map[string]*model.Transaction),
		byUser:   make(map[string][]string),
	}
}

// Close ничего не делает и нужен для совместимости с контрактом хранилища.
func (r *MemoryRepository) Close() error {
	return nil
}

// GetBalance возвращает баланс пользователя или нулевой баланс, если пользователь неизвестен.
func (r *MemoryRepository) GetBalance(_ context.Context, userID string) (model.Balance, error) {
	return r.balance(userID), nil
}

func (r *MemoryRepository) balance(userID string) model.Balance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.balances[userID]
	if !ok {
		return model.Balance{UserID: userID}
	}
	return b
}

// Credit увеличивает баланс пользователя и добавляет операцию в журнал.
func (r *MemoryRepository) Credit(ctx context.Context, userID string, amount uint64, kind model.TransactionKind, metadata map[string]string) (model.Balance, model.Transaction, error) {
	if err := checkCreditKind(kind); err != nil {
		return model.Balance{}, model.Transaction{}, err
	}

	release, err := r.locks.acquire(ctx, userID)
	if err != nil {
		return model.Balance{}, model.Transaction{}, err
	}
	defer release()

	b, err := creditBalance(r.balance(userID), amount, memoryCeiling)
	if err != nil {
		return model.Balance{}, model.Transaction{}, err
	}

	t := r.newTransaction(userID, kind, amount, copyMetadata(metadata))
	r.commit([]model.Balance{b}, []*model.Transaction{t})

	return b, t.Clone(), nil
}

// Debit уменьшает баланс пользователя, если доступных средств достаточно.
// При отказе баланс не изменяется.
func (r *MemoryRepository) Debit(ctx context.Context, userID string, amount uint64, kind model.TransactionKind, metadata map[string]string) (model.Balance, model.Transaction, error) {
	if err := checkDebitKind(kind); err != nil {
		return model.Balance{}, model.Transaction{}, err
	}

	release, err := r.locks.acquire(ctx, userID)
	if err != nil {
		return model.Balance{}, model.Transaction{}, err
	}
	defer release()

	b, err := debitBalance(r.balance(userID), amount)
	if err != nil {
		return model.Balance{}, model.Transaction{}, err
	}

	t := r.newTransaction(userID, kind, amount, copyMetadata(metadata))
	r.commit([]model.Balance{b}, []*model.Transaction{t})

	return b, t.Clone(), nil
}

// Transfer переводит доступные средства между пользователями и пишет две операции перевода.
func (r *MemoryRepository) Transfer(ctx context.Context, fromID, toID string, amount uint64, metadata map[string]string) (model.Balance, model.Transaction, error) {
	if fromID == toID {
		return model.Balance{}, model.Transaction{}, ErrSameUser
	}

	release, err := r.locks.acquire(ctx, fromID, toID)
	if err != nil {
		return model.Balance{}, model.Transaction{}, err
	}
	defer release()

	from, err := debitBalance(r.balance(fromID), amount)
	if err != nil {
		return model.Balance{}, model.Transaction{}, err
	}
	to, err := creditBalance(r.balance(toID), amount, memoryCeiling)
	if err != nil {
		return model.Balance{}, model.Transaction{}, err
	}

	out := r.newTransaction(fromID, model.KindTransfer, amount,
		copyMetadata(metadata, model.MetaDirection, model.DirectionOut, model.MetaCounterparty, toID))
	in := r.newTransaction(toID, model.KindTransfer, amount,
		copyMetadata(metadata, model.MetaDirection, model.DirectionIn, model.MetaCounterparty, fromID))
	r.commit([]model.Balance{from, to}, []*model.Transaction{out, in})

	return from, out.Clone(), nil
}

// Lock переводит средства из доступных в заблокированные.
func (r *MemoryRepository) Lock(ctx context.Context, userID string, amount uint64) (model.Balance, error) {
	return r.adjust(ctx, userID, func(b model.Balance) (model.Balance, error) {
		return lockBalance(b, amount)
	})
}

// Unlock возвращает заблокированные средства в доступные.
func (r *MemoryRepository) Unlock(ctx context.Context, userID string, amount uint64) (model.Balance, error) {
	return r.adjust(ctx, userID, func(b model.Balance) (model.Balance, error) {
		return unlockBalance(b, amount)
	})
}

func (r *MemoryRepository) adjust(ctx context.Context, userID string, fn func(model.Balance) (model.Balance, error)) (model.Balance, error) {
	release, err := r.locks.acquire(ctx, userID)
	if err != nil {
		return model.Balance{}, err
	}
	defer release()

	b, err := fn(r.balance(userID))
	if err != nil {
		return model.Balance{}, err
	}

	r.commit([]model.Balance{b}, nil)
	return b, nil
}

// ListTransactions возвращает операции пользователя, начиная с самой новой.
func (r *MemoryRepository) ListTransactions(_ context.Context, userID string, limit int) ([]model.Transaction, error) {
	limit = normalizeLimit(limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byUser[userID]
	res := make([]model.Transaction, 0, min(limit, len(ids)))
	for i := len(ids) - 1; i >= 0 && len(res) < limit; i-- {
		res = append(res, r.txs[ids[i]].Clone())
	}
	return res, nil
}

// ListUnsettled возвращает операции без внешней подписи с Seq больше afterSeq, начиная с самой старой.
func (r *MemoryRepository) ListUnsettled(_ context.Context, afterSeq uint64, limit int) ([]model.Transaction, error) {
	limit = normalizeLimit(limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	i, found := slices.BinarySearchFunc(r.pending, afterSeq, compareSeq)
	if found {
		i++
	}
	tail := r.pending[i:]
	res := make([]model.Transaction, 0, min(limit, len(tail)))
	for _, t := range tail[:min(limit, len(tail))] {
		res = append(res, t.Clone())
	}
	return res, nil
}

func compareSeq(t *model.Transaction, seq uint64) int {
	return cmp.Compare(t.Seq, seq)
}

// AttachSignature привязывает внешнюю подпись к операции. Повторный вызов с той же подписью ничего не меняет.
func (r *MemoryRepository) AttachSignature(ctx context.Context, txID, signature string) error {
	r.mu.RLock()
	t, ok := r.txs[txID]
	var userID string
	if ok {
		userID = t.UserID
	}
	r.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}

	release, err := r.locks.acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	r.mu.Lock()
	defer r.mu.Unlock()

	if t.Signature != nil {
		if *t.Signature == signature {
			return nil
		}
		return ErrSignatureConflict
	}
	s := signature
	t.Signature = &s
	if i, found := slices.BinarySearchFunc(r.pending, t.Seq, compareSeq); found {
		r.pending = slices.Delete(r.pending, i, i+1)
	}
	return nil
}

func (r *MemoryRepository) newTransaction(userID string, kind model.TransactionKind, amount uint64, metadata map[string]string) *model.Transaction {
	return &model.Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		Timestamp: r.clock.next(),
		Metadata:  metadata,
	}
}

func (r *MemoryRepository) commit(balances []model.Balance, txs []*model.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range balances {
		r.balances[b.UserID] = b
	}
	for _, t := range txs {
		r.seq++
		t.Seq = r.seq
		r.txs[t.ID] = t
		r.byUser[t.UserID] = append(r.byUser[t.UserID], t.ID)
		r.pending = append(r.pending, t)
	}
}
