package repository

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// txState is the transaction bound to a context and the work held back
// until it commits.
type txState struct {
	db          *gorm.DB
	afterCommit []func()
}

func (s *txState) commit() {
	for _, fn := range s.afterCommit {
		fn()
	}
	s.afterCommit = nil
}

// TxManager runs functions inside a gorm transaction carried by the context.
type TxManager struct {
	db *gorm.DB
}

func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

func (m *TxManager) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}
	state := &txState{}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state.db = tx
		return fn(context.WithValue(ctx, txKey{}, state))
	})
	if err != nil {
		return err
	}
	state.commit()
	return nil
}

// conn returns the transaction bound to ctx, or db.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if state, ok := ctx.Value(txKey{}).(*txState); ok {
		return state.db.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*txState)
	return ok
}

// afterCommit runs fn once the transaction bound to ctx has committed, or
// right away when there is none. fn is dropped on rollback.
func afterCommit(ctx context.Context, fn func()) {
	if state, ok := ctx.Value(txKey{}).(*txState); ok {
		state.afterCommit = append(state.afterCommit, fn)
		return
	}
	fn()
}
