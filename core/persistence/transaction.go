package persistence

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"
)

// transact executes fn within a database transaction. If fn returns an
// error the transaction is rolled back; otherwise the file bytes it staged
// are written to the blob store and the transaction is committed.
func (p *Persistence) transact(ctx context.Context, fn func(ex *Executor) error) error {
	tx, err := p.interactor.StartTransaction(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	ex := NewExecutor(tx, p.logger)
	err = fn(ex)
	if err == nil {
		err = p.putStaged(ctx, ex)
	}
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			p.logger.Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (p *Persistence) putStaged(ctx context.Context, ex *Executor) error {
	for _, b := range ex.staged {
		if err := p.blobs.Put(ctx, b.checksum, bytes.NewReader(b.data), int64(len(b.data))); err != nil {
			return fmt.Errorf("storing file %q: %w", b.name, err)
		}
	}
	return nil
}

// read returns an executor over the non-transactional interactor.
func (p *Persistence) read() *Executor {
	return NewExecutor(p.interactor, p.logger)
}
