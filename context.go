package tableadmin

import (
	"context"
	"errors"

	"github.com/youssefsiam38/tableadmin/driver"
)

// ErrNoTransaction is returned when TxFromContextSafely is called
// but no transaction exists in context.
var ErrNoTransaction = errors.New("tableadmin: no transaction in context, only available within hooks and actions")

// TxFromContext returns the native database transaction the admin is running
// a hook or action in. It panics if ctx carries no transaction; use
// TxFromContextSafely to handle that case.
//
// The driver passed must be the one the admin was created with:
//
//	hooks := crud.Hooks{PreSave: []crud.SaveHook{
//	    func(ctx context.Context, row map[string]any) (map[string]any, error) {
//	        tx := tableadmin.TxFromContext(ctx, drv)
//	        _, err := tx.Exec(ctx, "INSERT INTO audit_log ...")
//	        return row, err
//	    },
//	}}
func TxFromContext[TTx any](ctx context.Context, drv driver.Driver[TTx]) TTx {
	tx, err := TxFromContextSafely(ctx, drv)
	if err != nil {
		panic(err)
	}
	return tx
}

// TxFromContextSafely is like TxFromContext but returns ErrNoTransaction
// instead of panicking.
func TxFromContextSafely[TTx any](ctx context.Context, drv driver.Driver[TTx]) (TTx, error) {
	var zero TTx
	exec := driver.ExecutorFromContext(ctx)
	if exec == nil {
		return zero, ErrNoTransaction
	}
	return drv.UnwrapTx(exec), nil
}

// WithoutTx returns a context whose operations run outside the current
// transaction. Side effects made with it survive a rollback of the hook's
// operation.
func WithoutTx(ctx context.Context) context.Context {
	return driver.StripExecutor(ctx)
}

// WithTx returns a context whose admin operations join tx instead of
// opening their own transaction. Committing or rolling back tx stays the
// caller's job.
func WithTx[TTx any](ctx context.Context, drv driver.Driver[TTx], tx TTx) context.Context {
	return driver.WithExecutor(ctx, drv.UnwrapExecutor(tx))
}
