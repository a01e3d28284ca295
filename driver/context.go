package driver

import "context"

type txKey struct{}

// WithExecutor returns a context carrying tx. crud operations given the
// context run inside tx, nesting through savepoints.
//
//	tx, _ := drv.Begin(ctx)
//	err := admin.CRUD().Delete(driver.WithExecutor(ctx, tx), "movie", id)
func WithExecutor(ctx context.Context, tx ExecutorTx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// ExecutorFromContext returns the transaction carried by ctx, or nil.
func ExecutorFromContext(ctx context.Context) ExecutorTx {
	tx, _ := ctx.Value(txKey{}).(ExecutorTx)
	return tx
}

// StripExecutor returns ctx without its transaction. Deadlines, cancellation
// and other values are kept.
func StripExecutor(ctx context.Context) context.Context {
	return stripped{ctx}
}

type stripped struct {
	context.Context
}

func (c stripped) Value(key any) any {
	if _, ok := key.(txKey); ok {
		return nil
	}
	return c.Context.Value(key)
}
