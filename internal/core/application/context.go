package application

import "context"

// poolOpID marks global pool operations in the active-operation set.
// Property ids start at 1, so 0 is free.
const poolOpID uint64 = 0

type activeOpsKey struct{}

// withActiveOp stamps the context with an in-flight mutating operation for
// the given property id. Mutating entry points stamp before any collaborator
// call goes out, so a collaborator calling back into the ledger within the
// same request is detected and rejected.
func withActiveOp(ctx context.Context, id uint64) context.Context {
	ops := map[uint64]struct{}{id: {}}
	if prev, ok := ctx.Value(activeOpsKey{}).(map[uint64]struct{}); ok {
		for k := range prev {
			ops[k] = struct{}{}
		}
	}
	return context.WithValue(ctx, activeOpsKey{}, ops)
}

func opActive(ctx context.Context, id uint64) bool {
	ops, ok := ctx.Value(activeOpsKey{}).(map[uint64]struct{})
	if !ok {
		return false
	}
	_, active := ops[id]
	return active
}
