// Package domain defines core entities, ports, and pure scheduling logic
// shared by every adapter and usecase in the fleet worker.
package domain

import (
	"context"
	"errors"
)

// Error taxonomy (sentinels). Adapters wrap these with op=<component>.<method>
// context via fmt.Errorf("op=...: %w", err); callers compare with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRateLimited     = errors.New("rate limited")
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrSchemaInvalid   = errors.New("schema invalid")
	ErrInternal        = errors.New("internal error")

	// ErrLockLost names the case of a held lock that no longer belongs to
	// the caller (expired or taken over by another worker). No code in this
	// module returns it; LockService reports a lost race as Acquire == false.
	ErrLockLost = errors.New("lock lost")
	// ErrRowChanged names a conditional write that lost a compare-and-set
	// race against a concurrent writer of the same row. No code in this
	// module returns it.
	ErrRowChanged = errors.New("row changed since read")
)

// Context is a type alias to stdlib context.Context for convenience across
// layers, matching the rest of the codebase's convention of threading one
// cancellation token from main down through every blocking call.
type Context = context.Context
