package flows

import (
	"context"
	"time"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	// Call is the best-effort backend logout. Nil skips the remote step.
	Call    func(ctx context.Context, accessToken string) error
	Current func() string
	Clear   func(ctx context.Context)
	Timeout time.Duration
}

// LogoutResult reports the remote outcome. Local state is always cleared.
type LogoutResult struct {
	RemoteErr error
}

// RunLogout notifies the backend, then clears local state whatever the
// backend said. Cancelling ctx does not prevent the local clear.
func RunLogout(ctx context.Context, deps LogoutDeps) LogoutResult {
	detached := context.WithoutCancel(ctx)
	var remoteErr error

	if deps.Call != nil {
		cctx, cancel := detached, context.CancelFunc(func() {})
		if deps.Timeout > 0 {
			cctx, cancel = context.WithTimeout(detached, deps.Timeout)
		}
		remoteErr = deps.Call(cctx, deps.Current())
		cancel()
	}

	deps.Clear(detached)
	return LogoutResult{RemoteErr: remoteErr}
}
