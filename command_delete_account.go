package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

type DeleteAccountMessage struct {
	AccountID int64
	Actor     ActorRef
}

func (e DeleteAccountMessage) Type() string { return "account.delete" }

// DeleteAccountHandler removes an account with its verification and reset
// records. It backs the administrative delete route.
type DeleteAccountHandler struct {
	deps *Dependencies
}

func NewDeleteAccountHandler(deps Dependencies) *DeleteAccountHandler {
	return &DeleteAccountHandler{deps: deps.normalize()}
}

func (h *DeleteAccountHandler) Execute(ctx context.Context, event DeleteAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account deletion")
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteAccountHandler) execute(ctx context.Context, event DeleteAccountMessage) error {
	d := h.deps

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if event.AccountID <= 0 {
		return ErrNotFound
	}

	if err := d.Store.Ping(ctx); err != nil {
		return err
	}

	if err := d.Store.DeleteAccount(ctx, event.AccountID); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return asRichError(err, "failed to delete account")
	}

	d.Logger.Info("deleted account %d", event.AccountID)
	recordActivity(ctx, d.Activity, d.Logger, d.Clock, ActivityEvent{
		EventType: ActivityEventAccountDeleted,
		Actor:     event.Actor,
		AccountID: event.AccountID,
	})

	return nil
}
