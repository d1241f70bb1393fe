package notify

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	accounts "github.com/versehub/go-accounts"
)

// OutboxNotifier writes every message as a JSON line to w. It stands in
// for a mail transport in development, so the plaintext token reaches the
// outbox but never the application log.
type OutboxNotifier struct {
	mu     sync.Mutex
	w      io.Writer
	logger accounts.Logger
}

var _ accounts.Notifier = (*OutboxNotifier)(nil)

func NewOutboxNotifier(w io.Writer, logger accounts.Logger) *OutboxNotifier {
	if logger == nil {
		logger = accounts.NewSlogLogger(nil)
	}
	return &OutboxNotifier{w: w, logger: logger}
}

func (n *OutboxNotifier) Send(ctx context.Context, msg accounts.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(msg)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode outbox message")
	}
	line = append(line, '\n')

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, err := n.w.Write(line); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to write outbox message")
	}

	n.logger.Info("outbox: %s message queued for account %d", msg.Kind, msg.AccountID)
	return nil
}
