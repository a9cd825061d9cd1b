package passport

import (
	"context"
	"log/slog"
)

// ResetNotifier delivers a password reset link to the account owner.
// Applications provide their own implementation for real delivery.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, account *Account, resetLink string) error
}

// ConsoleResetNotifier is a development implementation that writes the
// reset link to the log. Anyone with log access can take over the account,
// so do not use it in production.
type ConsoleResetNotifier struct {
	Logger *slog.Logger
}

func (c *ConsoleResetNotifier) SendPasswordReset(ctx context.Context, account *Account, resetLink string) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "password reset link issued",
		"delivery", "console",
		"username", account.Username,
		"link", resetLink)
	return nil
}
