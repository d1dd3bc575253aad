package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/audit"
)

// Audit prints the user's audit trail, optionally filtered by action.
//
//	audit [action]
func (a *App) Audit(ctx context.Context, args []string) error {
	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	filters := audit.Filters{Limit: 50}
	if len(args) > 0 {
		filters.Action = args[0]
	}

	entries, err := a.vault.GetAuditLogs(ctx, filters)
	if err != nil {
		printlnFn("audit failed:", err)
		return err
	}
	if len(entries) == 0 {
		printlnFn("(no entries)")
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-14s  %s", e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.ItemID)
		printlnFn(line)
	}
	return nil
}
