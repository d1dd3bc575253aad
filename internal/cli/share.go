package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/share"
)

// Share creates a share link for a child of the current folder.
//
//	share <name> [ttl] [max-accesses] [password]
//
// ttl is a Go duration like "24h"; 0 or "-" means no expiry.
func (a *App) Share(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 4 {
		printlnFn("Usage: share <name> [ttl] [max-accesses] [password]")
		return common.ErrInvalidArgument
	}
	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	item, err := a.findByName(ctx, args[0])
	if err != nil {
		printlnFn("share failed:", err)
		return err
	}

	opts := share.CreateOptions{}
	if len(args) > 1 && args[1] != "-" {
		ttl, err := time.ParseDuration(args[1])
		if err != nil {
			printlnFn("share failed: bad ttl:", err)
			return err
		}
		opts.ExpiresAt = time.Now().Add(ttl)
	}
	if len(args) > 2 {
		n, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			printlnFn("share failed: bad max-accesses:", err)
			return err
		}
		opts.MaxAccessCount = n
	}
	if len(args) > 3 {
		opts.Password = args[3]
	}

	link, err := a.vault.ShareItem(ctx, item.ID, opts)
	if err != nil {
		printlnFn("share failed:", err)
		return err
	}
	printlnFn("Share id:", link.ShareID)
	return nil
}

// Access resolves a share link and prints the download capability.
//
//	access <share-id> [password]
func (a *App) Access(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		printlnFn("Usage: access <share-id> [password]")
		return common.ErrInvalidArgument
	}
	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	password := ""
	if len(args) == 2 {
		password = args[1]
	}
	grant, err := a.vault.AccessShareLink(ctx, args[0], "", password)
	if err != nil {
		printlnFn("access failed:", err)
		return err
	}
	printlnFn("Item:", grant.ItemID)
	printlnFn("Capability (valid until", grant.ExpiresAt.Format(time.RFC3339)+"):", grant.Token)
	return nil
}
