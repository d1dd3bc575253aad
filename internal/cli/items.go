package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/models"
)

// findByName resolves a child of the current folder by display name.
func (a *App) findByName(ctx context.Context, name string) (*models.VaultItem, error) {
	items, err := a.vault.ListItems(ctx, a.cwd)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.Name == name {
			return item, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", common.ErrNotFound, name)
}

// List prints the current folder's contents.
func (a *App) List(ctx context.Context, _ []string) error {
	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	items, err := a.vault.ListItems(ctx, a.cwd)
	if err != nil {
		printlnFn("List failed:", err)
		return err
	}
	if len(items) == 0 {
		printlnFn("(empty)")
		return nil
	}
	for _, item := range items {
		if item.IsFolder() {
			printlnFn(fmt.Sprintf("%-36s  d  %s/", item.ID, item.Name))
		} else {
			printlnFn(fmt.Sprintf("%-36s  f  %s  %d bytes  %s", item.ID, item.Name, item.Size, item.ScanStatus))
		}
	}
	return nil
}

// Cd changes the current folder; "cd" or "cd /" returns to the root, "cd .."
// goes up one level.
func (a *App) Cd(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "/" {
		a.cwd = ""
		return nil
	}
	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	if args[0] == ".." {
		if a.cwd == "" {
			return nil
		}
		cur, err := a.vault.GetItem(ctx, a.cwd)
		if err != nil {
			printlnFn("cd failed:", err)
			return err
		}
		a.cwd = cur.ParentID
		return nil
	}

	item, err := a.findByName(ctx, args[0])
	if err != nil {
		printlnFn("cd failed:", err)
		return err
	}
	if !item.IsFolder() {
		printlnFn(args[0], "is not a folder")
		return common.ErrInvalidArgument
	}
	a.cwd = item.ID
	return nil
}

// Mkdir creates a folder in the current folder.
func (a *App) Mkdir(ctx context.Context, args []string) error {
	if len(args) != 1 {
		printlnFn("Usage: mkdir <name>")
		return common.ErrInvalidArgument
	}
	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	if _, err := a.vault.CreateFolder(ctx, args[0], a.cwd); err != nil {
		printlnFn("mkdir failed:", err)
		return err
	}
	return nil
}

// Mv moves a child of the current folder into another folder (by id, "" or
// "/" for root).
func (a *App) Mv(ctx context.Context, args []string) error {
	if len(args) != 2 {
		printlnFn("Usage: mv <name> <target-folder-id|/>")
		return common.ErrInvalidArgument
	}
	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	item, err := a.findByName(ctx, args[0])
	if err != nil {
		printlnFn("mv failed:", err)
		return err
	}
	target := args[1]
	if target == "/" {
		target = ""
	}
	if err := a.vault.MoveItem(ctx, item.ID, target); err != nil {
		printlnFn("mv failed:", err)
		return err
	}
	return nil
}

// Rename changes the display name of a child of the current folder.
func (a *App) Rename(ctx context.Context, args []string) error {
	if len(args) != 2 {
		printlnFn("Usage: rename <name> <new-name>")
		return common.ErrInvalidArgument
	}
	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	item, err := a.findByName(ctx, args[0])
	if err != nil {
		printlnFn("rename failed:", err)
		return err
	}
	if err := a.vault.RenameItem(ctx, item.ID, args[1]); err != nil {
		printlnFn("rename failed:", err)
		return err
	}
	return nil
}

// Rm soft-deletes by default; "rm -p <name>" deletes permanently.
func (a *App) Rm(ctx context.Context, args []string) error {
	permanent := false
	if len(args) > 0 && args[0] == "-p" {
		permanent = true
		args = args[1:]
	}
	if len(args) != 1 {
		printlnFn("Usage: rm [-p] <name>")
		return common.ErrInvalidArgument
	}
	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	item, err := a.findByName(ctx, args[0])
	if err != nil {
		printlnFn("rm failed:", err)
		return err
	}
	if err := a.vault.DeleteItem(ctx, item.ID, permanent); err != nil {
		printlnFn("rm failed:", err)
		return err
	}
	if !permanent {
		printlnFn("Deleted. Restore with: restore", item.ID)
	}
	return nil
}

// Restore undoes a soft delete by item id.
func (a *App) Restore(ctx context.Context, args []string) error {
	if len(args) != 1 {
		printlnFn("Usage: restore <item-id>")
		return common.ErrInvalidArgument
	}
	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	if err := a.vault.RestoreItem(ctx, args[0]); err != nil {
		printlnFn("restore failed:", err)
		return err
	}
	printlnFn("Restored.")
	return nil
}
