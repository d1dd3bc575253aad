package cli

import (
	"context"
	"mime"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/vault"
)

// Put encrypts and uploads a local file into the current folder.
func (a *App) Put(ctx context.Context, args []string) error {
	if len(args) != 1 {
		printlnFn("Usage: put <local-path>")
		return common.ErrInvalidArgument
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		printlnFn("put failed:", err)
		return err
	}

	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	name := filepath.Base(args[0])
	item, err := a.vault.UploadFile(ctx, vault.UploadInput{
		Name:     name,
		ParentID: a.cwd,
		MimeType: mime.TypeByExtension(filepath.Ext(name)),
		Data:     data,
	})
	if err != nil {
		printlnFn("put failed:", err)
		return err
	}
	printlnFn("Uploaded", item.Name, "->", item.StorageProvider)
	return nil
}

// Get downloads and decrypts a file from the current folder into the
// working directory (or the given destination path).
func (a *App) Get(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		printlnFn("Usage: get <name> [dest-path]")
		return common.ErrInvalidArgument
	}
	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	item, err := a.findByName(ctx, args[0])
	if err != nil {
		printlnFn("get failed:", err)
		return err
	}

	data, err := a.vault.DownloadFile(ctx, item.ID)
	if err != nil {
		printlnFn("get failed:", err)
		return err
	}

	dest := item.Name
	if len(args) == 2 {
		dest = args[1]
	}
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		printlnFn("get failed:", err)
		return err
	}
	printlnFn("Saved", dest)
	return nil
}
