package cli

import (
	"context"
	"errors"
	"os"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/keys"
)

// Unlock prompts for the passphrase and opens the vault. On first run (no
// master record yet) it initializes the vault instead.
func (a *App) Unlock(ctx context.Context) error {
	secret, err := GetPassphrase(os.Stdout, "Enter passphrase")
	if err != nil {
		return err
	}
	defer cryptox.Wipe(secret)

	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	err = a.vault.Unlock(ctx, secret)
	switch {
	case err == nil:
		printlnFn("Vault unlocked.")
		return nil
	case errors.Is(err, common.ErrNotFound):
		// first run: initialize
		if err := a.keys.Setup(ctx, secret, keys.SetupOptions{}); err != nil {
			if errors.Is(err, common.ErrWeakSecret) {
				printlnFn("Passphrase is too short.")
				return err
			}
			printlnFn("Setup failed:", err)
			return err
		}
		printlnFn("Vault initialized and unlocked.")
		return nil
	case errors.Is(err, common.ErrInvalidSecret):
		printlnFn("Wrong passphrase.")
		return err
	default:
		printlnFn("Unlock failed:", err)
		return err
	}
}

// Lock wipes all key material.
func (a *App) Lock(ctx context.Context) error {
	a.vault.Lock(ctx)
	printlnFn("Vault locked.")
	return nil
}

// Rotate re-wraps every file key under a fresh key-encryption key.
func (a *App) Rotate(ctx context.Context) error {
	ctx, cancel := a.opCtx(ctx)
	defer cancel()

	if err := a.vault.RotateKey(ctx); err != nil {
		if errors.Is(err, common.ErrRotationInProgress) {
			printlnFn("A rotation is already running.")
		} else {
			printlnFn("Rotation failed:", err)
		}
		return err
	}
	printlnFn("Key rotated.")
	return nil
}

// Sync drains the offline queue.
func (a *App) Sync(ctx context.Context) error {
	if err := a.vault.Sync(ctx); err != nil {
		printlnFn("Sync failed:", err)
		return err
	}
	printlnFn("Sync complete.")
	return nil
}
