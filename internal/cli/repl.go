package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the minimal command surface the REPL needs. App satisfies
// it; tests can provide a stub.
type execIface interface {
	isUnlocked() bool
	Unlock(ctx context.Context) error
	Lock(ctx context.Context) error
	List(ctx context.Context, args []string) error
	Mkdir(ctx context.Context, args []string) error
	Cd(ctx context.Context, args []string) error
	Put(ctx context.Context, args []string) error
	Get(ctx context.Context, args []string) error
	Rm(ctx context.Context, args []string) error
	Restore(ctx context.Context, args []string) error
	Mv(ctx context.Context, args []string) error
	Rename(ctx context.Context, args []string) error
	Share(ctx context.Context, args []string) error
	Access(ctx context.Context, args []string) error
	Audit(ctx context.Context, args []string) error
	Watch(ctx context.Context, args []string) error
	Rotate(ctx context.Context) error
	Sync(ctx context.Context) error
}

// runREPL reads a line, parses the first token as the command and
// dispatches. Handlers print their own errors; the loop only reports
// unknown commands. Exits on scanner EOF or "exit"/"quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("vault> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isUnlocked() {
				printlnFn("Available commands: (l)s, cd, mkdir, put, get, mv, rename, rm, restore, share, access, audit, watch, rotate, sync, lock, exit")
			} else {
				printlnFn("Available commands: unlock, access, exit")
			}

		case "unlock":
			_ = a.Unlock(ctx)

		case "lock":
			_ = a.Lock(ctx)

		case "l", "ls", "list":
			_ = a.List(ctx, args)

		case "cd":
			_ = a.Cd(ctx, args)

		case "mkdir":
			_ = a.Mkdir(ctx, args)

		case "put":
			_ = a.Put(ctx, args)

		case "get":
			_ = a.Get(ctx, args)

		case "mv":
			_ = a.Mv(ctx, args)

		case "rename":
			_ = a.Rename(ctx, args)

		case "rm":
			_ = a.Rm(ctx, args)

		case "restore":
			_ = a.Restore(ctx, args)

		case "share":
			_ = a.Share(ctx, args)

		case "access":
			_ = a.Access(ctx, args)

		case "audit":
			_ = a.Audit(ctx, args)

		case "watch":
			_ = a.Watch(ctx, args)

		case "rotate":
			_ = a.Rotate(ctx)

		case "sync":
			_ = a.Sync(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
