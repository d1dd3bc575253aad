package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/feed"
	"github.com/dmitrijs2005/filevault/internal/models"
)

// Watch prints live changes in the current folder for a number of seconds
// (default 30).
//
//	watch [seconds]
func (a *App) Watch(ctx context.Context, args []string) error {
	seconds := 30
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			printlnFn("Usage: watch [seconds]")
			return common.ErrInvalidArgument
		}
		seconds = n
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
	defer cancel()

	unsubscribe, err := a.feed.Subscribe(ctx, a.config.UserID, a.cwd, feed.Filter{}, feed.Handlers{
		OnChange: func(diffs []feed.Diff) {
			for _, d := range diffs {
				printlnFn(fmt.Sprintf("%-8s %s", d.Kind, diffName(d.Item)))
			}
		},
		OnError: func(err error) {
			printlnFn("watch interrupted:", err)
		},
	})
	if err != nil {
		printlnFn("watch failed:", err)
		return err
	}
	defer unsubscribe()

	printlnFn(fmt.Sprintf("Watching for %ds...", seconds))
	<-ctx.Done()
	return nil
}

func diffName(item *models.VaultItem) string {
	if item == nil {
		return "?"
	}
	if item.IsFolder() {
		return item.Name + "/"
	}
	return item.Name
}
