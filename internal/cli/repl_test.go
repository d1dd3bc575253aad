package cli

import (
	"bufio"
	"context"
	"strings"
	"testing"
)

type fakeExec struct {
	unlocked bool

	calls []string
	args  [][]string
}

func (f *fakeExec) record(name string, args []string) error {
	f.calls = append(f.calls, name)
	f.args = append(f.args, args)
	return nil
}

func (f *fakeExec) isUnlocked() bool { return f.unlocked }
func (f *fakeExec) Unlock(ctx context.Context) error {
	f.unlocked = true
	return f.record("unlock", nil)
}
func (f *fakeExec) Lock(ctx context.Context) error {
	f.unlocked = false
	return f.record("lock", nil)
}
func (f *fakeExec) List(ctx context.Context, args []string) error    { return f.record("ls", args) }
func (f *fakeExec) Mkdir(ctx context.Context, args []string) error   { return f.record("mkdir", args) }
func (f *fakeExec) Cd(ctx context.Context, args []string) error      { return f.record("cd", args) }
func (f *fakeExec) Put(ctx context.Context, args []string) error     { return f.record("put", args) }
func (f *fakeExec) Get(ctx context.Context, args []string) error     { return f.record("get", args) }
func (f *fakeExec) Rm(ctx context.Context, args []string) error      { return f.record("rm", args) }
func (f *fakeExec) Restore(ctx context.Context, args []string) error { return f.record("restore", args) }
func (f *fakeExec) Mv(ctx context.Context, args []string) error      { return f.record("mv", args) }
func (f *fakeExec) Rename(ctx context.Context, args []string) error  { return f.record("rename", args) }
func (f *fakeExec) Share(ctx context.Context, args []string) error   { return f.record("share", args) }
func (f *fakeExec) Access(ctx context.Context, args []string) error  { return f.record("access", args) }
func (f *fakeExec) Audit(ctx context.Context, args []string) error   { return f.record("audit", args) }
func (f *fakeExec) Watch(ctx context.Context, args []string) error   { return f.record("watch", args) }
func (f *fakeExec) Rotate(ctx context.Context) error                 { return f.record("rotate", nil) }
func (f *fakeExec) Sync(ctx context.Context) error                   { return f.record("sync", nil) }

func TestRunREPL_UnlockFlowAndCommands(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader(strings.Join([]string{
		"help",
		"unlock",
		"help",
		"mkdir docs",
		"ls",
		"put /tmp/a.txt",
		"share a.txt 24h",
		"sync",
		"foobar",
		"lock",
		"exit",
	}, "\n"))

	exec := &fakeExec{}
	sc := bufio.NewScanner(input)

	runREPL(context.Background(), exec, func() string { return "status" }, sc)

	wantOrder := []string{"unlock", "mkdir", "ls", "put", "share", "sync", "lock"}
	idx := 0
	for _, c := range exec.calls {
		if idx < len(wantOrder) && c == wantOrder[idx] {
			idx++
		}
	}
	if idx != len(wantOrder) {
		t.Fatalf("commands order mismatch: got %v, want subsequence %v", exec.calls, wantOrder)
	}
}

func TestRunREPL_ArgumentsPassedThrough(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader("mv report.pdf /\nquit\n")
	exec := &fakeExec{unlocked: true}

	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewScanner(input))

	if len(exec.calls) != 1 || exec.calls[0] != "mv" {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
	if len(exec.args[0]) != 2 || exec.args[0][0] != "report.pdf" || exec.args[0][1] != "/" {
		t.Fatalf("unexpected args: %v", exec.args[0])
	}
}

func TestRunREPL_EmptyAndUnknownLinesIgnored(t *testing.T) {
	origPrint := printlnFn
	printlnFn = func(...any) (int, error) { return 0, nil }
	t.Cleanup(func() { printlnFn = origPrint })

	input := strings.NewReader("\n\nnonsense\nexit\n")
	exec := &fakeExec{}

	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewScanner(input))

	if len(exec.calls) != 0 {
		t.Fatalf("unexpected calls: %v", exec.calls)
	}
}
