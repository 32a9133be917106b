// Package replcli is an optional interactive debug console, adapted
// from calvinalkan-agent-task's cmd/sloty/main.go REPL: the same
// liner.State prompt-loop-with-history shape, wired to this store's
// get/set/delete/list operations instead of sloty's slot cache
// inspection commands.
package replcli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/nodalkv/nodal/internal/kv"
	"github.com/nodalkv/nodal/internal/writequeue"
)

// REPL is the interactive command loop bound to a running store.
type REPL struct {
	store *kv.Store
	queue *writequeue.Queue
	line  *liner.State
}

func New(store *kv.Store, queue *writequeue.Queue) *REPL {
	return &REPL{store: store, queue: queue}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".nodal_history")
}

// Run starts the prompt loop, blocking until the user exits (Ctrl-D or
// "quit").
func (r *REPL) Run() error {
	r.line = liner.NewLiner()
	defer r.line.Close()

	r.line.SetCtrlCAborts(true)
	r.line.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}

	fmt.Println("nodal debug console. Type 'help' for available commands.")

	for {
		input, err := r.line.Prompt("nodal> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nbye")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		r.line.AppendHistory(input)

		if input == "quit" || input == "exit" {
			break
		}
		r.dispatch(input)
	}

	if f, err := os.Create(historyFile()); err == nil {
		r.line.WriteHistory(f)
		f.Close()
	}
	return nil
}

func (r *REPL) completer(line string) []string {
	commands := []string{"get", "set", "delete", "list", "listType", "help", "quit"}
	var out []string
	for _, c := range commands {
		if strings.HasPrefix(c, line) {
			out = append(out, c)
		}
	}
	return out
}

func (r *REPL) dispatch(input string) {
	ctx := context.Background()
	fields := strings.Fields(input)

	switch fields[0] {
	case "help":
		fmt.Println("get <key> | set <key> <kind> <value> | delete <key> | list | listType <kind>")
	case "get":
		if len(fields) < 2 {
			fmt.Println("usage: get <key>")
			return
		}
		obj, err := r.store.Get(ctx, fields[1])
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Printf("%s = %s (%s)\n", fields[1], obj.Data, obj.Desc.Kind)
	case "set":
		if len(fields) < 4 {
			fmt.Println("usage: set <key> <kind> <value>")
			return
		}
		kind, ok := kv.ParseKind(fields[2])
		if !ok {
			fmt.Println("unrecognized kind:", fields[2])
			return
		}
		value := strings.Join(fields[3:], " ")
		if err := r.queue.Set(ctx, fields[1], kind, []byte(value)); err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("ok")
	case "delete":
		if len(fields) < 2 {
			fmt.Println("usage: delete <key>")
			return
		}
		if err := r.queue.Delete(ctx, fields[1]); err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("ok")
	case "list":
		elements, err := r.store.List(ctx)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		for _, e := range elements {
			fmt.Printf("%s\t%s\t%d bytes\n", e.Key, e.Kind, e.DataSize)
		}
	case "listType":
		if len(fields) < 2 {
			fmt.Println("usage: listType <kind>")
			return
		}
		kind, ok := kv.ParseKind(fields[1])
		if !ok {
			fmt.Println("unrecognized kind:", fields[1])
			return
		}
		elements, err := r.store.ListByKind(ctx, kind)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		for _, e := range elements {
			fmt.Printf("%s\t%s\t%d bytes\n", e.Key, e.Kind, e.DataSize)
		}
	default:
		fmt.Println("unknown command, type 'help'")
	}
}
