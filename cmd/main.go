package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	sdk "github.com/calimero-network/calimero-sdk-go"
	"github.com/calimero-network/calimero-sdk-go/collections"
	"github.com/calimero-network/calimero-sdk-go/host"
	"github.com/calimero-network/calimero-sdk-go/schema"
	"github.com/calimero-network/calimero-sdk-go/store"
	"github.com/ergochat/readline"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("new"),
	readline.PcItem("inc"),
	readline.PcItem("put"),
	readline.PcItem("add"),
	readline.PcItem("push"),
	readline.PcItem("setr"),
	readline.PcItem("blob"),

	readline.PcItem("show"),
	readline.PcItem("flush"),
	readline.PcItem("ls"),
	readline.PcItem("pull"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

const help = `new map|set|list|counter|register|blobs|userstore
inc <handle> <delta>      put <handle> <key> <value>
add <handle> <value>      push <handle> <value>
setr <handle> <value>     blob <handle> <content>
show <handle>             flush
ls                        pull <dir>
exit`

type repl struct {
	engine *sdk.Engine
	call   *sdk.Call
	rl     *readline.Instance
}

func (r *repl) open() (err error) {
	r.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".state_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	r.rl.CaptureExitSignal()
	return
}

func parseValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func (r *repl) deref(arg string) (collections.Collection, error) {
	h, err := collections.HandleFromString(arg)
	if err != nil {
		return nil, err
	}
	return r.engine.Deref(h)
}

func (r *repl) run(line string) error {
	words := strings.Fields(line)
	if len(words) == 0 {
		return nil
	}
	cmd, args := words[0], words[1:]
	reg := r.engine.Registry()
	switch cmd {
	case "help":
		fmt.Println(help)
	case "new":
		if len(args) != 1 {
			return errors.New("new <kind>")
		}
		var c collections.Collection
		switch args[0] {
		case "map":
			c = reg.NewMap()
		case "set":
			c = reg.NewSet()
		case "list":
			c = reg.NewList()
		case "counter":
			c = reg.NewCounter()
		case "register":
			c = reg.NewRegister()
		case "blobs":
			c = reg.NewBlobs()
		case "userstore":
			c = reg.NewUserStore()
		default:
			return fmt.Errorf("unknown kind %q", args[0])
		}
		fmt.Println(c.Handle())
	case "inc":
		if len(args) != 2 {
			return errors.New("inc <handle> <delta>")
		}
		c, err := r.deref(args[0])
		if err != nil {
			return err
		}
		counter, ok := c.(*collections.Counter)
		if !ok {
			return fmt.Errorf("%s is a %s", args[0][:8], c.Kind())
		}
		delta, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return err
		}
		counter.Increment(delta)
		fmt.Println(counter.Value())
	case "put":
		if len(args) != 3 {
			return errors.New("put <handle> <key> <value>")
		}
		c, err := r.deref(args[0])
		if err != nil {
			return err
		}
		m, ok := c.(*collections.Map)
		if !ok {
			return fmt.Errorf("%s is a %s", args[0][:8], c.Kind())
		}
		return m.Set(args[1], parseValue(args[2]))
	case "add":
		if len(args) != 2 {
			return errors.New("add <handle> <value>")
		}
		c, err := r.deref(args[0])
		if err != nil {
			return err
		}
		s, ok := c.(*collections.Set)
		if !ok {
			return fmt.Errorf("%s is a %s", args[0][:8], c.Kind())
		}
		return s.Add(parseValue(args[1]))
	case "push":
		if len(args) != 2 {
			return errors.New("push <handle> <value>")
		}
		c, err := r.deref(args[0])
		if err != nil {
			return err
		}
		l, ok := c.(*collections.List)
		if !ok {
			return fmt.Errorf("%s is a %s", args[0][:8], c.Kind())
		}
		return l.Push(parseValue(args[1]))
	case "setr":
		if len(args) != 2 {
			return errors.New("setr <handle> <value>")
		}
		c, err := r.deref(args[0])
		if err != nil {
			return err
		}
		w, ok := c.(*collections.Register)
		if !ok {
			return fmt.Errorf("%s is a %s", args[0][:8], c.Kind())
		}
		return w.Set(parseValue(args[1]))
	case "blob":
		if len(args) < 2 {
			return errors.New("blob <handle> <content>")
		}
		c, err := r.deref(args[0])
		if err != nil {
			return err
		}
		b, ok := c.(*collections.Blobs)
		if !ok {
			return fmt.Errorf("%s is a %s", args[0][:8], c.Kind())
		}
		fmt.Println(b.Add([]byte(strings.Join(args[1:], " "))))
	case "show":
		if len(args) != 1 {
			return errors.New("show <handle>")
		}
		c, err := r.deref(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s %v\n", c.Kind(), c.Snapshot())
	case "flush":
		entries, err := r.call.Commit()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s\t%d bytes\n", e.Handle.Short(), len(e.Bytes))
		}
		r.call = r.engine.Begin()
	case "ls":
		if r.engine.Store() == nil {
			return errors.New("no store open, pass a directory argument")
		}
		return r.engine.Store().Range(func(h collections.Handle, state []byte) bool {
			fmt.Printf("%s\t%d bytes\n", h.Short(), len(state))
			return true
		})
	case "pull":
		if len(args) != 1 {
			return errors.New("pull <dir>")
		}
		if r.engine.Store() == nil {
			return errors.New("no store open, pass a directory argument")
		}
		other, err := store.Open(args[0], nil)
		if err != nil {
			return err
		}
		defer func() { _ = other.Close() }()
		n := 0
		err = other.Range(func(h collections.Handle, state []byte) bool {
			if err := r.engine.Store().Merge(h, state); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return false
			}
			n++
			return true
		})
		fmt.Printf("merged %d collections\n", n)
		return err
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

func main() {
	opts := &sdk.Options{}
	if len(os.Args) > 1 {
		opts.Dir = os.Args[1]
	}
	manifest := &schema.Manifest{
		SchemaVersion: schema.SchemaVersion,
		Types:         map[string]*schema.Descriptor{},
	}
	lh := host.NewLocalHost(nil)
	engine, err := sdk.New(manifest, lh, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = engine.Close() }()

	r := &repl{engine: engine, call: engine.Begin()}
	if err = r.open(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = r.rl.Close() }()

	for {
		line, err := r.rl.Readline()
		if err == readline.ErrInterrupt && len(line) != 0 {
			continue
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "exit" || line == "quit" {
			return
		}
		if err = r.run(line); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}
