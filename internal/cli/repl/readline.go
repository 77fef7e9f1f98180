package repl

import (
	"sort"

	"ojclient/internal/cli/command"

	"github.com/chzyer/readline"
)

const defaultPrompt = "ojclient> "

// Readline is a LineReader backed by a terminal with history and completion.
type Readline struct {
	rl *readline.Instance
}

// NewReadline opens the terminal. historyFile may be empty to disable history.
func NewReadline(historyFile string, commands map[string]command.Command) (*Readline, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            defaultPrompt,
		HistoryFile:       historyFile,
		AutoComplete:      completer(commands),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return nil, err
	}
	return &Readline{rl: rl}, nil
}

func (r *Readline) Readline() (string, error) {
	line, err := r.rl.Readline()
	if err == readline.ErrInterrupt {
		return line, ErrInterrupt
	}
	return line, err
}

func (r *Readline) Prompt(label string, secret bool) (string, error) {
	if secret {
		b, err := r.rl.ReadPassword(label + ": ")
		return string(b), err
	}
	r.rl.SetPrompt(label + ": ")
	defer r.rl.SetPrompt(defaultPrompt)
	return r.Readline()
}

func (r *Readline) Close() error {
	return r.rl.Close()
}

// completer builds "service action field=" completion from the registry.
func completer(commands map[string]command.Command) *readline.PrefixCompleter {
	byService := map[string][]command.Command{}
	for _, cmd := range commands {
		byService[cmd.Service] = append(byService[cmd.Service], cmd)
	}
	services := make([]string, 0, len(byService))
	for svc := range byService {
		services = append(services, svc)
	}
	sort.Strings(services)

	fieldItems := func(cmd command.Command) []readline.PrefixCompleterInterface {
		items := make([]readline.PrefixCompleterInterface, 0, len(cmd.Fields))
		for _, f := range cmd.Fields {
			items = append(items, readline.PcItem(f.Name+"="))
		}
		return items
	}

	items := []readline.PrefixCompleterInterface{readline.PcItem("help"), readline.PcItem("exit")}
	for _, svc := range services {
		var children []readline.PrefixCompleterInterface
		for _, cmd := range byService[svc] {
			if cmd.Action == "" {
				children = append(children, fieldItems(cmd)...)
				continue
			}
			children = append(children, readline.PcItem(cmd.Action, fieldItems(cmd)...))
		}
		items = append(items, readline.PcItem(svc, children...))
	}
	return readline.NewPrefixCompleter(items...)
}
