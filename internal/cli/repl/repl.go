package repl

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"ojclient/internal/cli/command"
	"ojclient/pkg/errors"
	"ojclient/pkg/utils/contextkey"

	"github.com/google/shlex"
	"github.com/google/uuid"
)

// LineReader is the input side of the REPL.
type LineReader interface {
	Readline() (string, error)
	// Prompt asks for one value; secret input is not echoed.
	Prompt(label string, secret bool) (string, error)
	Close() error
}

// ErrInterrupt is returned by a LineReader when the user presses Ctrl-C.
var ErrInterrupt = stderrors.New("interrupt")

// Session holds REPL state.
type Session struct {
	env        *command.Env
	commands   map[string]command.Command
	reader     LineReader
	out        io.Writer
	prettyJSON bool
}

func New(env *command.Env, commands map[string]command.Command, reader LineReader, out io.Writer, prettyJSON bool) *Session {
	return &Session{
		env:        env,
		commands:   commands,
		reader:     reader,
		out:        out,
		prettyJSON: prettyJSON,
	}
}

// Run reads commands until exit or end of input.
func (s *Session) Run(ctx context.Context) error {
	for {
		line, err := s.reader.Readline()
		if stderrors.Is(err, ErrInterrupt) {
			if strings.TrimSpace(line) == "" {
				return nil
			}
			continue
		}
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		handled, exit := s.handleSystemCommand(line)
		if exit {
			return nil
		}
		if handled {
			continue
		}
		if err := s.Execute(ctx, line); err != nil {
			s.printError(err)
		}
	}
}

func (s *Session) handleSystemCommand(line string) (handled, exit bool) {
	switch line {
	case "exit", "quit":
		s.printLine("bye")
		return true, true
	case "help":
		s.printHelp()
		return true, false
	}
	return false, false
}

// Execute runs one command line.
func (s *Session) Execute(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	cmd, args, ok := command.Lookup(s.commands, tokens)
	if !ok {
		return fmt.Errorf("unknown command: %s (try help)", strings.Join(tokens, " "))
	}

	params := command.Params{}
	for _, token := range args {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid param: %s", token)
		}
		params.Set(parts[0], parts[1])
	}
	params.Canonicalize(cmd.Fields)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}

	ctx = contextkey.WithTraceID(ctx, uuid.NewString())
	result, err := cmd.Run(ctx, s.env, params)
	if err != nil {
		return err
	}
	s.render(result)
	return nil
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range params.Missing(cmd.Fields) {
		value, err := s.reader.Prompt(field.Prompt, field.Type == command.FieldSecret)
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return fmt.Errorf("%s is required", field.Name)
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) render(result any) {
	if result == nil {
		s.printLine("ok")
		return
	}
	var (
		data []byte
		err  error
	)
	if s.prettyJSON {
		data, err = json.MarshalIndent(result, "", "  ")
	} else {
		data, err = json.Marshal(result)
	}
	if err != nil {
		s.printLine("%v", result)
		return
	}
	s.printLine("%s", data)
}

func (s *Session) printError(err error) {
	var coded *errors.Error
	if stderrors.As(err, &coded) {
		s.printLine("error [%d]: %s", coded.Code, coded.Error())
		return
	}
	s.printLine("error: %v", err)
}

func (s *Session) printHelp() {
	s.printLine("usage: <command> key=value ...")
	s.printLine("system: help | exit")
	for _, cmd := range command.Sorted(s.commands) {
		s.printLine("  %-60s %s", cmd.Usage(), cmd.Summary)
	}
	s.printLine("examples:")
	s.printLine("  login username=demo")
	s.printLine("  run lang=python code=\"print(1)\"")
	s.printLine("  draft open problem=7 lang=cpp")
	s.printLine("  submit problem=7 lang=cpp file=./main.cpp")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
