package console

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"pagepilot/internal/config"
	"pagepilot/internal/entity"
	"pagepilot/internal/script"
	"pagepilot/internal/usecase"
	"pagepilot/pkg/logg"
)

var errExit = errors.New("exit")

// Interface is the interactive prompt. Every command runs one request
// through the same use cases as the HTTP API.
type Interface struct {
	config  *config.Config
	logger  *zap.Logger
	usecase *usecase.Service
	in      io.Reader
	out     io.Writer

	ctx    context.Context
	cancel context.CancelFunc

	stopOnce sync.Once
}

type Params struct {
	fx.In

	Config  *config.Config
	Logger  *zap.Logger
	Usecase *usecase.Service
}

func NewInterface(params Params) *Interface {
	return newInterface(params, os.Stdin, os.Stdout)
}

func newInterface(params Params, in io.Reader, out io.Writer) *Interface {
	ctx, cancel := context.WithCancel(context.Background())

	return &Interface{
		config:  params.Config,
		logger:  params.Logger.With(zap.String(logg.Layer, "Console")),
		usecase: params.Usecase,
		in:      in,
		out:     out,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start reads commands until exit, end of input or Stop.
func (i *Interface) Start() error {
	i.printBanner()
	i.printHelp()

	scanner := bufio.NewScanner(i.in)

	for {
		if i.ctx.Err() != nil {
			return nil
		}

		fmt.Fprint(i.out, "\n> ")

		if !scanner.Scan() {
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if err := i.handleCommand(input); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}

			i.logger.Error("Command error", zap.Error(err))
			fmt.Fprintf(i.out, "Error: %v\n", err)
		}
	}
}

// Stop cancels the command in flight. It is safe to call more than once.
func (i *Interface) Stop() error {
	i.stopOnce.Do(func() {
		i.logger.Info("Stopping console interface...")
		i.cancel()
	})

	return nil
}

func (i *Interface) handleCommand(input string) error {
	fields := strings.Fields(input)
	args := fields[1:]

	switch strings.ToLower(fields[0]) {
	case "help", "h":
		i.printHelp()

		return nil
	case "exit", "quit", "q":
		fmt.Fprintln(i.out, "Shutting down...")

		return errExit
	case "run":
		if len(args) != 1 {
			return errors.New("usage: run <script.json|script.yaml>")
		}

		return i.runScript(args[0])
	case "map":
		if len(args) < 2 {
			return errors.New("usage: map <url> <selector> [selector...]")
		}

		return i.print(i.usecase.Automation.Map(i.ctx, entity.MapRequest{URL: args[0], Selectors: args[1:]}))
	case "extract":
		if len(args) < 2 {
			return errors.New("usage: extract <url> <name>=<selector>[@attribute] ...")
		}

		extractions, err := parseExtractions(args[1:])
		if err != nil {
			return err
		}

		return i.print(i.usecase.Automation.Extract(i.ctx, entity.ExtractRequest{URL: args[0], Extractions: extractions}))
	case "describe":
		if len(args) < 2 {
			return errors.New("usage: describe <url> <selector>")
		}

		return i.print(i.usecase.Automation.Describe(i.ctx, entity.DescribeRequest{URL: args[0], Selector: strings.Join(args[1:], " ")}))
	case "results":
		return i.printArtifacts(entity.ArtifactResults)
	case "screenshots":
		return i.printArtifacts(entity.ArtifactScreenshots)
	default:
		return fmt.Errorf("unknown command %q, type help for the list", fields[0])
	}
}

func (i *Interface) runScript(path string) error {
	s, err := script.Load(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(i.out, "\nRunning %s script %s\n", s.Kind, path)

	switch s.Kind {
	case script.KindMap:
		return i.print(i.usecase.Automation.Map(i.ctx, *s.Map))
	case script.KindExtract:
		return i.print(i.usecase.Automation.Extract(i.ctx, *s.Extract))
	default:
		return i.print(i.usecase.Automation.Run(i.ctx, *s.Run))
	}
}

func (i *Interface) printArtifacts(kind entity.ArtifactKind) error {
	artifacts, err := i.usecase.Automation.ListArtifacts(kind)
	if err != nil {
		return err
	}

	if len(artifacts) == 0 {
		fmt.Fprintf(i.out, "No %s yet\n", kind)

		return nil
	}

	for _, a := range artifacts {
		fmt.Fprintf(i.out, "  %-40s %8d bytes  %s\n", a.Name, a.Size, a.Created.Format("2006-01-02 15:04:05"))
	}

	return nil
}

// print writes the use case response as indented JSON, or returns err.
func (i *Interface) print(resp any, err error) error {
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}

	fmt.Fprintln(i.out, string(data))

	return nil
}

// parseExtractions reads name=selector or name=selector@attribute pairs. A
// trailing [] on the name extracts every match.
func parseExtractions(args []string) ([]entity.Extraction, error) {
	extractions := make([]entity.Extraction, 0, len(args))

	for _, arg := range args {
		name, rest, ok := strings.Cut(arg, "=")
		if !ok || name == "" || rest == "" {
			return nil, fmt.Errorf("bad extraction %q, want name=selector[@attribute]", arg)
		}

		extraction := entity.Extraction{Name: name, Selector: rest}

		if trimmed, found := strings.CutSuffix(name, "[]"); found {
			extraction.Name = trimmed
			extraction.Multiple = true
		}

		if at := strings.LastIndex(rest, "@"); at > 0 {
			extraction.Selector = rest[:at]
			extraction.Attribute = rest[at+1:]
		}

		extractions = append(extractions, extraction)
	}

	return extractions, nil
}

func (i *Interface) printBanner() {
	fmt.Fprintln(i.out, `
pagepilot console
Scripted browser runs, mapping and extraction from the prompt.`)
}

func (i *Interface) printHelp() {
	fmt.Fprintln(i.out, `
Available commands:
  run <file>                          - Run a .json/.yaml script (kind: run|map|extract)
  map <url> <selector>...             - Count and sample the matches of each selector
  extract <url> <name>=<sel>[@attr]... - Extract values; name[]=sel extracts every match
  describe <url> <selector>           - Synthesize selectors for matching elements
  results                             - List saved result documents
  screenshots                         - List saved screenshots
  help, h                             - Show this help message
  exit, quit, q                       - Exit the application`)
}
