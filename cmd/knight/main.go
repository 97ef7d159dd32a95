package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"knightvm/knight"

	"github.com/peterh/liner"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

const (
	imageExt   = ".kbc"
	promptMain = "knight> "
	promptCont = "...     "
)

type options struct {
	expr     string
	features string
	config   string
	disasm   bool
	output   string
	repl     bool
	verbose  int
	seed     int64
}

func main() {
	var opts options
	flag.StringVar(&opts.expr, "e", "", "run the given program text instead of a file")
	flag.StringVar(&opts.features, "features", "", "comma separated features to enable ("+strings.Join(knight.FeatureNames(), ", ")+")")
	flag.StringVar(&opts.config, "config", "", "config file (default: knight.toml or knight.yaml in this or a parent directory)")
	flag.BoolVar(&opts.disasm, "d", false, "print the bytecode before running")
	flag.StringVar(&opts.output, "o", "", "compile to a program image instead of running")
	flag.BoolVar(&opts.repl, "repl", false, "start an interactive session")
	flag.IntVar(&opts.verbose, "v", 0, "log verbosity")
	flag.Int64Var(&opts.seed, "seed", 0, "seed for RANDOM (0 picks one)")
	flag.Parse()

	os.Exit(run(opts, flag.Args()))
}

func run(opts options, args []string) int {
	cfg, err := loadConfig(opts.config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	verbosity := max(opts.verbose, cfg.Run.Verbosity)
	commonlog.Configure(verbosity, nil)

	features, err := knight.ParseFeatures(opts.features)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	features = features.Merge(cfg.Features)
	table := knight.NewDispatchTable(features)

	vm := knight.NewVM(table)
	defer vm.Close()
	vm.Input = knight.NewLineReader(os.Stdin)
	vm.Output = knight.NewLineWriter(os.Stdout)
	vm.ReadFile = func(name string) (string, error) {
		data, err := os.ReadFile(name)
		return string(data), err
	}
	if opts.seed != 0 {
		vm.Seed(opts.seed)
	} else if cfg.Run.Seed != nil {
		vm.Seed(*cfg.Run.Seed)
	}

	if opts.repl || (opts.expr == "" && len(args) == 0) {
		return repl(vm, cfg.Run.History)
	}

	srcName, source := "<expr>", opts.expr
	if opts.expr != "" {
		vm.SetArgs(args)
	} else {
		vm.SetArgs(args[1:])
		srcName = args[0]
		data, err := os.ReadFile(srcName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error reading file: %s\n", err)
			return 1
		}
		source = string(data)
	}

	var program *knight.Program
	if strings.HasSuffix(srcName, imageExt) {
		program, err = knight.UnmarshalProgram([]byte(source), table)
		source = ""
	} else {
		program, err = knight.CompileSource(knight.NewCompiler(table), srcName, source)
	}
	if err != nil {
		return report(err, source)
	}

	if opts.disasm {
		fmt.Fprint(os.Stderr, knight.Disassemble(program))
	}
	if opts.output != "" {
		data, err := knight.MarshalProgram(program)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if err := os.WriteFile(opts.output, data, 0o644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	_, err = vm.Run(program, knight.NewEnvironment(program))
	return report(err, source)
}

func loadConfig(path string) (*knight.Config, error) {
	if path != "" {
		return knight.LoadConfig(path)
	}
	cfg, err := knight.FindConfig(".")
	if err != nil || cfg != nil {
		return cfg, err
	}
	return &knight.Config{Run: knight.RunConfig{History: ".knight_history"}}, nil
}

// report prints err and returns the process exit status for it.
func report(err error, source string) int {
	if err == nil {
		return 0
	}
	if exit, ok := knight.AsExit(err); ok {
		return exit.Code
	}
	if kerr, ok := knight.AsKnightError(err); ok && source != "" {
		fmt.Fprintln(os.Stderr, kerr.ShowSource(source))
	} else {
		fmt.Fprintln(os.Stderr, err.Error())
	}
	return 1
}

// repl compiles each entry against one growing symbol table, so variables
// and blocks defined earlier stay visible.
func repl(vm *knight.VM, history string) int {
	fmt.Printf("Knight %s\nCtrl+D exits.\n", vm.Table().Features())

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if history != "" {
		if !filepath.IsAbs(history) {
			if home, err := os.UserHomeDir(); err == nil {
				history = filepath.Join(home, history)
			}
		}
		if f, err := os.Open(history); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
		defer func() {
			if f, err := os.Create(history); err == nil {
				_, _ = ln.WriteHistory(f)
				_ = f.Close()
			}
		}()
	}

	compiler := knight.NewCompiler(vm.Table())
	var env *knight.Environment

	for {
		src, ok := readEntry(ln, vm.Table())
		if !ok {
			fmt.Println()
			return 0
		}
		if strings.TrimSpace(src) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		program, err := knight.CompileSource(compiler, "<repl>", src)
		if err != nil {
			report(err, src)
			continue
		}
		if env == nil {
			env = knight.NewEnvironment(program)
		} else if err := env.Extend(program); err != nil {
			report(err, src)
			continue
		}

		v, err := vm.Run(program, env)
		if exit, ok := knight.AsExit(err); ok {
			return exit.Code
		}
		if err != nil {
			report(err, src)
			continue
		}
		if s, err := knight.Dump(v); err == nil {
			fmt.Println(s)
		} else {
			fmt.Println(v.String())
		}
	}
}

// readEntry keeps prompting while the parser reports that the program so
// far is only incomplete.
func readEntry(ln *liner.State, table *knight.DispatchTable) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			return "", true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.TrimSpace(src) == "" {
			return src, true
		}
		_, perr := knight.Parse("<repl>", src, table)
		if kerr, ok := knight.AsKnightError(perr); ok && kerr.Incomplete {
			continue
		}
		return src, true
	}
}
