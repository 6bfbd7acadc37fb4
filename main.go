// Command pepper compiles Pepper source code into bytecode and runs it in a
// stack-based virtual machine.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/dr8co/pepper/compiler"
	"github.com/dr8co/pepper/lexer"
	"github.com/dr8co/pepper/parser"
	"github.com/dr8co/pepper/repl"
	"github.com/dr8co/pepper/vm"
)

const version = "0.1.0"

// printUsage displays custom usage information
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, `Pepper v%s

USAGE:
    %s [OPTIONS] [script]

DESCRIPTION:
    Pepper compiles Pepper source code into bytecode and runs it in a
    virtual machine. Without any flags or arguments, it starts an
    interactive REPL (Read-Eval-Print-Loop).

OPTIONS:
    -f, --file <path>       Execute a Pepper script file
    -e, --eval <code>       Evaluate a Pepper expression and print the result
    -d, --debug             Enable debug mode with more verbose output
    -n, --no-color          Disable syntax highlighting and colored output
    -v, --version           Show version information
    -h, --help              Show this help message

EXAMPLES:
    # Start interactive REPL
    %s

    # Execute a script file
    %s script.pep
    %s -f script.pep
    %s --file script.pep

    # Evaluate an expression
    %s -e "let x = 5; x * 2"
    %s --eval "puts(\"Hello, World!\")"

    # Execute with debug mode
    %s -f script.pep -d

`, version, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	// Set custom usage function
	flag.Usage = printUsage

	// Define command-line flags
	fileFlag := flag.String("file", "", "Execute a Pepper script file")
	evalFlag := flag.String("eval", "", "Evaluate a Pepper expression and print the result")
	debugFlag := flag.Bool("debug", false, "Enable debug mode with more verbose output")
	noColorFlag := flag.Bool("no-color", false, "Disable syntax highlighting and colored output")
	versionFlag := flag.Bool("version", false, "Show version information")

	// Define short flag aliases
	flag.StringVar(fileFlag, "f", "", "Execute a Pepper script file")
	flag.StringVar(evalFlag, "e", "", "Evaluate a Pepper expression and print the result")
	flag.BoolVar(debugFlag, "d", false, "Enable debug mode with more verbose output")
	flag.BoolVar(noColorFlag, "n", false, "Disable syntax highlighting and colored output")
	flag.BoolVar(versionFlag, "v", false, "Show version information")

	// Parse command-line flags
	flag.Parse()

	// Show version information if requested
	if *versionFlag {
		fmt.Printf("Pepper v%s\n", version)
		return
	}

	// Execute a file if specified via flag, or as a bare positional argument
	file := *fileFlag
	if file == "" && flag.NArg() > 0 {
		file = flag.Arg(0)
	}
	if file != "" {
		executeFile(file, *debugFlag)
		return
	}

	// Evaluate an expression if specified
	if *evalFlag != "" {
		evaluateExpression(*evalFlag)
		return
	}

	// Get current user
	username := "unknown"
	if usr, err := user.Current(); err == nil {
		username = usr.Username
	}

	// Start the REPL
	repl.Start(username, repl.Options{NoColor: *noColorFlag, Debug: *debugFlag})
}

// executeFile reads and executes a Pepper script file
func executeFile(filename string, debug bool) {
	cleaned := filepath.Clean(filename)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		fmt.Printf("Error getting absolute path: %s\n", err)
		os.Exit(1)
	}

	if debug {
		fmt.Printf("Executing file: %s\n", absolute)
	}

	// Read the file
	//nolint:gosec // We're not reading user input here
	content, err := os.ReadFile(absolute)
	if err != nil {
		fmt.Printf("Error reading file: %s\n", err)
		os.Exit(1)
	}

	run(string(content), debug)
}

// evaluateExpression evaluates a single Pepper expression and always prints
// its result, regardless of debug mode.
func evaluateExpression(expr string) {
	run(expr, true)
}

// run parses, compiles, and executes source, printing the last popped
// stack value when printResult is set, and exiting non-zero on any
// pipeline-stage error.
func run(source string, printResult bool) {
	l := lexer.New(source)
	p := parser.New(l)
	program := p.ParseProgram()

	if len(p.Errors()) != 0 {
		printParserErrors(p.Errors())
		os.Exit(1)
	}

	comp := compiler.New()
	err := comp.Compile(program)
	if err != nil {
		fmt.Printf("Compilation error: %s\n", err)
		os.Exit(1)
	}

	machine := vm.New(comp.Bytecode())
	err = machine.Run()
	if err != nil {
		fmt.Printf("VM error: %s\n", err)
		os.Exit(1)
	}

	if printResult {
		result := machine.LastPoppedStackElem()
		if result != nil {
			fmt.Println(result.Inspect())
		}
	}
}

// printParserErrors prints parser errors to stderr
func printParserErrors(errors []string) {
	_, _ = fmt.Fprintln(os.Stderr, "Parser errors:")
	for _, msg := range errors {
		_, _ = fmt.Fprintln(os.Stderr, "\t"+msg)
	}
}
