// hvmcheck - parallel explicit-state model checker
//
// Explores the full reachable state space of a compiled VM program and
// reports the first violation found, or "No issues".
// Uses manual argument parsing so flags like '-B<file>' and '-t<N>'
// parse with no separating space, as spec.md's interface requires.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kolkov/hvmcheck"
)

const (
	banner     = "hvmcheck - parallel explicit-state model checker"
	shortUsage = "usage: hvmcheck [-c] [-t<seconds>] [-B<dfa-file>] -o<outfile> <input.json>"
)

//nolint:gocyclo,funlen // CLI argument parsing is inherently complex
func main() {
	var (
		disableBusywait bool
		timeoutSeconds  = -1
		behaviorFile    string
		outFile         string
	)

	var inputFile string
	var i int
	for i = 1; i < len(os.Args); i++ {
		arg := os.Args[i]
		if arg == "--" {
			i++
			break
		}
		if arg == "-" || !strings.HasPrefix(arg, "-") {
			break
		}

		switch {
		case arg == "-c":
			disableBusywait = true
		case arg == "-x":
			fmt.Println(banner)
			os.Exit(0)
		case arg == "-t":
			errorExitf("flag needs an argument: -t")
		case strings.HasPrefix(arg, "-t"):
			n, err := strconv.Atoi(arg[2:])
			if err != nil || n < 0 {
				errorExitf("invalid timeout: %s", arg[2:])
			}
			timeoutSeconds = n
		case arg == "-B":
			errorExitf("flag needs an argument: -B")
		case strings.HasPrefix(arg, "-B"):
			behaviorFile = arg[2:]
		case arg == "-o":
			errorExitf("flag needs an argument: -o")
		case strings.HasPrefix(arg, "-o"):
			outFile = arg[2:]
		case arg == "-h", arg == "--help":
			fmt.Printf("%s\n\n%s\n", banner, shortUsage)
			os.Exit(0)
		default:
			errorExitf("flag provided but not defined: %s", arg)
		}
	}

	args := os.Args[i:]
	if len(args) != 1 {
		errorExitf(shortUsage)
	}
	inputFile = args[0]

	if outFile == "" {
		errorExitf("missing required output path: -o<outfile>")
	}

	in, err := os.Open(inputFile)
	if err != nil {
		errorExitf("cannot open input file %s: %v", inputFile, err)
	}
	defer in.Close()

	prog, err := hvmcheck.Compile(in)
	if err != nil {
		errorExit(err)
	}

	config := &hvmcheck.Config{DisableBusywait: disableBusywait}
	if timeoutSeconds >= 0 {
		config.Timeout = time.Duration(timeoutSeconds) * time.Second
	}
	if behaviorFile != "" {
		pattern, err := os.ReadFile(behaviorFile)
		if err != nil {
			errorExitf("cannot read behavior file %s: %v", behaviorFile, err)
		}
		config.Behavior = strings.TrimSpace(string(pattern))
	}

	report, err := prog.Check(config)
	if err != nil {
		errorExit(err)
	}

	out, err := os.Create(outFile)
	if err != nil {
		errorExitf("cannot create output file %s: %v", outFile, err)
	}
	defer out.Close()

	if err := report.WriteJSON(out); err != nil {
		errorExitf("cannot write report: %v", err)
	}
}

// errorExitf prints a formatted diagnostic to stderr and exits 1.
func errorExitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "hvmcheck: "+format+"\n", args...)
	os.Exit(1)
}

// errorExit prints err to stderr and exits 1.
func errorExit(err error) {
	fmt.Fprintf(os.Stderr, "hvmcheck: %v\n", err)
	os.Exit(1)
}
