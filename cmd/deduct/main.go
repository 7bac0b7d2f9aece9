// Copyright (c) 2014, Kevin Walsh.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command deduct reads one or more Datalog-ish program files (or stdin) and
// feeds them to the engine, printing the last query's result from each file.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	deduct "github.com/kadalog/deduct"
	"github.com/kadalog/deduct/internal/parse"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}

func newRootCmd() *cobra.Command {
	var (
		maxRecursion int
		echo         bool
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:   "deduct [file ...]",
		Short: "Evaluate Datalog-style programs against a deductive database engine",
		Long: "deduct reads facts, rules, queries, and updates from one or more files\n" +
			"(or standard input, with no arguments) and prints the deterministic\n" +
			"snapshot of the last query result from each file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := hclog.LevelFromString(logLevel)
			if level == hclog.NoLevel {
				return &cliError{code: 2, err: fmt.Errorf("unrecognized --log-level %q", logLevel)}
			}
			logger := hclog.New(&hclog.LoggerOptions{Name: "deduct", Level: level})

			if len(args) == 0 {
				return run(cmd.OutOrStdout(), os.Stdin, "<stdin>", maxRecursion, echo, logger)
			}
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return &cliError{code: 1, err: err}
				}
				err = run(cmd.OutOrStdout(), f, path, maxRecursion, echo, logger)
				f.Close()
				if err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxRecursion, "max-recursion", 64, "global recursion-depth bound for rule resolution")
	cmd.Flags().BoolVar(&echo, "echo", false, "log each program's raw text before ingesting it")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level: trace, debug, info, warn, or error")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &cliError{code: 2, err: err}
	})

	return cmd
}

func run(out io.Writer, in io.Reader, name string, maxRecursion int, echo bool, logger hclog.Logger) error {
	text, err := io.ReadAll(in)
	if err != nil {
		return &cliError{code: 1, err: fmt.Errorf("%s: %w", name, err)}
	}

	lines, parseErr := parse.Parse(string(text))

	e := deduct.New(maxRecursion)
	e.Logger = logger.Named(name)

	result, ingestErr := e.Input(lines, string(text), echo)
	if result != "" {
		fmt.Fprintln(out, result)
	}

	if parseErr != nil || ingestErr != nil {
		if parseErr != nil {
			fmt.Fprintf(os.Stderr, "%s: parse errors: %v\n", name, parseErr)
		}
		if ingestErr != nil {
			fmt.Fprintf(os.Stderr, "%s: ingest errors: %v\n", name, ingestErr)
		}
		return &cliError{code: 1, err: fmt.Errorf("%s: failed to process program", name)}
	}
	return nil
}
