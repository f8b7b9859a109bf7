package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/condeval/pkg/expr"
	"github.com/lemonberrylabs/condeval/pkg/rules"
	"github.com/lemonberrylabs/condeval/pkg/types"
)

func newEvalCmd() *cobra.Command {
	var (
		assignments []string
		varsFile    string
		asBool      bool
		asNumber    bool
		lenient     bool
	)
	cmd := &cobra.Command{
		Use:   "eval EXPR",
		Short: "Compile and evaluate an expression",
		Long: `Compile and evaluate an expression.

Variables are given as name=value, where value is read as YAML:
  --var level=7 --var user=bob --var "perms=[fly, build]"

Without --bool or --number the raw result is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if asBool && asNumber {
				return errors.New("--bool and --number are mutually exclusive")
			}

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			e, err := expr.Compile(args[0], expr.WithLogger(logger))
			if err != nil {
				return err
			}

			vars, err := loadVars(varsFile, assignments)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case asBool && lenient:
				fmt.Fprintln(out, e.EvaluateBooleanOrFalse(vars))
			case asBool:
				b, err := e.EvaluateBoolean(vars)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, b)
			case asNumber && lenient:
				fmt.Fprintln(out, types.FormatDouble(e.EvaluateOrZero(vars)))
			case asNumber:
				f, err := e.Evaluate(vars)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, types.FormatDouble(f))
			default:
				v, err := e.Eval(vars)
				if err != nil {
					if !lenient {
						return err
					}
					logger.Warn("expression evaluation failed", "expression", e.Source(), "error", err)
				}
				fmt.Fprintln(out, v)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&assignments, "var", nil, "Variable binding name=value (repeatable)")
	cmd.Flags().StringVar(&varsFile, "vars", "", "YAML file with a map of variable bindings")
	cmd.Flags().BoolVar(&asBool, "bool", false, "Coerce the result to a boolean")
	cmd.Flags().BoolVar(&asNumber, "number", false, "Coerce the result to a number")
	cmd.Flags().BoolVar(&lenient, "lenient", false, "Log evaluation failures and print the fallback value instead of failing")
	return cmd
}

// loadVars merges the bindings of a YAML vars file with --var assignments.
// Assignments win over the file.
func loadVars(path string, assignments []string) (map[string]interface{}, error) {
	raw := make(map[string]interface{})
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read vars file: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse vars file: %w", err)
		}
	}
	for _, a := range assignments {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q: expected name=value", a)
		}
		var v interface{}
		if err := yaml.Unmarshal([]byte(value), &v); err != nil {
			return nil, fmt.Errorf("invalid --var %q: %w", a, err)
		}
		raw[name] = v
	}

	vars, err := types.FromGoMap(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out, nil
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE...",
		Short: "Compile rule files and report every error",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				rs, err := rules.LoadFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s\n", path)
					for _, line := range strings.Split(err.Error(), "\n") {
						fmt.Fprintf(out, "  %s\n", line)
					}
					continue
				}
				fmt.Fprintf(out, "ok   %s (%d rules)\n", path, rs.Len())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d rule files failed", failed, len(args))
			}
			return nil
		},
	}
}

func newTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens EXPR",
		Short: "Print the token stream of an expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := expr.NewLexer(args[0]).Tokenize()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "POS\tTYPE\tTEXT")
			for _, tok := range tokens {
				fmt.Fprintf(w, "%d\t%s\t%s\n", tok.Pos, tok.Type, tok.Text)
			}
			return w.Flush()
		},
	}
}
