// Package cli implements the command-line surface described in SPEC_FULL.md
// §6: a thin collaborator over the builder, store, token, interp, and catalog
// packages. Every subcommand maps to one store/builder operation (or, for
// node construction, a direct canonical-object emission - see the Open
// Question note on node commands in DESIGN.md) and exits nonzero on any
// reported error, per spec.md's error-handling policy.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/opal-lang/substrate/internal/substraterr"
	"github.com/opal-lang/substrate/store"
)

// rootState carries flags shared by every subcommand.
type rootState struct {
	dbPath  string
	debug   bool
	noColor bool
	logger  *slog.Logger
}

// NewRootCommand builds the substrate CLI's root cobra command.
func NewRootCommand() *cobra.Command {
	rs := &rootState{}

	root := &cobra.Command{
		Use:           "substrate",
		Short:         "Content-addressed code database and execution engine",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			rs.logger = newLogger(rs.debug)
			useColor = !rs.noColor
		},
	}
	root.PersistentFlags().StringVar(&rs.dbPath, "db", "substrate.db", "path to the object store database")
	root.PersistentFlags().BoolVar(&rs.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&rs.noColor, "no-color", false, "disable colored error output")

	root.AddCommand(
		newNewCommand(rs),
		newEffectCommand(rs),
		newPrimCommand(rs),
		newIfaceCommand(rs),
		newNamespaceCommand(rs),
		newNodeCommand(rs),
		newWordCommand(rs),
		newGuardCommand(rs),
		newStateCommand(rs),
		newRunCommand(rs),
		newCatalogCommand(rs),
	)
	return root
}

// newLogger builds the CLI's structured logger, grounded on the teacher's
// lexer/parser convention of a text handler with timestamps stripped for a
// terser terminal transcript; the level tag is kept.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func (rs *rootState) openStore() (*store.Store, error) {
	return store.Open(rs.dbPath)
}

// Execute runs the CLI, formats any error, and returns the process exit code.
func Execute() int {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		FormatError(os.Stderr, err)
		return exitCodeFor(err)
	}
	return 0
}

// exitCodeFor maps a substraterr.Kind to a small, stable process exit code so
// scripts can branch on failure class without parsing stderr.
func exitCodeFor(err error) int {
	se, ok := err.(*substraterr.Error)
	if !ok {
		return 1
	}
	switch se.Kind {
	case substraterr.KindNotFound, substraterr.KindUnknownSymbol, substraterr.KindAmbiguousSymbol:
		return 2
	case substraterr.KindInvalidCanonicalForm, substraterr.KindCorruptObject, substraterr.KindUnknownKind:
		return 3
	case substraterr.KindStackUnderflow, substraterr.KindTypeMismatch, substraterr.KindMissingToken,
		substraterr.KindDuplicateExport, substraterr.KindGuardRejectsEffect:
		return 4
	case substraterr.KindArgumentCountMismatch, substraterr.KindDivByZero, substraterr.KindExecutionTrap,
		substraterr.KindGuardFailedNoDeopt, substraterr.KindGlobalNotFound:
		return 5
	case substraterr.KindStoreIoError:
		return 6
	default:
		return 1
	}
}

// FormatError prints err to w, including the structured Kind and any attached
// context, colorized the way the teacher's FormatError does.
func FormatError(w *os.File, err error) {
	if err == nil {
		return
	}
	if se, ok := err.(*substraterr.Error); ok {
		fmt.Fprintf(w, "%s%s: %s%s\n", colorize(colorRed), se.Kind, se.Message, colorize(colorReset))
		for k, v := range se.Context {
			fmt.Fprintf(w, "  %s: %v\n", k, v)
		}
		if se.Cause != nil {
			fmt.Fprintf(w, "  caused by: %v\n", se.Cause)
		}
		return
	}
	fmt.Fprintf(w, "%sError: %s%s\n", colorize(colorRed), err.Error(), colorize(colorReset))
}
