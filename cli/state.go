package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opal-lang/substrate/token"
)

// The global store (spec.md §4.5) is runtime state, not part of the
// persisted object/name_index/code_cache layout (spec.md §6) - it models one
// program execution's mutable state, not a database. Run standalone, state
// snapshot/reset therefore operate on a fresh, empty GlobalStore: they exist
// for parity with the state.snapshot/state.reset admin operations and for
// scripting demonstrations, not cross-invocation persistence. `run` and
// `catalog import` are the commands that actually exercise a populated store,
// each within their own single invocation.
func newStateCommand(rs *rootState) *cobra.Command {
	cmd := &cobra.Command{Use: "state", Short: "Inspect or clear the runtime global store"}
	cmd.AddCommand(newStateSnapshotCommand(rs), newStateResetCommand(rs))
	return cmd
}

func newStateSnapshotCommand(rs *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Print a stable-ordered snapshot of the runtime global store",
		RunE: func(cmd *cobra.Command, args []string) error {
			g := token.NewGlobalStore()
			printSnapshot(g.Snapshot())
			return nil
		},
	}
}

func newStateResetCommand(rs *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the runtime global store",
		RunE: func(cmd *cobra.Command, args []string) error {
			g := token.NewGlobalStore()
			g.Reset()
			fmt.Println("ok")
			return nil
		},
	}
}

func printSnapshot(snap token.Snapshot) {
	for _, ns := range snap.Namespaces {
		for _, kv := range ns.Entries {
			fmt.Printf("%s.%s = %s\n", ns.Namespace, kv.Key, formatValue(kv.Value))
		}
	}
}
