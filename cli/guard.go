package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
)

// Guards are ordinary words (an i64-returning predicate body) registered
// under a separate name scope so a DISPATCH case's guard reference reads as
// intentional at the CLI rather than reusing a word name that might later be
// renamed for unrelated reasons.
func newGuardCommand(rs *rootState) *cobra.Command {
	cmd := &cobra.Command{Use: "guard", Short: "Manage named guard predicates"}
	cmd.AddCommand(newGuardAddCommand(rs), newGuardListCommand(rs), newGuardShowCommand(rs))
	return cmd
}

func newGuardAddCommand(rs *rootState) *cobra.Command {
	var wordName string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register an existing word as a named guard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			st, err := rs.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			wordCID, err := st.NameGet(store.ScopeWord, wordName)
			if err != nil {
				return err
			}
			if err := st.NamePut(store.ScopeGuard, name, wordCID); err != nil {
				return err
			}
			rs.logger.Debug("guard added", "name", name, "cid", wordCID.String())
			fmt.Println(wordCID.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&wordName, "word", "", "underlying predicate word name")
	cmd.MarkFlagRequired("word")
	return cmd
}

func newGuardListCommand(rs *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered guard names",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rs.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			names, err := st.NameList(store.ScopeGuard, "")
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}

func newGuardShowCommand(rs *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a guard's underlying word CID and signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rs.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			wordCID, err := st.NameGet(store.ScopeGuard, args[0])
			if err != nil {
				return err
			}
			_, bytes, err := st.Get(wordCID)
			if err != nil {
				return err
			}
			w, err := objects.DecodeWord(bytes)
			if err != nil {
				return err
			}
			fmt.Printf("cid: %s\n", wordCID.String())
			fmt.Printf("params: %v\n", w.Params)
			fmt.Printf("results: %v\n", w.Results)
			fmt.Printf("effects: %d declared\n", len(w.Effects))
			return nil
		},
	}
}
