package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
)

func newPrimCommand(rs *rootState) *cobra.Command {
	cmd := &cobra.Command{Use: "prim", Short: "Manage primitive objects"}
	cmd.AddCommand(newPrimAddCommand(rs))
	return cmd
}

func newPrimAddCommand(rs *rootState) *cobra.Command {
	var params, results, effects string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Declare a new primitive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			st, err := rs.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			// emask is not part of a Prim's canonical form (permission is a
			// call-site concern supplied by whoever builds an invoking node -
			// the catalog importer, or the explicit token references a `node
			// prim`/`node call` command names directly) - nothing to store here.
			effCIDs, _, err := resolveEffectNames(st, splitCSV(effects))
			if err != nil {
				return err
			}

			p := objects.Prim{Params: typeAtomsCSV(params), Results: typeAtomsCSV(results), Effects: effCIDs}
			c, bytes, err := p.CID()
			if err != nil {
				return err
			}
			if err := st.Put(c, "prim", bytes); err != nil {
				return err
			}
			if err := st.NamePut(store.ScopePrim, name, c); err != nil {
				return err
			}
			rs.logger.Debug("prim added", "name", name, "cid", c.String())
			fmt.Println(c.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&params, "params", "", "comma-separated parameter types")
	cmd.Flags().StringVar(&results, "results", "", "comma-separated result types")
	cmd.Flags().StringVar(&effects, "effects", "", "comma-separated effect domain names")
	return cmd
}
