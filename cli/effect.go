package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
)

func newEffectCommand(rs *rootState) *cobra.Command {
	cmd := &cobra.Command{Use: "effect", Short: "Manage effect domain objects"}
	cmd.AddCommand(newEffectAddCommand(rs))
	return cmd
}

func newEffectAddCommand(rs *rootState) *cobra.Command {
	var doc string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Declare a new effect domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			st, err := rs.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			eff := objects.Effect{Domain: objects.EffectDomain(name), Doc: doc}
			c, bytes, err := eff.CID()
			if err != nil {
				return err
			}
			if err := st.Put(c, "effect", bytes); err != nil {
				return err
			}
			if err := st.NamePut(store.ScopeEffect, name, c); err != nil {
				return err
			}
			rs.logger.Debug("effect added", "name", name, "cid", c.String())
			fmt.Println(c.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&doc, "doc", "", "human-readable description")
	return cmd
}
