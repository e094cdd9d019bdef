package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
)

func newIfaceCommand(rs *rootState) *cobra.Command {
	cmd := &cobra.Command{Use: "iface", Short: "Manage interface objects"}
	cmd.AddCommand(newIfaceAddCommand(rs))
	return cmd
}

func newIfaceAddCommand(rs *rootState) *cobra.Command {
	var entryName, params, results, effects string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Declare or extend an interface with one exported entry",
		Long: "Declares an interface object with a single entry, or - when an " +
			"interface named <name> already exists - compiles a new interface " +
			"appending this entry to the existing one (interfaces are immutable " +
			"content-addressed objects; \"extending\" means rebinding the name to " +
			"a freshly computed CID).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			st, err := rs.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			effCIDs, _, err := resolveEffectNames(st, splitCSV(effects))
			if err != nil {
				return err
			}
			entry := objects.InterfaceEntry{
				Name:    entryName,
				Params:  typeAtomsCSV(params),
				Results: typeAtomsCSV(results),
				Effects: effCIDs,
			}

			var entries []objects.InterfaceEntry
			if existing, err := st.NameGet(store.ScopeIface, name); err == nil {
				_, bytes, err := st.Get(existing)
				if err != nil {
					return err
				}
				prior, err := objects.DecodeInterface(bytes)
				if err != nil {
					return err
				}
				entries = append(entries, prior.Entries...)
			}
			entries = append(entries, entry)
			sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

			iface := objects.Interface{Entries: entries}
			c, bytes, err := iface.CID()
			if err != nil {
				return err
			}
			if err := st.Put(c, "iface", bytes); err != nil {
				return err
			}
			if err := st.NamePut(store.ScopeIface, name, c); err != nil {
				return err
			}
			rs.logger.Debug("iface entry added", "name", name, "entry", entryName, "cid", c.String())
			fmt.Println(c.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&entryName, "entry", "", "exported entry name")
	cmd.Flags().StringVar(&params, "params", "", "comma-separated parameter types")
	cmd.Flags().StringVar(&results, "results", "", "comma-separated result types")
	cmd.Flags().StringVar(&effects, "effects", "", "comma-separated effect domain names")
	cmd.MarkFlagRequired("entry")
	return cmd
}
