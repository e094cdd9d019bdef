package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
)

func newNamespaceCommand(rs *rootState) *cobra.Command {
	cmd := &cobra.Command{Use: "namespace", Short: "Manage namespace objects"}
	cmd.AddCommand(newNamespaceAddCommand(rs))
	return cmd
}

func newNamespaceAddCommand(rs *rootState) *cobra.Command {
	var ifaceName, bindings, exports string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Compile a namespace binding an interface to word exports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			st, err := rs.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ifaceCID, err := st.NameGet(store.ScopeIface, ifaceName)
			if err != nil {
				return err
			}

			nsBindings, err := parseNameCIDPairs(st, store.ScopeWord, bindings, func(n string, c cid.CID) objects.NamespaceBinding {
				return objects.NamespaceBinding{Name: n, CID: c}
			})
			if err != nil {
				return err
			}
			nsExports, err := parseNameCIDPairs(st, store.ScopeWord, exports, func(n string, c cid.CID) objects.NamespaceExport {
				return objects.NamespaceExport{Name: n, Word: c}
			})
			if err != nil {
				return err
			}
			sort.Slice(nsBindings, func(i, j int) bool { return nsBindings[i].Name < nsBindings[j].Name })
			sort.Slice(nsExports, func(i, j int) bool { return nsExports[i].Name < nsExports[j].Name })

			ns := objects.Namespace{Interface: ifaceCID, Bindings: nsBindings, Exports: nsExports}
			c, bytes, err := ns.CID()
			if err != nil {
				return err
			}
			if err := st.Put(c, "namespace", bytes); err != nil {
				return err
			}
			if err := st.NamePut(store.ScopeNamespace, name, c); err != nil {
				return err
			}
			rs.logger.Debug("namespace added", "name", name, "cid", c.String())
			fmt.Println(c.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&ifaceName, "iface", "", "interface name this namespace implements")
	cmd.Flags().StringVar(&bindings, "bindings", "", "comma-separated name=wordName entries")
	cmd.Flags().StringVar(&exports, "exports", "", "comma-separated name=wordName entries")
	cmd.MarkFlagRequired("iface")
	return cmd
}

// parseNameCIDPairs parses "name=wordName,name=wordName" entries, resolving
// each wordName against scope, and builds one T per entry via build.
func parseNameCIDPairs[T any](st *store.Store, scope store.Scope, s string, build func(name string, c cid.CID) T) ([]T, error) {
	var out []T
	for _, entry := range splitCSV(s) {
		kv := splitKV(entry)
		if kv == nil {
			continue
		}
		c, err := st.NameGet(scope, kv[1])
		if err != nil {
			return nil, err
		}
		out = append(out, build(kv[0], c))
	}
	return out, nil
}

func splitKV(entry string) []string {
	for i := 0; i < len(entry); i++ {
		if entry[i] == '=' {
			return []string{entry[:i], entry[i+1:]}
		}
	}
	return nil
}
