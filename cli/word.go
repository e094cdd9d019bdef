package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
)

func newWordCommand(rs *rootState) *cobra.Command {
	cmd := &cobra.Command{Use: "word", Short: "Manage word objects"}
	cmd.AddCommand(newWordAddCommand(rs))
	return cmd
}

// newWordAddCommand wraps a word body already built with `node lit|prim|call|
// arg|load-global` into a RETURN node and a Word object. There is no
// standalone `node return` subcommand (spec.md §6 lists only lit/prim/call/
// arg/load-global under node), so word add is the one command responsible
// for both closing a body with its RETURN and registering the resulting Word
// - the same two-step collapse builder.Finish performs in-process.
func newWordAddCommand(rs *rootState) *cobra.Command {
	var vals, deps, params, results, effects string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Close a node-built word body with a RETURN and register it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			st, err := rs.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			valPorts, err := parsePorts(vals)
			if err != nil {
				return err
			}
			depPorts, err := parsePorts(deps)
			if err != nil {
				return err
			}
			sort.Slice(depPorts, func(i, j int) bool {
				if depPorts[i].Port != depPorts[j].Port {
					return depPorts[i].Port < depPorts[j].Port
				}
				return lessCID(depPorts[i].Producer, depPorts[j].Producer)
			})
			depPorts = dedupPorts(depPorts)

			effCIDs, _, err := resolveEffectNames(st, splitCSV(effects))
			if err != nil {
				return err
			}

			ret := objects.Node{
				Kind:    objects.KindReturn,
				Outs:    typeAtomsCSV(results),
				Payload: objects.ReturnPayload{Vals: valPorts, Deps: depPorts},
			}
			retCID, err := emitNode(st, ret)
			if err != nil {
				return err
			}

			w := objects.Word{Root: retCID, Params: typeAtomsCSV(params), Results: typeAtomsCSV(results), Effects: objects.SortEffects(effCIDs)}
			c, bytes, err := w.CID()
			if err != nil {
				return err
			}
			if err := st.Put(c, "word", bytes); err != nil {
				return err
			}
			if err := st.NamePut(store.ScopeWord, name, c); err != nil {
				return err
			}
			rs.logger.Debug("word added", "name", name, "cid", c.String())
			fmt.Println(c.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&vals, "vals", "", "comma-separated cid:port references, one per declared result")
	cmd.Flags().StringVar(&deps, "deps", "", "comma-separated cid:port references to effectful producers not already in vals")
	cmd.Flags().StringVar(&params, "params", "", "comma-separated parameter types")
	cmd.Flags().StringVar(&results, "results", "", "comma-separated result types")
	cmd.Flags().StringVar(&effects, "effects", "", "comma-separated effect domain names declared by this word")
	return cmd
}

func parsePorts(s string) ([]objects.Port, error) {
	var out []objects.Port
	for _, ref := range splitCSV(s) {
		p, err := parsePort(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func dedupPorts(ports []objects.Port) []objects.Port {
	out := ports[:0]
	for i, p := range ports {
		if i == 0 || p != ports[i-1] {
			out = append(out, p)
		}
	}
	return out
}

func lessCID(a, b cid.CID) bool {
	ab, bb := a.Bytes(), b.Bytes()
	for i := range ab {
		if ab[i] != bb[i] {
			return ab[i] < bb[i]
		}
	}
	return false
}
