package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/internal/substraterr"
	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
)

// newNodeCommand groups the low-level node-construction subcommands. These
// bypass the builder's in-process stack/token bookkeeping entirely: a CLI
// invocation is a fresh process with no surviving Builder, so each node
// subcommand instead emits one canonical Node object directly from explicit
// producer:port references, making every node command a pure function over
// the content-addressed store (see DESIGN.md's note on this design choice).
// Compiling a whole word with full type and token-linearity checking goes
// through the builder package via catalog import, not through this surface.
func newNodeCommand(rs *rootState) *cobra.Command {
	cmd := &cobra.Command{Use: "node", Short: "Emit individual canonical node objects"}
	cmd.AddCommand(
		newNodeLitCommand(rs),
		newNodeArgCommand(rs),
		newNodePrimCommand(rs),
		newNodeCallCommand(rs),
		newNodeLoadGlobalCommand(rs),
	)
	return cmd
}

func emitNode(st *store.Store, n objects.Node) (cid.CID, error) {
	c, bytes, err := n.CID()
	if err != nil {
		return cid.CID{}, err
	}
	if err := st.Put(c, "node", bytes); err != nil {
		return cid.CID{}, err
	}
	return c, nil
}

func newNodeLitCommand(rs *rootState) *cobra.Command {
	var typ, value string
	cmd := &cobra.Command{
		Use:   "lit",
		Short: "Emit a LIT node",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rs.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			v, err := parseLiteral(objects.TypeAtom(typ), value)
			if err != nil {
				return err
			}
			n := objects.Node{
				Kind:    objects.KindLit,
				Outs:    []objects.TypeAtom{objects.TypeAtom(typ)},
				Payload: objects.LitPayload{Type: objects.TypeAtom(typ), Value: v},
			}
			c, err := emitNode(st, n)
			if err != nil {
				return err
			}
			fmt.Println(c.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "literal type (i64, f64, text, unit)")
	cmd.Flags().StringVar(&value, "value", "", "literal value")
	cmd.MarkFlagRequired("type")
	return cmd
}

func parseLiteral(t objects.TypeAtom, value string) (objects.Value, error) {
	switch t {
	case objects.TypeI64:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return objects.Value{}, substraterr.Wrapf(substraterr.KindInvalidCanonicalForm, err, "parsing i64 literal %q", value)
		}
		return objects.I64(v), nil
	case objects.TypeF64:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return objects.Value{}, substraterr.Wrapf(substraterr.KindInvalidCanonicalForm, err, "parsing f64 literal %q", value)
		}
		return objects.F64(v), nil
	case objects.TypeText:
		return objects.Text(value), nil
	case objects.TypeUnit:
		return objects.Unit(), nil
	default:
		return objects.Value{}, substraterr.Newf(substraterr.KindInvalidCanonicalForm, "unsupported literal type %q", t)
	}
}

func newNodeArgCommand(rs *rootState) *cobra.Command {
	var index int
	var typ string
	cmd := &cobra.Command{
		Use:   "arg",
		Short: "Emit an ARG node",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rs.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			n := objects.Node{
				Kind:    objects.KindArg,
				Outs:    []objects.TypeAtom{objects.TypeAtom(typ)},
				Payload: objects.ArgPayload{Index: index},
			}
			c, err := emitNode(st, n)
			if err != nil {
				return err
			}
			fmt.Println(c.String())
			return nil
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "parameter index")
	cmd.Flags().StringVar(&typ, "type", "", "parameter type")
	cmd.MarkFlagRequired("type")
	return cmd
}

// invokeNodeFlags are the flags shared by `node prim` and `node call`: the
// callee's argument and token producer:port references, value args first
// followed by one token reference per declared effect domain in sorted
// order. There is no --emask here: this command bypasses the builder's token
// pool entirely (a CLI invocation has no surviving Builder to acquire a token
// from), so the caller names the exact existing token node each call reads
// or writes, the same way any other input is named.
type invokeNodeFlags struct {
	inputs string
}

func (f *invokeNodeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.inputs, "inputs", "", "comma-separated cid:port references, value args first, token refs last")
}

func newNodePrimCommand(rs *rootState) *cobra.Command {
	var primName string
	flags := &invokeNodeFlags{}
	cmd := &cobra.Command{
		Use:   "prim",
		Short: "Emit a PRIM node invoking a named primitive",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rs.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			primCID, err := st.NameGet(store.ScopePrim, primName)
			if err != nil {
				return err
			}
			_, bytes, err := st.Get(primCID)
			if err != nil {
				return err
			}
			prim, err := objects.DecodePrim(bytes)
			if err != nil {
				return err
			}
			c, err := buildInvokeNode(st, flags, objects.KindPrim, objects.PrimPayload{Prim: primCID}, prim.Results, prim.Effects)
			if err != nil {
				return err
			}
			fmt.Println(c.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&primName, "prim", "", "primitive name")
	cmd.MarkFlagRequired("prim")
	flags.register(cmd)
	return cmd
}

func newNodeCallCommand(rs *rootState) *cobra.Command {
	var wordName string
	flags := &invokeNodeFlags{}
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Emit a CALL node invoking a named word",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rs.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			wordCID, err := st.NameGet(store.ScopeWord, wordName)
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
			c, err := buildInvokeNode(st, flags, objects.KindCall, objects.CallPayload{Word: wordCID}, w.Results, w.Effects)
			if err != nil {
				return err
			}
			fmt.Println(c.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&wordName, "word", "", "callee word name")
	cmd.MarkFlagRequired("word")
	flags.register(cmd)
	return cmd
}

// buildInvokeNode assembles a PRIM/CALL node from CLI-supplied port
// references, computing Outs as results followed by one synthetic unit per
// declared effect (the builder's own convention for token outputs).
func buildInvokeNode(st *store.Store, flags *invokeNodeFlags, kind objects.NodeKind, payload interface{}, results []objects.TypeAtom, effects []cid.CID) (cid.CID, error) {
	var inputs []objects.Port
	for _, ref := range splitCSV(flags.inputs) {
		p, err := parsePort(ref)
		if err != nil {
			return cid.CID{}, err
		}
		inputs = append(inputs, p)
	}

	outs := make([]objects.TypeAtom, 0, len(results)+len(effects))
	outs = append(outs, results...)
	for range effects {
		outs = append(outs, objects.TypeUnit)
	}

	n := objects.Node{Kind: kind, Inputs: inputs, Outs: outs, Effects: objects.SortEffects(effects), Payload: payload}
	return emitNode(st, n)
}

func newNodeLoadGlobalCommand(rs *rootState) *cobra.Command {
	var globalCIDHex string
	cmd := &cobra.Command{
		Use:   "load-global",
		Short: "Emit a LOAD_GLOBAL node",
		// No CLI command puts a Global object into the store (spec.md §6's
		// surface list has no "global add"; globals are compile-time constant
		// pools a front end like the catalog importer writes via store.Put
		// directly), so --global takes the already-stored Global's own CID
		// rather than a name looked up through ScopeGlobal.
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rs.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			globalCID, err := cid.Parse(globalCIDHex)
			if err != nil {
				return substraterr.Wrapf(substraterr.KindInvalidCanonicalForm, err, "parsing --global cid %q", globalCIDHex)
			}
			_, bytes, err := st.Get(globalCID)
			if err != nil {
				return err
			}
			g, err := objects.DecodeGlobal(bytes)
			if err != nil {
				return err
			}
			n := objects.Node{
				Kind:    objects.KindLoadGlobal,
				Outs:    g.Types,
				Payload: objects.LoadGlobalPayload{Global: globalCID},
			}
			c, err := emitNode(st, n)
			if err != nil {
				return err
			}
			fmt.Println(c.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&globalCIDHex, "global", "", "CID (hex) of an already-stored Global object")
	cmd.MarkFlagRequired("global")
	return cmd
}
