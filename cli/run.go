package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opal-lang/substrate/interp"
	"github.com/opal-lang/substrate/internal/substraterr"
	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
	"github.com/opal-lang/substrate/token"
)

func newRunCommand(rs *rootState) *cobra.Command {
	var ns, argsFlag string
	var printSnapshot_ bool
	cmd := &cobra.Command{
		Use:   "run <word>",
		Short: "Execute a word through the graph interpreter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rs.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			wordCID, err := st.NameGet(store.ScopeWord, args[0])
			if err != nil {
				return err
			}
			callArgs, err := parseValueList(argsFlag)
			if err != nil {
				return err
			}

			reg, err := interp.NewBuiltinRegistry(st)
			if err != nil {
				return err
			}
			globals := token.NewGlobalStore()
			in := interp.New(st, globals, reg)

			results, err := in.Run(wordCID, callArgs, ns)
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Println(formatValue(r))
			}
			if printSnapshot_ {
				printSnapshot(globals.Snapshot())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ns, "ns", "", "namespace threaded through state prims")
	cmd.Flags().StringVar(&argsFlag, "args", "", "comma-separated type:value argument list, e.g. i64:10,text:hi")
	cmd.Flags().BoolVar(&printSnapshot_, "print-state", false, "print the global store's state after execution")
	return cmd
}

// formatValue renders a runtime Value the way a CLI transcript needs: plain
// text for scalars, a parenthesized list for tuples.
func formatValue(v objects.Value) string {
	switch v.Type {
	case objects.TypeI64:
		return strconv.FormatInt(v.I64, 10)
	case objects.TypeF64:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	case objects.TypeText:
		return v.Text
	case objects.TypeUnit:
		return "()"
	case objects.TypeQuote:
		return "quote:" + v.Quote.String()
	case objects.TypeTuple:
		parts := make([]string, len(v.Tuple))
		for i, t := range v.Tuple {
			parts[i] = formatValue(t)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		return fmt.Sprintf("<%s>", v.Type)
	}
}

// parseValueList parses "type:value,type:value" CLI arguments into runtime
// Values, e.g. "i64:10,text:hello".
func parseValueList(s string) ([]objects.Value, error) {
	var out []objects.Value
	for _, entry := range splitCSV(s) {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, substraterr.Newf(substraterr.KindInvalidCanonicalForm, "malformed argument %q, want type:value", entry)
		}
		v, err := parseLiteral(objects.TypeAtom(parts[0]), parts[1])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
