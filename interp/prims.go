package interp

import (
	"strings"

	"github.com/opal-lang/substrate/internal/substraterr"
	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
	"github.com/opal-lang/substrate/token"
)

// NewBuiltinRegistry returns a Registry with the host-native primitive table
// bound against st's prim name index. A catalog need not import every
// builtin; names absent from st are silently skipped rather than failing
// registry construction.
func NewBuiltinRegistry(st *store.Store) (*Registry, error) {
	r := NewRegistry()
	binds := []struct {
		name string
		fn   PrimFunc
	}{
		{"add_i64", addI64},
		{"sub_i64", subI64},
		{"mul_i64", mulI64},
		{"div_i64", divI64},
		{"eq_i64", eqI64},
		{"lt_i64", ltI64},
		{"add_f64", addF64},
		{"concat_text", concatText},
		{"eq_text", eqText},
		{"state.read_i64", stateReadI64},
		{"state.write_i64", stateWriteI64},
		{"state.read_text", stateReadText},
		{"state.write_text", stateWriteText},
	}
	for _, b := range binds {
		if err := r.Bind(st, b.name, b.fn); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func addI64(args []objects.Value, _ string, _ *token.GlobalStore) ([]objects.Value, error) {
	a, b, err := twoI64(args)
	if err != nil {
		return nil, err
	}
	return []objects.Value{objects.I64(a + b)}, nil
}

func subI64(args []objects.Value, _ string, _ *token.GlobalStore) ([]objects.Value, error) {
	a, b, err := twoI64(args)
	if err != nil {
		return nil, err
	}
	return []objects.Value{objects.I64(a - b)}, nil
}

func mulI64(args []objects.Value, _ string, _ *token.GlobalStore) ([]objects.Value, error) {
	a, b, err := twoI64(args)
	if err != nil {
		return nil, err
	}
	return []objects.Value{objects.I64(a * b)}, nil
}

func divI64(args []objects.Value, _ string, _ *token.GlobalStore) ([]objects.Value, error) {
	a, b, err := twoI64(args)
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, substraterr.New(substraterr.KindDivByZero, "division by zero")
	}
	return []objects.Value{objects.I64(a / b)}, nil
}

func eqI64(args []objects.Value, _ string, _ *token.GlobalStore) ([]objects.Value, error) {
	a, b, err := twoI64(args)
	if err != nil {
		return nil, err
	}
	return []objects.Value{boolI64(a == b)}, nil
}

func ltI64(args []objects.Value, _ string, _ *token.GlobalStore) ([]objects.Value, error) {
	a, b, err := twoI64(args)
	if err != nil {
		return nil, err
	}
	return []objects.Value{boolI64(a < b)}, nil
}

func addF64(args []objects.Value, _ string, _ *token.GlobalStore) ([]objects.Value, error) {
	if len(args) != 2 || args[0].Type != objects.TypeF64 || args[1].Type != objects.TypeF64 {
		return nil, substraterr.New(substraterr.KindTypeMismatch, "add_f64 wants (f64, f64)")
	}
	return []objects.Value{objects.F64(args[0].F64 + args[1].F64)}, nil
}

func concatText(args []objects.Value, _ string, _ *token.GlobalStore) ([]objects.Value, error) {
	if len(args) != 2 || args[0].Type != objects.TypeText || args[1].Type != objects.TypeText {
		return nil, substraterr.New(substraterr.KindTypeMismatch, "concat_text wants (text, text)")
	}
	var sb strings.Builder
	sb.WriteString(args[0].Text)
	sb.WriteString(args[1].Text)
	return []objects.Value{objects.Text(sb.String())}, nil
}

func eqText(args []objects.Value, _ string, _ *token.GlobalStore) ([]objects.Value, error) {
	if len(args) != 2 || args[0].Type != objects.TypeText || args[1].Type != objects.TypeText {
		return nil, substraterr.New(substraterr.KindTypeMismatch, "eq_text wants (text, text)")
	}
	return []objects.Value{boolI64(args[0].Text == args[1].Text)}, nil
}

// stateReadI64 reads (ns, key) and returns its i64 value, or 0 with no error
// if the key is unset - first-read-of-a-fresh-namespace is the normal case
// for counters and similar accumulators (spec.md §8 scenario 3).
func stateReadI64(args []objects.Value, ns string, g *token.GlobalStore) ([]objects.Value, error) {
	key, err := oneText(args)
	if err != nil {
		return nil, err
	}
	v, err := g.Read(ns, key)
	if substraterr.Is(err, substraterr.KindGlobalNotFound) {
		return []objects.Value{objects.I64(0)}, nil
	}
	if err != nil {
		return nil, err
	}
	if v.Type != objects.TypeI64 {
		return nil, substraterr.Newf(substraterr.KindTypeMismatch, "global %q/%q is %s, not i64", ns, key, v.Type)
	}
	return []objects.Value{v}, nil
}

func stateWriteI64(args []objects.Value, ns string, g *token.GlobalStore) ([]objects.Value, error) {
	if len(args) != 2 || args[0].Type != objects.TypeI64 || args[1].Type != objects.TypeText {
		return nil, substraterr.New(substraterr.KindTypeMismatch, "state.write_i64 wants (i64, text)")
	}
	g.Write(ns, args[1].Text, args[0])
	return []objects.Value{objects.Unit()}, nil
}

func stateReadText(args []objects.Value, ns string, g *token.GlobalStore) ([]objects.Value, error) {
	key, err := oneText(args)
	if err != nil {
		return nil, err
	}
	v, err := g.Read(ns, key)
	if substraterr.Is(err, substraterr.KindGlobalNotFound) {
		return []objects.Value{objects.Text("")}, nil
	}
	if err != nil {
		return nil, err
	}
	if v.Type != objects.TypeText {
		return nil, substraterr.Newf(substraterr.KindTypeMismatch, "global %q/%q is %s, not text", ns, key, v.Type)
	}
	return []objects.Value{v}, nil
}

func stateWriteText(args []objects.Value, ns string, g *token.GlobalStore) ([]objects.Value, error) {
	if len(args) != 2 || args[0].Type != objects.TypeText || args[1].Type != objects.TypeText {
		return nil, substraterr.New(substraterr.KindTypeMismatch, "state.write_text wants (text, text)")
	}
	g.Write(ns, args[1].Text, args[0])
	return []objects.Value{objects.Unit()}, nil
}

func twoI64(args []objects.Value) (int64, int64, error) {
	if len(args) != 2 || args[0].Type != objects.TypeI64 || args[1].Type != objects.TypeI64 {
		return 0, 0, substraterr.New(substraterr.KindTypeMismatch, "want (i64, i64)")
	}
	return args[0].I64, args[1].I64, nil
}

func oneText(args []objects.Value) (string, error) {
	if len(args) != 1 || args[0].Type != objects.TypeText {
		return "", substraterr.New(substraterr.KindTypeMismatch, "want (text)")
	}
	return args[0].Text, nil
}

func boolI64(b bool) objects.Value {
	if b {
		return objects.I64(1)
	}
	return objects.I64(0)
}
