package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opal-lang/substrate/builder"
	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/internal/substraterr"
	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
)

type effectDecl struct {
	Doc string `yaml:"doc"`
}

type primDecl struct {
	Params  []string          `yaml:"params"`
	Results []string          `yaml:"results"`
	Effects []string          `yaml:"effects"`
	Emask   map[string]string `yaml:"emask"`
}

type wordDecl struct {
	Params  []string    `yaml:"params"`
	Results []string    `yaml:"results"`
	Stack   []yaml.Node `yaml:"stack"`
}

type overloadDecl struct {
	wordDecl `yaml:",inline"`
	Guard    string `yaml:"guard"`
}

func (imp *importer) importEffect(name string, n *yaml.Node) error {
	var d effectDecl
	if err := n.Decode(&d); err != nil {
		return err
	}
	eff := objects.Effect{Domain: objects.EffectDomain(name), Doc: d.Doc}
	c, bytes, err := eff.CID()
	if err != nil {
		return err
	}
	if err := imp.st.Put(c, "effect", bytes); err != nil {
		return err
	}
	return imp.st.NamePut(store.ScopeEffect, name, c)
}

func typeAtoms(names []string) []objects.TypeAtom {
	out := make([]objects.TypeAtom, len(names))
	for i, n := range names {
		out[i] = objects.TypeAtom(n)
	}
	return out
}

// overloadSuffix derives an overload candidate's registered name suffix from
// its signature, e.g. "#i64,i64->i64" (spec.md §4.6 / SPEC_FULL.md §4.6's
// "<base>#<params->results>" derived-name form), so two candidates sharing a
// signature collide loudly on NamePut rather than silently shadowing by
// declaration index.
func overloadSuffix(params, results []string) string {
	return "#" + strings.Join(params, ",") + "->" + strings.Join(results, ",")
}

func (imp *importer) resolveEffects(names []string) ([]cid.CID, []objects.EffectDomain, error) {
	cids := make([]cid.CID, len(names))
	domains := make([]objects.EffectDomain, len(names))
	for i, n := range names {
		c, err := imp.st.NameGet(store.ScopeEffect, n)
		if err != nil {
			return nil, nil, err
		}
		cids[i] = c
		domains[i] = objects.EffectDomain(n)
	}
	return objects.SortEffects(cids), domains, nil
}

func parsePermission(s string) (objects.Permission, error) {
	switch s {
	case "read", "":
		return objects.PermRead, nil
	case "write":
		return objects.PermWrite, nil
	default:
		return 0, substraterr.Newf(substraterr.KindInvalidCanonicalForm, "unknown permission %q", s)
	}
}

func (imp *importer) importPrim(name string, n *yaml.Node) error {
	var d primDecl
	if err := n.Decode(&d); err != nil {
		return err
	}
	effCIDs, domains, err := imp.resolveEffects(d.Effects)
	if err != nil {
		return err
	}
	perms := make(map[objects.EffectDomain]objects.Permission, len(domains))
	for _, dom := range domains {
		perm, err := parsePermission(d.Emask[string(dom)])
		if err != nil {
			return err
		}
		perms[dom] = perm
	}

	p := objects.Prim{Params: typeAtoms(d.Params), Results: typeAtoms(d.Results), Effects: effCIDs}
	c, bytes, err := p.CID()
	if err != nil {
		return err
	}
	if err := imp.st.Put(c, "prim", bytes); err != nil {
		return err
	}
	if err := imp.st.NamePut(store.ScopePrim, name, c); err != nil {
		return err
	}
	imp.emasks[name] = perms
	return nil
}

// importWord compiles one !word entry under name (or under a derived name
// for overload candidates, when derivedSuffix is non-empty) and registers it.
func (imp *importer) importWord(name string, n *yaml.Node, derivedSuffix string) (cid.CID, error) {
	var d wordDecl
	if err := n.Decode(&d); err != nil {
		return cid.CID{}, err
	}
	return imp.compileWord(name, derivedSuffix, d)
}

func (imp *importer) compileWord(name, derivedSuffix string, d wordDecl) (cid.CID, error) {
	params := typeAtoms(d.Params)
	results := typeAtoms(d.Results)
	imp.currentParams = params

	var effCIDs []cid.CID
	for _, stmt := range d.Stack {
		if stmt.Tag == "!prim" {
			primCID, err := imp.st.NameGet(store.ScopePrim, stmt.Value)
			if err == nil {
				prim, err := objects.DecodePrim(mustGet(imp.st, primCID))
				if err == nil {
					effCIDs = append(effCIDs, prim.Effects...)
				}
			}
		} else if stmt.Tag == "!call" {
			wordCID, err := imp.st.NameGet(store.ScopeWord, stmt.Value)
			if err == nil {
				w, err := objects.DecodeWord(mustGet(imp.st, wordCID))
				if err == nil {
					effCIDs = append(effCIDs, w.Effects...)
				}
			}
		}
	}

	b, err := builder.New(imp.st, builder.ModeDebug, objects.SortEffects(dedupCIDs(effCIDs)))
	if err != nil {
		return cid.CID{}, err
	}
	for _, stmt := range d.Stack {
		if err := imp.applyStackOp(b, &stmt); err != nil {
			return cid.CID{}, err
		}
	}
	wordCID, err := b.Finish(params, results)
	if err != nil {
		return cid.CID{}, err
	}

	fullName := name + derivedSuffix
	if err := imp.st.NamePut(store.ScopeWord, fullName, wordCID); err != nil {
		return cid.CID{}, err
	}
	return wordCID, nil
}

func mustGet(st *store.Store, c cid.CID) []byte {
	_, bytes, err := st.Get(c)
	if err != nil {
		return nil
	}
	return bytes
}

func dedupCIDs(cs []cid.CID) []cid.CID {
	seen := make(map[cid.CID]bool, len(cs))
	out := make([]cid.CID, 0, len(cs))
	for _, c := range cs {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func (imp *importer) applyStackOp(b *builder.Builder, n *yaml.Node) error {
	switch n.Tag {
	case "!i64":
		v, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return err
		}
		return b.Lit(objects.TypeI64, objects.I64(v))
	case "!f64":
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return err
		}
		return b.Lit(objects.TypeF64, objects.F64(v))
	case "!text":
		return b.Lit(objects.TypeText, objects.Text(n.Value))
	case "!unit":
		return b.Lit(objects.TypeUnit, objects.Unit())
	case "!quote":
		wordCID, err := imp.st.NameGet(store.ScopeWord, n.Value)
		if err != nil {
			return err
		}
		return b.Quote(wordCID)
	case "!arg":
		idx, err := strconv.Atoi(n.Value)
		if err != nil {
			return err
		}
		t, err := imp.argType(idx)
		if err != nil {
			return err
		}
		return b.PushArg(idx, t)
	case "!dup":
		return b.Dup()
	case "!swap":
		return b.Swap()
	case "!over":
		return b.Over()
	case "!drop":
		return b.Drop()
	case "!prim":
		primCID, err := imp.st.NameGet(store.ScopePrim, n.Value)
		if err != nil {
			return err
		}
		return b.Prim(primCID, imp.emasks[n.Value])
	case "!call":
		wordCID, err := imp.st.NameGet(store.ScopeWord, n.Value)
		if err != nil {
			return err
		}
		return b.Call(wordCID, imp.callPerms(wordCID))
	case "!if":
		var d struct {
			True  string   `yaml:"true"`
			False string   `yaml:"false"`
			Outs  []string `yaml:"outs"`
		}
		if err := n.Decode(&d); err != nil {
			return err
		}
		trueCID, err := imp.st.NameGet(store.ScopeWord, d.True)
		if err != nil {
			return err
		}
		falseCID, err := imp.st.NameGet(store.ScopeWord, d.False)
		if err != nil {
			return err
		}
		return b.If(trueCID, falseCID, typeAtoms(d.Outs))
	default:
		return substraterr.Newf(substraterr.KindInvalidCanonicalForm, "unknown stack op tag %q", n.Tag)
	}
}

// argType resolves a plain !arg index against the word currently being
// compiled's own Params, tracked in imp.currentParams for the duration of
// compileWord.
func (imp *importer) argType(idx int) (objects.TypeAtom, error) {
	if idx < 0 || idx >= len(imp.currentParams) {
		return "", substraterr.Newf(substraterr.KindInvalidCanonicalForm, "arg index %d out of range", idx)
	}
	return imp.currentParams[idx], nil
}

// callPerms derives the permission a !call stack op requests for each of the
// callee word's declared effect domains. Unlike !prim, !word carries no emask
// field in this schema (spec.md §6 lists emask only on !prim), so a call site
// conservatively requests write access for every domain the callee declares -
// sufficient to thread a write token through regardless of what the callee
// does internally, and documented as an Open Question resolution.
func (imp *importer) callPerms(wordCID cid.CID) map[objects.EffectDomain]objects.Permission {
	_, bytes, err := imp.st.Get(wordCID)
	if err != nil {
		return nil
	}
	w, err := objects.DecodeWord(bytes)
	if err != nil {
		return nil
	}
	perms := make(map[objects.EffectDomain]objects.Permission, len(w.Effects))
	for _, e := range w.Effects {
		_, bytes, err := imp.st.Get(e)
		if err != nil {
			continue
		}
		eff, err := objects.DecodeEffect(bytes, "")
		if err != nil {
			continue
		}
		perms[eff.Domain] = objects.PermWrite
	}
	return perms
}

func (imp *importer) importOverloads(name string, n *yaml.Node) error {
	if n.Kind != yaml.SequenceNode {
		return substraterr.New(substraterr.KindInvalidCanonicalForm, "!overloads must be a sequence")
	}
	var cases []objects.DispatchCase
	var unionParams []objects.TypeAtom
	var unionResults []objects.TypeAtom

	for i, item := range n.Content {
		var d overloadDecl
		if err := item.Decode(&d); err != nil {
			return err
		}
		suffix := overloadSuffix(d.Params, d.Results)
		candidateCID, err := imp.compileWord(name, suffix, d.wordDecl)
		if err != nil {
			return err
		}
		if d.Guard == "" {
			return substraterr.Newf(substraterr.KindInvalidCanonicalForm, "overload %d of %q has no guard", i, name)
		}
		guardCID, err := imp.st.NameGet(store.ScopeWord, d.Guard)
		if err != nil {
			return err
		}
		cases = append(cases, objects.DispatchCase{
			Guard:     guardCID,
			Candidate: candidateCID,
			Params:    typeAtoms(d.Params),
		})
		if len(unionParams) == 0 {
			unionParams = typeAtoms(d.Params)
			unionResults = typeAtoms(d.Results)
		}
	}

	// The dispatch wrapper itself declares no effects: candidates seed their
	// own token pools when compiled (compileWord infers each candidate's
	// effects from the prims/calls in its own body), so the union word only
	// needs to route, not to hold a token across the routing decision.
	b, err := builder.New(imp.st, builder.ModeDebug, nil)
	if err != nil {
		return err
	}
	imp.currentParams = unionParams
	for i := range unionParams {
		if err := b.PushArg(i, unionParams[i]); err != nil {
			return err
		}
	}
	if err := b.Dispatch(unionParams, unionResults, nil, nil, cases, cid.CID{}); err != nil {
		return err
	}
	// Dispatch already popped the args it needs; Finish expects only its outs
	// on the stack.
	dispatchWord, err := b.Finish(unionParams, unionResults)
	if err != nil {
		return err
	}
	return imp.st.NamePut(store.ScopeWord, name, dispatchWord)
}

func (imp *importer) importSnapshot(name string, n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return substraterr.New(substraterr.KindInvalidCanonicalForm, "!snapshot must be a mapping")
	}
	stateEff, err := imp.st.NameGet(store.ScopeEffect, "state")
	if err != nil {
		return err
	}

	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valNode := n.Content[i], n.Content[i+1]
		key := keyNode.Value

		b, err := builder.New(imp.st, builder.ModeDebug, []cid.CID{stateEff})
		if err != nil {
			return err
		}
		primName, err := imp.pushTaggedLiteral(b, valNode)
		if err != nil {
			return err
		}
		if err := b.Lit(objects.TypeText, objects.Text(key)); err != nil {
			return err
		}
		writeCID, err := imp.st.NameGet(store.ScopePrim, primName)
		if err != nil {
			return err
		}
		perms := map[objects.EffectDomain]objects.Permission{objects.DomainState: objects.PermWrite}
		if err := b.Prim(writeCID, perms); err != nil {
			return err
		}
		initCID, err := b.Finish(nil, nil)
		if err != nil {
			return err
		}
		initName := fmt.Sprintf("%s.__init_%s", imp.ns, key)
		if err := imp.st.NamePut(store.ScopeWord, initName, initCID); err != nil {
			return err
		}
		imp.initWords = append(imp.initWords, initCID)
	}
	return nil
}

// pushTaggedLiteral emits the appropriate LIT node for a snapshot value and
// reports which state-write prim name applies to its type.
func (imp *importer) pushTaggedLiteral(b *builder.Builder, n *yaml.Node) (string, error) {
	switch n.Tag {
	case "!i64":
		v, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return "", err
		}
		return "state.write_i64", b.Lit(objects.TypeI64, objects.I64(v))
	case "!text":
		return "state.write_text", b.Lit(objects.TypeText, objects.Text(n.Value))
	default:
		return "", substraterr.Newf(substraterr.KindInvalidCanonicalForm, "unsupported snapshot value tag %q", n.Tag)
	}
}
