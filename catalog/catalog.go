// Package catalog implements the YAML catalog importer (SPEC_FULL.md §4.6): a
// tagged YAML document describing effects, primitives, words, overloaded
// words, guards, and state snapshots, compiled entirely through the builder's
// public operation set and the store's Put/NamePut - the importer never
// touches the token package's runtime GlobalStore directly, keeping its
// contract with the core to "builder + store" exactly as spec.md states.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/opal-lang/substrate/builder"
	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/internal/substraterr"
	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
)

// shapeSchema is the minimal structural contract every catalog document must
// satisfy before entry-by-entry compilation begins: a namespace name plus a
// mapping of entries. Per-tag shape (params/results/stack/...) is checked as
// each entry is decoded, where the concrete Go type gives a much better error
// than a generic schema violation would.
const shapeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["namespace", "entries"],
  "properties": {
    "namespace": {"type": "string", "minLength": 1},
    "entries": {"type": "object"}
  }
}`

// Result reports what an Import call produced: the namespace it populated and
// any synthesized snapshot-initializer words, which the caller (the CLI's
// `catalog import` command) is responsible for running once through the
// interpreter - the importer itself never writes to the runtime global store.
type Result struct {
	Namespace string
	InitWords []cid.CID
}

// Failure pins a compilation error to the document location that caused it.
type Failure struct {
	Line int
	Tag  string
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("line %d (%s): %v", f.Line, f.Tag, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// rawDocument mirrors the top-level "namespace → entries" shape for the
// structural pre-check; entries are re-walked from the raw yaml.Node to
// preserve declaration order and per-node line numbers for Failure.
type rawDocument struct {
	Namespace string    `yaml:"namespace"`
	Entries   yaml.Node `yaml:"entries"`
}

// Import parses data as a catalog document and compiles every entry into st,
// returning the entries' namespace and any snapshot initializers to run.
func Import(st *store.Store, data []byte) (*Result, error) {
	var doc rawDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, substraterr.Wrap(substraterr.KindInvalidCanonicalForm, "invalid catalog YAML", err)
	}
	if err := validateShape(data); err != nil {
		return nil, err
	}

	imp := &importer{st: st, ns: doc.Namespace, emasks: make(map[string]map[objects.EffectDomain]objects.Permission)}
	if err := imp.walkEntries(&doc.Entries); err != nil {
		return nil, err
	}
	return &Result{Namespace: doc.Namespace, InitWords: imp.initWords}, nil
}

func validateShape(data []byte) error {
	var generic interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return substraterr.Wrap(substraterr.KindInvalidCanonicalForm, "invalid catalog YAML", err)
	}
	normalized := normalizeForJSON(generic)
	asJSON, err := json.Marshal(normalized)
	if err != nil {
		return substraterr.Wrap(substraterr.KindInvalidCanonicalForm, "catalog document not JSON-representable", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	const resourceURL = "mem://catalog-shape.json"
	if err := compiler.AddResource(resourceURL, strings.NewReader(shapeSchema)); err != nil {
		return substraterr.Wrap(substraterr.KindInvalidCanonicalForm, "internal schema load failure", err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return substraterr.Wrap(substraterr.KindInvalidCanonicalForm, "internal schema compile failure", err)
	}

	var parsed interface{}
	if err := json.Unmarshal(asJSON, &parsed); err != nil {
		return substraterr.Wrap(substraterr.KindInvalidCanonicalForm, "catalog document not JSON-representable", err)
	}
	if err := schema.Validate(parsed); err != nil {
		return substraterr.Wrap(substraterr.KindInvalidCanonicalForm, "catalog document fails structural schema", err)
	}
	return nil
}

// normalizeForJSON rewrites YAML's map[interface{}]interface{} nodes into
// map[string]interface{} so the result round-trips through encoding/json.
func normalizeForJSON(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalizeForJSON(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalizeForJSON(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalizeForJSON(val)
		}
		return out
	default:
		return v
	}
}

// importer walks one catalog document's entries in declaration order,
// resolving each against the growing name index as it goes.
type importer struct {
	st            *store.Store
	ns            string
	emasks        map[string]map[objects.EffectDomain]objects.Permission // prim name -> declared permission
	initWords     []cid.CID
	currentParams []objects.TypeAtom // the word body currently being compiled, for !arg type lookup
}

func (imp *importer) walkEntries(entries *yaml.Node) error {
	if entries.Kind != yaml.MappingNode {
		return substraterr.New(substraterr.KindInvalidCanonicalForm, "catalog entries must be a mapping")
	}
	for i := 0; i+1 < len(entries.Content); i += 2 {
		keyNode, valNode := entries.Content[i], entries.Content[i+1]
		name := keyNode.Value
		if err := imp.importEntry(name, valNode); err != nil {
			return &Failure{Line: valNode.Line, Tag: valNode.Tag, Err: err}
		}
	}
	return nil
}

func (imp *importer) importEntry(name string, n *yaml.Node) error {
	switch n.Tag {
	case "!effect":
		return imp.importEffect(name, n)
	case "!prim":
		return imp.importPrim(name, n)
	case "!word":
		_, err := imp.importWord(name, n, "")
		return err
	case "!overloads":
		return imp.importOverloads(name, n)
	case "!snapshot":
		return imp.importSnapshot(name, n)
	default:
		return substraterr.Newf(substraterr.KindInvalidCanonicalForm, "unknown catalog entry tag %q", n.Tag)
	}
}
