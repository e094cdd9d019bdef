package cli

import (
	"strings"

	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/internal/substraterr"
	"github.com/opal-lang/substrate/objects"
	"github.com/opal-lang/substrate/store"
)

// splitCSV splits a comma-separated flag value, returning nil for an empty
// string rather than a single empty element.
func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func typeAtomsCSV(s string) []objects.TypeAtom {
	names := splitCSV(s)
	out := make([]objects.TypeAtom, len(names))
	for i, n := range names {
		out[i] = objects.TypeAtom(n)
	}
	return out
}

// resolveEffectNames looks up each effect name in the store, returning the
// CID list (sorted, per the canonical Effects invariant) and the matching
// domain list in the same order as names.
func resolveEffectNames(st *store.Store, names []string) ([]cid.CID, []objects.EffectDomain, error) {
	cids := make([]cid.CID, len(names))
	domains := make([]objects.EffectDomain, len(names))
	for i, n := range names {
		c, err := st.NameGet(store.ScopeEffect, n)
		if err != nil {
			return nil, nil, err
		}
		cids[i] = c
		domains[i] = objects.EffectDomain(n)
	}
	return objects.SortEffects(cids), domains, nil
}

// parsePort parses a "cid:port" reference used by node subcommands to name an
// existing node's output as an input.
func parsePort(s string) (objects.Port, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return objects.Port{}, substraterr.Newf(substraterr.KindInvalidCanonicalForm, "malformed port reference %q, want cid:port", s)
	}
	c, err := cid.Parse(parts[0])
	if err != nil {
		return objects.Port{}, substraterr.Wrapf(substraterr.KindInvalidCanonicalForm, err, "parsing cid in port reference %q", s)
	}
	n, err := parseIntStrict(parts[1])
	if err != nil {
		return objects.Port{}, substraterr.Wrapf(substraterr.KindInvalidCanonicalForm, err, "parsing port index in %q", s)
	}
	return objects.Port{Producer: c, Port: n}, nil
}

func parseIntStrict(s string) (int, error) {
	var n int
	var neg bool
	if len(s) == 0 {
		return 0, substraterr.New(substraterr.KindInvalidCanonicalForm, "empty integer")
	}
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, substraterr.Newf(substraterr.KindInvalidCanonicalForm, "not an integer: %q", s)
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}
