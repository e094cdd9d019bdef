// Package store is the object store facade: a content-addressed blob map keyed
// by CID, a mutable name index, and a reserved (unpopulated) compiled-code
// cache table, all backed by a single embedded SQLite file (SPEC_FULL.md §6).
// The facade hides SQL entirely from callers; nothing outside this package
// constructs a query.
package store

import (
	"database/sql"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
	_ "modernc.org/sqlite"

	"github.com/opal-lang/substrate/cid"
	"github.com/opal-lang/substrate/internal/invariant"
	"github.com/opal-lang/substrate/internal/substraterr"
)

const schema = `
CREATE TABLE IF NOT EXISTS object (
	cid  BLOB PRIMARY KEY,
	kind TEXT NOT NULL,
	bytes BLOB NOT NULL
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS object_kind_idx ON object(kind);

CREATE TABLE IF NOT EXISTS name_index (
	scope TEXT NOT NULL,
	name  TEXT NOT NULL,
	cid   BLOB NOT NULL,
	PRIMARY KEY (scope, name)
);
CREATE INDEX IF NOT EXISTS name_index_scope_cid_idx ON name_index(scope, cid);

CREATE TABLE IF NOT EXISTS code_cache (
	subgraph_cid BLOB NOT NULL,
	arch TEXT NOT NULL,
	abi  TEXT NOT NULL,
	flags INTEGER NOT NULL,
	blob BLOB NOT NULL,
	PRIMARY KEY (subgraph_cid, arch, abi, flags)
);
`

// Scope enumerates the name index's valid scope values.
type Scope string

const (
	ScopeNamespace Scope = "namespace"
	ScopeWord      Scope = "word"
	ScopePrim      Scope = "prim"
	ScopeIface     Scope = "iface"
	ScopeGlobal    Scope = "global"
	ScopeEffect    Scope = "effect"
	ScopeGuard     Scope = "guard"
	ScopeAgent     Scope = "agent"
	ScopeRule      Scope = "rule"
)

// Store is a single-writer embedded SQL object store. Connections are
// short-lived per command, matching spec.md §4.2's concurrency note.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite file at path and ensures schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, substraterr.Wrap(substraterr.KindStoreIoError, "opening store", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, substraterr.Wrap(substraterr.KindStoreIoError, "applying schema", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put hashes bytes conceptually via the caller (the CID is supplied already
// computed, since every object kind knows how to hash itself in the objects
// package) and inserts it if absent. Insertion is idempotent: re-putting the
// same CID is a no-op, never an error, since content addressing guarantees the
// bytes are identical.
func (s *Store) Put(c cid.CID, kind string, bytes []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO object (cid, kind, bytes) VALUES (?, ?, ?) ON CONFLICT(cid) DO NOTHING`,
		c.Bytes(), kind, bytes,
	)
	if err != nil {
		return substraterr.Wrap(substraterr.KindStoreIoError, "put object", err)
	}
	return nil
}

// Get fetches an object's kind and bytes, failing with KindNotFound if absent.
func (s *Store) Get(c cid.CID) (kind string, bytes []byte, err error) {
	row := s.db.QueryRow(`SELECT kind, bytes FROM object WHERE cid = ?`, c.Bytes())
	if err := row.Scan(&kind, &bytes); err != nil {
		if err == sql.ErrNoRows {
			return "", nil, substraterr.Newf(substraterr.KindNotFound, "no object with cid %s", c)
		}
		return "", nil, substraterr.Wrap(substraterr.KindStoreIoError, "get object", err)
	}
	return kind, bytes, nil
}

// LoadAll returns every stored object of the given kind.
func (s *Store) LoadAll(kind string) ([]ObjectRow, error) {
	rows, err := s.db.Query(`SELECT cid, bytes FROM object WHERE kind = ?`, kind)
	if err != nil {
		return nil, substraterr.Wrap(substraterr.KindStoreIoError, "load all", err)
	}
	defer rows.Close()

	var out []ObjectRow
	for rows.Next() {
		var cidBytes, bytes []byte
		if err := rows.Scan(&cidBytes, &bytes); err != nil {
			return nil, substraterr.Wrap(substraterr.KindStoreIoError, "scan object row", err)
		}
		invariant.Precondition(len(cidBytes) == cid.Size, "object row cid has wrong length")
		out = append(out, ObjectRow{CID: cid.FromBytes(cidBytes), Bytes: bytes})
	}
	return out, rows.Err()
}

// ObjectRow is one row returned by LoadAll.
type ObjectRow struct {
	CID   cid.CID
	Bytes []byte
}

// NamePut binds (scope, name) to cid, overwriting any prior binding.
func (s *Store) NamePut(scope Scope, name string, c cid.CID) error {
	_, err := s.db.Exec(
		`INSERT INTO name_index (scope, name, cid) VALUES (?, ?, ?)
		 ON CONFLICT(scope, name) DO UPDATE SET cid = excluded.cid`,
		string(scope), name, c.Bytes(),
	)
	if err != nil {
		return substraterr.Wrap(substraterr.KindStoreIoError, "name put", err)
	}
	return nil
}

// NameGet resolves (scope, name) to a CID. On a miss it raises UnknownSymbol,
// attaching up to three fuzzy-matched existing names in that scope as a
// suggestion list to help a CLI user spot a typo.
func (s *Store) NameGet(scope Scope, name string) (cid.CID, error) {
	row := s.db.QueryRow(`SELECT cid FROM name_index WHERE scope = ? AND name = ?`, string(scope), name)
	var cidBytes []byte
	if err := row.Scan(&cidBytes); err != nil {
		if err != sql.ErrNoRows {
			return cid.CID{}, substraterr.Wrap(substraterr.KindStoreIoError, "name get", err)
		}
		return cid.CID{}, s.unknownSymbolError(scope, name)
	}
	return cid.FromBytes(cidBytes), nil
}

func (s *Store) unknownSymbolError(scope Scope, name string) error {
	names, err := s.NameList(scope, "")
	if err != nil || len(names) == 0 {
		return substraterr.Newf(substraterr.KindUnknownSymbol, "no %s named %q", scope, name)
	}
	ranked := fuzzy.RankFindFold(name, names)
	sort.Sort(ranked)
	suggestions := make([]string, 0, 3)
	for i := 0; i < len(ranked) && i < 3; i++ {
		suggestions = append(suggestions, ranked[i].Target)
	}
	e := substraterr.Newf(substraterr.KindUnknownSymbol, "no %s named %q", scope, name)
	if len(suggestions) > 0 {
		e = e.With("suggestions", suggestions)
	}
	return e
}

// NameList returns all names in scope with the given prefix, sorted.
func (s *Store) NameList(scope Scope, prefix string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT name FROM name_index WHERE scope = ? AND name LIKE ? ORDER BY name`,
		string(scope), prefix+"%",
	)
	if err != nil {
		return nil, substraterr.Wrap(substraterr.KindStoreIoError, "name list", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, substraterr.Wrap(substraterr.KindStoreIoError, "scan name row", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// AmbiguousNames reports whether more than one CID is bound in scope to names
// sharing the given exact lookup key after case-insensitive folding.
func (s *Store) AmbiguousNames(scope Scope, name string) (bool, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT cid FROM name_index WHERE scope = ? AND LOWER(name) = LOWER(?)`,
		string(scope), name,
	)
	if err != nil {
		return false, substraterr.Wrap(substraterr.KindStoreIoError, "ambiguous check", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}
	return count > 1, rows.Err()
}
