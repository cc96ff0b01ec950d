// Chained layered hash table tests: a single chain's fan-out, update-
// in-place, chain growth, and composing a CLT with an LT to build and
// reopen an inverted index.
package lattice

import "testing"

func newTestCLT(t *testing.T, f *File, name string, params CLTParams) *CLT {
	t.Helper()
	clt, err := f.CreateCLT(name, params)
	if err != nil {
		t.Fatalf("CreateCLT: %v", err)
	}
	return clt
}

func TestCLTFanOutIntoOneTable(t *testing.T) {
	f := openTestFile(t)
	clt := newTestCLT(t, f, "postings", CLTParams{
		Fields:          []Field{{Name: "node", Kind: KindString, Len: 16}},
		KeyField:        "node",
		GrowthFactor:    2,
		LoadFactor:      0.25,
		BloomBitsPerKey: 25,
		BloomSeed:       12,
	})
	mustBeginTx(t, f)

	table, err := clt.NewTable()
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	const n = 1000
	for i := 0; i < n; i++ {
		table, err = clt.Insert(table, map[string]any{"node": keyString(i)})
		if err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	seen := make(map[string]bool)
	for row := range clt.Iterate(table) {
		seen[row["node"].(string)] = true
	}
	if len(seen) != n {
		t.Fatalf("iterated %d distinct nodes, want %d", len(seen), n)
	}
	for i := 0; i < n; i++ {
		if !seen[keyString(i)] {
			t.Errorf("missing node %q", keyString(i))
		}
	}

	row, err := clt.Lookup(table, keyString(500))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if row["node"] != keyString(500) {
		t.Errorf("got %+v", row)
	}
}

func TestCLTInsertUpdatesInPlace(t *testing.T) {
	f := openTestFile(t)
	clt := newTestCLT(t, f, "kv", CLTParams{
		Fields:   []Field{{Name: "k", Kind: KindString, Len: 16}, {Name: "v", Kind: KindUint32}},
		KeyField: "k",
	})
	mustBeginTx(t, f)

	table, err := clt.NewTable()
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	table, err = clt.Insert(table, map[string]any{"k": "a", "v": uint32(1)})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	table2, err := clt.Insert(table, map[string]any{"k": "a", "v": uint32(2)})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if table2 != table {
		t.Errorf("updating an existing key should not grow the chain: got table_id %d, want %d", table2, table)
	}

	row, err := clt.Lookup(table, "a")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if row["v"] != uint32(2) {
		t.Errorf("got %+v, want v=2", row)
	}
}

func TestCLTLookupMissingKey(t *testing.T) {
	f := openTestFile(t)
	clt := newTestCLT(t, f, "kv", CLTParams{
		Fields:   []Field{{Name: "k", Kind: KindString, Len: 16}},
		KeyField: "k",
	})
	mustBeginTx(t, f)

	table, err := clt.NewTable()
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	if _, err := clt.Lookup(table, "nope"); err != ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestCLTChainGrowthStrictlyIncreasesPTowardHead(t *testing.T) {
	f := openTestFile(t)
	clt := newTestCLT(t, f, "postings", CLTParams{
		Fields:          []Field{{Name: "node", Kind: KindString, Len: 16}},
		KeyField:        "node",
		GrowthFactor:    2,
		LoadFactor:      0.25,
		BloomBitsPerKey: 25,
	})
	mustBeginTx(t, f)

	table, err := clt.NewTable()
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	for i := 0; i < 200; i++ {
		table, err = clt.Insert(table, map[string]any{"node": keyString(i)})
		if err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	lastP := -1
	blocks := 0
	cur := table
	for cur != 0 {
		meta, err := clt.metaAt(cur)
		if err != nil {
			t.Fatalf("metaAt: %v", err)
		}
		if lastP != -1 && meta.P >= lastP {
			t.Errorf("walking head to tail, p should strictly decrease: got %d then %d", lastP, meta.P)
		}
		lastP = meta.P
		blocks++
		cur = meta.Prev
	}
	if blocks < 2 {
		t.Errorf("expected chain to have grown past one block for 200 inserts, got %d", blocks)
	}
}

// TestCLTReopenInvertedIndex builds a token -> posting-list index:
// an LT maps each token to the table_id of its own CLT chain, and
// each chain holds the document ids that contain that token. After
// reopening read-only, both the token set and each token's postings
// must be recoverable purely from what was persisted.
func TestCLTReopenInvertedIndex(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/inverted.lattice"

	f, err := Open(path, ModeReadWrite, Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	tokens, err := f.CreateLT("tokens", LTParams{KeyLen: 16})
	if err != nil {
		t.Fatalf("CreateLT: %v", err)
	}
	postings, err := f.CreateCLT("postings", CLTParams{
		Fields:   []Field{{Name: "node", Kind: KindString, Len: 16}},
		KeyField: "node",
	})
	if err != nil {
		t.Fatalf("CreateCLT: %v", err)
	}
	if err := f.BeginTransaction(); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}

	docs := map[string][]string{
		"go":   {"0", "2", "4"},
		"rust": {"1", "3"},
	}
	for token, ids := range docs {
		table, err := postings.NewTable()
		if err != nil {
			t.Fatalf("NewTable: %v", err)
		}
		for _, id := range ids {
			table, err = postings.Insert(table, map[string]any{"node": id})
			if err != nil {
				t.Fatalf("Insert: %v", err)
			}
		}
		if err := tokens.Insert(token, uint64(table)); err != nil {
			t.Fatalf("tokens.Insert: %v", err)
		}
	}
	f.EndTransaction()
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, ModeReadOnly, Config{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	tokens2, ok := reopened.LT("tokens")
	if !ok {
		t.Fatal("LT 'tokens' missing after reopen")
	}
	postings2, ok := reopened.CLT("postings")
	if !ok {
		t.Fatal("CLT 'postings' missing after reopen")
	}

	found := make(map[string]bool)
	for token, table := range tokens2.Iterate() {
		found[token] = true
		want := docs[token]
		got := make(map[string]bool)
		for row := range postings2.Iterate(int64(table)) {
			got[row["node"].(string)] = true
		}
		if len(got) != len(want) {
			t.Errorf("token %q: got %d doc ids, want %d", token, len(got), len(want))
		}
		for _, id := range want {
			if !got[id] {
				t.Errorf("token %q: missing doc id %q", token, id)
			}
		}
	}
	for token := range docs {
		if !found[token] {
			t.Errorf("token %q missing after reopen", token)
		}
	}
}
