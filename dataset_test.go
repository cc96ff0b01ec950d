package lattice

import (
	"errors"
	"testing"
)

func mustBeginTx(t *testing.T, f *File) {
	t.Helper()
	if err := f.BeginTransaction(); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
}

func TestDatasetAppendGetDelete(t *testing.T) {
	f := openTestFile(t)
	ds, err := f.CreateDataset("people", []Field{
		{Name: "name", Kind: KindString, Len: 16},
		{Name: "age", Kind: KindUint8},
	})
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	mustBeginTx(t, f)

	off, err := ds.Append(map[string]any{"name": "ada", "age": uint8(30)})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	exists, err := ds.Exists(off)
	if err != nil || !exists {
		t.Fatalf("Exists: %v, %v", exists, err)
	}

	row, err := ds.Get(off)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row["name"] != "ada" || row["age"] != uint8(30) {
		t.Errorf("got %+v", row)
	}

	if err := ds.Delete(off); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := ds.Get(off); err != ErrNotFound {
		t.Errorf("Get after delete: got %v, want ErrNotFound", err)
	}
	exists, err = ds.Exists(off)
	if err != nil || exists {
		t.Errorf("Exists after delete: %v, %v", exists, err)
	}
}

func TestDatasetNewBlockRowsStartNeverWritten(t *testing.T) {
	f := openTestFile(t)
	ds, err := f.CreateDataset("slots", []Field{{Name: "v", Kind: KindUint32}})
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	mustBeginTx(t, f)

	block, err := ds.NewBlock(4)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	status, err := ds.Status(block + int64(ds.rowSize))
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != 0 {
		t.Errorf("got status %d, want 0 (never written)", status)
	}
}

func TestDatasetSetValueAndGetValue(t *testing.T) {
	f := openTestFile(t)
	ds, err := f.CreateDataset("counters", []Field{
		{Name: "a", Kind: KindUint32},
		{Name: "b", Kind: KindUint32},
	})
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	mustBeginTx(t, f)

	off, err := ds.Append(map[string]any{"a": uint32(1), "b": uint32(2)})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := ds.SetValue(off, "b", uint32(99)); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	v, err := ds.GetValue(off, "b")
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if v != uint32(99) {
		t.Errorf("got %v, want 99", v)
	}
	if _, err := ds.GetValue(off, "nope"); !errors.Is(err, ErrInvalidField) {
		t.Errorf("got %v, want ErrInvalidField", err)
	}
}

func TestDatasetSliceSkipsNonLiveRows(t *testing.T) {
	f := openTestFile(t)
	ds, err := f.CreateDataset("scan", []Field{{Name: "v", Kind: KindUint32}})
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	mustBeginTx(t, f)

	block, err := ds.NewBlock(3)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	if err := ds.Set(block, map[string]any{"v": uint32(1)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// row 1 left never-written
	if err := ds.Set(block+2*int64(ds.rowSize), map[string]any{"v": uint32(3)}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	rows, err := ds.Slice(block, 3)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0]["v"] != uint32(1) || rows[1]["v"] != uint32(3) {
		t.Errorf("got %+v", rows)
	}
}

func TestDatasetBlobFieldRoundTrip(t *testing.T) {
	f := openTestFile(t)
	ds, err := f.CreateDataset("docs", []Field{
		{Name: "title", Kind: KindString, Len: 16},
		{Name: "body", Kind: KindBlob},
	})
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	mustBeginTx(t, f)

	// Append/Get auto-resolve a blob field: the caller passes the
	// actual value, not a handle, and gets the decoded value back.
	off, err := ds.Append(map[string]any{
		"title": "note",
		"body":  map[string]any{"text": "hello world"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	row, err := ds.Get(off)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, ok := row["body"].(map[string]any)
	if !ok || body["text"] != "hello world" {
		t.Errorf("got %+v", row)
	}

	// Set can also re-point an existing row's blob field to a new
	// value in the same way.
	if err := ds.Set(off, map[string]any{"title": "note", "body": map[string]any{"text": "revised"}}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	row, err = ds.Get(off)
	if err != nil {
		t.Fatalf("Get after Set: %v", err)
	}
	if row["body"].(map[string]any)["text"] != "revised" {
		t.Errorf("got %+v", row)
	}
}

func TestDatasetBlobFieldAbsentIsDropped(t *testing.T) {
	f := openTestFile(t)
	ds, err := f.CreateDataset("docs", []Field{
		{Name: "title", Kind: KindString, Len: 16},
		{Name: "body", Kind: KindBlob},
	})
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	mustBeginTx(t, f)

	off, err := ds.Append(map[string]any{"title": "empty"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	row, err := ds.Get(off)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, present := row["body"]; present {
		t.Errorf("got body = %v, want field dropped (handle 0)", row["body"])
	}
}

func TestDatasetSetBlobAndGetBlobDirect(t *testing.T) {
	f := openTestFile(t)
	ds, err := f.CreateDataset("docs", []Field{
		{Name: "title", Kind: KindString, Len: 16},
		{Name: "body", Kind: KindBlob},
	})
	if err != nil {
		t.Fatalf("CreateDataset: %v", err)
	}
	mustBeginTx(t, f)

	off, err := ds.Append(map[string]any{"title": "note"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := ds.SetBlob(off, "body", map[string]any{"text": "hello world"}); err != nil {
		t.Fatalf("SetBlob: %v", err)
	}

	var out map[string]any
	if err := ds.GetBlob(off, "body", &out); err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if out["text"] != "hello world" {
		t.Errorf("got %+v", out)
	}
}
