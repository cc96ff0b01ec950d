package lattice

import "testing"

func TestUint64ArrayGetSet(t *testing.T) {
	f := openTestFile(t)
	arr, err := f.CreateUint64Array("slots")
	if err != nil {
		t.Fatalf("CreateUint64Array: %v", err)
	}
	mustBeginTx(t, f)

	block, err := arr.NewBlock(8)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	for i := 0; i < 8; i++ {
		if v, err := arr.Get(block, i); err != nil || v != 0 {
			t.Fatalf("Get(%d) before write: %v, %v", i, v, err)
		}
	}
	if err := arr.Set(block, 3, 42); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := arr.Get(block, 3)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 42 {
		t.Errorf("got %d, want 42", v)
	}
}

func TestBoolArrayGetSlice(t *testing.T) {
	f := openTestFile(t)
	arr, err := f.CreateBoolArray("bits")
	if err != nil {
		t.Fatalf("CreateBoolArray: %v", err)
	}
	mustBeginTx(t, f)

	block, err := arr.NewBlock(5)
	if err != nil {
		t.Fatalf("NewBlock: %v", err)
	}
	if err := arr.Set(block, 1, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := arr.Set(block, 4, true); err != nil {
		t.Fatalf("Set: %v", err)
	}

	bits, err := arr.GetSlice(block, 5)
	if err != nil {
		t.Fatalf("GetSlice: %v", err)
	}
	want := []bool{false, true, false, false, true}
	for i, b := range bits {
		if b != want[i] {
			t.Errorf("bit %d: got %v, want %v", i, b, want[i])
		}
	}
}
