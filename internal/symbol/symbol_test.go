package symbol

import "testing"

func TestSymbolNames(t *testing.T) {
	sym := New(Borrowed([]byte("_ZN4core3ptr85drop_in_place$LT$std..rt..lang_start$LT$$LP$$RP$$GT$..$u7b$$u7b$closure$u7d$$u7d$$GT$17h0bb7e9fe967fc41cE")))

	names, ok := sym.Names()
	if !ok {
		t.Fatal("expected Names to succeed on a legacy-mangled symbol")
	}

	want := []string{"core::ptr::drop_in_place", "std::rt::lang_start", "{{closure}}"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}

	for i, n := range want {
		if names[i].String() != n {
			t.Fatalf("names[%d] = %q, want %q", i, names[i].String(), n)
		}
	}
}

func TestSymbolDisplay(t *testing.T) {
	sym := New(Borrowed([]byte("_ZN4core3ptr85drop_in_place$LT$std..rt..lang_start$LT$$LP$$RP$$GT$..$u7b$$u7b$closure$u7d$$u7d$$GT$17h0bb7e9fe967fc41cE")))

	want := "core::ptr::drop_in_place<std::rt::lang_start<()>::{{closure}}>"
	if got := sym.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestSymbolCrateAndModuleName(t *testing.T) {
	sym := New(Borrowed([]byte("_ZN3std2fs5write17h0f72782372833d23E")))

	if crate, ok := sym.CrateName(); !ok || crate != "std" {
		t.Fatalf("CrateName() = %q, %v, want \"std\", true", crate, ok)
	}

	if mod, ok := sym.ModuleName(); !ok || mod != "fs" {
		t.Fatalf("ModuleName() = %q, %v, want \"fs\", true", mod, ok)
	}
}

func TestSymbolIsLookThrough(t *testing.T) {
	lookThrough := New(Borrowed([]byte("_ZN4core3ops8function6FnOnce9call_once17hdeadbeefcafebabeE")))
	if !lookThrough.IsLookThrough() {
		t.Fatal("expected a core::ops::function symbol to be look-through")
	}

	notLookThrough := New(Borrowed([]byte("_ZN3std2fs5write17h0f72782372833d23E")))
	if notLookThrough.IsLookThrough() {
		t.Fatal("expected std::fs::write to not be look-through")
	}
}

func TestSymbolNonMangled(t *testing.T) {
	sym := New(Borrowed([]byte("main")))

	if _, ok := sym.Names(); ok {
		t.Fatal("expected Names to fail on an unmangled C symbol")
	}

	if got := sym.String(); got != "main" {
		t.Fatalf("String() = %q, want %q (fall back to raw name)", got, "main")
	}
}

func TestBytesToHeap(t *testing.T) {
	data := []byte("hello")
	b := Borrowed(data)

	heap := b.ToHeap()
	if heap.String() != "hello" {
		t.Fatalf("ToHeap().String() = %q, want %q", heap.String(), "hello")
	}

	data[0] = 'H'

	if heap.String() != "hello" {
		t.Fatalf("heap copy observed mutation of the original buffer: %q", heap.String())
	}

	if b.String() != "Hello" {
		t.Fatalf("borrowed Bytes should observe mutation of the shared buffer: %q", b.String())
	}
}
