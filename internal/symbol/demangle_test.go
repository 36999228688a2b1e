package symbol

import "testing"

func TestSegmentIterator(t *testing.T) {
	it := newSegmentIterator("_ZN3std2fs5write17h0f72782372833d23E")

	var got []string

	for {
		seg, ok := it.next()
		if !ok {
			break
		}

		got = append(got, seg)
	}

	want := []string{"std", "fs", "write", "h0f72782372833d23"}

	if len(got) != len(want) {
		t.Fatalf("segments = %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("segments = %v, want %v", got, want)
		}
	}
}

func TestSegmentIteratorBailsOnNestedMangling(t *testing.T) {
	it := newSegmentIterator("_ZN3foo3_ZN3barE")

	seg, ok := it.next()
	if !ok || seg != "foo" {
		t.Fatalf("first segment = %q, %v, want \"foo\", true", seg, ok)
	}

	_, ok = it.next()
	if ok {
		t.Fatalf("expected iterator to bail on a segment starting with '_'")
	}
}

func TestDemangle(t *testing.T) {
	cases := []struct {
		name    string
		mangled string
		want    string
		wantOk  bool
	}{
		{
			name:    "simple path",
			mangled: "_ZN3std2fs5write17h0f72782372833d23E",
			want:    "std::fs::write",
			wantOk:  true,
		},
		{
			name:    "generic with closure and escapes",
			mangled: "_ZN4core3ptr85drop_in_place$LT$std..rt..lang_start$LT$$LP$$RP$$GT$..$u7b$$u7b$closure$u7d$$u7d$$GT$17h0bb7e9fe967fc41cE",
			want:    "core::ptr::drop_in_place<std::rt::lang_start<()>::{{closure}}>",
			wantOk:  true,
		},
		{
			name:    "not mangled",
			mangled: "main",
			want:    "",
			wantOk:  false,
		},
		{
			name:    "invalid",
			mangled: "_ZN",
			want:    "",
			wantOk:  false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Demangle(tc.mangled)
			if ok != tc.wantOk {
				t.Fatalf("Demangle(%q) ok = %v, want %v", tc.mangled, ok, tc.wantOk)
			}

			if got != tc.want {
				t.Fatalf("Demangle(%q) = %q, want %q", tc.mangled, got, tc.want)
			}
		})
	}
}

func TestIsHashSuffix(t *testing.T) {
	if !isHashSuffix("h0f72782372833d23") {
		t.Fatal("expected valid hash suffix to be recognized")
	}

	if isHashSuffix("write") {
		t.Fatal("expected non-hash segment to be rejected")
	}

	if isHashSuffix("h0f72782372833d2") {
		t.Fatal("expected short segment to be rejected")
	}
}
