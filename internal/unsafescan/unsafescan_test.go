package unsafescan

import "testing"

func TestScanFindsUnsafeFunction(t *testing.T) {
	line, found := scan("unsafe fn foo() {}\n")
	if !found || line != 1 {
		t.Fatalf("got (%d, %v), want (1, true)", line, found)
	}
}

func TestScanIgnoresUnsafeInsideStringLiteral(t *testing.T) {
	_, found := scan(`fn foo() -> &'static str {"unsafe"}`)
	if found {
		t.Fatalf("got found=true, want false")
	}
}

func TestScanIgnoresUnsafeInsideLineComment(t *testing.T) {
	_, found := scan("// unsafe is not allowed here\nfn foo() {}\n")
	if found {
		t.Fatalf("got found=true, want false")
	}
}

func TestScanIgnoresUnsafeInsideBlockComment(t *testing.T) {
	_, found := scan("/* unsafe\n   block */\nfn foo() {}\n")
	if found {
		t.Fatalf("got found=true, want false")
	}
}

func TestScanReportsCorrectLineForMultilineBlock(t *testing.T) {
	source := "fn foo() {}\n\nunsafe {\n    bar();\n}\n"

	line, found := scan(source)
	if !found || line != 3 {
		t.Fatalf("got (%d, %v), want (3, true)", line, found)
	}
}

func TestScanDoesNotConfuseLifetimeWithCharLiteral(t *testing.T) {
	line, found := scan("fn foo<'a>(x: &'a str) { unsafe { bar(x) } }\n")
	if !found || line != 1 {
		t.Fatalf("got (%d, %v), want (1, true)", line, found)
	}
}

func TestScanIgnoresUnsafeSubstringInLongerIdentifier(t *testing.T) {
	_, found := scan("fn unsafely_named() {}\n")
	if found {
		t.Fatalf("got found=true, want false")
	}
}

func TestScanEmptySource(t *testing.T) {
	_, found := scan("")
	if found {
		t.Fatalf("got found=true, want false")
	}
}
