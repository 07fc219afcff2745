package identity

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func sample() Properties {
	return New("foo", "1.0.3", Linux, X86_64, Shared, GNU, "2.31",
		time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC))
}

func TestFormatParseRoundTrip(t *testing.T) {
	p := sample()
	got := Parse(Format(p))
	if got.Invalid() {
		t.Fatalf("Parse(Format(p)) reported invalid")
	}
	if diff := cmp.Diff(p, got, cmpopts.IgnoreUnexported(Properties{})); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMalformed(t *testing.T) {
	got := Parse("not a valid properties line")
	if !got.Invalid() {
		t.Fatalf("expected invalid Properties for malformed input")
	}
}

func TestSidecarRoundTrip(t *testing.T) {
	p := sample()
	var sb strings.Builder
	if err := WriteSidecar(&sb, p); err != nil {
		t.Fatal(err)
	}
	got, err := ParseSidecar(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(p, got, cmpopts.IgnoreUnexported(Properties{})); diff != "" {
		t.Errorf("sidecar round trip mismatch (-want +got):\n%s", diff)
	}

	var sb2 strings.Builder
	if err := WriteSidecar(&sb2, got); err != nil {
		t.Fatal(err)
	}
	if sb.String() != sb2.String() {
		t.Errorf("sidecar not byte-identical on re-emit:\n%s\nvs\n%s", sb.String(), sb2.String())
	}
}

func TestSidecarUnknownKeysIgnored(t *testing.T) {
	r := strings.NewReader("name = foo\nbogus = whatever\nversion = 1.0\n")
	p, err := ParseSidecar(r)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "foo" || p.Version != "1.0" {
		t.Errorf("got %+v", p)
	}
}

func TestHashStableAndCollisionIffEqual(t *testing.T) {
	a := sample()
	b := sample()
	if a.Hash() != b.Hash() {
		t.Errorf("equal properties must hash equal")
	}
	c := sample()
	c.Version = "1.0.4"
	if a.Hash() == c.Hash() {
		t.Errorf("differing properties must not collide")
	}
}

func TestMatchReflexive(t *testing.T) {
	p := sample()
	if !Match(p, p) {
		t.Errorf("Match(p, p) must be true")
	}
}

func TestMatchWildcards(t *testing.T) {
	q := New("foo", "1.0.3", "", "", "", "", "", time.Time{})
	p := sample()
	if !Match(q, p) {
		t.Errorf("wildcard query should match any os/arch/kind/compiler/glibc")
	}
}

func TestMatchGlobName(t *testing.T) {
	q := New("lib*", "*", "", "", "", "", "", time.Time{})
	libfoo := New("libfoo", "1.0", "", "", "", "", "", time.Time{})
	xlibfoo := New("xlibfoo", "1.0", "", "", "", "", "", time.Time{})
	if !Match(q, libfoo) {
		t.Errorf("lib* should match libfoo")
	}
	if Match(q, xlibfoo) {
		t.Errorf("lib* should not match xlibfoo")
	}
}

func TestMatchRequiresNameAndVersion(t *testing.T) {
	q := New("foo", "2.0", "", "", "", "", "", time.Time{})
	p := sample()
	if Match(q, p) {
		t.Errorf("mismatched version must not match")
	}
}

func TestVersionCompareBoundaries(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.10", "1.9", 1},
		{"1.2", "1.2.0", -1},
		{"a", "b", -1},
		{"1", "1", 0},
	}
	for _, c := range cases {
		got := CompareVersions(c.a, c.b)
		sign := func(i int) int {
			switch {
			case i < 0:
				return -1
			case i > 0:
				return 1
			default:
				return 0
			}
		}
		if sign(got) != sign(c.want) {
			t.Errorf("CompareVersions(%q, %q) = %d, want sign %d", c.a, c.b, got, c.want)
		}
	}
}

func TestOrderAntisymmetricAndTransitive(t *testing.T) {
	pop := []Properties{
		New("a", "1.0", Linux, X86_64, Shared, GNU, "", time.Time{}),
		New("a", "2.0", Linux, X86_64, Shared, GNU, "", time.Time{}),
		New("b", "1.0", Linux, X86_64, Shared, GNU, "", time.Time{}),
		New("a", "1.0", Windows, X86_64, Shared, GNU, "", time.Time{}),
	}
	for i := range pop {
		for j := range pop {
			if i == j {
				continue
			}
			if Less(pop[i], pop[j]) && Less(pop[j], pop[i]) {
				t.Errorf("order not antisymmetric between %v and %v", pop[i], pop[j])
			}
		}
	}
	for i := range pop {
		for j := range pop {
			for k := range pop {
				if Less(pop[i], pop[j]) && Less(pop[j], pop[k]) && !Less(pop[i], pop[k]) {
					t.Errorf("order not transitive: %v < %v < %v but not %v < %v", pop[i], pop[j], pop[k], pop[i], pop[k])
				}
			}
		}
	}
}

func TestSortPropertiesStable(t *testing.T) {
	ps := []Properties{
		New("b", "1.0", Linux, X86_64, Shared, GNU, "", time.Time{}),
		New("a", "2.0", Linux, X86_64, Shared, GNU, "", time.Time{}),
		New("a", "1.0", Linux, X86_64, Shared, GNU, "", time.Time{}),
	}
	SortProperties(ps)
	for i := 1; i < len(ps); i++ {
		if Less(ps[i], ps[i-1]) {
			t.Errorf("not sorted: %v before %v", ps[i-1], ps[i])
		}
	}
}
