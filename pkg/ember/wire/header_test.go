package wire

import "testing"

func TestHeaderCaseInsensitiveLookup(t *testing.T) {
	var h Header
	h.Set("Content-Type", "text/plain")
	if h.Get("content-type") != "text/plain" {
		t.Errorf("Get(content-type) = %q", h.Get("content-type"))
	}
	if !h.Has("CONTENT-TYPE") {
		t.Errorf("Has(CONTENT-TYPE) = false")
	}
}

func TestHeaderPreservesInsertionOrderForDuplicates(t *testing.T) {
	var h Header
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")
	vals := h.Values("set-cookie")
	if len(vals) != 2 || vals[0] != "a=1" || vals[1] != "b=2" {
		t.Errorf("Values = %v, want [a=1 b=2]", vals)
	}
}

func TestHeaderSetReplacesAllExisting(t *testing.T) {
	var h Header
	h.Add("X-Foo", "1")
	h.Add("X-Foo", "2")
	h.Set("X-Foo", "3")
	if h.Count("X-Foo") != 1 || h.Get("X-Foo") != "3" {
		t.Errorf("after Set: count=%d get=%q", h.Count("X-Foo"), h.Get("X-Foo"))
	}
}

func TestHeaderVisitAllOrder(t *testing.T) {
	var h Header
	h.Add("A", "1")
	h.Add("B", "2")
	h.Add("A", "3")
	var got []string
	h.VisitAll(func(name, value string) {
		got = append(got, name+"="+value)
	})
	want := []string{"A=1", "B=2", "A=3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
