package captcha

import "testing"

type fakeContainer struct {
	id     string
	parent Container
}

func (f fakeContainer) ID() string           { return f.id }
func (f fakeContainer) Container() Container { return f.parent }

func chain(ids ...string) Container {
	var c Container
	for i := len(ids) - 1; i >= 0; i-- {
		c = fakeContainer{id: ids[i], parent: c}
	}
	return c
}

func TestSessionKeyFormat(t *testing.T) {
	got := SessionKey("q1", chain("fieldset", "f1"))
	want := "_captcha_-q1-fieldset-f1-data"
	if got != want {
		t.Fatalf("SessionKey() = %q, want %q", got, want)
	}
}

func TestSessionKeyWithoutContainer(t *testing.T) {
	if got, want := SessionKey("q1", nil), "_captcha_-q1-data"; got != want {
		t.Fatalf("SessionKey() = %q, want %q", got, want)
	}
}

func TestSessionKeyNoCollisions(t *testing.T) {
	tests := []struct {
		name   string
		a, b   string
		pa, pb Container
	}{
		{"same element different forms", "q", "q", chain("f1"), chain("f2")},
		{"dash inside id", "a-b", "a", chain("c"), chain("b-c")},
		{"escaped dash literal", "a%2Db", "a-b", nil, nil},
		{"nesting depth", "q", "q", chain("fs", "f1"), chain("f1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := SessionKey(tt.a, tt.pa)
			kb := SessionKey(tt.b, tt.pb)
			if ka == kb {
				t.Fatalf("keys collide: %q", ka)
			}
		})
	}
}

func TestSessionKeyStable(t *testing.T) {
	if SessionKey("q", chain("f1")) != SessionKey("q", chain("f1")) {
		t.Fatal("expected identical paths to produce identical keys")
	}
}
