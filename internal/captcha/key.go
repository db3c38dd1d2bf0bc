package captcha

import "strings"

// KeyPrefix namespaces captcha records inside a session.
const KeyPrefix = "_captcha_"

// Container is anything an element can be nested in: a form, a fieldset, a
// group. Container returns nil for the root.
type Container interface {
	ID() string
	Container() Container
}

var keyEscaper = strings.NewReplacer("%", "%25", "-", "%2D")

// SessionKey derives the storage key for an element with the given ID nested
// in parent. The path runs from the element up to the root, so the same
// element placed in two forms yields two keys, while re-rendering the same
// form yields the same key on every request.
//
// IDs are escaped before joining so that distinct paths never collide, e.g.
// ("a-b", "c") and ("a", "b-c").
func SessionKey(id string, parent Container) string {
	var b strings.Builder
	b.WriteString(KeyPrefix)
	b.WriteString("-")
	b.WriteString(keyEscaper.Replace(id))
	for c := parent; c != nil; c = c.Container() {
		b.WriteString("-")
		b.WriteString(keyEscaper.Replace(c.ID()))
	}
	b.WriteString("-data")
	return b.String()
}
