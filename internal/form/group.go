// Package form provides the containers an element can be nested in.
// Only identity is modelled: enough to derive a stable per-element key.
package form

import "github.com/ashureev/formcaptcha/internal/captcha"

// Group is a form, fieldset or any other named container.
type Group struct {
	id     string
	parent *Group
}

// New creates a root form.
func New(id string) *Group {
	return &Group{id: id}
}

// Group creates a child container nested in g.
func (g *Group) Group(id string) *Group {
	return &Group{id: id, parent: g}
}

// ID returns the container's identifier.
func (g *Group) ID() string {
	return g.id
}

// Container returns the enclosing container, or nil for the root.
func (g *Group) Container() captcha.Container {
	if g.parent == nil {
		return nil
	}
	return g.parent
}

// Path lists identifiers from g up to the root.
func (g *Group) Path() []string {
	var path []string
	for c := g; c != nil; c = c.parent {
		path = append(path, c.id)
	}
	return path
}
