package captcha

import (
	"context"
	"io"
	"regexp"
	"sort"

	"github.com/a-h/templ"
)

var attrNamePattern = regexp.MustCompile(`^[A-Za-z_:][A-Za-z0-9_.:-]*$`)

// writeAttributes writes attrs as ` name="value"` pairs in name order.
// Names that are not valid attribute names are dropped.
func writeAttributes(w io.Writer, attrs map[string]string) error {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		if attrNamePattern.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := io.WriteString(w, " "+name+`="`+templ.EscapeString(attrs[name])+`"`); err != nil {
			return err
		}
	}
	return nil
}

// QuestionFragment renders question inside a div carrying attrs.
func QuestionFragment(question string, attrs map[string]string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<div"); err != nil {
			return err
		}
		if err := writeAttributes(w, attrs); err != nil {
			return err
		}
		_, err := io.WriteString(w, ">"+templ.EscapeString(question)+"</div>")
		return err
	})
}

// QuestionFragment generates the challenge if needed and returns its
// question wrapped in a container with attrs.
func (c *Controller) QuestionFragment(ctx context.Context, attrs map[string]string) (templ.Component, error) {
	question, err := c.Question(ctx)
	if err != nil {
		return nil, err
	}
	return QuestionFragment(question, attrs), nil
}

// Input describes the answer input control for the surrounding form renderer.
type Input struct {
	Name       string            `json:"name"`
	ID         string            `json:"id"`
	Value      string            `json:"value"`
	Disabled   bool              `json:"disabled"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Component renders the input as an HTML text input.
func (in Input) Component() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		attrs := make(map[string]string, len(in.Attributes)+4)
		for k, v := range in.Attributes {
			attrs[k] = v
		}
		attrs["type"] = "text"
		attrs["name"] = in.Name
		attrs["id"] = in.ID
		if in.Value != "" {
			attrs["value"] = in.Value
		} else {
			delete(attrs, "value")
		}
		if in.Disabled {
			attrs["disabled"] = "disabled"
		} else {
			delete(attrs, "disabled")
		}

		if _, err := io.WriteString(w, "<input"); err != nil {
			return err
		}
		if err := writeAttributes(w, attrs); err != nil {
			return err
		}
		_, err := io.WriteString(w, " />")
		return err
	})
}
