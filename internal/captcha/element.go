package captcha

import (
	"context"
	"io"
	"log/slog"
	"maps"

	"github.com/a-h/templ"
)

// ElementType is the type name reported by Element.Type.
const ElementType = "captcha"

// Options configure how an element talks to the user.
type Options struct {
	// SolvedMessage replaces the question and input once solved.
	SolvedMessage string `yaml:"solved_message"`

	// WrongAnswerMessage is the validation error for a wrong answer.
	WrongAnswerMessage string `yaml:"wrong_answer_message"`

	// RenderQuestion embeds the question fragment in front of the input.
	// When false the caller renders QuestionFragment itself.
	RenderQuestion bool `yaml:"render_question"`

	// QuestionAttributes are set on the question container.
	QuestionAttributes map[string]string `yaml:"question_attributes"`
}

// DefaultOptions returns the stock messages and question markup.
func DefaultOptions() Options {
	return Options{
		SolvedMessage:      "Captcha already solved",
		WrongAnswerMessage: "Captcha solution is wrong",
		RenderQuestion:     true,
		QuestionAttributes: map[string]string{"class": "captcha-question"},
	}
}

// withDefaults fills empty messages and attributes from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SolvedMessage == "" {
		o.SolvedMessage = d.SolvedMessage
	}
	if o.WrongAnswerMessage == "" {
		o.WrongAnswerMessage = d.WrongAnswerMessage
	}
	if o.QuestionAttributes == nil {
		o.QuestionAttributes = d.QuestionAttributes
	}
	return o
}

// ElementConfig holds everything needed to build an Element.
type ElementConfig struct {
	Name string
	// ID defaults to Name.
	ID        string
	Parent    Container
	Store     Store
	Generator Generator
	Options   Options
	Logger    *slog.Logger
}

// Element is a captcha form field: a question plus an answer input, backed
// by a Controller keyed on the element's position in its form.
type Element struct {
	name     string
	id       string
	parent   Container
	opts     Options
	attrs    map[string]string
	value    string
	disabled bool
	frozen   bool
	err      string
	ctrl     *Controller
}

// NewElement creates a captcha element. Empty messages and a nil attribute
// map fall back to DefaultOptions; start from DefaultOptions to keep
// RenderQuestion on.
func NewElement(cfg ElementConfig) *Element {
	id := cfg.ID
	if id == "" {
		id = cfg.Name
	}
	e := &Element{
		name:   cfg.Name,
		id:     id,
		parent: cfg.Parent,
		opts:   cfg.Options.withDefaults(),
		attrs:  map[string]string{"size": "5"},
	}
	e.ctrl = NewController(SessionKey(id, cfg.Parent), cfg.Store, cfg.Generator, cfg.Logger)
	return e
}

func (e *Element) Name() string         { return e.name }
func (e *Element) ID() string           { return e.id }
func (e *Element) Type() string         { return ElementType }
func (e *Element) Container() Container { return e.parent }
func (e *Element) Options() Options     { return e.opts }

// Controller exposes the challenge controller backing the element.
func (e *Element) Controller() *Controller { return e.ctrl }

// SessionKey returns the key the challenge is stored under.
func (e *Element) SessionKey() string { return e.ctrl.Key() }

// SetAttribute sets an attribute on the answer input.
func (e *Element) SetAttribute(name, value string) *Element {
	e.attrs[name] = value
	return e
}

// Attribute returns an answer input attribute.
func (e *Element) Attribute(name string) string {
	return e.attrs[name]
}

// SetValue stores the submitted answer.
func (e *Element) SetValue(v string) *Element {
	e.value = v
	return e
}

// Value returns the submitted answer, or "" when the element is disabled.
func (e *Element) Value() string {
	if e.disabled {
		return ""
	}
	return e.value
}

func (e *Element) SetDisabled(disabled bool) *Element {
	e.disabled = disabled
	return e
}

func (e *Element) Disabled() bool { return e.disabled }

// SetFrozen switches the element to read-only display.
func (e *Element) SetFrozen(frozen bool) *Element {
	e.frozen = frozen
	return e
}

func (e *Element) Frozen() bool { return e.frozen }

// Error returns the message set by the last failed validation.
func (e *Element) Error() string { return e.err }

// Validate checks the submitted value against the challenge. A wrong answer
// sets Error to the configured message and returns false with a nil error;
// a non-nil error means the challenge could not be loaded or stored.
func (e *Element) Validate(ctx context.Context) (bool, error) {
	e.err = ""
	ok, err := e.ctrl.Verify(ctx, e.Value())
	if err != nil {
		return false, err
	}
	if !ok {
		e.err = e.opts.WrongAnswerMessage
	}
	return ok, nil
}

// ClearSession deletes the stored challenge so the next rendering asks a
// new question. Call it once the whole form has been accepted.
func (e *Element) ClearSession(ctx context.Context) error {
	return e.ctrl.Clear(ctx)
}

// Input describes the answer input.
func (e *Element) Input() Input {
	return Input{
		Name:       e.name,
		ID:         e.id,
		Value:      e.Value(),
		Disabled:   e.disabled,
		Attributes: maps.Clone(e.attrs),
	}
}

// QuestionFragment returns the question wrapped with the configured
// QuestionAttributes.
func (e *Element) QuestionFragment(ctx context.Context) (templ.Component, error) {
	return e.ctrl.QuestionFragment(ctx, e.opts.QuestionAttributes)
}

// Render returns the element's markup: the solved message once solved,
// a read-only copy of question and value when frozen, otherwise the question
// (if RenderQuestion is set) followed by the answer input. Rendering does not
// verify; call Validate first on submissions.
func (e *Element) Render() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := e.ctrl.EnsureGenerated(ctx); err != nil {
			return err
		}
		if e.ctrl.Solved() {
			_, err := io.WriteString(w, templ.EscapeString(e.opts.SolvedMessage))
			return err
		}

		question := QuestionFragment(e.ctrl.State().Question, e.opts.QuestionAttributes)
		if e.frozen {
			if err := question.Render(ctx, w); err != nil {
				return err
			}
			_, err := io.WriteString(w, `<span class="captcha-value">`+templ.EscapeString(e.Value())+"</span>")
			return err
		}

		if e.opts.RenderQuestion {
			if err := question.Render(ctx, w); err != nil {
				return err
			}
		}
		return e.Input().Component().Render(ctx, w)
	})
}
