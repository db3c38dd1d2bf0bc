package api

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/ashureev/formcaptcha/internal/captcha"
)

// writeAll writes parts to w in order and stops at the first error.
func writeAll(w io.Writer, parts ...string) error {
	for _, p := range parts {
		if _, err := io.WriteString(w, p); err != nil {
			return err
		}
	}
	return nil
}

// layout wraps body in the HTML document shell.
func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := writeAll(w,
			`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`,
			`<meta name="viewport" content="width=device-width, initial-scale=1">`,
			`<title>`, templ.EscapeString(title), `</title>`,
			`<link rel="stylesheet" href="/static/captcha.css">`,
			`</head><body><main>`,
		); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		return writeAll(w, `</main></body></html>`)
	})
}

// formView is everything needed to render a form page.
type formView struct {
	ID           string
	Title        string
	Message      string
	MessageError string
	Element      *captcha.Element
}

func (v formView) action() string {
	return "/forms/" + v.ID
}

// formPage renders the message form with its captcha element.
func formPage(v formView) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := writeAll(w,
			`<h1>`, templ.EscapeString(v.Title), `</h1>`,
			`<form method="post" action="`, templ.EscapeString(v.action()), `">`,
			`<label for="message">Message</label>`,
			`<textarea id="message" name="message" rows="5">`, templ.EscapeString(v.Message), `</textarea>`,
		); err != nil {
			return err
		}
		if v.MessageError != "" {
			if err := writeAll(w, `<p class="error">`, templ.EscapeString(v.MessageError), `</p>`); err != nil {
				return err
			}
		}

		el := v.Element
		if err := el.Controller().EnsureGenerated(ctx); err != nil {
			return err
		}
		if err := writeAll(w, `<div class="captcha">`); err != nil {
			return err
		}
		if !el.Options().RenderQuestion && !el.Controller().Solved() {
			frag, err := el.QuestionFragment(ctx)
			if err != nil {
				return err
			}
			if err := writeAll(w, `<label for="`, templ.EscapeString(el.ID()), `">`); err != nil {
				return err
			}
			if err := frag.Render(ctx, w); err != nil {
				return err
			}
			if err := writeAll(w, `</label>`); err != nil {
				return err
			}
		}
		if err := el.Render().Render(ctx, w); err != nil {
			return err
		}
		if el.Error() != "" {
			if err := writeAll(w, `<p class="error">`, templ.EscapeString(el.Error()), `</p>`); err != nil {
				return err
			}
		}
		return writeAll(w, `</div><button type="submit">Send</button></form>`)
	})
	return layout(v.Title, body)
}

// successPage confirms an accepted submission.
func successPage(id, title string) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return writeAll(w,
			`<h1>`, templ.EscapeString(title), `</h1>`,
			`<p class="success">Thanks, your message has been sent.</p>`,
			`<p><a href="/forms/`, templ.EscapeString(id), `">Send another message</a></p>`,
		)
	})
	return layout(title, body)
}
