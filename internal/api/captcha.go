package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/formcaptcha/internal/captcha"
	"github.com/ashureev/formcaptcha/internal/config"
	"github.com/ashureev/formcaptcha/internal/form"
	"github.com/ashureev/formcaptcha/internal/identity"
)

// formEntry is a configured form with its shared challenge generator.
type formEntry struct {
	cfg config.FormConfig
	gen captcha.Generator
}

// CaptchaHandler serves the captcha-protected forms and the captcha JSON API.
type CaptchaHandler struct {
	*Handler
	forms map[string]formEntry
}

// NewCaptchaHandler builds one generator per configured form.
func NewCaptchaHandler(base *Handler, forms config.FormsConfig) (*CaptchaHandler, error) {
	h := &CaptchaHandler{Handler: base, forms: make(map[string]formEntry, len(forms.Forms))}
	for _, f := range forms.Forms {
		gen, err := captcha.NewGenerator(f.Captcha.Generator, nil)
		if err != nil {
			return nil, fmt.Errorf("form %s: %w", f.ID, err)
		}
		h.forms[f.ID] = formEntry{cfg: f, gen: gen}
	}
	return h, nil
}

// RegisterRoutes registers form and captcha routes.
func (h *CaptchaHandler) RegisterRoutes(r chi.Router) {
	r.Route("/forms/{formID}", func(r chi.Router) {
		r.Get("/", h.ShowForm)
		r.Post("/", h.SubmitForm)
	})
	r.Route("/api/forms/{formID}/captcha", func(r chi.Router) {
		r.Get("/", h.GetCaptcha)
		r.Post("/verify", h.VerifyCaptcha)
		r.Delete("/", h.ClearCaptcha)
	})
}

// lookup resolves the formID URL parameter.
func (h *CaptchaHandler) lookup(r *http.Request) (formEntry, bool) {
	f, ok := h.forms[chi.URLParam(r, "formID")]
	return f, ok
}

// element builds the captcha element of f bound to the request's session.
func (h *CaptchaHandler) element(ctx context.Context, f formEntry) (*captcha.Element, error) {
	scope, err := h.sessions.Scope(ctx)
	if err != nil {
		return nil, err
	}
	return captcha.NewElement(captcha.ElementConfig{
		Name:      f.cfg.Captcha.Name,
		Parent:    form.New(f.cfg.ID),
		Store:     scope,
		Generator: f.gen,
		Options:   f.cfg.Captcha.Options,
		Logger:    h.logger,
	}), nil
}

func (h *CaptchaHandler) title(f formEntry) string {
	if f.cfg.Title != "" {
		return f.cfg.Title
	}
	return f.cfg.ID
}

// renderPage writes c with status, turning render failures into a plain 500.
func (h *CaptchaHandler) renderPage(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	templ.Handler(c,
		templ.WithStatus(status),
		templ.WithErrorHandler(func(r *http.Request, err error) http.Handler {
			msg := h.logFailure(r, err)
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, msg, http.StatusInternalServerError)
			})
		}),
	).ServeHTTP(w, r)
}

// ShowForm renders the form page with a fresh or stored challenge.
func (h *CaptchaHandler) ShowForm(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	el, err := h.element(r.Context(), f)
	if err != nil {
		http.Error(w, h.logFailure(r, err), http.StatusInternalServerError)
		return
	}
	h.renderPage(w, r, http.StatusOK, formPage(formView{ID: f.cfg.ID, Title: h.title(f), Element: el}))
}

// SubmitForm validates the message and the captcha. The captcha is cleared
// only when the whole submission is accepted.
func (h *CaptchaHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	el, err := h.element(ctx, f)
	if err != nil {
		http.Error(w, h.logFailure(r, err), http.StatusInternalServerError)
		return
	}

	message := strings.TrimSpace(r.PostForm.Get("message"))
	el.SetValue(r.PostForm.Get(el.Name()))

	solved, err := el.Validate(ctx)
	if err != nil {
		http.Error(w, h.logFailure(r, err), http.StatusInternalServerError)
		return
	}

	view := formView{ID: f.cfg.ID, Title: h.title(f), Message: message, Element: el}
	if message == "" {
		view.MessageError = "Message is required"
	}
	if !solved || message == "" {
		h.renderPage(w, r, http.StatusUnprocessableEntity, formPage(view))
		return
	}

	if err := el.ClearSession(ctx); err != nil {
		http.Error(w, h.logFailure(r, err), http.StatusInternalServerError)
		return
	}
	h.logger.Info("Form accepted",
		"form_id", f.cfg.ID,
		"session_id", identity.SessionIDFromContext(ctx),
		"remote_ip", identity.IPFromRequest(r),
		"message_length", len(message))
	h.renderPage(w, r, http.StatusOK, successPage(f.cfg.ID, h.title(f)))
}

// captchaResponse is the JSON view of a captcha element. The answer is never
// exposed.
type captchaResponse struct {
	Key      string        `json:"key"`
	Question string        `json:"question,omitempty"`
	Solved   bool          `json:"solved"`
	Input    captcha.Input `json:"input"`
}

// GetCaptcha returns the current challenge, generating one if needed.
func (h *CaptchaHandler) GetCaptcha(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(r)
	if !ok {
		Error(w, http.StatusNotFound, "form not found")
		return
	}
	el, err := h.element(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctrl := el.Controller()
	if err := ctrl.EnsureGenerated(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}

	resp := captchaResponse{Key: el.SessionKey(), Solved: ctrl.Solved(), Input: el.Input()}
	if !resp.Solved {
		resp.Question = ctrl.State().Question
	}
	JSON(w, http.StatusOK, resp)
}

type verifyRequest struct {
	Answer string `json:"answer"`
}

type verifyResponse struct {
	Solved bool   `json:"solved"`
	Error  string `json:"error,omitempty"`
}

// VerifyCaptcha checks a submitted answer.
func (h *CaptchaHandler) VerifyCaptcha(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(r)
	if !ok {
		Error(w, http.StatusNotFound, "form not found")
		return
	}

	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	el, err := h.element(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	el.SetValue(req.Answer)

	solved, err := el.Validate(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, verifyResponse{Solved: solved, Error: el.Error()})
}

// ClearCaptcha drops the stored challenge so the next request gets a new one.
func (h *CaptchaHandler) ClearCaptcha(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookup(r)
	if !ok {
		Error(w, http.StatusNotFound, "form not found")
		return
	}
	el, err := h.element(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := el.ClearSession(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
