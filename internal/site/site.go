// Package site serves a page with the visit counter rendered into it, one
// widget run per page load, sessions tracked with a browser session cookie.
package site

import (
	"bytes"
	"net/http"

	"visitcounter/internal/components/chrono"
	"visitcounter/internal/components/telemetry"
	"visitcounter/internal/page"
	"visitcounter/internal/session"
	"visitcounter/internal/widget"

	"github.com/google/uuid"
)

const SessionCookie = "cv_session"

const report_page_render = "page-render"

// SessionsAPI hands out the store of a given session id.
type SessionsAPI interface {
	Session(sessionID string) session.Store
}

// SessionsFunc adapts a function to SessionsAPI.
type SessionsFunc func(sessionID string) session.Store

func (f SessionsFunc) Session(sessionID string) session.Store {
	return f(sessionID)
}

type Handler struct {
	page     []byte
	sessions SessionsAPI
	counter  widget.CounterAPI
	time     chrono.TimeAPI
	tel      telemetry.API
}

func NewHandler(
	pageHtml []byte,
	sessions SessionsAPI,
	counter widget.CounterAPI,
	time chrono.TimeAPI,
	tel telemetry.API,
) Handler {
	return Handler{
		page:     pageHtml,
		sessions: sessions,
		counter:  counter,
		time:     time,
		tel:      telemetry.NewScopedAPI("site", tel),
	}
}

func (h Handler) sessionID(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}

	id := uuid.NewString()
	// no Expires/MaxAge: the cookie lives as long as the browser session
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}

	id := h.sessionID(w, r)

	doc, err := page.Load(bytes.NewReader(h.page))
	if err != nil {
		h.tel.ReportBroken(report_page_render, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	widget.New(
		doc, h.sessions.Session(id), h.counter,
		widget.WithTimeAPI(h.time),
		widget.WithTelemetryAPI(h.tel),
	).Run(r.Context())

	var out bytes.Buffer
	err = doc.Render(&out)
	if err != nil {
		h.tel.ReportBroken(report_page_render, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(out.Bytes())
}
