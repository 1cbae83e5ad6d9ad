// Package templates renders the dashboard as templ components.
package templates

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/sheetpipe/internal/core"
)

// TableCard is one table on the dashboard.
type TableCard struct {
	Name    string
	Rows    int
	Columns int
	Err     string
}

// DashboardData is everything the dashboard page shows.
type DashboardData struct {
	Tables       []TableCard
	Runs         []core.RunRecord
	Steps        []string
	SourceTable  string
	DestTable    string
	MarkerColumn string
	Limiter      core.RunLimiterStatus
}

// htmlWriter writes escaped and raw fragments, keeping the first error.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *htmlWriter) rawf(format string, args ...any) {
	h.raw(fmt.Sprintf(format, args...))
}

func (h *htmlWriter) component(ctx context.Context, c templ.Component) {
	if h.err == nil {
		h.err = c.Render(ctx, h.w)
	}
}

// Layout wraps body in the page shell.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		h.raw(`<meta name="viewport" content="width=device-width, initial-scale=1"><title>`)
		h.text(title)
		h.raw(`</title><style>` + pageStyle + `</style></head><body><main>`)
		h.component(ctx, body)
		h.raw(`</main></body></html>`)
		return h.err
	})
}

// Dashboard renders the tables, the Run All action and recent runs.
func Dashboard(d DashboardData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<h1>sheetpipe</h1>`)

		h.raw(`<section class="menu"><h2>Pipeline</h2><p>`)
		h.text(fmt.Sprintf("%s → %s, markers in column %s", d.SourceTable, d.DestTable, d.MarkerColumn))
		h.raw(`</p><ol>`)
		for _, s := range d.Steps {
			h.raw(`<li>`)
			h.text(s)
			h.raw(`</li>`)
		}
		h.raw(`</ol><form method="post" action="/run"><button type="submit">Run All</button></form>`)
		h.rawf(`<p class="muted">%d of %d run slots in use</p></section>`, d.Limiter.Active, d.Limiter.MaxConcurrent)

		h.raw(`<section><h2>Tables</h2><table><thead><tr><th>Name</th><th>Rows</th><th>Columns</th><th></th></tr></thead><tbody>`)
		if len(d.Tables) == 0 {
			h.raw(`<tr><td colspan="4" class="muted">No tables yet</td></tr>`)
		}
		for _, t := range d.Tables {
			h.raw(`<tr><td>`)
			h.text(t.Name)
			h.raw(`</td>`)
			if t.Err != "" {
				h.raw(`<td colspan="2" class="error">`)
				h.text(t.Err)
				h.raw(`</td>`)
			} else {
				h.rawf(`<td>%d</td><td>%d</td>`, t.Rows, t.Columns)
			}
			h.raw(`<td><a href="`)
			h.text(string(templ.URL("/api/tables/" + url.PathEscape(t.Name) + "/export")))
			h.raw(`">CSV</a></td></tr>`)
		}
		h.raw(`</tbody></table></section>`)

		h.component(ctx, RunList(d.Runs))
		return h.err
	})
	return Layout("sheetpipe", body)
}

// RunList renders recent run records, newest first.
func RunList(runs []core.RunRecord) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<section><h2>Recent runs</h2>`)
		if len(runs) == 0 {
			h.raw(`<p class="muted">No runs yet</p></section>`)
			return h.err
		}
		h.raw(`<table><thead><tr><th>Started</th><th>Kind</th><th>Status</th><th>Message</th></tr></thead><tbody>`)
		for _, r := range runs {
			h.raw(`<tr><td>`)
			h.text(r.StartedAt.Format(time.DateTime))
			h.raw(`</td><td>`)
			h.text(r.Kind)
			h.rawf(`</td><td class="%s">`, statusClass(r.Status))
			h.text(string(r.Status))
			h.raw(`</td><td>`)
			if n := len(r.Notices); n > 0 {
				h.text(r.Notices[n-1].Message)
			}
			h.raw(`</td></tr>`)
		}
		h.raw(`</tbody></table></section>`)
		return h.err
	})
}

// NoticeList renders the notices of one run, for the Run All response.
func NoticeList(notices []core.Notice) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		for _, n := range notices {
			h.component(ctx, NoticeAlert(n))
		}
		h.raw(`<p><a href="/">Back to dashboard</a></p>`)
		return h.err
	})
}

// NoticeAlert renders one notice.
func NoticeAlert(n core.Notice) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.rawf(`<div class="notice %s" role="status"><strong>`, templ.EscapeString(string(n.Level)))
		h.text(n.Title)
		h.raw(`</strong> `)
		h.text(n.Message)
		h.raw(`</div>`)
		return h.err
	})
}

// ErrorAlert renders a user-facing error with its support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<div class="notice error" role="alert"><strong>`)
		h.text(message)
		h.raw(`</strong>`)
		if action != "" {
			h.raw(` `)
			h.text(action)
		}
		h.raw(` <span class="muted">(Code: `)
		h.text(code)
		h.raw(`)</span></div>`)
		return h.err
	})
}

func statusClass(s core.RunStatus) string {
	switch s {
	case core.RunSucceeded:
		return "success"
	case core.RunFailed:
		return "error"
	default:
		return "info"
	}
}

const pageStyle = `body{font-family:system-ui,sans-serif;margin:0;background:#f6f7f9;color:#1f2328}
main{max-width:960px;margin:0 auto;padding:24px}
section{background:#fff;border:1px solid #d0d7de;border-radius:6px;padding:16px;margin-bottom:16px}
table{width:100%;border-collapse:collapse}th,td{text-align:left;padding:6px;border-bottom:1px solid #eaeef2}
button{background:#1f883d;color:#fff;border:0;border-radius:6px;padding:8px 16px;font-size:1rem;cursor:pointer}
.muted{color:#656d76}.success{color:#1a7f37}.error{color:#cf222e}.info{color:#0969da}.warning{color:#9a6700}
.notice{padding:10px;border-radius:6px;margin-bottom:8px;background:#fff;border:1px solid #d0d7de}`
