// Package web provides the embedded dashboard for browsing rules and their
// evaluations.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lemonberrylabs/condeval/pkg/store"
	"github.com/lemonberrylabs/condeval/pkg/types"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = []string{
	"dashboard.html",
	"rule_detail.html",
	"evaluation_list.html",
	"evaluation_detail.html",
	"not_found.html",
}

// recentLimit is the number of evaluations shown on the dashboard.
const recentLimit = 10

// Handler serves the web UI pages.
type Handler struct {
	store *store.Store
	pages map[string]*template.Template
}

// pageData wraps all page-specific data with common fields.
type pageData struct {
	NavActive string
	Data      interface{}
}

// New parses the page templates and returns a handler reading from s.
func New(s *store.Store) (*Handler, error) {
	funcMap := template.FuncMap{
		"timeAgo":    timeAgo,
		"formatTime": formatTime,
		"duration":   formatDuration,
		"stateClass": stateClass,
		"stateIcon":  stateIcon,
		"truncate":   truncate,
		"value":      formatValue,
	}

	h := &Handler{store: s, pages: make(map[string]*template.Template, len(pages))}
	for _, page := range pages {
		// Each page gets its own set so that "content" blocks don't collide.
		tmpl, err := template.New("").Funcs(funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		h.pages[page] = tmpl
	}
	return h, nil
}

func (h *Handler) render(c *fiber.Ctx, page string, navActive string, data interface{}) error {
	pd := pageData{
		NavActive: navActive,
		Data:      data,
	}

	var buf bytes.Buffer
	if err := h.pages[page].ExecuteTemplate(&buf, page, pd); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString(fmt.Sprintf("template error: %v", err))
	}

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Send(buf.Bytes())
}

func (h *Handler) notFound(c *fiber.Ctx, format string, args ...interface{}) error {
	c.Status(fiber.StatusNotFound)
	return h.render(c, "not_found.html", "", notFoundContent{Message: fmt.Sprintf(format, args...)})
}

// Register adds web UI routes to the Fiber app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/ui", h.dashboard)
	app.Get("/ui/rules/:rule", h.ruleDetail)
	app.Get("/ui/evaluations", h.evaluationList)
	app.Get("/ui/evaluations/:evaluation", h.evaluationDetail)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/ui")
	})
}

// --- Page Data Types ---

type dashboardContent struct {
	Rules          []*ruleView
	Recent         []*store.Evaluation
	SucceededCount int
	FailedCount    int
}

type ruleView struct {
	*store.Rule
	EvaluationCount int
	FailedCount     int
}

type ruleDetailContent struct {
	Rule        *store.Rule
	Parsed      string
	Evaluations []*store.Evaluation
}

type evaluationListContent struct {
	Evaluations []*store.Evaluation
}

type evaluationDetailContent struct {
	Evaluation *store.Evaluation
	Variables  []variableView
}

type variableView struct {
	Name  string
	Value string
}

type notFoundContent struct {
	Message string
}

// --- Page Handlers ---

func (h *Handler) dashboard(c *fiber.Ctx) error {
	all := h.store.RecentEvaluations(-1)

	perRule := make(map[string]*ruleView)
	var views []*ruleView
	for _, r := range h.store.ListRules() {
		v := &ruleView{Rule: r}
		perRule[r.Name] = v
		views = append(views, v)
	}

	var succeeded, failed int
	for _, ev := range all {
		v := perRule[ev.Rule]
		if v != nil {
			v.EvaluationCount++
		}
		switch ev.State {
		case store.EvaluationSucceeded:
			succeeded++
		case store.EvaluationFailed:
			failed++
			if v != nil {
				v.FailedCount++
			}
		}
	}

	recent := all
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}

	return h.render(c, "dashboard.html", "dashboard", dashboardContent{
		Rules:          views,
		Recent:         recent,
		SucceededCount: succeeded,
		FailedCount:    failed,
	})
}

func (h *Handler) ruleDetail(c *fiber.Ctx) error {
	name := c.Params("rule")
	r, err := h.store.GetRule(name)
	if err != nil {
		return h.notFound(c, "Rule '%s' not found", name)
	}

	return h.render(c, "rule_detail.html", "dashboard", ruleDetailContent{
		Rule:        r,
		Parsed:      r.Compiled().Compiled().Root().String(),
		Evaluations: h.store.ListEvaluations(name),
	})
}

func (h *Handler) evaluationList(c *fiber.Ctx) error {
	return h.render(c, "evaluation_list.html", "evaluations", evaluationListContent{
		Evaluations: h.store.RecentEvaluations(-1),
	})
}

func (h *Handler) evaluationDetail(c *fiber.Ctx) error {
	name := c.Params("evaluation")
	ev, err := h.store.GetEvaluation(name)
	if err != nil {
		return h.notFound(c, "Evaluation '%s' not found", name)
	}

	vars := make([]variableView, 0, len(ev.Variables))
	for k, v := range ev.Variables {
		vars = append(vars, variableView{Name: k, Value: formatValue(v)})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })

	return h.render(c, "evaluation_detail.html", "evaluations", evaluationDetailContent{
		Evaluation: ev,
		Variables:  vars,
	})
}

// --- Template Helpers ---

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		if m == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", m)
	case d < 24*time.Hour:
		h := int(d.Hours())
		if h == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", h)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func stateClass(state store.EvaluationState) string {
	switch state {
	case store.EvaluationSucceeded:
		return "state-succeeded"
	case store.EvaluationFailed:
		return "state-failed"
	default:
		return ""
	}
}

func stateIcon(state store.EvaluationState) template.HTML {
	switch state {
	case store.EvaluationSucceeded:
		return "&#10003;"
	case store.EvaluationFailed:
		return "&#10007;"
	default:
		return "&#8226;"
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func formatValue(v types.Value) string {
	if v.Type() == types.TypeString {
		return fmt.Sprintf("%q", v.AsString())
	}
	return v.String()
}
