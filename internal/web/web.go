// Package web holds the server-rendered pages.
package web

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"cardamage/internal/models"
	"cardamage/internal/report"
)

//go:embed templates/*.html
var files embed.FS

// RefreshSeconds is how often the report page polls while processing.
const RefreshSeconds = 5

type IntakePage struct {
	Error string
}

type ListItem struct {
	Assessment models.Assessment
	CostRange  string
}

type ListPage struct {
	Items      []ListItem
	Total      int64
	Page       int
	TotalPages int
}

func (p ListPage) PrevPage() int {
	if p.Page <= 1 {
		return 0
	}
	return p.Page - 1
}

func (p ListPage) NextPage() int {
	if p.Page >= p.TotalPages {
		return 0
	}
	return p.Page + 1
}

type ReportPage struct {
	Assessment     models.Assessment
	Result         report.Result
	Processing     bool
	RefreshSeconds int
}

type ErrorPage struct {
	Status  int
	Message string
}

// Templates parses every page with the shared helper functions.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(files, "templates/*.html")
}

var funcs = template.FuncMap{
	"money": func(n report.Number) string {
		if !n.Valid {
			return "n/a"
		}
		return "$" + n.String()
	},
	"moneyRange": func(min, max report.Number) string {
		switch {
		case min.Valid && max.Valid:
			return "$" + min.String() + " - $" + max.String()
		case min.Valid:
			return "$" + min.String()
		case max.Valid:
			return "$" + max.String()
		}
		return "n/a"
	},
	"severityClass": func(v any) string {
		return strings.ToLower(string(report.Severity(fmt.Sprint(v)).Class()))
	},
	"inc": func(i int) int { return i + 1 },
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("Jan 2, 2006 15:04 UTC")
	},
	"kind": func(k report.Kind) string { return string(k) },
	"dict": dict,
}

func dict(kv ...any) (map[string]any, error) {
	if len(kv)%2 != 0 {
		return nil, errors.New("dict needs key/value pairs")
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict key %v is not a string", kv[i])
		}
		m[key] = kv[i+1]
	}
	return m, nil
}
