package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"

	"github.com/samber/lo"
	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/digest/internal/database"
	"github.com/TobiSchelling/digest/internal/news"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the HTTP server for browsing archived digests.
type Server struct {
	db    *database.DB
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// DayGroup lists the digests generated for one day.
type DayGroup struct {
	Day     string
	Digests []database.Digest
}

// New creates a new Server.
func New(db *database.DB) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":  renderMarkdown,
		"formatDay": database.FormatDayDisplay,
		"sourceName": func(s string) string {
			if news.Source(s) == news.HackerNews {
				return "Hacker News"
			}
			return "V2EX"
		},
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of the base so that its
	// {{define "content"}} and {{define "title"}} do not collide.
	pageNames := []string{"index.html", "digest.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/digest/", s.handleDigest)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	digests, err := s.db.GetAllDigests()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Days": groupByDay(digests),
	})
}

// groupByDay keeps the newest-first order of digests.
func groupByDay(digests []database.Digest) []DayGroup {
	byDay := lo.GroupBy(digests, func(d database.Digest) string { return d.Day })
	days := lo.Uniq(lo.Map(digests, func(d database.Digest, _ int) string { return d.Day }))
	return lo.Map(days, func(day string, _ int) DayGroup {
		return DayGroup{Day: day, Digests: byDay[day]}
	})
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(strings.Trim(strings.TrimPrefix(r.URL.Path, "/digest/"), "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	source, day := parts[0], parts[1]

	digest, err := s.db.GetDigest(source, day)
	if err != nil {
		log.Printf("Loading digest %s/%s: %v", source, day, err)
	}
	if digest == nil {
		w.WriteHeader(http.StatusNotFound)
	}

	s.render(w, "digest.html", map[string]any{
		"Digest": digest,
		"Source": source,
		"Day":    day,
	})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, port int) error {
	srv, err := New(db)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
