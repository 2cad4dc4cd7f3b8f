package infrastructure

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"resume-renderer/internal/document"
	"resume-renderer/internal/model"
	"resume-renderer/internal/render"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"golang.org/x/net/publicsuffix"
)

//go:embed templates/resume.html
var resumeHTML string

var resumeTemplate = template.Must(template.New("resume").Parse(resumeHTML))

var (
	markdown = goldmark.New()
	policy   = bluemonday.UGCPolicy()
)

const defaultAccent = "#004f90"

var themeAccents = map[string]string{
	"sb2nov":             "#000000",
	"classic":            "#004f90",
	"moderncv":           "#3e6d9c",
	"engineeringresumes": "#000000",
	"engineeringclassic": "#2e4c6d",
}

var socialProfiles = map[string]string{
	"linkedin":      "https://linkedin.com/in/",
	"github":        "https://github.com/",
	"gitlab":        "https://gitlab.com/",
	"x":             "https://x.com/",
	"twitter":       "https://x.com/",
	"stackoverflow": "https://stackoverflow.com/users/",
}

// ChromiumEngine typesets documents in-process: the document is rendered to
// HTML and printed to an A4 PDF by headless Chromium. It is the fallback when
// the external engine binary is not installed.
type ChromiumEngine struct {
	ChromePath string
	Timeout    time.Duration
}

func NewChromiumEngine(chromePath string, timeout time.Duration) *ChromiumEngine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChromiumEngine{ChromePath: chromePath, Timeout: timeout}
}

// Render implements render.Engine. Documents that cannot be laid out are
// reported as a non-zero exit; a browser that cannot be driven is an error.
func (e *ChromiumEngine) Render(ctx context.Context, docPath, outDir string) (render.EngineOutput, error) {
	raw, err := os.ReadFile(docPath)
	if err != nil {
		return render.EngineOutput{}, fmt.Errorf("read document: %w", err)
	}
	doc, err := model.Parse(string(raw))
	if err != nil {
		return render.EngineOutput{Stderr: "invalid document: " + err.Error(), ExitCode: 1}, nil
	}
	html, err := BuildHTML(doc)
	if err != nil {
		return render.EngineOutput{Stderr: "layout failed: " + err.Error(), ExitCode: 1}, nil
	}

	pdf, err := e.print(ctx, html)
	if err != nil {
		return render.EngineOutput{}, fmt.Errorf("chromium: %w", err)
	}
	name := document.ExpectedFilename(doc.CV.Name)
	if err := os.WriteFile(filepath.Join(outDir, name), pdf, 0o644); err != nil {
		return render.EngineOutput{}, fmt.Errorf("write pdf: %w", err)
	}
	return render.EngineOutput{Stdout: fmt.Sprintf("Rendered %s (%d bytes)\n", name, len(pdf))}, nil
}

func (e *ChromiumEngine) print(ctx context.Context, html string) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if e.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(e.ChromePath))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()
	cctx, cancelCtx := chromedp.NewContext(allocCtx)
	defer cancelCtx()
	runCtx, cancelRun := context.WithTimeout(cctx, e.Timeout)
	defer cancelRun()

	tmpDir, err := os.MkdirTemp("", "resume-html-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)
	htmlPath := filepath.Join(tmpDir, "index.html")
	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		return nil, err
	}

	var buf []byte
	err = chromedp.Run(runCtx,
		chromedp.Navigate("file://"+htmlPath),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			// A4: 210mm x 297mm -> 8.27 x 11.69 inches
			buf, _, err = page.PrintToPDF().WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

type contactView struct {
	Text string
	Href template.URL
}

type entryView struct {
	Heading    string
	Subheading string
	Period     string
	Location   string
	Href       string
	LinkLabel  string
	Body       template.HTML
	Highlights []template.HTML
}

type sectionView struct {
	Title   string
	Entries []entryView
}

type pageView struct {
	Name     string
	Label    string
	Accent   string
	Contact  []contactView
	Sections []sectionView
}

// BuildHTML lays out a parsed document as a standalone HTML page.
func BuildHTML(doc *model.Document) (string, error) {
	cv := doc.CV
	view := pageView{
		Name:   strings.TrimSpace(cv.Name),
		Label:  cv.Label,
		Accent: defaultAccent,
	}
	if view.Name == "" {
		view.Name = document.DefaultName
	}
	if accent, ok := themeAccents[strings.ToLower(doc.Design.Theme)]; ok {
		view.Accent = accent
	}
	view.Contact = contacts(cv)

	for _, sec := range cv.OrderedSections() {
		sv := sectionView{Title: sec.Title}
		for _, e := range sec.Entries {
			ev, err := entry(e)
			if err != nil {
				return "", fmt.Errorf("section %s: %w", sec.Title, err)
			}
			sv.Entries = append(sv.Entries, ev)
		}
		view.Sections = append(view.Sections, sv)
	}

	var buf bytes.Buffer
	if err := resumeTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func contacts(cv model.CV) []contactView {
	var out []contactView
	if cv.Location != "" {
		out = append(out, contactView{Text: cv.Location})
	}
	if cv.Email != "" {
		out = append(out, contactView{Text: cv.Email, Href: template.URL("mailto:" + cv.Email)})
	}
	if cv.Phone != "" {
		out = append(out, contactView{Text: cv.Phone, Href: template.URL("tel:" + strings.ReplaceAll(cv.Phone, " ", ""))})
	}
	if cv.Website != "" {
		out = append(out, contactView{Text: LinkLabel(cv.Website), Href: template.URL(withScheme(cv.Website))})
	}
	for _, sn := range cv.SocialNetworks {
		c := contactView{Text: sn.Network + ": " + sn.Username}
		if base, ok := socialProfiles[strings.ToLower(sn.Network)]; ok {
			c.Href = template.URL(base + strings.TrimPrefix(sn.Username, "@"))
		}
		out = append(out, c)
	}
	return out
}

func entry(e model.Entry) (entryView, error) {
	var ev entryView
	var err error
	switch {
	case e.Text != "":
		ev.Body, err = renderMarkdown(e.Text)
		return ev, err
	case e.Bullet != "":
		h, err := renderInline(e.Bullet)
		ev.Highlights = []template.HTML{h}
		return ev, err
	}

	ev.Heading = e.Heading()
	ev.Subheading = e.Subheading()
	ev.Period = e.Period()
	ev.Location = e.Location
	if e.URL != "" {
		ev.Href = withScheme(e.URL)
		ev.LinkLabel = LinkLabel(e.URL)
	}
	if e.Summary != "" {
		if ev.Body, err = renderMarkdown(e.Summary); err != nil {
			return ev, err
		}
	}
	for _, h := range e.Highlights {
		item, err := renderInline(h)
		if err != nil {
			return ev, err
		}
		ev.Highlights = append(ev.Highlights, item)
	}
	return ev, nil
}

// renderMarkdown converts entry text to sanitized HTML.
func renderMarkdown(s string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(s), &buf); err != nil {
		return "", err
	}
	return template.HTML(policy.SanitizeBytes(buf.Bytes())), nil
}

// renderInline is renderMarkdown without the enclosing paragraph.
func renderInline(s string) (template.HTML, error) {
	h, err := renderMarkdown(s)
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(string(h))
	if strings.HasPrefix(out, "<p>") && strings.HasSuffix(out, "</p>") && strings.Count(out, "<p>") == 1 {
		out = strings.TrimSuffix(strings.TrimPrefix(out, "<p>"), "</p>")
	}
	return template.HTML(out), nil
}

// LinkLabel shortens a URL to its registrable domain plus path, e.g.
// "https://www.github.com/jane/" becomes "github.com/jane".
// Hosts under a public suffix such as github.io keep their own label.
func LinkLabel(raw string) string {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return ""
	}
	u, err := url.Parse(withScheme(candidate))
	if err != nil || u.Hostname() == "" {
		return candidate
	}
	host := u.Hostname()
	if etld, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		host = etld
	}
	label := strings.TrimPrefix(host, "www.")
	if p := strings.Trim(u.Path, "/"); p != "" {
		label += "/" + p
	}
	return label
}

func withScheme(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	return "https://" + s
}
