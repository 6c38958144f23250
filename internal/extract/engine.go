// Package extract pulls holder name, status and expiration out of a
// jurisdiction results page. Each field is resolved independently by an
// ordered rule chain; heuristics fail soft to the Unknown sentinel.
package extract

import (
	"bytes"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/license-verify/internal/metrics"
	"github.com/sells-group/license-verify/internal/model"
)

const (
	maxNameLen   = 160
	maxStatusLen = 200
)

// Fields is the outcome of extracting one page.
type Fields struct {
	Name       string
	Status     model.Status
	StatusText string
	Expiration string
}

// Engine evaluates extraction rules. It is safe for concurrent use.
type Engine struct {
	metrics *metrics.Metrics
	// candidates is swapped in tests to simulate a failing rule.
	candidates func(*page, model.ExtractionRule) []string
}

// New creates an Engine. m may be nil.
func New(m *metrics.Metrics) *Engine {
	return &Engine{metrics: m, candidates: (*page).candidates}
}

// Extract resolves every field of content using rules followed by the
// generic heuristics. It never fails: unresolved fields stay Unknown.
func (e *Engine) Extract(content []byte, rules model.FieldRules) Fields {
	out := Fields{Name: model.Unknown, Status: model.StatusUnknown, Expiration: model.Unknown}

	p, err := newPage(content)
	if err != nil {
		zap.L().Warn("extract: parse page", zap.Error(err))
		for _, f := range []string{"name", "status", "expiration"} {
			e.metrics.IncrementExtractionGap(f)
		}
		return out
	}

	if v, ok := e.field("name", p, chain(rules.Name, GenericNameRules()), acceptName); ok {
		out.Name = v
	}
	if v, ok := e.field("status", p, chain(rules.Status, GenericStatusRules()), acceptStatus); ok {
		out.StatusText = v
		out.Status = NormalizeStatus(v)
	}
	if v, ok := e.field("expiration", p, chain(rules.Expiration, GenericExpirationRules()), NormalizeDate); ok {
		out.Expiration = v
	}
	return out
}

func chain(specific, generic []model.ExtractionRule) []model.ExtractionRule {
	out := make([]model.ExtractionRule, 0, len(specific)+len(generic))
	out = append(out, specific...)
	return append(out, generic...)
}

// field walks one rule chain and returns the first candidate accept admits.
// A panic anywhere in the chain only costs this field.
func (e *Engine) field(name string, p *page, rules []model.ExtractionRule, accept func(string) (string, bool)) (v string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("extract: rule chain panicked", zap.String("field", name), zap.Any("panic", r))
			v, ok = "", false
		}
		if !ok {
			e.metrics.IncrementExtractionGap(name)
		}
	}()

	for _, rule := range rules {
		for _, c := range e.candidates(p, rule) {
			if v, ok := accept(c); ok {
				return v, true
			}
		}
	}
	return "", false
}

// page is a parsed document plus its lazily rendered text.
type page struct {
	doc      *goquery.Document
	textOnce sync.Once
	text     string

	resultsOnce sync.Once
	results     string
}

func newPage(content []byte) (*page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	return &page{doc: doc}, nil
}

func (p *page) renderedText() string {
	p.textOnce.Do(func() {
		if len(p.doc.Nodes) > 0 {
			p.text = renderText(p.doc.Nodes[0], nil)
		}
	})
	return p.text
}

// resultsText is the rendered text with search forms left out. Pages that
// wrap everything in one form (ASP.NET) fall back to the full text minus
// form controls.
func (p *page) resultsText() string {
	p.resultsOnce.Do(func() {
		if len(p.doc.Nodes) == 0 {
			return
		}
		root := p.doc.Nodes[0]
		p.results = renderText(root, skipForms)
		if p.results == "" {
			p.results = renderText(root, skipFormControls)
		}
	})
	return p.results
}

// candidates returns every raw value a rule produces, in document order.
func (p *page) candidates(rule model.ExtractionRule) []string {
	switch rule.Kind {
	case model.RuleSelector:
		return p.selectorValues(rule.Selector, rule.Attr)
	case model.RuleSelectorSet:
		var out []string
		for _, sel := range rule.Selectors {
			out = append(out, p.selectorValues(sel, "")...)
		}
		return out
	case model.RuleLabel:
		return p.labelValues(rule.Labels)
	case model.RulePattern:
		text := p.renderedText
		if rule.SkipForms {
			text = p.resultsText
		}
		return patternValues(text(), rule.Patterns)
	default:
		return nil
	}
}

// selectorValues never fails: goquery treats an invalid selector as one
// that matches nothing.
func (p *page) selectorValues(sel, attr string) []string {
	if strings.TrimSpace(sel) == "" {
		return nil
	}
	var out []string
	p.doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
		var v string
		if attr != "" {
			v, _ = s.Attr(attr)
		} else {
			v = s.Text()
		}
		if v = collapse(v); v != "" {
			out = append(out, v)
		}
	})
	return out
}

const (
	labelCandidates = "th, td, dt, label, span, strong, b, div, p, li"
	containerTags   = "div, p, table, tbody, tr, td, th, ul, ol, li, dl, dt, dd, section, form"
	formControls    = "select, input, textarea, button"
)

// labelValues finds elements whose own text is one of labels and returns
// the value next to each: the inline remainder of "Label: value", else the
// next sibling element, else the text following the label's parent.
func (p *page) labelValues(labels []string) []string {
	var out []string
	p.doc.Find(labelCandidates).Each(func(_ int, s *goquery.Selection) {
		if s.Children().Filter(containerTags).Length() > 0 {
			return
		}
		text := collapse(s.Text())
		if text == "" || len(text) > 200 {
			return
		}
		for _, l := range labels {
			inline, ok := matchLabel(text, l)
			if !ok {
				continue
			}
			if inline != "" {
				out = append(out, inline)
			} else if v := adjacentValue(s); v != "" {
				out = append(out, v)
			}
			return
		}
	})
	return out
}

func matchLabel(text, label string) (string, bool) {
	label = strings.TrimSuffix(strings.TrimSpace(label), ":")
	if label == "" {
		return "", false
	}
	bare := strings.TrimSpace(strings.TrimSuffix(text, ":"))
	if strings.EqualFold(bare, label) {
		return "", true
	}
	if len(text) <= len(label) || !strings.EqualFold(text[:len(label)], label) {
		return "", false
	}
	rest := strings.TrimSpace(text[len(label):])
	if !strings.HasPrefix(rest, ":") {
		return "", false
	}
	return strings.TrimSpace(rest[1:]), true
}

func adjacentValue(s *goquery.Selection) string {
	if next := s.Next(); next.Is(formControls) {
		return ""
	} else if next.Length() > 0 {
		if v := collapse(next.Text()); v != "" {
			return v
		}
	}
	parent := s.Parent()
	if parent.Length() == 0 || goquery.NodeName(parent) == "body" {
		return ""
	}
	return collapse(parent.Next().Text())
}

var patternCache sync.Map // string -> *regexp.Regexp (nil when invalid)

func compilePattern(src string) *regexp.Regexp {
	if v, ok := patternCache.Load(src); ok {
		re, _ := v.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile(src)
	if err != nil {
		zap.L().Warn("extract: invalid pattern", zap.String("pattern", src), zap.Error(err))
		re = nil
	}
	patternCache.Store(src, re)
	return re
}

// patternValues returns the first capture group (or whole match) of every
// match of every pattern against text.
func patternValues(text string, patterns []string) []string {
	var out []string
	for _, src := range patterns {
		re := compilePattern(src)
		if re == nil {
			continue
		}
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			v := m[0]
			if len(m) > 1 {
				v = m[1]
			}
			if v = collapse(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// nonNames are values that are really labels or placeholders.
var nonNames = map[string]bool{
	"name": true, "business name": true, "licensee": true, "licensee name": true,
	"company name": true, "status": true, "license status": true, "license": true,
	"license number": true, "expiration": true, "expiration date": true,
	"n/a": true, "na": true, "none": true, "unknown": true, "not available": true,
	"search": true, "results": true, "search results": true,
}

func acceptName(raw string) (string, bool) {
	v := strings.Trim(collapse(raw), " :;,")
	if len(v) < 2 || len(v) > maxNameLen {
		return "", false
	}
	if !strings.ContainsFunc(v, unicode.IsLetter) {
		return "", false
	}
	if nonNames[strings.ToLower(v)] {
		return "", false
	}
	return titleIfShouting(v), true
}

// titleIfShouting title-cases names that are entirely upper case.
func titleIfShouting(s string) string {
	if s != strings.ToUpper(s) || s == strings.ToLower(s) {
		return s
	}
	return cases.Title(language.English).String(s)
}

func acceptStatus(raw string) (string, bool) {
	v := stripStatusLabel(collapse(raw))
	if v == "" || len(v) > maxStatusLen || IsStatusLabel(v) {
		return "", false
	}
	if NormalizeStatus(v) == model.StatusUnknown {
		return "", false
	}
	return v, true
}
