// Package journey describes the multi-step transactions a virtual worker runs:
// the ordered steps, how each step's form is filled, what a response must
// satisfy, and how an offer is picked from an extracted list.
package journey

import (
	"fmt"
	"net/url"
	"regexp"
	"text/template"
	"time"

	"bookload/internal/extract"
)

// Field is one form field of a step's request.
//
// Value is static text, or a template rendered per instance. When Bind names a
// field of the offer selected earlier in the journey and that offer carries it,
// the offer's value is sent instead; Value is then only the fallback.
type Field struct {
	Name  string
	Value string
	Bind  string

	tmpl   *template.Template
	engine *TemplateEngine
}

// Predicate is a check a step's response must pass.
type Predicate interface {
	// Name labels the check in diagnostics, e.g. "confirm: 200".
	Name() string
	Check(status int, body string) bool
	// Body reports whether the check reads the body. Failures of body checks
	// carry a snippet of the body in their diagnostic.
	Body() bool
}

// Step is one request of a journey.
type Step struct {
	Name       string // metric tag
	Path       string
	Fields     []Field
	Predicates []Predicate

	// Extractor, when set, parses offers out of the response body. The step
	// fails if no offer is found.
	Extractor *extract.Extractor
}

// ThinkTime is the range of the pause between two steps.
type ThinkTime struct {
	Min time.Duration
	Max time.Duration
}

// Draw returns a pause uniformly distributed in [Min, Max].
func (t ThinkTime) Draw(r Rand) time.Duration {
	if t.Max <= t.Min {
		return t.Min
	}
	return t.Min + time.Duration(r.Float64()*float64(t.Max-t.Min))
}

// Spec is an immutable journey definition.
type Spec struct {
	ID       string
	Steps    []Step
	Think    ThinkTime
	Selector Selector
}

// Validate reports structural problems that would make every instance fail.
func (s Spec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("journey has no id")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("journey %s has no steps", s.ID)
	}
	for _, st := range s.Steps {
		if st.Name == "" || st.Path == "" {
			return fmt.Errorf("journey %s: step needs a name and a path", s.ID)
		}
		if st.Extractor != nil && s.Selector == nil {
			return fmt.Errorf("journey %s: step %s extracts offers but no selector is set", s.ID, st.Name)
		}
	}
	return nil
}

// Form renders the step's request fields for one instance. offer may be nil.
func (s Step) Form(data TemplateData, offer extract.Record) (url.Values, error) {
	form := make(url.Values, len(s.Fields))
	for _, f := range s.Fields {
		if f.Bind != "" {
			if v, ok := offer.Get(f.Bind); ok {
				form.Set(f.Name, v)
				continue
			}
		}

		v := f.Value
		if f.tmpl != nil {
			var err error
			if v, err = f.engine.Execute(f.tmpl, data); err != nil {
				return nil, fmt.Errorf("render %s.%s: %w", s.Name, f.Name, err)
			}
		}
		form.Set(f.Name, v)
	}
	return form, nil
}

type statusIs struct {
	step string
	code int
}

// Status requires the response status code to equal code.
func Status(step string, code int) Predicate {
	return statusIs{step: step, code: code}
}

func (p statusIs) Name() string { return fmt.Sprintf("%s: %d", p.step, p.code) }
func (p statusIs) Check(status int, _ string) bool { return status == p.code }
func (p statusIs) Body() bool { return false }

type bodyMatches struct {
	name string
	re   *regexp.Regexp
}

// BodyContains requires marker to appear in the body, ignoring case.
func BodyContains(name, marker string) Predicate {
	return bodyMatches{name: name, re: regexp.MustCompile("(?i)" + regexp.QuoteMeta(marker))}
}

// BodyMatches requires the body to match the regular expression.
func BodyMatches(name string, re *regexp.Regexp) Predicate {
	return bodyMatches{name: name, re: re}
}

func (p bodyMatches) Name() string { return p.name }
func (p bodyMatches) Check(_ int, body string) bool { return p.re.MatchString(body) }
func (p bodyMatches) Body() bool { return true }
