package rules

import (
	"fmt"
	"strings"

	"github.com/vbonduro/segnalazioni/internal/domain"
)

// GuidedFields are the structured answers of the guided form.
type GuidedFields struct {
	Issue     string
	Timeframe string
	Impact    string
	Details   string
}

var guidedPrefixes = map[domain.Category]string{
	domain.CategoryWaste:    "Rifiuti abbandonati",
	domain.CategoryLighting: "Guasto illuminazione/semaforo",
	domain.CategoryPavement: "Dissesto stradale",
	domain.CategoryGreenery: "Problema verde pubblico",
	domain.CategoryOther:    "Segnalazione",
}

// GuidedDescription composes the description text for category from the
// guided answers. Details are appended only when present.
func GuidedDescription(category domain.Category, f GuidedFields) string {
	prefix, ok := guidedPrefixes[category]
	if !ok {
		prefix = guidedPrefixes[domain.CategoryOther]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s. Da quanto tempo: %s. Rischi/impatto: %s.",
		prefix, trimDot(f.Issue), trimDot(f.Timeframe), trimDot(f.Impact))
	if d := trimDot(f.Details); d != "" {
		fmt.Fprintf(&b, " Dettagli: %s.", d)
	}
	return b.String()
}

func trimDot(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ".")
}

func (f GuidedFields) trimmed() GuidedFields {
	return GuidedFields{
		Issue:     strings.TrimSpace(f.Issue),
		Timeframe: strings.TrimSpace(f.Timeframe),
		Impact:    strings.TrimSpace(f.Impact),
		Details:   strings.TrimSpace(f.Details),
	}
}

func (f GuidedFields) empty() bool {
	return f.Issue == "" && f.Timeframe == "" && f.Impact == ""
}

func (f GuidedFields) check() error {
	checks := []struct {
		field string
		value string
		min   int
	}{
		{"issue", f.Issue, MinIssueLen},
		{"timeframe", f.Timeframe, MinTimeframeLen},
		{"impact", f.Impact, MinImpactLen},
	}
	for _, c := range checks {
		if validate.Var(c.value, fmt.Sprintf("min=%d", c.min)) != nil {
			return invalid(c.field, "%s must be at least %d characters", c.field, c.min)
		}
	}
	return nil
}
