package assistant

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Family is a tag family the extractor knows how to parse.
type Family int

const (
	FamilyRoute Family = iota + 1
	FamilyUpgrade
)

func (f Family) String() string {
	switch f {
	case FamilyRoute:
		return "route"
	case FamilyUpgrade:
		return "upgrade_intent"
	default:
		return "none"
	}
}

// DirectiveKind discriminates Directive.
type DirectiveKind int

const (
	DirectiveNone DirectiveKind = iota
	DirectiveRoute
	DirectiveUpgrade
)

func (k DirectiveKind) String() string {
	switch k {
	case DirectiveRoute:
		return "route"
	case DirectiveUpgrade:
		return "upgrade_intent"
	default:
		return "none"
	}
}

// Directive is the parsed machine channel of a model reply. Exactly one of
// Route and Upgrade is set when Kind is not DirectiveNone.
type Directive struct {
	Kind    DirectiveKind
	Route   *RouteDirective
	Upgrade *UpgradeIntent
}

// RouteDirective sends the user to a vehicle's repair hub.
type RouteDirective struct {
	Year  int
	Make  string
	Model string
}

// Target is the site path for the vehicle.
func (r RouteDirective) Target() string {
	return fmt.Sprintf("/repair/%d/%s/%s", r.Year, r.Make, r.Model)
}

// Label is a display name such as "2018 Land-Rover Range-Rover".
func (r RouteDirective) Label() string {
	return fmt.Sprintf("%d %s %s", r.Year, titleToken(r.Make), titleToken(r.Model))
}

// Tag renders the directive in its wire form.
func (r RouteDirective) Tag() string {
	return fmt.Sprintf("[ROUTE year=%d make=%s model=%s]", r.Year, r.Make, r.Model)
}

// UpgradeReason names the Pro feature the user asked about.
type UpgradeReason string

const (
	ReasonPDFExport            UpgradeReason = "pdf_export"
	ReasonSavedVehicles        UpgradeReason = "saved_vehicles"
	ReasonUnlimitedDiagnostics UpgradeReason = "unlimited_diagnostics"
	ReasonRepairHistory        UpgradeReason = "repair_history"
	ReasonOther                UpgradeReason = "other"
)

func normalizeReason(s string) UpgradeReason {
	switch r := UpgradeReason(strings.ToLower(s)); r {
	case ReasonPDFExport, ReasonSavedVehicles, ReasonUnlimitedDiagnostics, ReasonRepairHistory:
		return r
	default:
		return ReasonOther
	}
}

// UpgradeIntent records that the user showed interest in a paid feature.
type UpgradeIntent struct {
	Reason UpgradeReason
}

// Tag renders the intent in its wire form.
func (u UpgradeIntent) Tag() string {
	return fmt.Sprintf("[UPGRADE_INTENT reason=%s]", u.Reason)
}

const minModelYear = 1900

const token = `[a-z0-9]+(?:-[a-z0-9]+)*`

// Leading horizontal whitespace is consumed so stripping does not leave a
// dangling space where the tag was.
var (
	routeTagRe   = regexp.MustCompile(`(?i)[ \t]*\[ROUTE\s+year=(\d{4})\s+make=(` + token + `)\s+model=(` + token + `)\s*\]`)
	upgradeTagRe = regexp.MustCompile(`(?i)[ \t]*\[UPGRADE_INTENT\s+reason=([a-z][a-z0-9_]*)\s*\]`)
)

// Extractor parses directive tags out of model text.
type Extractor struct {
	now func() time.Time
}

// NewExtractor returns an extractor that validates years against the clock.
func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// Extract scans text for the given families in order. The first family
// with a well-formed tag wins: its first tag supplies the directive and
// every well-formed tag of that family is removed from the visible text.
// Route tags whose year is out of range yield no directive but are still
// removed. Text without a matching tag is returned unchanged.
func (e *Extractor) Extract(text string, families ...Family) (Directive, string) {
	for _, f := range families {
		switch f {
		case FamilyRoute:
			d, clean, ok := e.extractRoute(text)
			if ok {
				return d, clean
			}
			text = clean
		case FamilyUpgrade:
			if d, clean, ok := extractUpgrade(text); ok {
				return d, clean
			}
		}
	}
	return Directive{}, text
}

// extractRoute returns the first in-range route tag. Every tag matching the
// grammar is stripped, so a tag naming an impossible year never reaches the
// user even though it carries no directive.
func (e *Extractor) extractRoute(text string) (Directive, string, bool) {
	maxYear := e.now().Year() + 1

	matches := routeTagRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return Directive{}, text, false
	}

	var first *RouteDirective
	spans := make([][]int, 0, len(matches))
	for _, m := range matches {
		spans = append(spans, m[:2])
		if first != nil {
			continue
		}
		year, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil || year < minModelYear || year > maxYear {
			continue
		}
		first = &RouteDirective{
			Year:  year,
			Make:  strings.ToLower(text[m[4]:m[5]]),
			Model: strings.ToLower(text[m[6]:m[7]]),
		}
	}
	if first == nil {
		return Directive{}, strip(text, spans), false
	}
	return Directive{Kind: DirectiveRoute, Route: first}, strip(text, spans), true
}

func extractUpgrade(text string) (Directive, string, bool) {
	matches := upgradeTagRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return Directive{}, text, false
	}
	m := matches[0]
	intent := &UpgradeIntent{Reason: normalizeReason(text[m[2]:m[3]])}

	spans := make([][]int, 0, len(matches))
	for _, m := range matches {
		spans = append(spans, m[:2])
	}
	return Directive{Kind: DirectiveUpgrade, Upgrade: intent}, strip(text, spans), true
}

// strip removes the given [start,end) spans, which must be ordered and
// non-overlapping, and trims the result.
func strip(text string, spans [][]int) string {
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s[0]])
		last = s[1]
	}
	b.WriteString(text[last:])
	return strings.TrimSpace(b.String())
}

func titleToken(s string) string {
	parts := strings.Split(s, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "-")
}
