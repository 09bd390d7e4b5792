package extraction

import (
	"context"
	"html"
	"net/mail"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aeodev/aiscrape/pkg/models"
)

// Rule is one field-extraction instruction within a RuleSet.
type Rule struct {
	Name       string
	EntityType models.EntityType
	Selector   string
	XPath      string
	Regex      string
	Attribute  string
	Text       bool
	Transform  string
	Confidence float64
	Required   bool
	Multiple   bool
}

// RuleSet is a named, prioritized group of rules.
type RuleSet struct {
	Name     string
	Priority int
	Enabled  bool
	Rules    []Rule
}

// RuleBasedStrategy evaluates a prioritized list of rule sets against
// parsed HTML to build entities, per spec.md §4.4's rule-based backend.
type RuleBasedStrategy struct {
	ruleSets []RuleSet
}

// NewRuleBasedStrategy constructs a strategy over the given rule sets.
func NewRuleBasedStrategy(ruleSets []RuleSet) *RuleBasedStrategy {
	return &RuleBasedStrategy{ruleSets: ruleSets}
}

func (s *RuleBasedStrategy) Name() string          { return "rule-based" }
func (s *RuleBasedStrategy) Type() StrategyType     { return StrategyRuleBased }
func (s *RuleBasedStrategy) IsAvailable(_ context.Context) bool { return len(s.ruleSets) > 0 }

func (s *RuleBasedStrategy) Extract(_ context.Context, ectx Context) Result {
	start := time.Now()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(ectx.HTML))
	if err != nil {
		return Result{Success: false, Strategy: StrategyRuleBased, Error: err.Error(), ExecutionTimeMS: time.Since(start).Milliseconds()}
	}

	sorted := make([]RuleSet, len(s.ruleSets))
	copy(sorted, s.ruleSets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	var entities []models.Entity
	requiredFailed := false

	for _, rs := range sorted {
		if !rs.Enabled {
			continue
		}
		for _, rule := range rs.Rules {
			if !entityTypeMatches(rule.EntityType, ectx.EntityTypes) {
				continue
			}
			values := evaluateRule(doc, ectx.Text, rule)
			if len(values) == 0 {
				if rule.Required {
					requiredFailed = true
				}
				continue
			}
			for _, v := range values {
				entities = append(entities, buildEntity(rule, v))
				if !rule.Multiple {
					break
				}
			}
		}
	}

	entities = DedupEntities(entities)

	if requiredFailed {
		return Result{
			Success:         false,
			Entities:        entities,
			Strategy:        StrategyRuleBased,
			Error:           "a required rule produced no value",
			ExecutionTimeMS: time.Since(start).Milliseconds(),
		}
	}

	return Result{
		Success:         true,
		Entities:        entities,
		Confidence:      averageConfidence(entities),
		Strategy:        StrategyRuleBased,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}
}

func entityTypeMatches(t models.EntityType, want []models.EntityType) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if w == t {
			return true
		}
	}
	return false
}

func evaluateRule(doc *goquery.Document, fullText string, rule Rule) []string {
	var raw []string

	switch {
	case rule.Selector != "":
		doc.Find(rule.Selector).Each(func(_ int, sel *goquery.Selection) {
			raw = append(raw, extractSelectionValue(sel, rule))
		})
	case rule.Regex != "":
		re, err := regexp.Compile(rule.Regex)
		if err != nil {
			return nil
		}
		source := fullText
		if source == "" {
			source, _ = doc.Html()
		}
		for _, m := range re.FindAllStringSubmatch(source, -1) {
			if len(m) > 1 {
				raw = append(raw, m[1])
			} else {
				raw = append(raw, m[0])
			}
		}
	case rule.XPath != "":
		// XPath is not supported by goquery; rule authors should prefer
		// Selector/Regex. A rule with only XPath set yields nothing.
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, v := range raw {
		v = applyTransform(v, rule.Transform)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func extractSelectionValue(sel *goquery.Selection, rule Rule) string {
	if rule.Attribute != "" {
		v, _ := sel.Attr(rule.Attribute)
		return v
	}
	return sel.Text()
}

func applyTransform(v, transform string) string {
	v = strings.TrimSpace(v)
	switch transform {
	case "trim":
		return strings.TrimSpace(v)
	case "lowercase":
		return strings.ToLower(v)
	case "parseNumber":
		cleaned := regexp.MustCompile(`[^0-9.\-]`).ReplaceAllString(v, "")
		if _, err := strconv.ParseFloat(cleaned, 64); err != nil {
			return ""
		}
		return cleaned
	case "parseDate":
		for _, layout := range []string{time.RFC3339, "2006-01-02", "01/02/2006", "Jan 2, 2006"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.Format(time.RFC3339)
			}
		}
		return ""
	case "parseEmail":
		if _, err := mail.ParseAddress(v); err != nil {
			return ""
		}
		return v
	case "parsePhone":
		digits := regexp.MustCompile(`[^0-9+]`).ReplaceAllString(v, "")
		if len(digits) < 7 {
			return ""
		}
		return digits
	case "parseUrl":
		if _, err := url.Parse(v); err != nil {
			return ""
		}
		return v
	case "extractDomain":
		u, err := url.Parse(v)
		if err != nil || u.Hostname() == "" {
			return ""
		}
		return u.Hostname()
	case "removeHtml":
		return html.UnescapeString(stripTags(v))
	default:
		return v
	}
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

func buildEntity(rule Rule, value string) models.Entity {
	confidence := rule.Confidence
	if confidence == 0 {
		confidence = 0.8
	}
	data := map[string]interface{}{}

	switch rule.EntityType {
	case models.EntityContact:
		if strings.Contains(value, "@") {
			data["email"] = value
		} else {
			data["phone"] = value
		}
	default:
		data[rule.Name] = value
	}

	return models.Entity{
		Type:       rule.EntityType,
		Data:       data,
		Confidence: models.ClampConfidence(confidence),
		Source:     "rule:" + rule.Name,
	}
}

func averageConfidence(entities []models.Entity) float64 {
	if len(entities) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entities {
		sum += e.Confidence
	}
	return sum / float64(len(entities))
}
