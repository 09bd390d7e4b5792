package validator

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aeodev/aiscrape/pkg/models"
)

const (
	minScoreDefault      = 0.5
	needsInteractionBelow = 0.4
)

// RunRules parses ctx.HTML once with goquery, executes every rule in rules
// against ctx and that document (nil if ctx.HTML didn't parse or was
// empty), and returns each rule's outcome.
func RunRules(ctx models.ValidationContext, rules []Rule) []models.RuleCheck {
	var doc *goquery.Document
	if strings.TrimSpace(ctx.HTML) != "" {
		if parsed, err := goquery.NewDocumentFromReader(strings.NewReader(ctx.HTML)); err == nil {
			doc = parsed
		}
	}

	out := make([]models.RuleCheck, 0, len(rules))
	for _, rule := range rules {
		out = append(out, rule.Check(ctx, doc))
	}
	return out
}

// Score computes the four-bin quality score and overall verdict from a set
// of rule outcomes, matched back against rules for category/weight lookup.
func Score(checks []models.RuleCheck, rules []Rule) models.QualityScore {
	weightByName := make(map[string]float64, len(rules))
	binByName := make(map[string]string, len(rules))
	for _, r := range rules {
		weightByName[r.Name] = r.Weight
		binByName[r.Name] = binFor(r.Category)
	}

	binTotals := map[string]float64{}
	binWeights := map[string]float64{}
	for _, c := range checks {
		bin := binByName[c.Name]
		w := weightByName[c.Name]
		if bin == "" || w == 0 {
			continue
		}
		binTotals[bin] += c.Score * w
		binWeights[bin] += w
	}

	binAvg := func(bin string) float64 {
		if binWeights[bin] == 0 {
			return 1.0
		}
		return binTotals[bin] / binWeights[bin]
	}

	q := models.QualityScore{
		Completeness: binAvg(BinCompleteness),
		Relevance:    binAvg(BinRelevance),
		Structure:    binAvg(BinStructure),
		Quality:      binAvg(BinQuality),
	}
	q.Overall = 0.30*q.Completeness + 0.25*q.Relevance + 0.20*q.Structure + 0.15*q.Quality
	return q
}

// Verdict converts a quality score into sufficiency flags against the
// given minimum-score threshold.
func Verdict(q models.QualityScore, minScore float64) (sufficient, needsInteraction bool) {
	if minScore <= 0 {
		minScore = minScoreDefault
	}
	return q.Overall >= minScore, q.Overall < needsInteractionBelow
}
