// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package enrich

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/meridianops/meridian/internal/models"
)

// Fallback is the deterministic enricher used when no LLM is configured or
// a remote subpass fails. Same input always yields the same output.
type Fallback struct{}

// NewFallback creates the deterministic enricher.
func NewFallback() *Fallback {
	return &Fallback{}
}

var _ Enricher = (*Fallback)(nil)

// orgSuffixes mark a capitalized phrase as an organization.
var orgSuffixes = []string{
	"ministry", "government", "police", "army", "council", "parliament",
	"university", "agency", "committee", "commission", "union", "authority",
	"corporation", "company", "bank", "court", "embassy", "nations",
	"organization", "organisation", "institute", "federation", "association",
}

// groupMarkers mark a capitalized phrase as a non-state group.
var groupMarkers = []string{
	"front", "brigade", "brigades", "militia", "movement", "party", "group",
	"faction", "cartel", "gang", "network", "cell", "separatists", "rebels",
}

// topicKeywords feed the topics axis of the fallback entity bag.
var topicKeywords = []string{
	"migration", "election", "elections", "strike", "protest", "corruption",
	"ceasefire", "sanctions", "refugees", "flooding", "earthquake", "drought",
	"epidemic", "vaccination", "blackout", "curfew", "kidnapping", "smuggling",
}

// categoryKeywords maps trigger words onto categories. Evaluated in the
// order of categoryOrder; the first category with a hit wins, `other` is
// the terminal default.
var categoryKeywords = map[models.Category][]string{
	models.CategoryCrime: {
		"murder", "robbery", "kidnap", "kidnapping", "theft", "assault",
		"shooting", "stabbing", "smuggling", "trafficking", "arrested", "crime",
	},
	models.CategoryProtest: {
		"protest", "demonstration", "march", "rally", "strike", "riot",
		"unrest", "clashes",
	},
	models.CategoryReligiousFreedom: {
		"church", "mosque", "synagogue", "worship", "blasphemy", "persecution",
		"religious", "christians", "muslims", "congregation",
	},
	models.CategoryHealth: {
		"outbreak", "epidemic", "cholera", "malaria", "hospital", "vaccine",
		"vaccination", "disease", "virus", "quarantine",
	},
	models.CategoryMigration: {
		"migrants", "migration", "refugees", "asylum", "displaced",
		"deportation", "border crossing",
	},
	models.CategoryInfrastructure: {
		"power outage", "blackout", "bridge", "railway", "pipeline",
		"water supply", "road closure", "airport closed", "grid",
	},
	models.CategoryCulturalTension: {
		"ethnic", "discrimination", "hate speech", "vandalism", "desecration",
		"intercommunal", "tribal clashes",
	},
	models.CategoryPolitical: {
		"election", "parliament", "minister", "coup", "government", "senate",
		"legislation", "president", "campaign", "airstrike", "ceasefire",
		"insurgent", "militants",
	},
	models.CategoryWeather: {
		"storm", "heatwave", "snowfall", "rainfall", "forecast", "monsoon",
		"earthquake", "flood", "flooding", "hurricane", "cyclone", "wildfire",
		"landslide", "drought",
	},
	models.CategoryEconomic: {
		"inflation", "currency", "unemployment", "economy", "markets",
		"exports", "fuel prices", "shortage",
	},
	models.CategoryCommunityEvent: {
		"festival", "parade", "concert", "fair", "commemoration", "ceremony",
	},
}

// categoryOrder fixes evaluation priority so overlapping keywords resolve
// deterministically. Safety-relevant categories come first.
var categoryOrder = []models.Category{
	models.CategoryCrime,
	models.CategoryProtest,
	models.CategoryReligiousFreedom,
	models.CategoryHealth,
	models.CategoryMigration,
	models.CategoryInfrastructure,
	models.CategoryCulturalTension,
	models.CategoryPolitical,
	models.CategoryWeather,
	models.CategoryEconomic,
	models.CategoryCommunityEvent,
}

// Sentiment lexicon. Score s = (pos - neg) / matched; |s| < 0.2 is neutral.
var (
	positiveWords = map[string]bool{
		"peace": true, "agreement": true, "resolved": true, "rescued": true,
		"recovered": true, "reopened": true, "released": true, "improved": true,
		"celebration": true, "aid": true, "relief": true, "success": true,
		"stabilized": true, "reunited": true, "vaccinated": true,
	}
	negativeWords = map[string]bool{
		"killed": true, "dead": true, "death": true, "attack": true,
		"violence": true, "injured": true, "wounded": true, "destroyed": true,
		"crisis": true, "threat": true, "fear": true, "riot": true,
		"collapse": true, "outbreak": true, "kidnapped": true, "bomb": true,
		"explosion": true, "famine": true, "looting": true, "casualties": true,
	}
)

const sentimentNeutralBand = 0.2

var wordSplitRe = regexp.MustCompile(`[^\p{L}\p{N}-]+`)

// ExtractEntities fills the five axes from the gazetteer, capitalization
// heuristics, and the topic dictionary.
func (f *Fallback) ExtractEntities(_ context.Context, title, text string) (models.EntityBag, error) {
	full := title + ". " + text
	lower := strings.ToLower(full)

	bag := models.EntityBag{
		Locations: matchGazetteer(full),
	}

	for _, phrase := range capitalizedPhrases(full) {
		phrase = stripLeadingArticle(phrase)
		phraseLower := strings.ToLower(phrase)
		switch {
		case containsAnyWord(phraseLower, orgSuffixes):
			bag.Organizations = appendUnique(bag.Organizations, phrase)
		case containsAnyWord(phraseLower, groupMarkers):
			bag.Groups = appendUnique(bag.Groups, phrase)
		}
	}

	for _, kw := range topicKeywords {
		if containsWord(lower, kw) {
			bag.Topics = appendUnique(bag.Topics, kw)
		}
	}

	// Keywords: the most frequent non-stopword title terms.
	bag.Keywords = titleKeywords(title, 5)

	return bag, nil
}

// Summarize returns the first two sentences of the text, truncated on a
// word boundary at the summary cap. Empty text falls back to the title.
func (f *Fallback) Summarize(_ context.Context, title, text string) (string, error) {
	body := strings.TrimSpace(text)
	if body == "" {
		body = strings.TrimSpace(title)
	}
	return TruncateSummary(firstSentences(body, 2)), nil
}

// Sentiment scores the text against the lexicon; ambiguity is neutral.
func (f *Fallback) Sentiment(_ context.Context, title, text string) (models.Sentiment, error) {
	var pos, neg int
	for _, w := range splitWords(title + " " + text) {
		if positiveWords[w] {
			pos++
		}
		if negativeWords[w] {
			neg++
		}
	}
	matched := pos + neg
	if matched == 0 {
		return models.SentimentNeutral, nil
	}
	s := float64(pos-neg) / float64(matched)
	switch {
	case s >= sentimentNeutralBand:
		return models.SentimentPositive, nil
	case s <= -sentimentNeutralBand:
		return models.SentimentNegative, nil
	default:
		return models.SentimentNeutral, nil
	}
}

// Categorize maps keywords onto the first matching category in priority
// order, defaulting to other.
func (f *Fallback) Categorize(_ context.Context, title, text string) (models.Category, error) {
	lower := strings.ToLower(title + " " + text)
	for _, cat := range categoryOrder {
		for _, kw := range categoryKeywords[cat] {
			if containsWord(lower, kw) {
				return cat, nil
			}
		}
	}
	return models.CategoryOther, nil
}

// TruncateSummary enforces the summary cap, cutting on a word boundary.
func TruncateSummary(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= SummaryMaxChars {
		return s
	}
	cut := s[:SummaryMaxChars]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:")
}

var sentenceEndRe = regexp.MustCompile(`([.!?])\s+`)

// firstSentences returns at most n sentences from the text.
func firstSentences(text string, n int) string {
	marked := sentenceEndRe.ReplaceAllString(text, "$1\x00")
	parts := strings.SplitN(marked, "\x00", n+1)
	if len(parts) > n {
		parts = parts[:n]
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// capitalizedPhrases finds runs of two or more capitalized words. The
// suffix/marker check downstream filters sentence-start false positives.
var capPhraseRe = regexp.MustCompile(`\p{Lu}[\p{L}-]*(?:\s+(?:of\s+|the\s+)?\p{Lu}[\p{L}-]*)+`)

func capitalizedPhrases(text string) []string {
	return capPhraseRe.FindAllString(text, -1)
}

func stripLeadingArticle(phrase string) string {
	for _, art := range []string{"The ", "A ", "An "} {
		if strings.HasPrefix(phrase, art) {
			return strings.TrimSpace(phrase[len(art):])
		}
	}
	return phrase
}

func splitWords(text string) []string {
	raw := wordSplitRe.Split(strings.ToLower(text), -1)
	words := raw[:0]
	for _, w := range raw {
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

func containsWord(lowerText, lowerWord string) bool {
	idx := 0
	for {
		i := strings.Index(lowerText[idx:], lowerWord)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(lowerWord)
		beforeOK := start == 0 || !isWordByte(lowerText[start-1])
		afterOK := end == len(lowerText) || !isWordByte(lowerText[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func containsAnyWord(lowerText string, words []string) bool {
	for _, w := range words {
		if containsWord(lowerText, w) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, item string) []string {
	for _, x := range list {
		if strings.EqualFold(x, item) {
			return list
		}
	}
	return append(list, item)
}

// titleStopwords excludes connective words from the keywords axis. The
// fusion text score carries its own stop-list.
var titleStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "over": true,
	"with": true, "from": true, "by": true, "as": true, "is": true, "are": true,
	"was": true, "were": true, "after": true, "before": true, "amid": true,
	"into": true, "its": true, "his": true, "her": true, "their": true,
}

func titleKeywords(title string, limit int) []string {
	var out []string
	for _, w := range splitWords(title) {
		if len(w) < 3 || titleStopwords[w] {
			continue
		}
		out = appendUnique(out, w)
		if len(out) == limit {
			break
		}
	}
	sort.Strings(out)
	return out
}
