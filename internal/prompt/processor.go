// Package prompt analyzes natural-language scene descriptions before they
// are handed to the code generator. It classifies the request, extracts
// entities and measurements, scores complexity, and appends category
// directives to the prompt text.
//
// Everything in this package is a pure function of its input text: no
// hidden state, no ordering dependence across calls.
package prompt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Category is the request classification.
type Category string

const (
	CategoryModeling  Category = "modeling"
	CategoryMaterial  Category = "material"
	CategoryScene     Category = "scene"
	CategoryAnimation Category = "animation"
	CategoryMixed     Category = "mixed"
)

// Complexity is the coarse request difficulty bucket.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Quantity is a count paired with the noun that followed it.
type Quantity struct {
	Count int
	Noun  string
}

// Entities holds the keyword-matched nouns and attributes found in a prompt.
type Entities struct {
	Objects    []string
	Colors     []string
	Materials  []string
	Quantities []Quantity
}

// Total returns the combined entity count across all lists.
func (e Entities) Total() int {
	return len(e.Objects) + len(e.Colors) + len(e.Materials) + len(e.Quantities)
}

// Measurement is a literal value/unit pair with its conversion to Blender
// units (meters).
type Measurement struct {
	OriginalValue float64
	OriginalUnit  string
	BlenderValue  float64
	BlenderUnit   string
}

// Processed is the full analysis of one prompt. It is created once per
// request and never mutated after return.
type Processed struct {
	Original     string
	Cleaned      string
	Enhanced     string
	Category     Category
	Complexity   Complexity
	Entities     Entities
	Measurements []Measurement
	PromptType   string
}

// Processor analyzes prompts against the package vocabularies.
type Processor struct {
	logger *zap.Logger

	abbrevRes   []*regexp.Regexp
	objectRes   []*regexp.Regexp
	colorRes    []*regexp.Regexp
	materialRes []*regexp.Regexp
	quantityRe  *regexp.Regexp
	measureRe   *regexp.Regexp
}

// New creates a Processor with all vocabulary patterns compiled.
func New(logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Processor{
		logger:     logger,
		quantityRe: regexp.MustCompile(`\b(\d+)\s+(\w+)`),
	}

	for _, a := range abbreviations {
		// A trailing \b only matches after a word character, so patterns
		// ending in "/" (like "w/") must drop it or they never fire.
		expr := `(?i)\b` + regexp.QuoteMeta(a.pattern)
		if isWordChar(a.pattern[len(a.pattern)-1]) {
			expr += `\b`
		}
		p.abbrevRes = append(p.abbrevRes, regexp.MustCompile(expr))
	}
	for _, obj := range objectVocab {
		p.objectRes = append(p.objectRes, regexp.MustCompile(`(?i)\b`+obj+`s?\b`))
	}
	for _, c := range colorVocab {
		p.colorRes = append(p.colorRes, regexp.MustCompile(`(?i)\b`+c+`\b`))
	}
	for _, m := range materialVocab {
		p.materialRes = append(p.materialRes, regexp.MustCompile(`(?i)\b`+m+`\b`))
	}

	tokens := make([]string, len(units))
	for i, u := range units {
		tokens[i] = u.unit
	}
	p.measureRe = regexp.MustCompile(`(?i)(\d+\.?\d*)\s*(` + strings.Join(tokens, "|") + `)`)

	return p
}

// Process analyzes a raw prompt. It never fails: a prompt with no keyword
// matches classifies as modeling/simple with empty entity lists.
func (p *Processor) Process(raw string) *Processed {
	cleaned := p.clean(raw)
	category := p.categorize(cleaned)
	entities := p.extractEntities(cleaned)
	measurements := p.extractMeasurements(cleaned)
	complexity := p.assessComplexity(cleaned, entities)
	enhanced := p.enhance(cleaned, category, measurements)

	result := &Processed{
		Original:     raw,
		Cleaned:      cleaned,
		Enhanced:     enhanced,
		Category:     category,
		Complexity:   complexity,
		Entities:     entities,
		Measurements: measurements,
		PromptType:   TypeFor(category),
	}

	p.logger.Info("processed prompt",
		zap.String("category", string(category)),
		zap.String("complexity", string(complexity)),
		zap.Int("entities", entities.Total()),
		zap.Int("measurements", len(measurements)))

	return result
}

// clean normalizes whitespace, strips boundary punctuation, and expands
// chat abbreviations.
func (p *Processor) clean(raw string) string {
	cleaned := strings.Join(strings.Fields(raw), " ")
	cleaned = strings.Trim(cleaned, ".,!?;:")

	for i, re := range p.abbrevRes {
		cleaned = re.ReplaceAllString(cleaned, abbreviations[i].replacement)
	}

	return cleaned
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// categorize scores the prompt against each category's keywords.
// Scoring is substring containment: a keyword inside a longer word still
// counts. Zero matches default to modeling; two or more categories at
// >=70% of the max score classify as mixed.
func (p *Processor) categorize(cleaned string) Category {
	lower := strings.ToLower(cleaned)

	scores := make([]int, len(categories))
	maxScore := 0
	for i, ck := range categories {
		for _, kw := range ck.keywords {
			if strings.Contains(lower, kw) {
				scores[i]++
			}
		}
		if scores[i] > maxScore {
			maxScore = scores[i]
		}
	}

	if maxScore == 0 {
		return CategoryModeling
	}

	var high []Category
	for i, ck := range categories {
		if float64(scores[i]) >= float64(maxScore)*0.7 {
			high = append(high, ck.category)
		}
	}

	if len(high) > 1 {
		return CategoryMixed
	}
	return high[0]
}

// extractEntities scans the vocabularies for whole-word matches. Each
// matched term appears at most once, in vocabulary order; quantities keep
// occurrence order with no deduplication.
func (p *Processor) extractEntities(cleaned string) Entities {
	var e Entities

	for i, re := range p.objectRes {
		if re.MatchString(cleaned) {
			e.Objects = append(e.Objects, objectVocab[i])
		}
	}
	for i, re := range p.colorRes {
		if re.MatchString(cleaned) {
			e.Colors = append(e.Colors, colorVocab[i])
		}
	}
	for i, re := range p.materialRes {
		if re.MatchString(cleaned) {
			e.Materials = append(e.Materials, materialVocab[i])
		}
	}

	for _, m := range p.quantityRe.FindAllStringSubmatch(cleaned, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		e.Quantities = append(e.Quantities, Quantity{Count: n, Noun: m[2]})
	}

	return e
}

// extractMeasurements finds value/unit pairs and converts them to meters.
// Every match is reported separately, left to right.
func (p *Processor) extractMeasurements(cleaned string) []Measurement {
	var measurements []Measurement

	for _, m := range p.measureRe.FindAllStringSubmatch(cleaned, -1) {
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		factor := 1.0
		lowerUnit := strings.ToLower(m[2])
		for _, u := range units {
			if u.unit == lowerUnit {
				factor = u.factor
				break
			}
		}
		measurements = append(measurements, Measurement{
			OriginalValue: value,
			OriginalUnit:  m[2],
			BlenderValue:  value * factor,
			BlenderUnit:   "meters",
		})
	}

	return measurements
}

// assessComplexity buckets the prompt by word count, entity count, and the
// presence of advanced keywords. The raw score is internal; only the
// bucket is surfaced.
func (p *Processor) assessComplexity(cleaned string, entities Entities) Complexity {
	score := 0

	wordCount := len(strings.Fields(cleaned))
	switch {
	case wordCount > 50:
		score += 3
	case wordCount > 20:
		score += 2
	default:
		score++
	}

	switch total := entities.Total(); {
	case total > 10:
		score += 3
	case total > 5:
		score += 2
	default:
		score++
	}

	lower := strings.ToLower(cleaned)
	for _, kw := range complexKeywords {
		if strings.Contains(lower, kw) {
			score += 2
			break
		}
	}

	switch {
	case score <= 3:
		return ComplexitySimple
	case score <= 6:
		return ComplexityMedium
	default:
		return ComplexityComplex
	}
}

// enhance appends category directives when their trigger word is absent,
// plus a conversion note when measurements were found. The text before the
// first appended directive is never altered.
func (p *Processor) enhance(cleaned string, category Category, measurements []Measurement) string {
	enhanced := cleaned
	lower := strings.ToLower(cleaned)

	if category == CategoryModeling && !strings.Contains(lower, "scale") {
		enhanced += " Use realistic proportions and scales."
	}
	if category == CategoryMaterial && !strings.Contains(lower, "node") {
		enhanced += " Use node-based materials with Principled BSDF."
	}
	if category == CategoryScene && !strings.Contains(lower, "camera") {
		enhanced += " Set up appropriate camera positioning."
	}

	if len(measurements) > 0 {
		enhanced += " (Note: measurements converted to Blender units)"
	}

	return enhanced
}

// TypeFor maps a category to the system-instruction template selector.
// Mixed requests use the base template.
func TypeFor(category Category) string {
	switch category {
	case CategoryModeling, CategoryMaterial, CategoryScene, CategoryAnimation:
		return string(category)
	default:
		return "base"
	}
}

// SuggestImprovements returns advisory hints for making a prompt more
// effective. It never affects classification.
func (p *Processor) SuggestImprovements(raw string) []string {
	var suggestions []string
	lower := strings.ToLower(raw)

	vague := []string{"thing", "stuff", "something", "nice", "good", "cool"}
	for _, w := range vague {
		if strings.Contains(lower, w) {
			suggestions = append(suggestions, "Be more specific about what you want to create")
			break
		}
	}

	if len(strings.Fields(raw)) < 5 {
		suggestions = append(suggestions, "Add more details about size, color, or placement")
	}

	relative := []string{"big", "small", "large", "tiny"}
	for _, w := range relative {
		if strings.Contains(lower, w) {
			if !regexp.MustCompile(`\d`).MatchString(raw) {
				suggestions = append(suggestions, "Specify exact measurements instead of relative sizes")
			}
			break
		}
	}

	hasObject := false
	for _, w := range []string{"cube", "sphere", "object"} {
		if strings.Contains(lower, w) {
			hasObject = true
			break
		}
	}
	hasColor := false
	for _, w := range []string{"red", "blue", "color", "material"} {
		if strings.Contains(lower, w) {
			hasColor = true
			break
		}
	}
	if hasObject && !hasColor {
		suggestions = append(suggestions, "Consider specifying colors or materials")
	}

	return suggestions
}

// Describe renders a short human-readable summary for CLI output.
func (pr *Processed) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "category=%s complexity=%s", pr.Category, pr.Complexity)
	if len(pr.Entities.Objects) > 0 {
		fmt.Fprintf(&b, " objects=%s", strings.Join(pr.Entities.Objects, ","))
	}
	if len(pr.Measurements) > 0 {
		fmt.Fprintf(&b, " measurements=%d", len(pr.Measurements))
	}
	return b.String()
}
