package services

import (
	"fmt"
	"regexp"
	"strings"

	"reflecta/internal/models"
)

// ParseError reports that the model's consolidation output did not follow
// the heading convention. It always surfaces as a failed operation, never
// as an empty-but-successful consolidation.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("theme tree parse error at line %d: %s", e.Line, e.Reason)
}

// Heading convention produced by the consolidation prompt:
//
//	### <theme name>
//	**Category: <category name>**
//	- Evidence: <statement> Attribution: [USER]
//	- Evidence: <statement> [TEAM]
//	- Evidence: <statement>
//
// Themes, categories and evidence keep their source order. A theme with
// zero categories, or a category with zero evidence items, is valid.
var (
	categoryLineRe    = regexp.MustCompile(`^\*\*\s*Category:\s*(.+?)\s*\*\*$`)
	attributionTailRe = regexp.MustCompile(`(?:Attribution:\s*)?\[([A-Za-z_-]+)\]\s*$`)
)

// ParseThemeTree parses the themes section of a consolidation response.
// Returns a ParseError when the text contains no theme heading at all, or
// when category/evidence lines appear outside their parent scope — a tree is
// never silently missing nodes.
func ParseThemeTree(content string) ([]models.Theme, error) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	var themes []models.Theme
	var currentTheme *models.Theme
	var currentCategory *models.Category

	closeCategory := func() {
		if currentTheme != nil && currentCategory != nil {
			currentTheme.Categories = append(currentTheme.Categories, *currentCategory)
		}
		currentCategory = nil
	}
	closeTheme := func() {
		closeCategory()
		if currentTheme != nil {
			themes = append(themes, *currentTheme)
		}
		currentTheme = nil
	}

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		lineNo := i + 1

		switch {
		case strings.HasPrefix(line, "### "):
			closeTheme()
			name := strings.Trim(strings.TrimPrefix(line, "### "), "* ")
			if name == "" {
				return nil, &ParseError{Line: lineNo, Reason: "theme heading has no name"}
			}
			currentTheme = &models.Theme{Name: name, Categories: []models.Category{}}

		case categoryLineRe.MatchString(line):
			if currentTheme == nil {
				return nil, &ParseError{Line: lineNo, Reason: "category line outside any theme"}
			}
			closeCategory()
			name := categoryLineRe.FindStringSubmatch(line)[1]
			currentCategory = &models.Category{Name: name, Evidence: []models.Evidence{}}

		case isEvidenceLine(line):
			if currentCategory == nil {
				return nil, &ParseError{Line: lineNo, Reason: "evidence bullet outside any category"}
			}
			ev, err := parseEvidence(line, lineNo)
			if err != nil {
				return nil, err
			}
			currentCategory.Evidence = append(currentCategory.Evidence, ev)
		}
		// Anything else (blank lines, prose, other headings) is ignored.
	}
	closeTheme()

	if len(themes) == 0 {
		return nil, &ParseError{Line: 0, Reason: "no theme headings found in model output"}
	}
	return themes, nil
}

func isEvidenceLine(line string) bool {
	for _, prefix := range []string{"- Evidence:", "* Evidence:", "- **Evidence:**", "- **Evidence**:"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// parseEvidence extracts the statement and optional attribution tag from one
// evidence bullet. Missing attribution defaults to the unspecified sentinel.
func parseEvidence(line string, lineNo int) (models.Evidence, error) {
	body := line
	for _, prefix := range []string{"- **Evidence:**", "- **Evidence**:", "- Evidence:", "* Evidence:"} {
		if strings.HasPrefix(body, prefix) {
			body = strings.TrimSpace(strings.TrimPrefix(body, prefix))
			break
		}
	}
	if body == "" {
		return models.Evidence{}, &ParseError{Line: lineNo, Reason: "evidence bullet has no statement"}
	}

	attribution := models.AttributionUnspecified
	if m := attributionTailRe.FindStringSubmatchIndex(body); m != nil {
		attribution = strings.ToUpper(body[m[2]:m[3]])
		body = strings.TrimSpace(body[:m[0]])
	}
	if body == "" {
		return models.Evidence{}, &ParseError{Line: lineNo, Reason: "evidence bullet has only an attribution tag"}
	}

	return models.Evidence{Statement: body, Attribution: attribution}, nil
}
