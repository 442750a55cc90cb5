package synthesis

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"dailyintel/internal/core"
)

// maxPromptText bounds the text sent per article.
const maxPromptText = 2000

const groundingRules = `RULES:
- Use ONLY the facts in the supplied articles. Do not add numbers, names, dates or claims that are not in the text.
- Every statement must cite the "id" of the article it comes from, copied exactly.
- Articles with "extracted": false only have a short snippet; do not speculate beyond it.
- Respond with JSON only, no commentary and no code fences.`

// DigestPrompt asks for a short bullet list, one statement per important
// article.
func DigestPrompt(in core.SynthesisInput) string {
	return fmt.Sprintf(`You are writing the daily engineering news digest for %s.

Write 5 to 10 short bullets covering the most important articles below. Each bullet restates one article in at most two sentences and names what changed.

%s

Response shape:
{"bullets": [{"text": "...", "id": "<article id>"}]}

ARTICLES:
%s`, in.RunDate, groundingRules, promptContext(in))
}

// DeepPostPrompt asks for labeled trends, an analysis paragraph and action
// items.
func DeepPostPrompt(in core.SynthesisInput) string {
	return fmt.Sprintf(`You are writing the deep-dive post that accompanies the daily engineering news digest for %s.

Identify 2 to 5 trends that connect several of the articles below. For each trend give a title, a short explanation and the ids of every article that supports it. Then write one analysis paragraph tying the trends together, and a checklist of concrete action items for an engineering team.

%s

Response shape:
{"trends": [{"title": "...", "explanation": "...", "ids": ["<article id>"]}], "analysis": "...", "action_items": ["..."]}

ARTICLES:
%s`, in.RunDate, groundingRules, promptContext(in))
}

type promptGroup struct {
	Group    string          `json:"group"`
	Articles []promptArticle `json:"articles"`
}

type promptArticle struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	URL       string `json:"url"`
	Text      string `json:"text"`
	Extracted bool   `json:"extracted"`
}

func promptContext(in core.SynthesisInput) string {
	groups := make([]promptGroup, 0, len(in.Groups))
	for _, g := range in.Groups {
		pg := promptGroup{Group: core.DisplayName(g.Name)}
		for _, e := range g.Entries {
			pg.Articles = append(pg.Articles, promptArticle{
				ID:        e.Fingerprint,
				Title:     e.Title,
				Source:    e.Source,
				URL:       e.URL,
				Text:      truncateRunes(e.Text, maxPromptText),
				Extracted: e.Extracted,
			})
		}
		groups = append(groups, pg)
	}

	data, err := json.MarshalIndent(groups, "", "  ")
	if err != nil {
		// Only plain strings and bools are marshaled.
		return "[]"
	}
	return string(data)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
