package llm

import "google.golang.org/genai"

// DigestSchema is the response_schema for the digest prompt.
func DigestSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"bullets": {
				Type:        genai.TypeArray,
				Description: "One short statement per important article, restating only the supplied text",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"text": {Type: genai.TypeString, Description: "The statement, at most two sentences"},
						"id":   {Type: genai.TypeString, Description: "The id of the article the statement comes from"},
					},
					Required: []string{"text", "id"},
				},
			},
		},
		Required: []string{"bullets"},
	}
}

// DeepPostSchema is the response_schema for the deep-post prompt.
func DeepPostSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"trends": {
				Type:        genai.TypeArray,
				Description: "Cross-article themes, each supported by the ids of the articles that show it",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"title":       {Type: genai.TypeString},
						"explanation": {Type: genai.TypeString},
						"ids": {
							Type:  genai.TypeArray,
							Items: &genai.Schema{Type: genai.TypeString},
						},
					},
					Required: []string{"title", "explanation", "ids"},
				},
			},
			"analysis": {
				Type:        genai.TypeString,
				Description: "One paragraph tying the trends together",
			},
			"action_items": {
				Type:        genai.TypeArray,
				Description: "Concrete follow-ups for an engineering team",
				Items:       &genai.Schema{Type: genai.TypeString},
			},
		},
		Required: []string{"trends", "analysis", "action_items"},
	}
}
