package core

import "testing"

func TestBestText(t *testing.T) {
	tests := []struct {
		name    string
		article CanonicalArticle
		want    string
	}{
		{
			name:    "success uses extracted text",
			article: CanonicalArticle{Snippet: "short", ExtractedText: "full body", ExtractionStatus: ExtractionSuccess},
			want:    "full body",
		},
		{
			name:    "success with empty text falls back to snippet",
			article: CanonicalArticle{Snippet: "short", ExtractionStatus: ExtractionSuccess},
			want:    "short",
		},
		{
			name:    "failed uses snippet",
			article: CanonicalArticle{Snippet: "short", ExtractedText: "stale", ExtractionStatus: ExtractionFailed},
			want:    "short",
		},
		{
			name:    "skipped uses snippet",
			article: CanonicalArticle{Snippet: "short", ExtractionStatus: ExtractionSkipped},
			want:    "short",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.article.BestText(); got != tt.want {
				t.Errorf("BestText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCurationResultHelpers(t *testing.T) {
	result := CurationResult{
		RunDate: "2024-05-01",
		Groups: []Group{
			{Name: "data", Articles: []CanonicalArticle{{Fingerprint: "a"}, {Fingerprint: "b"}}},
			{Name: UnclassifiedGroup, Articles: []CanonicalArticle{{Fingerprint: "c"}}},
		},
	}

	if result.Len() != 3 {
		t.Errorf("Len() = %d, want 3", result.Len())
	}

	selected := result.Selected()
	if len(selected) != 3 || selected[2].Fingerprint != "c" {
		t.Errorf("Selected() order wrong: %+v", selected)
	}

	if _, ok := result.Group("missing"); ok {
		t.Error("Group(missing) should not be found")
	}

	clone := result.Clone()
	clone.Groups[0].Articles[0].Title = "changed"
	if result.Groups[0].Articles[0].Title != "" {
		t.Error("Clone should not share article storage with the original")
	}
}

func TestSynthesisInputLookup(t *testing.T) {
	in := SynthesisInput{Groups: []InputGroup{
		{Name: "ai", Entries: []InputEntry{{Fingerprint: "f1", Title: "One"}}},
		{Name: "data", Entries: []InputEntry{{Fingerprint: "f2", Title: "Two"}}},
	}}

	if !in.Has("f2") {
		t.Error("expected f2 to be present")
	}
	if in.Has("f3") {
		t.Error("f3 should not be present")
	}
	if e, ok := in.Entry("f1"); !ok || e.Title != "One" {
		t.Errorf("Entry(f1) = %+v, %v", e, ok)
	}
	if in.Len() != 2 {
		t.Errorf("Len() = %d, want 2", in.Len())
	}
}

func TestSynthesisOutputIsEmpty(t *testing.T) {
	if !(SynthesisOutput{BackendUsed: "deterministic"}).IsEmpty() {
		t.Error("output with no content should be empty")
	}
	if (SynthesisOutput{Digest: []Bullet{{Text: "x", Fingerprint: "f"}}}).IsEmpty() {
		t.Error("output with a bullet should not be empty")
	}
}

func TestSourceKindValid(t *testing.T) {
	for _, k := range []SourceKind{SourceKindRSS, SourceKindAPI, SourceKindScrape} {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if SourceKind("ftp").Valid() {
		t.Error("ftp should not be valid")
	}
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"data_platform":   "Data Platform",
		"ai-agents":       "Ai Agents",
		"unclassified":    "Unclassified",
		"LLM_ops":         "Llm Ops",
		"":                "",
		"__double__under": "Double Under",
	}
	for in, want := range tests {
		if got := DisplayName(in); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}
