package models

import "strings"

// Well-known answer part names.
const (
	AnswerPartPrompt = "prompt"
	AnswerPartOutput = "output"
)

// AnswerPart is one uploaded file of an answer.
type AnswerPart struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Answer is the participant's in-progress or submitted work.
type Answer struct {
	Text  string
	Parts map[string]AnswerPart
}

// Empty reports whether the answer holds no content at all.
func (a Answer) Empty() bool {
	if strings.TrimSpace(a.Text) != "" {
		return false
	}
	for _, p := range a.Parts {
		if len(p.Data) > 0 {
			return false
		}
	}
	return true
}

// Missing returns the names in required that have no content.
func (a Answer) Missing(required []string) []string {
	var missing []string
	for _, name := range required {
		p, ok := a.Parts[name]
		if !ok || len(p.Data) == 0 {
			missing = append(missing, name)
		}
	}
	return missing
}

// StoredFile is the locator of a persisted answer part.
type StoredFile struct {
	Part    string `json:"part"`
	Name    string `json:"name"`
	Key     string `json:"key"`
	Locator string `json:"locator"`
}

// AnswerManifest is what a session records about its submitted answer.
type AnswerManifest struct {
	Text  string       `json:"text,omitempty"`
	Files []StoredFile `json:"files"`
}
