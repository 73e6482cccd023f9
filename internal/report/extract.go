// Package report recovers the structured damage report that the external
// analysis workflow embeds, as free text, in an assessment's analysis result.
//
// The text is usually a markdown fenced ```json block and is sometimes cut
// off mid-document. Extraction never panics on malformed input; every
// outcome is reported through Result.Kind.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

type Kind string

const (
	KindNoData            Kind = "no_data"
	KindDamageReport      Kind = "damage_report"
	KindValidationFailure Kind = "validation_failure"
	KindNoJSON            Kind = "no_json"
	KindMalformed         Kind = "malformed_json"
)

var (
	ErrNoData        = errors.New("analysis result has no text content")
	ErrNoJSONFound   = errors.New("no json found in analysis text")
	ErrMalformedJSON = errors.New("analysis json is malformed")
)

// Result is the tagged outcome of an extraction. Exactly one of Report and
// Failure is set when Kind is KindDamageReport or KindValidationFailure.
type Result struct {
	Kind     Kind
	Report   *DamageReport
	Failure  *ValidationFailure
	Document json.RawMessage
	RawText  string
	Repaired bool
	Err      error
}

// OK reports whether a document was recovered.
func (r Result) OK() bool {
	return r.Kind == KindDamageReport || r.Kind == KindValidationFailure
}

var fencedJSON = regexp.MustCompile("(?s)```json\\s*\\n(.*?)```")

type message struct {
	Content []struct {
		Text *string `json:"text"`
	} `json:"content"`
}

// AnalysisText resolves the text of the first content block of the first
// message. ok is false when the stored value does not have that shape.
func AnalysisText(analysisResult json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(analysisResult)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return "", false
	}
	var messages []json.RawMessage
	if err := json.Unmarshal(trimmed, &messages); err != nil || len(messages) == 0 {
		return "", false
	}
	var first message
	if err := json.Unmarshal(messages[0], &first); err != nil {
		return "", false
	}
	if len(first.Content) == 0 || first.Content[0].Text == nil {
		return "", false
	}
	return *first.Content[0].Text, true
}

// Extract runs the full pipeline over a stored analysis result.
func Extract(analysisResult json.RawMessage) Result {
	text, ok := AnalysisText(analysisResult)
	if !ok {
		return Result{Kind: KindNoData, Err: ErrNoData}
	}
	return ExtractText(text)
}

// ExtractText locates, parses and classifies the JSON document in text.
func ExtractText(text string) Result {
	res := Result{RawText: text}

	candidate, err := Candidate(text)
	if err != nil {
		res.Kind = KindNoJSON
		res.Err = err
		return res
	}

	doc, err := parseObject(candidate)
	if err != nil {
		doc, err = parseObject(Repair(candidate))
		if err != nil {
			res.Kind = KindMalformed
			res.Err = errors.Join(ErrMalformedJSON, err)
			return res
		}
		res.Repaired = true
	}
	res.Document = doc

	var probe struct {
		ValidationStatus Text `json:"validation_status"`
	}
	if err := json.Unmarshal(doc, &probe); err != nil {
		res.Kind = KindMalformed
		res.Err = errors.Join(ErrMalformedJSON, err)
		return res
	}

	if strings.EqualFold(string(probe.ValidationStatus), "failed") {
		var failure ValidationFailure
		if err := json.Unmarshal(doc, &failure); err != nil {
			res.Kind = KindMalformed
			res.Err = errors.Join(ErrMalformedJSON, err)
			return res
		}
		res.Kind = KindValidationFailure
		res.Failure = &failure
		return res
	}

	var report DamageReport
	if err := json.Unmarshal(doc, &report); err != nil {
		res.Kind = KindMalformed
		res.Err = errors.Join(ErrMalformedJSON, err)
		return res
	}
	res.Kind = KindDamageReport
	res.Report = &report
	return res
}

// Candidate returns the substring of text that should hold the JSON
// document: the interior of a ```json fence when present, otherwise the span
// from the first '{' to the last '}'.
func Candidate(text string) (string, error) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil && m[1] != "" {
		return m[1], nil
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end <= start {
		return "", ErrNoJSONFound
	}
	return text[start : end+1], nil
}

// parseObject strictly parses s and requires a JSON object. The compacted
// document is returned.
func parseObject(s string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, errors.New("document is not a json object")
	}
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
