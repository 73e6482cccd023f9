package report

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const completeReport = `{
  "vehicle_info": {"visible_make_model": "Toyota Corolla", "color": "silver"},
  "damage_summary": {"overall_severity": "Moderate", "impact_type": "rear", "impact_description": "Rear bumper pushed in"},
  "cost_summary": {
    "currency": "USD",
    "labor_total_min": 400, "labor_total_max": 600,
    "paint_materials_min": 150, "paint_materials_max": 250,
    "parts_total_min": 650, "parts_total_max": "$1,000",
    "grand_total_min": 1200, "grand_total_max": 1850
  },
  "damaged_components": [
    {"component_name": "Rear bumper", "location": "rear", "damage_type": "dent", "severity": "Moderate",
     "labor_hours": 3.5, "labor_cost_min": 300, "labor_cost_max": 450},
    {"component_name": "Tail light", "location": "rear left", "damage_type": "crack", "severity": "Critical",
     "labor_hours": 1, "labor_cost_min": 100, "labor_cost_max": 150, "notes": "replace unit"}
  ],
  "repair_options": [
    {"option_name": "OEM", "description": "Factory parts", "total_cost_min": 1500, "total_cost_max": 1850, "estimated_days": "3-5"}
  ],
  "recommendations": ["Get an in-person inspection"],
  "potential_hidden_damage": ["Bumper reinforcement bar"]
}`

func analysisResult(t *testing.T, text string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal([]map[string]any{
		{"content": []map[string]any{{"type": "text", "text": text}}},
	})
	if err != nil {
		t.Fatalf("marshal analysis result: %v", err)
	}
	return raw
}

func TestExtractFencedCompleteJSON(t *testing.T) {
	text := "Here is the assessment:\n```json\n" + completeReport + "\n```\nThanks."
	res := Extract(analysisResult(t, text))

	if res.Kind != KindDamageReport {
		t.Fatalf("kind = %s, want %s (err=%v)", res.Kind, KindDamageReport, res.Err)
	}
	if res.Repaired {
		t.Fatal("complete document should not need repair")
	}

	var want, got any
	if err := json.Unmarshal([]byte(completeReport), &want); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	if err := json.Unmarshal(res.Document, &got); err != nil {
		t.Fatalf("unmarshal document: %v", err)
	}
	wantJSON, _ := json.Marshal(want)
	gotJSON, _ := json.Marshal(got)
	if string(wantJSON) != string(gotJSON) {
		t.Fatalf("document mismatch:\n got %s\nwant %s", gotJSON, wantJSON)
	}

	r := res.Report
	if r.VehicleInfo == nil || r.VehicleInfo.VisibleMakeModel != "Toyota Corolla" {
		t.Fatalf("vehicle info = %+v", r.VehicleInfo)
	}
	if got := r.CostRange(); got != "$1,200 - $1,850" {
		t.Fatalf("cost range = %q", got)
	}
	if !r.CostSummary.PartsTotalMax.Valid || r.CostSummary.PartsTotalMax.Value != 1000 {
		t.Fatalf("parts max = %+v, want 1000", r.CostSummary.PartsTotalMax)
	}
	if len(r.DamagedComponents) != 2 {
		t.Fatalf("components = %d, want 2", len(r.DamagedComponents))
	}
	if c := r.DamagedComponents[1].Severity.Class(); c != SeveritySevere {
		t.Fatalf("unrecognised severity class = %s, want %s", c, SeveritySevere)
	}
	if r.RepairOptions[0].EstimatedDays != "3-5" {
		t.Fatalf("estimated days = %q", r.RepairOptions[0].EstimatedDays)
	}
}

func TestExtractUnfencedFallsBackToBraces(t *testing.T) {
	res := ExtractText(`Result follows {"recommendations": ["wash car"]} end of message`)
	if res.Kind != KindDamageReport {
		t.Fatalf("kind = %s, want %s (err=%v)", res.Kind, KindDamageReport, res.Err)
	}
	if len(res.Report.Recommendations) != 1 || res.Report.Recommendations[0] != "wash car" {
		t.Fatalf("recommendations = %v", res.Report.Recommendations)
	}
}

func TestExtractRepairsTruncatedDocument(t *testing.T) {
	text := "```json\n{\"recommendations\": [\"a\", \"b\"], \"potential_hidden_damage\": [\"frame\", \"sen```"
	res := ExtractText(text)
	if res.Kind != KindDamageReport {
		t.Fatalf("kind = %s, want %s (err=%v)", res.Kind, KindDamageReport, res.Err)
	}
	if !res.Repaired {
		t.Fatal("expected repaired flag")
	}
	if got := res.Report.PotentialHiddenDamage; len(got) != 1 || got[0] != "frame" {
		t.Fatalf("hidden damage = %v, want [frame]", got)
	}
}

func TestExtractNoJSONFound(t *testing.T) {
	for _, text := range []string{
		"The images could not be processed.",
		"",
		"closing } before opening {",
	} {
		res := ExtractText(text)
		if res.Kind != KindNoJSON {
			t.Fatalf("ExtractText(%q) kind = %s, want %s", text, res.Kind, KindNoJSON)
		}
		if !errors.Is(res.Err, ErrNoJSONFound) {
			t.Fatalf("err = %v, want ErrNoJSONFound", res.Err)
		}
		if res.RawText != text {
			t.Fatalf("raw text not preserved: %q", res.RawText)
		}
	}
}

func TestExtractMalformedKeepsRawText(t *testing.T) {
	text := `{"a": 1, "b": nope}`
	res := ExtractText(text)
	if res.Kind != KindMalformed {
		t.Fatalf("kind = %s, want %s", res.Kind, KindMalformed)
	}
	if !errors.Is(res.Err, ErrMalformedJSON) {
		t.Fatalf("err = %v, want ErrMalformedJSON", res.Err)
	}
	if res.RawText != text {
		t.Fatalf("raw text = %q", res.RawText)
	}
	if res.OK() {
		t.Fatal("malformed result must not be OK")
	}
}

func TestExtractNonObjectIsMalformed(t *testing.T) {
	res := ExtractText("```json\n[1, 2, 3]\n```")
	if res.Kind != KindMalformed {
		t.Fatalf("kind = %s, want %s", res.Kind, KindMalformed)
	}
}

func TestExtractValidationFailure(t *testing.T) {
	text := "```json\n" + `{
  "validation_status": "failed",
  "error_code": "IMAGES_NOT_VEHICLE",
  "error_message": "The uploaded photos do not show a vehicle.",
  "error_details": {"before_image_analysis": "a cat", "after_image_analysis": "a dog", "issue_detected": "no vehicle"},
  "customer_summary": {"bottom_line": "Retake photos", "what_this_means": "We cannot assess", "next_steps": ["Photograph the car", "Upload again"]},
  "suggested_action": "Upload clear photos of the damaged area."
}` + "\n```"
	res := ExtractText(text)
	if res.Kind != KindValidationFailure {
		t.Fatalf("kind = %s, want %s (err=%v)", res.Kind, KindValidationFailure, res.Err)
	}
	if res.Report != nil {
		t.Fatal("validation failure must not carry a damage report")
	}
	f := res.Failure
	if f.Title() != "IMAGES NOT VEHICLE" {
		t.Fatalf("title = %q", f.Title())
	}
	if f.CustomerSummary == nil || len(f.CustomerSummary.NextSteps) != 2 {
		t.Fatalf("customer summary = %+v", f.CustomerSummary)
	}
	if f.ErrorDetails == nil || f.ErrorDetails.IssueDetected != "no vehicle" {
		t.Fatalf("error details = %+v", f.ErrorDetails)
	}
}

func TestExtractNoData(t *testing.T) {
	cases := map[string]string{
		"null":               `null`,
		"empty":              ``,
		"object":             `{"content": []}`,
		"empty messages":     `[]`,
		"empty content":      `[{"content": []}]`,
		"missing text":       `[{"content": [{"type": "image"}]}]`,
		"non-string text":    `[{"content": [{"text": 42}]}]`,
		"message not object": `["hello"]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			res := Extract(json.RawMessage(raw))
			if res.Kind != KindNoData {
				t.Fatalf("kind = %s, want %s", res.Kind, KindNoData)
			}
			if !errors.Is(res.Err, ErrNoData) {
				t.Fatalf("err = %v", res.Err)
			}
		})
	}
}

func TestExtractDoesNotMutateInput(t *testing.T) {
	raw := analysisResult(t, "```json\n{\"a\":[1,2,\n```")
	before := string(raw)
	_ = Extract(raw)
	if string(raw) != before {
		t.Fatal("extraction mutated its input")
	}
}

func TestCandidatePrefersFence(t *testing.T) {
	text := "{\"outside\": true}\n```json\n{\"inside\": true}\n```"
	got, err := Candidate(text)
	if err != nil {
		t.Fatalf("candidate: %v", err)
	}
	if strings.TrimSpace(got) != `{"inside": true}` {
		t.Fatalf("candidate = %q", got)
	}
}

func TestCandidateEmptyFenceFallsBack(t *testing.T) {
	got, err := Candidate("```json\n```\nthen {\"x\":1}")
	if err != nil {
		t.Fatalf("candidate: %v", err)
	}
	if got != `{"x":1}` {
		t.Fatalf("candidate = %q", got)
	}
}
