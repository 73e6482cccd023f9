package report

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Number is a lenient numeric field. The analysis workflow sometimes emits
// costs as strings ("$1,200") or null; those decode without error, and
// Valid is false for anything that is not a number.
type Number struct {
	Value float64
	Valid bool
}

func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			*n = Number{Value: v, Valid: true}
		}
	default:
		var v float64
		if err := json.Unmarshal(data, &v); err == nil {
			*n = Number{Value: v, Valid: true}
		}
	}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// String formats the value with thousands separators and no trailing zeros.
func (n Number) String() string {
	if !n.Valid {
		return ""
	}
	return formatAmount(n.Value)
}

// Text accepts a JSON string, number or boolean. Other values keep their raw
// JSON so nothing is silently dropped.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(data)
	return nil
}

type Severity string

const (
	SeverityMinor    Severity = "Minor"
	SeverityModerate Severity = "Moderate"
	SeveritySevere   Severity = "Severe"
)

// Class folds the free-form severity into Minor, Moderate or Severe; any
// unrecognised value counts as Severe.
func (s Severity) Class() Severity {
	switch strings.ToLower(strings.TrimSpace(string(s))) {
	case "minor":
		return SeverityMinor
	case "moderate":
		return SeverityModerate
	default:
		return SeveritySevere
	}
}

type VehicleInfo struct {
	VisibleMakeModel Text `json:"visible_make_model"`
	Color            Text `json:"color"`
}

type DamageSummary struct {
	OverallSeverity   Text `json:"overall_severity"`
	ImpactType        Text `json:"impact_type"`
	ImpactDescription Text `json:"impact_description"`
}

type CostSummary struct {
	Currency          Text   `json:"currency"`
	LaborTotalMin     Number `json:"labor_total_min"`
	LaborTotalMax     Number `json:"labor_total_max"`
	PaintMaterialsMin Number `json:"paint_materials_min"`
	PaintMaterialsMax Number `json:"paint_materials_max"`
	PartsTotalMin     Number `json:"parts_total_min"`
	PartsTotalMax     Number `json:"parts_total_max"`
	GrandTotalMin     Number `json:"grand_total_min"`
	GrandTotalMax     Number `json:"grand_total_max"`
}

type DamagedComponent struct {
	ComponentName Text     `json:"component_name"`
	Location      Text     `json:"location"`
	DamageType    Text     `json:"damage_type"`
	Severity      Severity `json:"severity"`
	LaborHours    Number   `json:"labor_hours"`
	LaborCostMin  Number   `json:"labor_cost_min"`
	LaborCostMax  Number   `json:"labor_cost_max"`
	Notes         Text     `json:"notes,omitempty"`
}

type RepairOption struct {
	OptionName    Text   `json:"option_name"`
	Description   Text   `json:"description"`
	TotalCostMin  Number `json:"total_cost_min"`
	TotalCostMax  Number `json:"total_cost_max"`
	EstimatedDays Text   `json:"estimated_days"`
}

// DamageReport is the structured analysis recovered from the workflow text.
// Every section is optional.
type DamageReport struct {
	VehicleInfo           *VehicleInfo       `json:"vehicle_info,omitempty"`
	DamageSummary         *DamageSummary     `json:"damage_summary,omitempty"`
	CostSummary           *CostSummary       `json:"cost_summary,omitempty"`
	DamagedComponents     []DamagedComponent `json:"damaged_components,omitempty"`
	RepairOptions         []RepairOption     `json:"repair_options,omitempty"`
	Recommendations       []Text             `json:"recommendations,omitempty"`
	PotentialHiddenDamage []Text             `json:"potential_hidden_damage,omitempty"`
}

// HasGrandTotal mirrors the report page's check for a usable cost summary.
func (r *DamageReport) HasGrandTotal() bool {
	return r != nil && r.CostSummary != nil && r.CostSummary.GrandTotalMin.Valid
}

// CostRange renders the grand-total range, e.g. "$1,200 - $1,850". It is
// empty when the report carries no grand total.
func (r *DamageReport) CostRange() string {
	if !r.HasGrandTotal() {
		return ""
	}
	cs := r.CostSummary
	if !cs.GrandTotalMax.Valid {
		return "$" + cs.GrandTotalMin.String()
	}
	return "$" + cs.GrandTotalMin.String() + " - $" + cs.GrandTotalMax.String()
}

type ErrorDetails struct {
	BeforeImageAnalysis Text `json:"before_image_analysis"`
	AfterImageAnalysis  Text `json:"after_image_analysis"`
	IssueDetected       Text `json:"issue_detected"`
}

type CustomerSummary struct {
	BottomLine    Text   `json:"bottom_line"`
	WhatThisMeans Text   `json:"what_this_means"`
	NextSteps     []Text `json:"next_steps,omitempty"`
}

// ValidationFailure is the workflow's answer when it rejects the submitted
// photographs as unsuitable.
type ValidationFailure struct {
	ValidationStatus Text             `json:"validation_status"`
	ErrorCode        Text             `json:"error_code"`
	ErrorMessage     Text             `json:"error_message"`
	ErrorDetails     *ErrorDetails    `json:"error_details,omitempty"`
	CustomerSummary  *CustomerSummary `json:"customer_summary,omitempty"`
	SuggestedAction  Text             `json:"suggested_action"`
}

// Title turns an error code such as IMAGES_NOT_VEHICLE into readable words.
func (v *ValidationFailure) Title() string {
	if v == nil || v.ErrorCode == "" {
		return "Validation Error"
	}
	return strings.ReplaceAll(string(v.ErrorCode), "_", " ")
}

func formatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + frac
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var t Text
	if err := t.UnmarshalJSON(data); err != nil {
		return err
	}
	*s = Severity(t)
	return nil
}
