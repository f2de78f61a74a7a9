package analysis

import (
	"encoding/json"
	"strings"
)

// AlertPayload is the shape the inference service is asked to emit for
// each detected risk. Validation tags back the schema check performed
// before persistence.
type AlertPayload struct {
	Severity        string `json:"severity" validate:"required"`
	ImpactField     string `json:"impact_field" validate:"required"`
	ForecastDetails string `json:"forecast_details" validate:"required"`
	Advice          string `json:"actionable_advice" validate:"required"`
}

// VerdictKind tags the classified shape of an inference response.
type VerdictKind int

const (
	// VerdictAlerts is a JSON array of alerts, possibly empty.
	VerdictAlerts VerdictKind = iota
	// VerdictSingle is one well-formed alert object, wrapped into a
	// one-element array.
	VerdictSingle
	// VerdictEmpty is an empty or non-alert object: zero alerts.
	VerdictEmpty
	// VerdictInvalid is anything else, including parse failure. This is
	// an error outcome, distinct from "no alerts".
	VerdictInvalid
)

// Verdict is the tagged variant produced in one explicit step right
// after parsing, before any business logic touches the payload.
type Verdict struct {
	Kind   VerdictKind
	Alerts []AlertPayload
}

// Classify normalizes a raw inference response into exactly one of the
// four verdict shapes.
func Classify(raw string) Verdict {
	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return Verdict{Kind: VerdictInvalid}
	}

	switch value.(type) {
	case []interface{}:
		var alerts []AlertPayload
		if err := json.Unmarshal([]byte(raw), &alerts); err != nil {
			return Verdict{Kind: VerdictInvalid}
		}
		if alerts == nil {
			alerts = []AlertPayload{}
		}
		return Verdict{Kind: VerdictAlerts, Alerts: alerts}

	case map[string]interface{}:
		var single AlertPayload
		if err := json.Unmarshal([]byte(raw), &single); err != nil {
			return Verdict{Kind: VerdictEmpty}
		}
		sev := strings.ToUpper(strings.TrimSpace(single.Severity))
		if sev == "" || sev == "NONE" {
			return Verdict{Kind: VerdictEmpty}
		}
		return Verdict{Kind: VerdictSingle, Alerts: []AlertPayload{single}}

	default:
		return Verdict{Kind: VerdictInvalid}
	}
}
