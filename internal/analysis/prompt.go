package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/minhqng/weather-risk-alerts/internal/weather"
)

type seriesPoint struct {
	RecordTime string             `json:"record_time"`
	Kind       weather.RecordKind `json:"kind"`
	TempC      float64            `json:"temp_c"`
	Humidity   float64            `json:"humidity"`
	UVIndex    float64            `json:"uv_index"`
	WindKPH    float64            `json:"wind_kph"`
}

const riskPromptTemplate = `ROLE:
You are a cautious hydro-meteorological expert.

GOLDEN RULE: BE SKEPTICAL. The default answer is an empty array [].

INPUT DATA:
%d-day weather series (history + forecast):
%s

ALERT TRIGGER THRESHOLDS (report only when exceeded):
- Wildfire (INFRASTRUCTURE - HIGH/CRITICAL): temp_c > 37 for AT LEAST 3 days AND humidity < 40.
- Heat shock (PUBLIC_HEALTH - HIGH): temp_c > 38 AND uv_index > 10 for AT LEAST 2 days.
- Crop pests (AGRICULTURE - MEDIUM): humidity > 90 for AT LEAST 4 days AND temp_c > 25.

OUTPUT REQUIREMENTS:
Answer only with a JSON ARRAY of objects. If there is no risk, return [].
Structure of each object:
{
  "severity": "one of 'MEDIUM', 'HIGH', 'CRITICAL'",
  "impact_field": "one of 'AGRICULTURE', 'INFRASTRUCTURE', 'PUBLIC_HEALTH'",
  "forecast_details": "describe the risk and cite the NUMERIC evidence",
  "actionable_advice": "one concrete recommended action"
}`

// buildRiskPrompt embeds the chronological series in the skeptical
// expert prompt that requests an array verdict.
func buildRiskPrompt(series []weather.Record) (string, error) {
	points := make([]seriesPoint, 0, len(series))
	for _, r := range series {
		points = append(points, seriesPoint{
			RecordTime: r.RecordTime.UTC().Format("2006-01-02"),
			Kind:       r.Kind,
			TempC:      r.TempC,
			Humidity:   r.Humidity,
			UVIndex:    r.UVIndex,
			WindKPH:    r.WindKPH,
		})
	}

	data, err := json.MarshalIndent(points, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(riskPromptTemplate, len(points), data), nil
}
