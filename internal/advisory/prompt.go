package advisory

import (
	"encoding/json"
	"fmt"
)

// hourFeature is one reduced hourly entry of the feature series sent to
// the inference service.
type hourFeature struct {
	Time       string  `json:"time"`
	TempC      float64 `json:"temp_c"`
	Humidity   float64 `json:"humidity"`
	WindKPH    float64 `json:"wind_kph"`
	Condition  string  `json:"condition"`
	UV         float64 `json:"uv"`
	PrecipMM   float64 `json:"precip_mm"`
	RainChance float64 `json:"rain_chance"`

	epoch int64
}

const advicePromptTemplate = `ROLE:
You are a practical weather advisor helping someone decide what to do right now.

INPUT DATA:
Hourly weather series, recent history plus the next few days, ordered by time:
%s

OUTPUT REQUIREMENTS:
Answer only with ONE JSON object, never an array:
{
  "advice_type": "'advice' for routine recommendations, 'warning' when conditions are hazardous",
  "message": "one short actionable paragraph for the next 24 hours, citing the data"
}`

// buildAdvicePrompt embeds the time-ordered hourly features in the
// single-verdict prompt.
func buildAdvicePrompt(features []hourFeature) (string, error) {
	data, err := json.Marshal(features)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(advicePromptTemplate, data), nil
}
