package fxrates

import (
	"encoding/json"
	"fmt"
	"math"
)

type ratesPayload struct {
	Base            string             `json:"base"`
	BaseCode        string             `json:"base_code"`
	Rates           map[string]float64 `json:"rates"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
}

// ParseRatesPayload decodes a provider response of the form {"rates": {"EUR": 0.9}}.
// The "conversion_rates" key is accepted as an alias. Non-positive or non-finite rates are dropped.
func ParseRatesPayload(base string, data []byte) (Rates, error) {
	var payload ratesPayload
	if errUnmarshal := json.Unmarshal(data, &payload); errUnmarshal != nil {
		return nil, fmt.Errorf("fxrates: decode payload: %w", errUnmarshal)
	}
	raw := payload.Rates
	if len(raw) == 0 {
		raw = payload.ConversionRates
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("fxrates: payload has no rates")
	}

	out := make(Rates, len(raw)+1)
	for code, rate := range raw {
		code = NormalizeCode(code)
		if code == "" || rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
			continue
		}
		out[code] = rate
	}
	base = NormalizeCode(base)
	if base != "" {
		out[base] = 1
	}
	return out, nil
}
