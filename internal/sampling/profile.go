// Package sampling implements the SamplingProfile record: the seven
// numeric knobs that govern token sampling, their per-variant
// defaults, get/set with tolerant string coercion, and JSON
// persistence.
package sampling

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Variant selects which default knob set a fresh Profile carries.
// Grounded on original_source's two model runners: RWKV7.py (a
// classic RNN-style state-space model) and
// Falcon_Mamba_Instruct.py (Mamba, which benefits from a min_p tail
// filter the RWKV defaults disable).
type Variant string

const (
	VariantRWKV  Variant = "rwkv"
	VariantMamba Variant = "mamba"
)

// Profile is the process-owned, mutable sampling-knob singleton.
// All seven fields are always present, per spec: adapters that do
// not support min_p (e.g. an RWKV-only runtime) silently ignore it.
type Profile struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	TopK             int     `json:"top_k"`
	MinP             float64 `json:"min_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
	RepeatPenalty    float64 `json:"repeat_penalty"`
}

// Default returns the default Profile for the given variant.
func Default(v Variant) Profile {
	switch v {
	case VariantMamba:
		return Profile{
			Temperature:      0.18,
			TopP:             0.88,
			TopK:             0,
			MinP:             0.12,
			FrequencyPenalty: 0.00,
			PresencePenalty:  0.00,
			RepeatPenalty:    1.00,
		}
	default: // VariantRWKV
		return Profile{
			Temperature:      0.70,
			TopP:             0.95,
			TopK:             40,
			MinP:             0.0,
			FrequencyPenalty: 0.20,
			PresencePenalty:  0.10,
			RepeatPenalty:    1.10,
		}
	}
}

// Field names as used by /t /p /k /min_p /pen_freq /pen_pres /pen_rep
// in their "<field> = <value>" replies. The JSON profile file uses the
// json tag names on Profile instead.
const (
	FieldTemperature = "temp"
	FieldTopP        = "top_p"
	FieldTopK        = "top_k"
	FieldMinP        = "min_p"
	FieldPenFreq     = "pen_freq"
	FieldPenPres     = "pen_pres"
	FieldPenRep      = "pen_rep"
)

// Get returns the string representation of a field for the "/cmd"
// (no arg) query form, and whether the field name was recognized.
func (p Profile) Get(field string) (string, bool) {
	switch field {
	case FieldTemperature:
		return strconv.FormatFloat(p.Temperature, 'f', -1, 64), true
	case FieldTopP:
		return strconv.FormatFloat(p.TopP, 'f', -1, 64), true
	case FieldTopK:
		return strconv.Itoa(p.TopK), true
	case FieldMinP:
		return strconv.FormatFloat(p.MinP, 'f', -1, 64), true
	case FieldPenFreq:
		return strconv.FormatFloat(p.FrequencyPenalty, 'f', -1, 64), true
	case FieldPenPres:
		return strconv.FormatFloat(p.PresencePenalty, 'f', -1, 64), true
	case FieldPenRep:
		return strconv.FormatFloat(p.RepeatPenalty, 'f', -1, 64), true
	default:
		return "", false
	}
}

// Set parses raw and assigns it to field. Per spec, invalid numeric
// text is silently ignored: the current value is preserved and Set
// returns false only to let a caller distinguish "unknown field" from
// "bad value" for logging; both are non-fatal to the caller.
func (p *Profile) Set(field, raw string) (recognized bool) {
	switch field {
	case FieldTemperature:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			p.Temperature = v
		}
		return true
	case FieldTopP:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			p.TopP = v
		}
		return true
	case FieldTopK:
		if v, err := strconv.Atoi(raw); err == nil {
			p.TopK = v
		}
		return true
	case FieldMinP:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			p.MinP = v
		}
		return true
	case FieldPenFreq:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			p.FrequencyPenalty = v
		}
		return true
	case FieldPenPres:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			p.PresencePenalty = v
		}
		return true
	case FieldPenRep:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			p.RepeatPenalty = v
		}
		return true
	default:
		return false
	}
}

// MarshalCompactJSON renders the profile as the compact JSON object
// the on-disk format uses (no indentation, matching the Python
// original's separators=(",", ":")).
func (p Profile) MarshalCompactJSON() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalJSONWithDefaults decodes data into a Profile seeded with
// fallback's values, so any field missing from data falls back to it
// instead of to the JSON zero value.
func UnmarshalJSONWithDefaults(data []byte, fallback Profile) (Profile, error) {
	p := fallback
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Profile{}, fmt.Errorf("sampling: decode profile: %w", err)
	}
	assign := func(key string, dst any) {
		v, ok := raw[key]
		if !ok {
			return
		}
		_ = json.Unmarshal(v, dst)
	}
	assign("temperature", &p.Temperature)
	assign("top_p", &p.TopP)
	assign("top_k", &p.TopK)
	assign("min_p", &p.MinP)
	assign("frequency_penalty", &p.FrequencyPenalty)
	assign("presence_penalty", &p.PresencePenalty)
	assign("repeat_penalty", &p.RepeatPenalty)
	return p, nil
}

// HelpLines renders the "CURRENT SETTINGS" block used by /?, matching
// the formatting of the original's make_help_text (3 decimals for
// floats, plain int for top_k).
func (p Profile) HelpLines() string {
	return fmt.Sprintf(
		"temp       = %.3f\ntop_p      = %.3f\ntop_k      = %d\nmin_p      = %.3f\npen_freq   = %.3f\npen_pres   = %.3f\npen_rep    = %.3f\n",
		p.Temperature, p.TopP, p.TopK, p.MinP, p.FrequencyPenalty, p.PresencePenalty, p.RepeatPenalty,
	)
}
