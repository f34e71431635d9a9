package sampling

import (
	"strings"
	"testing"
)

func TestDefaultVariants(t *testing.T) {
	rwkv := Default(VariantRWKV)
	if rwkv.Temperature != 0.70 || rwkv.TopK != 40 || rwkv.MinP != 0.0 {
		t.Fatalf("rwkv defaults = %+v", rwkv)
	}
	mamba := Default(VariantMamba)
	if mamba.Temperature != 0.18 || mamba.TopK != 0 || mamba.MinP != 0.12 {
		t.Fatalf("mamba defaults = %+v", mamba)
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	p := Default(VariantRWKV)
	if ok := p.Set(FieldTemperature, "0.42"); !ok {
		t.Fatal("Set(temp) should recognize the field")
	}
	got, ok := p.Get(FieldTemperature)
	if !ok || got != "0.42" {
		t.Fatalf("Get(temp) = %q, %v, want 0.42", got, ok)
	}
}

func TestSetInvalidNumberPreservesValue(t *testing.T) {
	p := Default(VariantRWKV)
	before := p.Temperature
	p.Set(FieldTemperature, "not-a-number")
	if p.Temperature != before {
		t.Fatalf("Temperature changed to %v after invalid Set, want unchanged %v", p.Temperature, before)
	}
}

func TestSetUnknownFieldNotRecognized(t *testing.T) {
	p := Default(VariantRWKV)
	if ok := p.Set("bogus", "1"); ok {
		t.Fatal("Set on unknown field should return recognized=false")
	}
}

func TestUnmarshalJSONWithDefaultsFillsMissingFields(t *testing.T) {
	fallback := Default(VariantRWKV)
	data := []byte(`{"temperature":0.99}`)
	p, err := UnmarshalJSONWithDefaults(data, fallback)
	if err != nil {
		t.Fatalf("UnmarshalJSONWithDefaults: %v", err)
	}
	if p.Temperature != 0.99 {
		t.Fatalf("Temperature = %v, want 0.99", p.Temperature)
	}
	if p.TopK != fallback.TopK {
		t.Fatalf("TopK = %v, want fallback %v", p.TopK, fallback.TopK)
	}
}

func TestHelpLinesContainsThreeDecimals(t *testing.T) {
	p := Default(VariantRWKV)
	lines := p.HelpLines()
	if !strings.Contains(lines, "temp       = 0.700") {
		t.Fatalf("HelpLines = %q, missing formatted temp", lines)
	}
}
