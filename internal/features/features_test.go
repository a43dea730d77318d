package features

import (
	"errors"
	"testing"
)

func boolPtr(b bool) *bool { return &b }

func TestFromTier_Defaults(t *testing.T) {
	s := FromTier(TierNano, nil)
	if !s.IsEnabled(FeatureCloud) {
		t.Error("nano must enable cloud")
	}
	if s.IsEnabled(FeatureMCP) {
		t.Error("nano must not enable mcp")
	}

	s = FromTier(TierServer, nil)
	if !s.IsEnabled(FeatureTelemetry) {
		t.Error("server must enable telemetry")
	}
}

func TestFromTier_Overrides(t *testing.T) {
	s := FromTier(TierNano, map[string]*bool{
		"mcp":   boolPtr(true),
		"cloud": boolPtr(false),
	})
	if !s.IsEnabled(FeatureMCP) {
		t.Error("override must force-enable mcp")
	}
	if s.IsEnabled(FeatureCloud) {
		t.Error("override must force-disable cloud")
	}

	// nil pointer means "use the tier default".
	s = FromTier(TierNano, map[string]*bool{"cloud": nil})
	if !s.IsEnabled(FeatureCloud) {
		t.Error("nil override must keep the default")
	}
}

func TestRequire(t *testing.T) {
	s := FromTier(TierNano, nil)
	if err := s.Require(FeatureCloud, ""); err != nil {
		t.Errorf("enabled feature must pass: %v", err)
	}

	err := s.Require(FeatureMCP, "enable mcp in config.features")
	if err == nil {
		t.Fatal("disabled feature must fail")
	}
	var disabled *DisabledError
	if !errors.As(err, &disabled) {
		t.Fatalf("error type = %T", err)
	}
	if disabled.Feature != FeatureMCP || disabled.Hint == "" {
		t.Errorf("error = %+v", disabled)
	}
}

func TestAllEnabled(t *testing.T) {
	s := AllEnabled()
	for _, f := range allFeatures {
		if !s.IsEnabled(f) {
			t.Errorf("AllEnabled missing %s", f)
		}
	}
}
