package internal

import (
	"slices"
	"strings"
	"testing"

	"github.com/autodesk-tandem/tandem-sample-rest/internal/attr"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Schema.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Schema.Workers)
	}
}

func TestSchemaConfig_WorkersRange(t *testing.T) {
	for _, n := range []int{0, -1, 65} {
		cfg := SchemaConfig{Workers: n}
		if err := cfg.Validate(); err == nil {
			t.Errorf("workers = %d should fail validation", n)
		}
	}
	cfg := SchemaConfig{Workers: 64, Strict: true}
	if err := cfg.Validate(); err != nil {
		t.Errorf("workers = 64 should pass: %v", err)
	}
}

func TestCatalogsConfig_PathRequired(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Catalogs.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty catalogs path should fail validation")
	}
}

func TestFormattingConfig_Overrides(t *testing.T) {
	var empty FormattingConfig
	if got, want := empty.Overrides(), attr.DefaultFormatOverrides(); !slices.Equal(got.FractionalInches, want.FractionalInches) {
		t.Errorf("empty config should use the built-in lists, got %v", got.FractionalInches)
	}

	cfg := FormattingConfig{FractionalInches: []string{"Slab Depth"}}
	got := cfg.Overrides()
	if !slices.Equal(got.FractionalInches, []string{"Slab Depth"}) {
		t.Errorf("fractional inches = %v", got.FractionalInches)
	}
	if len(got.FeetFractionalInches) == 0 {
		t.Error("unset list should keep the built-in names")
	}
}
