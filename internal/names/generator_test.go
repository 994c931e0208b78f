package names

import (
	"strings"
	"testing"

	"github.com/emberhost/ember/internal/validate"
)

// TestGenerate tests the core name generation logic
func TestGenerate(t *testing.T) {
	name := Generate()

	// Check that the name is not empty
	if name == "" {
		t.Fatal("Generate() returned empty string")
	}

	// Split and verify format
	parts := strings.Split(name, "-")
	if len(parts) != 2 {
		t.Fatalf("Generate() returned name with wrong format (expected adjective-noun): %s", name)
	}

	adjective, noun := parts[0], parts[1]

	// Verify adjective exists in our list
	found := false
	for _, a := range adjectives {
		if a == adjective {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("Generate() returned unknown adjective: %s", adjective)
	}

	// Verify noun exists in our list
	found = false
	for _, n := range nouns {
		if n == noun {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("Generate() returned unknown noun: %s", noun)
	}
}

// TestGeneratedNamesPassValidation ensures a defaulted name can never
// bounce a create request.
func TestGeneratedNamesPassValidation(t *testing.T) {
	for i := 0; i < 100; i++ {
		name := Generate()
		if err := validate.ServerName(name); err != nil {
			t.Fatalf("Generate() produced invalid server name %q: %v", name, err)
		}
	}
}

// TestGenerateUniqueness tests that generation produces varied names
func TestGenerateUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		seen[Generate()] = true
	}

	// With 1600 combinations, 50 draws should produce well over 2
	// distinct names unless randomness is broken.
	if len(seen) < 10 {
		t.Errorf("Generate() produced only %d distinct names in 50 draws", len(seen))
	}
}
