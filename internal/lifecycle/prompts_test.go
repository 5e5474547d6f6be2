package lifecycle

import (
	"bytes"
	"strings"
	"testing"
)

// askNoEmbedder feeds input to PromptNoEmbedder and returns the choice,
// error, and everything written to the prompt's output.
func askNoEmbedder(t *testing.T, input string) (PromptChoice, error, string) {
	t.Helper()
	var out bytes.Buffer
	choice, err := PromptNoEmbedder(&out, strings.NewReader(input))
	return choice, err, out.String()
}

func TestPromptNoEmbedder_Choices(t *testing.T) {
	tests := []struct {
		input string
		want  PromptChoice
	}{
		{"1\n", ChoiceShowInstall},
		{"2\n", ChoiceOfflineMode},
		{"3\n", ChoiceCancel},
		{"\n", ChoiceShowInstall}, // empty input takes the default
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input)+"_input", func(t *testing.T) {
			choice, err, _ := askNoEmbedder(t, tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if choice != tt.want {
				t.Errorf("choice = %d, want %d", choice, tt.want)
			}
		})
	}
}

func TestPromptNoEmbedder_InvalidChoice(t *testing.T) {
	choice, err, _ := askNoEmbedder(t, "invalid\n")

	if err == nil {
		t.Fatal("expected error for invalid choice")
	}
	if choice != ChoiceCancel {
		t.Errorf("choice = %d, want ChoiceCancel on error", choice)
	}
}

func TestPromptNoEmbedder_OutputFormat(t *testing.T) {
	_, err, output := askNoEmbedder(t, "1\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"Ollama is required", "[1]", "[2]", "[3]"} {
		if !strings.Contains(output, want) {
			t.Errorf("prompt missing %q:\n%s", want, output)
		}
	}
}

func TestShowInstallInstructions(t *testing.T) {
	var out bytes.Buffer
	ShowInstallInstructions(&out)

	if !strings.Contains(out.String(), "ollama.com") {
		t.Errorf("instructions should mention ollama.com, got %q", out.String())
	}
}

func TestPromptChoiceValues(t *testing.T) {
	// Prompts display 1-based numbers, so the constants start at 1 and
	// must be distinct.
	if ChoiceShowInstall != 1 {
		t.Errorf("ChoiceShowInstall = %d, want 1", ChoiceShowInstall)
	}
	if ChoiceOfflineMode == ChoiceShowInstall || ChoiceCancel == ChoiceOfflineMode {
		t.Error("prompt choices must be distinct")
	}
}
