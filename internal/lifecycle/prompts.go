package lifecycle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// PromptChoice is the user's pick from an interactive prompt.
type PromptChoice int

const (
	// ChoiceShowInstall shows installation instructions.
	ChoiceShowInstall PromptChoice = iota + 1
	// ChoiceOfflineMode continues with static embeddings.
	ChoiceOfflineMode
	// ChoiceCancel aborts the operation.
	ChoiceCancel
)

// IsTTY reports whether stdin is a terminal. Prompts are only shown
// interactively; scripted runs get errors with instructions instead.
func IsTTY() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

const noEmbedderMenu = `
Ollama is required for semantic search but not installed.

  [1] Show install instructions (then retry)
  [2] Use offline mode (keyword search only)
  [3] Cancel
`

var promptChoices = map[string]PromptChoice{
	"1": ChoiceShowInstall,
	"2": ChoiceOfflineMode,
	"3": ChoiceCancel,
}

// PromptNoEmbedder asks what to do when Ollama is missing. An empty
// answer takes the default (show instructions).
func PromptNoEmbedder(w io.Writer, r io.Reader) (PromptChoice, error) {
	fmt.Fprint(w, noEmbedderMenu)
	fmt.Fprint(w, "Choice [1]: ")

	input, err := bufio.NewReader(r).ReadString('\n')
	if err != nil {
		return ChoiceCancel, fmt.Errorf("read input: %w", err)
	}

	input = strings.TrimSpace(input)
	if input == "" {
		input = "1"
	}
	if choice, ok := promptChoices[input]; ok {
		return choice, nil
	}
	return ChoiceCancel, fmt.Errorf("invalid choice: %s", input)
}

// ShowInstallInstructions prints platform-specific install instructions.
func ShowInstallInstructions(w io.Writer) {
	fmt.Fprintf(w, "\n%s\n\n", InstallInstructions())
}

// CreatePullProgressFunc returns a PullModel callback that renders a
// byte-count progress bar. Pull streams interleave status-only lines
// (manifest fetch, verification) with sized download chunks; status
// lines print as plain text, sized chunks drive the bar.
func CreatePullProgressFunc(w io.Writer) func(PullProgress) {
	var bar *progressbar.ProgressBar
	lastStatus := ""

	return func(p PullProgress) {
		if p.Total > 0 {
			if bar == nil {
				bar = progressbar.NewOptions64(p.Total,
					progressbar.OptionSetWriter(w),
					progressbar.OptionShowBytes(true),
					progressbar.OptionSetWidth(40),
					progressbar.OptionSetDescription("downloading"),
					progressbar.OptionClearOnFinish(),
				)
			}
			bar.ChangeMax64(p.Total)
			_ = bar.Set64(p.Completed)
			return
		}

		if p.Status != lastStatus {
			lastStatus = p.Status
			fmt.Fprintf(w, "\r%s...", p.Status)
		}
	}
}
