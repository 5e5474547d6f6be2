//go:build ignore

// Generates a synthetic vault for benchmarking ingest and search.
// Usage: go run scripts/generate-test-vault.go -notes 1000 -output testdata/benchvault
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	numNotes  = flag.Int("notes", 1000, "Number of notes to generate")
	outputDir = flag.String("output", "testdata/benchvault", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed, fixed for reproducible vaults")
)

var journalTemplate = `# %s

Slept in, then spent the morning on the %s. %s went better than
expected; the %s still needs a proper write-up.

## Done

- [x] %s
- [x] checked the %s notes
- [ ] %s

## Notes

Thinking about the %s again. See [[%s]] for the earlier attempt.
`

var projectTemplate = `# %s

Status: %s

## Goal

Get the %s to a state where it runs without weekly babysitting. The
current blocker is the %s.

## Next steps

1. %s
2. Document the %s setup
3. %s

## Log

Tried the approach from [[%s]]. It mostly works, but the %s needs
different handling when the %s is involved.
`

var referenceTemplate = "# %s\n\n" +
	"How to %s, collected from too many late nights.\n\n" +
	"## Commands\n\n" +
	"```bash\n%s\n%s\n```\n\n" +
	"## Notes\n\n" +
	"The interval matters more than it looks. Without it the %s silently\n" +
	"falls back to defaults. Related: [[%s]].\n\n" +
	"```yaml\n%s:\n  enabled: true\n  interval: %dm\n```\n"

var meetingTemplate = `# %s sync - %s

Attendees: %s, %s

## Decisions

- Keep the %s as it is for now
- Revisit the %s next quarter

## Action items

- [ ] %s: send the %s summary
- [ ] %s: update the %s doc
`

// Word pools for generating vault-flavored notes.
var (
	topics = []string{
		"homelab", "garden irrigation", "workshop", "reading list",
		"house budget", "backup strategy", "meal plan", "half marathon",
		"film camera", "home network", "sourdough", "trip planning",
		"bouldering", "beehive", "book club",
	}
	chores = []string{
		"water the seedlings", "rotate the backups", "patch the server",
		"sort the inbox", "fix the squeaky door", "update the budget sheet",
		"clean the lenses", "plan the long run", "prune the tomatoes",
		"reorganize the pantry",
	}
	gadgets = []string{
		"reverse proxy", "NAS", "espresso machine", "router", "compost bin",
		"3D printer", "weather station", "e-reader", "solar charger",
		"label printer",
	}
	commands = []string{
		"restic backup --tag weekly /srv",
		"rsync -avz ~/vault nas:/backups/vault",
		"systemctl restart caddy",
		"zfs snapshot tank/media@nightly",
		"docker compose up -d",
		"kubectl drain node-2 --ignore-daemonsets",
	}
	people   = []string{"Alex", "Sam", "Priya", "Jordan", "Marta", "Noah", "Ines"}
	statuses = []string{"active", "paused", "blocked", "nearly done"}
)

var baseDate = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	for _, dir := range []string{"journal", "projects", "reference", "meetings"} {
		if err := os.MkdirAll(filepath.Join(*outputDir, dir), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %v\n", dir, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generating %d notes in %s...\n", *numNotes, *outputDir)

	// Rough shape of a real vault: journal-heavy, projects next.
	journal := *numNotes * 40 / 100
	projects := *numNotes * 25 / 100
	reference := *numNotes * 20 / 100
	meetings := *numNotes - journal - projects - reference

	written := 0
	for i := 0; i < journal; i++ {
		written += write(journalNote(rng, i))
	}
	for i := 0; i < projects; i++ {
		written += write(projectNote(rng, i))
	}
	for i := 0; i < reference; i++ {
		written += write(referenceNote(rng, i))
	}
	for i := 0; i < meetings; i++ {
		written += write(meetingNote(rng, i))
	}

	fmt.Printf("Wrote %d notes.\n", written)
}

func write(rel, content string) int {
	path := filepath.Join(*outputDir, rel)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", rel, err)
		return 0
	}
	return 1
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "-")
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func journalNote(rng *rand.Rand, i int) (string, string) {
	date := baseDate.AddDate(0, 0, i)
	topic := pick(rng, topics)
	content := fmt.Sprintf(journalTemplate,
		date.Format("Monday, January 2"),
		topic,
		pick(rng, chores),
		pick(rng, gadgets),
		pick(rng, chores),
		pick(rng, topics),
		pick(rng, chores),
		pick(rng, gadgets),
		slug(topic),
	)
	return filepath.Join("journal", date.Format("2006-01-02")+".md"), content
}

func projectNote(rng *rand.Rand, i int) (string, string) {
	topic := pick(rng, topics)
	content := fmt.Sprintf(projectTemplate,
		title(topic),
		pick(rng, statuses),
		topic,
		pick(rng, gadgets),
		pick(rng, chores),
		pick(rng, gadgets),
		pick(rng, chores),
		slug(pick(rng, topics)),
		pick(rng, gadgets),
		pick(rng, gadgets),
	)
	return filepath.Join("projects", fmt.Sprintf("%s-%d.md", slug(topic), i)), content
}

func referenceNote(rng *rand.Rand, i int) (string, string) {
	topic := pick(rng, topics)
	gadget := pick(rng, gadgets)
	content := fmt.Sprintf(referenceTemplate,
		title(topic)+" cheatsheet",
		pick(rng, chores),
		pick(rng, commands),
		pick(rng, commands),
		gadget,
		slug(pick(rng, topics)),
		slug(gadget),
		5+rng.Intn(55),
	)
	return filepath.Join("reference", fmt.Sprintf("%s-%d.md", slug(topic), i)), content
}

func meetingNote(rng *rand.Rand, i int) (string, string) {
	date := baseDate.AddDate(0, 0, i*7)
	topic := pick(rng, topics)
	content := fmt.Sprintf(meetingTemplate,
		title(topic),
		date.Format("2006-01-02"),
		pick(rng, people),
		pick(rng, people),
		pick(rng, gadgets),
		pick(rng, topics),
		pick(rng, people),
		topic,
		pick(rng, people),
		pick(rng, gadgets),
	)
	return filepath.Join("meetings", fmt.Sprintf("%s-%s.md", date.Format("2006-01-02"), slug(topic))), content
}
