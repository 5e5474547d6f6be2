package search

// VaultSynonyms maps common query vocabulary to the variants people
// actually write in their notes. Expansion feeds the lexical channels
// only; the embedding model handles semantic variants on its own.
var VaultSynonyms = map[string][]string{
	// Task vocabulary
	"todo":     {"task", "checklist", "pending"},
	"task":     {"todo", "item", "action"},
	"done":     {"complete", "finished", "closed"},
	"deadline": {"due", "eta"},

	// Meeting and planning vocabulary
	"meeting":  {"standup", "sync", "1on1", "notes"},
	"standup":  {"meeting", "daily"},
	"agenda":   {"plan", "topics"},
	"decision": {"decided", "adr", "outcome"},

	// Writing vocabulary
	"note":    {"notes", "memo", "entry"},
	"draft":   {"wip", "outline"},
	"summary": {"recap", "tldr", "overview"},
	"idea":    {"thought", "brainstorm"},

	// Dev-notes vocabulary
	"function": {"func", "method", "def"},
	"method":   {"func", "function"},
	"error":    {"err", "failure", "exception"},
	"bug":      {"issue", "defect", "regression"},
	"fix":      {"patch", "resolve", "workaround"},
	"config":   {"configuration", "settings", "setup"},
	"command":  {"cmd", "cli", "shell"},
	"database": {"db", "sql", "schema"},
	"server":   {"service", "daemon", "host"},
	"test":     {"testing", "spec", "check"},
	"deploy":   {"release", "ship", "rollout"},
	"delete":   {"remove", "drop", "purge"},
	"search":   {"find", "query", "lookup"},
	"auth":     {"authentication", "login", "credentials"},

	// Reference vocabulary
	"link":     {"url", "reference", "see"},
	"snippet":  {"example", "sample", "block"},
	"doc":      {"documentation", "readme", "guide"},
	"howto":    {"how-to", "guide", "tutorial"},
	"recipe":   {"howto", "steps", "walkthrough"},
	"glossary": {"definition", "term"},
}
