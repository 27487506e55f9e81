package promptcraft

import "embed"

// PromptsFS contains the built-in system prompt catalog. The catalog is a YAML list of name/content pairs
// shipped with every client, so a conversation can be started before any custom prompt exists on the server.
//
//go:embed prompts/*.yaml
var PromptsFS embed.FS
