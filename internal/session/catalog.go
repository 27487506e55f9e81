package session

import (
	"fmt"
	"slices"
	"sync"

	promptcraft "github.com/promptcraft/promptcraft-chat"
	"github.com/promptcraft/promptcraft-chat/internal/models"
	"gopkg.in/yaml.v3"
)

// Catalog is the list of prompts offered when starting a conversation: the built-in defaults followed by the
// custom prompts persisted on the server.
type Catalog struct {
	defaults []models.Prompt

	mu     sync.Mutex
	custom []models.Prompt
}

const defaultPromptsFile = "prompts/defaults.yaml"

// DefaultPrompts returns the built-in prompts embedded in the binary.
func DefaultPrompts() ([]models.Prompt, error) {
	b, err := promptcraft.PromptsFS.ReadFile(defaultPromptsFile)
	if err != nil {
		return nil, fmt.Errorf("error reading default prompts: %w", err)
	}

	var prompts []models.Prompt
	if err := yaml.Unmarshal(b, &prompts); err != nil {
		return nil, fmt.Errorf("error decoding default prompts: %w", err)
	}
	return prompts, nil
}

// NewCatalog creates a catalog holding the given built-in prompts and no custom ones.
func NewCatalog(defaults []models.Prompt) *Catalog {
	return &Catalog{defaults: slices.Clone(defaults)}
}

// Replace swaps the custom prompts for a fresh server listing.
func (c *Catalog) Replace(custom []models.Prompt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.custom = slices.Clone(custom)
}

// Add appends a newly saved custom prompt.
func (c *Catalog) Add(p models.Prompt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.custom = append(c.custom, p)
}

// Remove drops a custom prompt by ID.
func (c *Catalog) Remove(id models.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.custom = slices.DeleteFunc(c.custom, func(p models.Prompt) bool {
		return p.ID == id
	})
}

// All returns the built-in prompts followed by the custom ones.
func (c *Catalog) All() []models.Prompt {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Concat(c.defaults, c.custom)
}

// Lookup finds a prompt by name, or by ID for custom prompts. Custom prompts shadow built-ins of the same name.
func (c *Catalog) Lookup(nameOrID string) (models.Prompt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.custom {
		if p.ID == models.ID(nameOrID) || p.Name == nameOrID {
			return p, true
		}
	}
	for _, p := range c.defaults {
		if p.Name == nameOrID {
			return p, true
		}
	}
	return models.Prompt{}, false
}
