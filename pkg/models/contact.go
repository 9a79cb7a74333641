package models

import "time"

// Contact is the engine's view of a recipient. Data holds the free-form
// custom attributes the rest of the platform writes; the engine reads them
// for condition evaluation and merges into them for update-contact steps.
type Contact struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Email     string         `json:"email" validate:"required,email"`
	FirstName string         `json:"first_name,omitempty"`
	LastName  string         `json:"last_name,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Attributes flattens the contact into the attribute map the condition
// evaluator works against: standard fields at the top level, custom data
// under "data.". Execution context is layered on top by the caller under
// "event.".
func (c *Contact) Attributes() map[string]any {
	attrs := map[string]any{
		"id":         c.ID,
		"email":      c.Email,
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"created_at": c.CreatedAt.UTC().Format(time.RFC3339),
	}

	for key, value := range c.Data {
		attrs["data."+key] = value
	}

	return attrs
}
