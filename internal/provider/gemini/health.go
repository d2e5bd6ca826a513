package gemini

import (
	"context"
	"encoding/json"

	"aigateway/internal/credential"
)

// HealthProbe issues the cheapest authenticated Code Assist call available:
// a countTokens request against a minimal prompt, the same probe the
// reference CLI client uses to validate a token without burning a full
// generation.
func (a *Adapter) HealthProbe(ctx context.Context, cred *credential.Credential) error {
	if err := a.ensureFreshToken(ctx, cred); err != nil {
		return err
	}

	model := resolveAndValidate("gemini-2.5-flash")
	payload := &geminiPayload{
		Model:   model,
		Project: cred.ProjectID,
		Request: geminiRequestBody{
			Contents: []geminiContent{{
				Role:  "user",
				Parts: []geminiPart{{Text: "ping"}},
			}},
		},
	}

	body, _, _, err := a.doAction(ctx, cred, "countTokens", payload)
	if err != nil {
		return err
	}

	var probe struct {
		TotalTokens int `json:"totalTokens"`
	}
	return json.Unmarshal(body, &probe)
}
