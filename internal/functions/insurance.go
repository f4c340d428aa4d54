package functions

import (
	"context"
	"fmt"

	"github.com/haasonsaas/frontdesk/internal/llm"
)

// InsuranceProviders are the canonical provider names the model maps
// misheard names onto.
var InsuranceProviders = []string{
	"BlueCross BlueShield",
	"UnitedHealthcare",
	"Aetna",
	"Cigna",
	"Humana",
	"Kaiser Permanente",
}

// InsuranceArgs are the arguments of fetch_insurance_status.
type InsuranceArgs struct {
	Name string `json:"name"`
}

func insuranceSpec() llm.FunctionSpec {
	enum := make([]any, len(InsuranceProviders))
	for i, p := range InsuranceProviders {
		enum[i] = p
	}
	return llm.FunctionSpec{
		Name: FetchInsuranceStatus,
		Description: "IF the customer wants to know if a specific insurance provider is accepted " +
			"AND there is no fetch_insurance_status function call in the conversation, THEN Run this function.",
		Parameters: mustParams(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type": "string",
					"description": "The name of the insurance provider. " +
						"If the customer specified an insurance provider name, then reference the enum values to determine if you misheard them. " +
						"Assume the customer asked about one of the insurance providers in the enum.\n" +
						"If the customer mentions an insurance provider and it closely matches a value in the ENUM, " +
						"assume they meant the ENUM value and call fetch_insurance_status to check if it's accepted.",
					"enum": enum,
				},
			},
			"required": []string{"name"},
		}),
	}
}

func insuranceHandler(lookup InsuranceLookup) func(context.Context, InsuranceArgs) (string, error) {
	return func(ctx context.Context, args InsuranceArgs) (string, error) {
		accepted := lookup.FetchInsuranceStatus(ctx, args.Name)
		return FormatInsuranceResult(args.Name, accepted), nil
	}
}

// FormatInsuranceResult renders an insurance lookup for the conversation.
func FormatInsuranceResult(provider string, accepted bool) string {
	if provider == "" {
		provider = "that provider"
	}
	if accepted {
		return fmt.Sprintf("Good news, we do accept %s insurance.", provider)
	}
	return fmt.Sprintf("Unfortunately, we do not carry or accept %s insurance.", provider)
}
