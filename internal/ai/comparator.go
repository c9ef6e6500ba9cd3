package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"invoice-reconciler/internal/core"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
)

// Comparator fulfils the comparator contract with an LLM call. The diff
// engine validates and, where necessary, recomputes everything it returns.
type Comparator struct {
	client  *openai.Client
	model   shared.ResponsesModel
	timeout time.Duration
}

func NewComparator(apiKey, model string, timeout time.Duration) *Comparator {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Comparator{
		client:  &client,
		model:   shared.ResponsesModel(model),
		timeout: timeout,
	}
}

func (c *Comparator) Compare(ctx context.Context, draft *core.DraftRecord, doc *core.ExtractedDocument) (*core.ComparisonResult, error) {
	draftJSON, err := json.MarshalIndent(draft, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal draft: %w", err)
	}
	docJSON, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal extraction: %w", err)
	}

	prompt := fmt.Sprintf(`You are an expert accounts-payable auditor.
Compare a draft ledger invoice against the data extracted from the supplier's definitive invoice document and report every discrepancy.
Rules:
1. total_difference = extracted total_amount - draft amount_total, as a signed decimal string.
2. For each discrepancy, emit one difference and, when fixable, one correction action.
3. update and delete actions must reference an existing draft line_id; create actions must carry new_line (product matched) or parsed_line (product unmatched).
4. Every create action for an unmatched product must set requires_user_approval to true.
5. Amounts are exact decimal strings (e.g. "100.00").
6. Do not propose corrections for differences within 0.02 currency units.

Draft ledger invoice:
%s

Extracted supplier document:
%s`, draftJSON, docJSON)

	schemaMap, err := structuredSchema(core.ComparisonResult{})
	if err != nil {
		return nil, err
	}

	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "invoice_comparison",
					Strict:      param.NewOpt(true),
					Schema:      schemaMap,
					Description: param.NewOpt("A structured diff between a draft ledger invoice and the supplier's document"),
				},
			},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}

	output := resp.OutputText()
	if output == "" {
		return nil, fmt.Errorf("empty response content")
	}

	var result core.ComparisonResult
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		return nil, fmt.Errorf("failed to parse comparison: %w", err)
	}
	return &result, nil
}
