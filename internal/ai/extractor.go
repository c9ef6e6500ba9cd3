package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"invoice-reconciler/internal/core"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
)

const extractorPrompt = `You are an expert at reading supplier invoices.
Extract the structured data from the attached invoice document.
Rules:
1. Copy amounts exactly as printed, as decimal strings (e.g. "1234.56"), without thousands separators or currency symbols.
2. List every line item in document order.
3. For each line, subtotal must be the amount printed on the document, not a recomputation.
4. Use null for anything not printed on the document. Never invent values.`

// Extractor fulfils the document-extraction contract with a vision-capable
// model. The returned snapshot is validated by the core, not trusted here.
type Extractor struct {
	client  *openai.Client
	model   shared.ResponsesModel
	timeout time.Duration
}

// NewExtractor builds an Extractor. Document analysis is slow; timeout
// should allow tens of seconds.
func NewExtractor(apiKey, model string, timeout time.Duration) *Extractor {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Extractor{
		client:  &client,
		model:   shared.ResponsesModel(model),
		timeout: timeout,
	}
}

func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType string) (*core.ExtractedDocument, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	schemaMap, err := structuredSchema(core.ExtractedDocument{})
	if err != nil {
		return nil, err
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))

	var content responses.ResponseInputMessageContentListParam
	content = append(content, responses.ResponseInputContentUnionParam{
		OfInputText: &responses.ResponseInputTextParam{Text: extractorPrompt},
	})
	if strings.HasPrefix(mimeType, "image/") {
		content = append(content, responses.ResponseInputContentUnionParam{
			OfInputImage: &responses.ResponseInputImageParam{
				ImageURL: param.NewOpt(dataURL),
				Detail:   responses.ResponseInputImageDetailAuto,
			},
		})
	} else {
		// PDFs and anything else go in as a file.
		content = append(content, responses.ResponseInputContentUnionParam{
			OfInputFile: &responses.ResponseInputFileParam{
				FileData: param.NewOpt(dataURL),
				Filename: param.NewOpt("invoice.pdf"),
			},
		})
	}

	params := responses.ResponseNewParams{
		Model: e.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemUnionParam{
					OfMessage: &responses.EasyInputMessageParam{
						Role: responses.EasyInputMessageRoleUser,
						Content: responses.EasyInputMessageContentUnionParam{
							OfInputItemContentList: content,
						},
					},
				},
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "extracted_invoice",
					Strict:      param.NewOpt(true),
					Schema:      schemaMap,
					Description: param.NewOpt("Structured data extracted from a supplier invoice document"),
				},
			},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}

	output := resp.OutputText()
	if output == "" {
		return nil, fmt.Errorf("empty response content")
	}

	var doc core.ExtractedDocument
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse extraction: %w", err)
	}
	return &doc, nil
}
