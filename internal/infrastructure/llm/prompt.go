package llm

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orderguard/backend/internal/domain"
)

const extractionPrompt = `Extract the following information from this Purchase Order PDF:
- Model Number/SKU for each line item
- Price listed on the PO for each line item

Format the output as a JSON array of objects, where each object represents a line item with:
- "model": the exact model number/SKU as written, or null if it cannot be read
- "price": the unit price as a number without currency symbols, or null if it cannot be read
- "description": the line item description as written, if any

Example output:
[
  {"model": "ABC123", "price": 299.99, "description": "Dishwasher, stainless"},
  {"model": "XYZ456", "price": 149.50, "description": ""}
]

Include every line item in document order. If a value is ambiguous, use null instead of guessing.
Do not guess or infer any information that is not explicitly present in the document.
Respond with the JSON array only.`

// Gemini generateContent

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func newGeminiRequest(pdf []byte) geminiRequest {
	return geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: extractionPrompt},
				{InlineData: &geminiInlineData{
					MimeType: "application/pdf",
					Data:     base64.StdEncoding.EncodeToString(pdf),
				}},
			},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      0,
			ResponseMimeType: "application/json",
		},
	}
}

func geminiText(body []byte) (string, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrExtractionFailed, err)
	}

	var b strings.Builder
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: empty response", domain.ErrExtractionFailed)
	}
	return b.String(), nil
}

// OpenAI chat completions

type openAIRequest struct {
	Model       string          `json:"model"`
	Temperature float64         `json:"temperature"`
	Messages    []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIContentPart struct {
	Type string      `json:"type"`
	Text string      `json:"text,omitempty"`
	File *openAIFile `json:"file,omitempty"`
}

type openAIFile struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func newOpenAIRequest(model string, pdf []byte) openAIRequest {
	return openAIRequest{
		Model:       model,
		Temperature: 0,
		Messages: []openAIMessage{{
			Role: "user",
			Content: []openAIContentPart{
				{Type: "text", Text: extractionPrompt},
				{Type: "file", File: &openAIFile{
					Filename: "purchase-order.pdf",
					FileData: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdf),
				}},
			},
		}},
	}
}

func openAIText(body []byte) (string, error) {
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrExtractionFailed, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty response", domain.ErrExtractionFailed)
	}
	return resp.Choices[0].Message.Content, nil
}
