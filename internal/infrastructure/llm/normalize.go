package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/orderguard/backend/internal/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

// responseSchema only requires an array; each element is checked on its own
// against lineItemSchema so that one garbled line does not sink the others.
const responseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array"
}`

// lineItemSchema accepts what models actually return: numbers or strings
// for both fields, nulls, and extra keys.
const lineItemSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "model": {"type": ["string", "number", "null"]},
    "price": {"type": ["string", "number", "null"]},
    "description": {"type": ["string", "null"]}
  }
}`

var (
	compiledResponse = jsonschema.MustCompileString("response.json", responseSchema)
	compiledLineItem = jsonschema.MustCompileString("line_item.json", lineItemSchema)

	codeFence = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

	// priceNoise is stripped from price strings before parsing
	priceNoise = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "", "USD", "", "usd", "")
)

// placeholders a model may return instead of null
var placeholders = map[string]bool{
	"":        true,
	"n/a":     true,
	"na":      true,
	"none":    true,
	"null":    true,
	"unknown": true,
	"-":       true,
	"?":       true,
}

type rawLineItem struct {
	Model       any `json:"model"`
	Price       any `json:"price"`
	Description any `json:"description"`
}

// parseLineItems locates the JSON array in the model output and converts it
// into line items. Unreadable fields or elements become nil candidates; only
// output with no usable array is an error.
func parseLineItems(text string) ([]domain.ExtractedLineItem, error) {
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	raw, ok := findJSONArray(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON array in response", domain.ErrExtractionFailed)
	}

	elems, err := decodeElements(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}

	items := make([]domain.ExtractedLineItem, 0, len(elems))
	for _, elem := range elems {
		items = append(items, parseLineItem(elem))
	}
	return items, nil
}

// parseLineItem converts one array element. An element that is not an object
// or has badly typed fields keeps its raw JSON as the description.
func parseLineItem(elem json.RawMessage) domain.ExtractedLineItem {
	var row rawLineItem
	if validateLineItem(elem) != nil || decodeNumbers(elem, &row) != nil {
		return domain.ExtractedLineItem{SourceDescription: string(elem)}
	}

	price, rawPrice := normalizePrice(row.Price)
	return domain.ExtractedLineItem{
		ModelCandidate:    normalizeModel(row.Model),
		PriceCandidate:    price,
		RawPrice:          rawPrice,
		SourceDescription: textValue(row.Description),
	}
}

// findJSONArray returns the first complete JSON array in text that is empty
// or starts with an object. Bracketed prose such as "[1]" is skipped.
func findJSONArray(text string) (json.RawMessage, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err != nil {
			continue
		}
		inner := bytes.TrimSpace(raw[1:])
		if len(inner) > 0 && (inner[0] == ']' || inner[0] == '{') {
			return raw, true
		}
	}
	return nil, false
}

func decodeElements(raw []byte) ([]json.RawMessage, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("unmarshal line items: %w", err)
	}
	if err := compiledResponse.Validate(v); err != nil {
		return nil, fmt.Errorf("line items do not match schema: %w", err)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("malformed line items: %w", err)
	}
	return elems, nil
}

func validateLineItem(elem []byte) error {
	var v any
	if err := json.Unmarshal(elem, &v); err != nil {
		return err
	}
	return compiledLineItem.Validate(v)
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func normalizeModel(v any) *string {
	s := strings.TrimSpace(textValue(v))
	if placeholders[strings.ToLower(s)] {
		return nil
	}
	return &s
}

// normalizePrice returns the parsed price, if any, and the text it came from
func normalizePrice(v any) (*decimal.Decimal, string) {
	raw := strings.TrimSpace(textValue(v))
	if placeholders[strings.ToLower(raw)] {
		return nil, raw
	}

	clean := priceNoise.Replace(raw)
	// decimal accepts exponents; a printed price never has one
	if strings.ContainsAny(clean, "eE") {
		return nil, raw
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return nil, raw
	}
	return &d, raw
}

func textValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
