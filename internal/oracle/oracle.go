// Package oracle wraps the Gemini API behind the three calls the chat
// flow needs: transaction extraction from text, receipt parsing from
// images, and free-form advice.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"bought/internal/core"
)

// Extraction is the structured result of a parse call. A nil result
// with a nil error means the model decided the message holds no
// financial event.
type Extraction struct {
	Amount      decimal.Decimal
	Type        core.TxType
	Category    core.Category
	Description string
	// Merchant and Items are only populated by receipt parsing.
	Merchant string
	Items    []string
}

// GoalExtraction is the parsed form of a free-text goal description.
// Nil with nil error means the text did not describe a goal.
type GoalExtraction struct {
	Name     string
	Target   decimal.Decimal
	Deadline *time.Time
	Category core.GoalCategory
}

// Service is the subset of the oracle the session controller depends
// on. Tests substitute a fake.
type Service interface {
	ExtractTransaction(ctx context.Context, text string) (*Extraction, error)
	ExtractReceipt(ctx context.Context, image []byte, mimeType string) (*Extraction, error)
	ExtractGoal(ctx context.Context, text string, now time.Time) (*GoalExtraction, error)
	Advise(ctx context.Context, question string, snapshot string) (string, error)
	Summarize(ctx context.Context, report string) (string, error)
}

type Gemini struct {
	client *genai.Client
	model  string
}

var _ Service = (*Gemini)(nil)

func NewGemini(ctx context.Context, model string) (*Gemini, error) {
	// Reads GEMINI_API_KEY (or the Vertex env vars) from the environment.
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

const extractPrompt = `You are a personal finance assistant. Analyze the message below and decide
whether it describes a financial transaction (money spent or received).

Respond with ONLY a JSON object, no markdown fences, in this exact shape:
{"is_transaction": true, "amount": 20.50, "type": "expense", "category": "food", "description": "lunch"}

Rules:
- "type" is "expense" or "income".
- "category" is one of: food, transport, shopping, bills, entertainment, health, general, salary.
- "salary" is only valid for income.
- "amount" is a positive number.
- If the message is NOT about a transaction, respond with {"is_transaction": false}.

Message:
`

const receiptPrompt = `You are a personal finance assistant. The attached image is a purchase
receipt. Extract the total amount paid, the merchant, up to five notable
line items, and categorize the purchase.

Respond with ONLY a JSON object, no markdown fences, in this exact shape:
{"is_transaction": true, "amount": 84.20, "type": "expense", "category": "shopping", "description": "supermarket receipt", "merchant": "Tesco", "items": ["milk", "bread"]}

"category" is one of: food, transport, shopping, bills, entertainment, health, general.
If the image is not a readable receipt, respond with {"is_transaction": false}.`

type extractionJSON struct {
	IsTransaction bool     `json:"is_transaction"`
	Amount        float64  `json:"amount"`
	Type          string   `json:"type"`
	Category      string   `json:"category"`
	Description   string   `json:"description"`
	Merchant      string   `json:"merchant"`
	Items         []string `json:"items"`
}

// ExtractTransaction asks the model whether text describes a
// transaction and returns the parsed result, or nil when it does not.
func (g *Gemini) ExtractTransaction(ctx context.Context, text string) (*Extraction, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: extractPrompt + text},
			},
		},
	}
	return g.generateExtraction(ctx, contents)
}

// ExtractReceipt parses a receipt photo into a transaction.
func (g *Gemini) ExtractReceipt(ctx context.Context, image []byte, mimeType string) (*Extraction, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: receiptPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     image,
					},
				},
			},
		},
	}
	return g.generateExtraction(ctx, contents)
}

func (g *Gemini) generateExtraction(ctx context.Context, contents []*genai.Content) (*Extraction, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	var parsed extractionJSON
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal extraction: %w (raw: %s)", err, raw)
	}
	if !parsed.IsTransaction {
		return nil, nil
	}

	ex := &Extraction{
		Amount:      decimal.NewFromFloat(parsed.Amount),
		Type:        core.TxType(parsed.Type),
		Category:    core.ParseCategory(parsed.Category),
		Description: strings.TrimSpace(parsed.Description),
		Merchant:    strings.TrimSpace(parsed.Merchant),
		Items:       parsed.Items,
	}
	if !ex.Type.Valid() {
		ex.Type = core.Expense
	}
	if ex.Category == core.CategorySalary && ex.Type != core.Income {
		ex.Category = core.CategoryGeneral
	}
	if !ex.Amount.IsPositive() {
		// The model claimed a transaction but produced no usable amount.
		return nil, nil
	}
	if ex.Description == "" {
		ex.Description = "untitled"
	}
	return ex, nil
}

const goalPrompt = `You are a personal finance assistant. The user wants to set up a savings
goal and described it in the message below. Today's date is %s.

Respond with ONLY a JSON object, no markdown fences, in this exact shape:
{"is_goal": true, "name": "trip to japan", "target": 5000, "deadline": "2025-09-01", "category": "trip"}

Rules:
- "target" is a positive number.
- "deadline" is a future date in YYYY-MM-DD form. If the user gave a
  duration ("in 6 months"), convert it relative to today. If no date or
  duration was mentioned, use an empty string.
- "category" is one of: trip, purchase, emergency, investment, general.
- If the message does not describe a savings goal with an amount,
  respond with {"is_goal": false}.

Message:
%s`

type goalJSON struct {
	IsGoal   bool    `json:"is_goal"`
	Name     string  `json:"name"`
	Target   float64 `json:"target"`
	Deadline string  `json:"deadline"`
	Category string  `json:"category"`
}

// ExtractGoal parses a free-text goal description. The current time
// anchors relative deadlines.
func (g *Gemini) ExtractGoal(ctx context.Context, text string, now time.Time) (*GoalExtraction, error) {
	prompt := fmt.Sprintf(goalPrompt, now.Format("2006-01-02"), text)
	raw, err := g.generateText(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var parsed goalJSON
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal goal: %w (raw: %s)", err, raw)
	}
	if !parsed.IsGoal {
		return nil, nil
	}

	ex := &GoalExtraction{
		Name:     strings.TrimSpace(parsed.Name),
		Target:   decimal.NewFromFloat(parsed.Target),
		Category: core.ParseGoalCategory(parsed.Category),
	}
	// A deadline is optional; an absent or garbled date leaves it unset
	// rather than discarding the goal.
	if deadline, err := time.Parse("2006-01-02", parsed.Deadline); err == nil && deadline.After(now) {
		ex.Deadline = &deadline
	}
	if ex.Name == "" || !ex.Target.IsPositive() {
		return nil, nil
	}
	return ex, nil
}

const advisePrompt = `You are a personal finance assistant replying in a WhatsApp chat. Using the
spending snapshot below, answer the user's question in 2-4 short sentences.
Be concrete: reference their numbers. No markdown.

Snapshot:
%s

Question: %s`

// Advise answers an affordability or general finance question against
// the user's current numbers.
func (g *Gemini) Advise(ctx context.Context, question, snapshot string) (string, error) {
	return g.generateText(ctx, fmt.Sprintf(advisePrompt, snapshot, question))
}

const summarizePrompt = `You are a personal finance assistant. Below is a monthly spending report.
Write a short, friendly 2-3 sentence summary with one actionable
observation. Plain text, no markdown.

%s`

// Summarize produces the narrative paragraph of the monthly report.
func (g *Gemini) Summarize(ctx context.Context, report string) (string, error) {
	return g.generateText(ctx, fmt.Sprintf(summarizePrompt, report))
}

func (g *Gemini) generateText(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

// cleanModelJSON strips markdown fences and surrounding prose when the
// model ignores the format instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
