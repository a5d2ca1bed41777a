package llm

import (
	"strings"

	"github.com/joseph-ayodele/bills-assistant/constants"
)

// maxBillTextChars bounds the bill text sent for extraction.
const maxBillTextChars = 6000

const classifierSystemPrompt = `You are a STRICT query planner for a bill management application.
You MUST output ONLY valid JSON.

### SCHEMA DEFINITIONS
1. type: One of [FILTER, AGGREGATION, SEMANTIC, MIXED]
   - FILTER: simple listing / filtering of bills
   - AGGREGATION: totals, sums, counts
   - SEMANTIC: explanation, reasoning, comparison without totals
   - MIXED: aggregation plus explanation
2. operation: One of [list, sum, count]
3. entities: ONLY for items/products found INSIDE the bill (e.g. "Rice", "Milk", "Soap").
   Format: {"item": "product name"}. A broad category may go in {"category": "..."}.
4. filters: ONLY top-level bill fields:
   - "vendor": store names (e.g. "Fresh Mart")
   - "category": broad types (%s)
   - "payment_method": method used (e.g. "CASH", "UPI", "CARD")
   - "bill_no": specific bill ids
5. time_range: the time intent, or null.
6. needs_rag: true when the answer needs bill text rather than numbers.

### CRITICAL MAPPING RULES
- "Rice", "Milk", "Chicken" are ENTITIES (item), NOT filters.
- "CASH", "UPI", "Online" are FILTERS (payment_method).
- A total amount means operation "sum". A number of bills means operation "count".
- NEVER put time or date logic in "filters". All time goes in "time_range".

### EXAMPLES
Query: "show all the bills of Rice purchase in jan 2026"
Output: {"type": "FILTER", "operation": "list", "entities": {"item": "Rice"}, "filters": null,
 "time_range": {"type": "ABSOLUTE", "granularity": "month", "from": {"month": 1, "year": 2026}}, "needs_rag": false}

Query: "How much did I spend on groceries via UPI?"
Output: {"type": "AGGREGATION", "operation": "sum", "entities": null,
 "filters": {"category": "Grocery", "payment_method": "UPI"}, "time_range": null, "needs_rag": false}`

const timeSystemPrompt = `You extract time ranges from user queries.

STRICT RULES:
- Output VALID JSON only. No explanations, comments, markdown or extra text.
- If unknown, return type NONE.
- Do NOT calculate real dates.
- Words like "recent", "latest", "earlier", "long ago" are ambiguous. If no explicit
  duration is given, return type NONE.
- For "last N months": include N completed months and exclude the current month.
- For a specific single date (e.g. "Jan 19 2026") set "from" to that date and "to" to null.
- Do not assume a range starts on the 1st of the month unless the query says so
  (e.g. "since", "from").`

// timeFewShot is replayed before every time extraction request.
var timeFewShot = []Message{
	{Role: RoleUser, Content: "Total bill for last month"},
	{Role: RoleAssistant, Content: `{"type": "RELATIVE", "from": {"relative": {"unit": "month", "offset": -1}}, "to": {"relative": {"unit": "day", "offset": 0}}, "granularity": "month"}`},
	{Role: RoleUser, Content: "Total bill for last 3 month"},
	{Role: RoleAssistant, Content: `{"type": "RELATIVE", "from": {"relative": {"unit": "month", "offset": -3}}, "to": {"relative": {"unit": "month", "offset": -1}}, "granularity": "month"}`},
	{Role: RoleUser, Content: "Total bill for last november"},
	{Role: RoleAssistant, Content: `{"type": "RELATIVE", "from": {"relative": {"unit": "year", "offset": -1}, "month": 11}, "to": {"relative": {"unit": "year", "offset": -1}, "month": 11}, "granularity": "month"}`},
	{Role: RoleUser, Content: "Bills between sept 2024 and nov 2024"},
	{Role: RoleAssistant, Content: `{"type": "ABSOLUTE", "from": {"year": 2024, "month": 9}, "to": {"year": 2024, "month": 11}, "granularity": "month"}`},
	{Role: RoleUser, Content: "from 9th sept 2024 to 10 oct 2025"},
	{Role: RoleAssistant, Content: `{"type": "ABSOLUTE", "from": {"year": 2024, "month": 9, "day": 9}, "to": {"year": 2025, "month": 10, "day": 10}, "granularity": "day"}`},
	{Role: RoleUser, Content: "all time"},
	{Role: RoleAssistant, Content: `{"type": "NONE", "from": null, "to": null, "granularity": "year"}`},
}

const billSystemPrompt = `You extract structured bill information from raw text.
Fields: vendor, bill_no, bill_date (YYYY-MM-DD), category, total_amount, tax_amount,
currency (3-letter code, default INR), payment_method, items.
- Use "description" for the item name; items may carry amount, quantity, rate and gst.
- Use numeric values for tax and gst (e.g. 5, not "5%%").
- Category should be one of: %s.
- Put anything that does not fit these fields inside "extra_data" as key-value pairs.

RULES:
- Output VALID JSON only. No explanations, no markdown.
- If a value is unknown, use null.`

var billFewShot = []Message{
	{Role: RoleUser, Content: "Apollo Hospital\nDate: 05/01/2025\nTotal Amount: Rs. 12,500"},
	{Role: RoleAssistant, Content: `{"vendor": "Apollo Hospital", "bill_date": "2025-01-05", "category": "Medical", "total_amount": 12500, "tax_amount": null, "currency": "INR", "items": null}`},
}

// BuildClassifierMessages composes the plan classification conversation.
func BuildClassifierMessages(query string) []Message {
	return []Message{
		{Role: RoleSystem, Content: strings.Replace(classifierSystemPrompt, "%s", categoryLine(), 1)},
		{Role: RoleUser, Content: strings.TrimSpace(query)},
	}
}

// BuildTimeMessages composes the time extraction conversation with its few-shot turns.
func BuildTimeMessages(text string) []Message {
	msgs := make([]Message, 0, len(timeFewShot)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: timeSystemPrompt})
	msgs = append(msgs, timeFewShot...)
	return append(msgs, Message{Role: RoleUser, Content: strings.TrimSpace(text)})
}

// BuildBillMessages composes the bill extraction conversation. Long text is truncated.
func BuildBillMessages(text string) []Message {
	text = strings.TrimSpace(text)
	if len(text) > maxBillTextChars {
		text = text[:maxBillTextChars] + "\n…(truncated)"
	}
	system := strings.Replace(billSystemPrompt, "%s", categoryLine(), 1)
	system = strings.ReplaceAll(system, "%%", "%")

	msgs := make([]Message, 0, len(billFewShot)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	msgs = append(msgs, billFewShot...)
	return append(msgs, Message{Role: RoleUser, Content: text})
}

// SemanticAnswerPrompt asks for an answer grounded in retrieved bill text.
func SemanticAnswerPrompt(context, question string) string {
	return "Answer the question using the following bill context:\n" + context + "\nQuestion: " + question
}

// MixedAnswerPrompt combines aggregate facts with retrieved bill text.
func MixedAnswerPrompt(facts, context, question string) string {
	return "Facts:\n" + facts + "\n\nBill Details:\n" + context + "\n\nAnswer the user question clearly.\nQuestion: " + question
}

func categoryLine() string {
	return strings.Join(constants.AsStringSlice(), ", ")
}
