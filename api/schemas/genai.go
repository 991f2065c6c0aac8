package schemas

// -- Gemini Wire Model --
//
// These types mirror the generateContent turn format: a conversation is a
// sequence of Contents, each holding Parts that are exactly one of text,
// functionCall, or functionResponse. Function responses travel in a "user"
// role turn paired with the model turn that requested them.

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// FunctionCall is a model-requested invocation of a declared tool.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse carries one tool's output back to the model.
type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Part is one unit of content within a turn.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// Content is a single turn in the conversation history.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// TextContent builds a plain text turn.
func TextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{{Text: text}}}
}

// ToolResultPart wraps a tool's string result into a functionResponse part.
func ToolResultPart(name, result string) Part {
	return Part{FunctionResponse: &FunctionResponse{
		Name:     name,
		Response: map[string]any{"result": result},
	}}
}

// ModelResponse is the decoded outcome of one generateContent call: either
// plain answer text, or one or more tool invocation requests, optionally
// accompanied by retrieval grounding citations.
type ModelResponse struct {
	Text           string
	FunctionCalls  []FunctionCall
	CitationTitles []string
}

// HasToolCalls reports whether the model requested tool execution this turn.
func (r *ModelResponse) HasToolCalls() bool {
	return r != nil && len(r.FunctionCalls) > 0
}

// -- Tool Declaration Schema --

// Schema is the subset of the OpenAPI schema dialect the function-calling
// API understands. Types are upper-case ("OBJECT", "STRING").
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// FunctionDeclaration describes one callable capability exposed to the model.
type FunctionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters,omitempty"`
}
