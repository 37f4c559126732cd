package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/zulandar/onecall/internal/models"
)

// OpenAIGenerator implements Generator and Transcriber against the OpenAI
// API: chat completions for script and instruction generation, Whisper for
// call transcription.
type OpenAIGenerator struct {
	client     *openai.Client
	model      string
	httpClient *http.Client
}

// NewOpenAIGenerator creates a generator. model defaults to gpt-4.
func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = openai.GPT4
	}
	return &OpenAIGenerator{
		client:     openai.NewClient(apiKey),
		model:      model,
		httpClient: &http.Client{},
	}
}

// CallScript asks the model for a voice script and parses the JSON object
// out of the reply. Callers fall back to FallbackCallScript on error.
func (g *OpenAIGenerator) CallScript(ctx context.Context, data models.FormData, district *models.District) (*CallScript, error) {
	company := data.CompanyName
	if company == "" {
		company = "private individual"
	}
	emergency := "NO"
	if data.EmergencyWork {
		emergency = "YES"
	}

	prompt := fmt.Sprintf(`Generate a professional phone call script for submitting a dig safe locate request to %s.

Request details:
- Contact: %s from %s
- Phone: %s
- Email: %s
- Work location: %s
- Work type: %s
- Work description: %s
- Start date: %s
- Emergency: %s

Create a structured script with segments that include:
1. Professional greeting and introduction
2. Statement of purpose (submitting a locate request)
3. Providing all necessary information clearly
4. Asking for confirmation/ticket number
5. Professional closing

Format the response as a JSON object with this structure:
{
  "segments": [
    {
      "id": 1,
      "type": "speak|gather|pause",
      "text": "what to say (for speak segments)",
      "prompt": "question to ask (for gather segments)",
      "timeout": 5,
      "duration": 1
    }
  ]
}

Important:
- Be concise but complete
- Speak slowly and clearly
- Spell out complex words or numbers
- Be prepared for IVR systems`,
		district.Name, data.ContactName, company, data.Phone, data.Email,
		data.Address, data.WorkType, data.WorkDescription,
		data.StartDate.Format("2006-01-02"), emergency)

	content, err := g.complete(ctx, "You are an expert at creating professional phone scripts for business calls.", prompt, 2000)
	if err != nil {
		return nil, err
	}

	raw, ok := sliceJSON(content, '{', '}')
	if !ok {
		return nil, fmt.Errorf("script: no JSON object in model reply")
	}
	var cs CallScript
	if err := json.Unmarshal([]byte(raw), &cs); err != nil {
		return nil, fmt.Errorf("script: parse call script: %w", err)
	}
	if len(cs.Segments) == 0 {
		return nil, fmt.Errorf("script: generated call script has no segments")
	}
	log.Printf("script: generated call script with %d segments", len(cs.Segments))
	return EnhanceForDistrict(&cs, district), nil
}

// FormInstructions asks the model to analyze a form and emit a fill
// sequence. Callers fall back to FallbackInstructions on error.
func (g *OpenAIGenerator) FormInstructions(ctx context.Context, formHTML string, data models.FormData) ([]Instruction, error) {
	// Cap the HTML we send to keep the prompt inside the context window.
	if len(formHTML) > 5000 {
		formHTML = formHTML[:5000]
	}
	fields, err := json.MarshalIndent(data.FieldMap(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("script: marshal form data: %w", err)
	}

	prompt := fmt.Sprintf(`You are an expert at analyzing HTML forms and generating precise instructions for filling them out.

Given the following HTML form and data to fill, generate a JSON array of instructions for automating the form fill process.

Form HTML:
%s

Data to fill:
%s

Generate instructions in the following format:
[
  {
    "action": "fill|select|click|check|wait",
    "selector": "CSS selector for the element",
    "value": "value to enter (for fill/select actions)",
    "description": "what this field is for"
  }
]

Focus on:
1. Contact information fields (name, company, phone, email)
2. Address/location fields
3. Work type and description
4. Start date
5. Any required checkboxes or agreements

Make selectors as specific as possible but also flexible enough to work if IDs change.`,
		formHTML, fields)

	content, err := g.complete(ctx, "You are an expert at web form automation and HTML analysis.", prompt, 2000)
	if err != nil {
		return nil, err
	}

	raw, ok := sliceJSON(content, '[', ']')
	if !ok {
		return nil, fmt.Errorf("script: no JSON array in model reply")
	}
	var instructions []Instruction
	if err := json.Unmarshal([]byte(raw), &instructions); err != nil {
		return nil, fmt.Errorf("script: parse instructions: %w", err)
	}
	if len(instructions) == 0 {
		return nil, fmt.Errorf("script: generated no instructions")
	}
	log.Printf("script: generated %d form fill instructions", len(instructions))
	return instructions, nil
}

// Transcribe downloads a call recording and runs it through Whisper.
func (g *OpenAIGenerator) Transcribe(ctx context.Context, recordingURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return "", fmt.Errorf("script: build recording request: %w", err)
	}
	req.Header.Set("Accept", "audio/*")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("script: download recording: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("script: download recording: status %d", resp.StatusCode)
	}

	transcription, err := g.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   resp.Body,
		FilePath: "recording.wav",
		Language: "en",
	})
	if err != nil {
		return "", fmt.Errorf("script: transcribe: %w", err)
	}
	return transcription.Text, nil
}

// ExtractTranscriptInfo pulls structured facts (ticket number, status,
// dates) out of a transcript. Returns the raw reply under "raw" when the
// model's output isn't valid JSON.
func (g *OpenAIGenerator) ExtractTranscriptInfo(ctx context.Context, transcript string) (map[string]interface{}, error) {
	prompt := fmt.Sprintf(`Extract the following information from this phone call transcription:

Transcription:
%s

Extract:
1. Ticket/confirmation number (if mentioned)
2. Status of the request
3. Any important dates or deadlines
4. Special instructions or requirements

Format as JSON.`, transcript)

	content, err := g.complete(ctx, "", prompt, 500)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return map[string]interface{}{"raw": content}, nil
	}
	return out, nil
}

// complete runs one chat completion and returns the reply text.
func (g *OpenAIGenerator) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: 0.3,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("script: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("script: empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// sliceJSON returns the outermost open..close span in s. Model replies often
// wrap JSON in prose or code fences.
func sliceJSON(s string, opening, closing byte) (string, bool) {
	start := strings.IndexByte(s, opening)
	end := strings.LastIndexByte(s, closing)
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
