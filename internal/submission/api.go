package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/zulandar/onecall/internal/models"
)

// apiTimeout bounds one district API call.
const apiTimeout = 30 * time.Second

// commonTicketFields are scanned in order when a district's configured
// response field is absent from the reply.
var commonTicketFields = []string{
	"ticketNumber", "ticketId", "confirmationNumber", "id", "referenceNumber",
}

// APIConfig describes one district's ticket-intake API.
type APIConfig struct {
	Endpoint string
	Method   string
	Headers  map[string]string

	// Fields maps our flat field names to dotted paths in the district's
	// expected payload shape, e.g. "contactName" -> "contact.name".
	Fields map[string]string

	// Defaults are merged into the top level of every payload.
	Defaults map[string]interface{}

	// ResponseTicketField is the dotted path of the ticket number in the
	// district's reply.
	ResponseTicketField string
}

// DefaultAPIConfigs returns the static per-district API table. Credentials
// come from the environment so the table itself can stay checked in.
func DefaultAPIConfigs() map[string]APIConfig {
	return map[string]APIConfig{
		"CA-USANORTH": {
			Endpoint: "https://api.usanorth.org/tickets",
			Method:   http.MethodPost,
			Headers: map[string]string{
				"X-API-Key": os.Getenv("USANORTH_API_KEY"),
			},
			Fields: map[string]string{
				"contactName":     "contact.name",
				"phone":           "contact.phone",
				"email":           "contact.email",
				"address":         "location.address",
				"city":            "location.city",
				"state":           "location.state",
				"zipCode":         "location.zip",
				"workType":        "work.type",
				"workDescription": "work.description",
				"startDate":       "work.startDate",
				"depth":           "work.depth",
			},
			ResponseTicketField: "ticketNumber",
		},
		"CA-DIGALERT": {
			Endpoint: "https://api.digalert.org/v2/tickets",
			Method:   http.MethodPost,
			Headers: map[string]string{
				"Authorization": "Bearer " + os.Getenv("DIGALERT_API_TOKEN"),
			},
			Fields: map[string]string{
				"contactName":     "requester.name",
				"phone":           "requester.phone",
				"email":           "requester.email",
				"address":         "site.streetAddress",
				"city":            "site.city",
				"state":           "site.state",
				"zipCode":         "site.postalCode",
				"workType":        "excavation.type",
				"workDescription": "excavation.description",
				"startDate":       "excavation.startDate",
			},
			ResponseTicketField: "data.ticketId",
		},
	}
}

// APIAdapter submits requests through district ticket-intake APIs.
type APIAdapter struct {
	client  *http.Client
	configs map[string]APIConfig
	now     func() time.Time
}

// NewAPIAdapter creates the API channel adapter. A nil configs map uses the
// default district table.
func NewAPIAdapter(configs map[string]APIConfig) *APIAdapter {
	if configs == nil {
		configs = DefaultAPIConfigs()
	}
	return &APIAdapter{
		client:  &http.Client{Timeout: apiTimeout},
		configs: configs,
		now:     time.Now,
	}
}

// Method implements Adapter.
func (a *APIAdapter) Method() models.Method { return models.MethodAPI }

// Submit builds the district-shaped payload, posts it, and extracts the
// ticket number from the reply. Any non-2xx response or transport error is a
// hard failure for this channel.
func (a *APIAdapter) Submit(ctx context.Context, data models.FormData, district *models.District) (*Result, error) {
	cfg, ok := a.configs[district.ID]
	if !ok {
		return nil, fmt.Errorf("submission: no API configuration for district %s", district.ID)
	}

	payload := buildAPIPayload(data.FieldMap(), cfg)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("submission: marshal API payload: %w", err)
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("submission: build API request: %w", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "onecall/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submission: API call to %s: %w", district.ID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("submission: read API response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("submission: API error from %s: %d - %s",
			district.ID, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var responseData map[string]interface{}
	if err := json.Unmarshal(respBody, &responseData); err != nil {
		responseData = map[string]interface{}{"raw": string(respBody)}
	}

	ticket := a.extractTicket(responseData, cfg)
	log.Printf("submission: API submission to %s succeeded, ticket %s", district.ID, ticket)

	return &Result{
		Success:            true,
		TicketNumber:       ticket,
		ConfirmationNumber: ticket,
		Data: map[string]interface{}{
			"responseData": responseData,
			"submittedAt":  a.now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// buildAPIPayload walks each configured dotted path and creates intermediate
// objects as needed.
func buildAPIPayload(fields map[string]string, cfg APIConfig) map[string]interface{} {
	payload := make(map[string]interface{})
	for ourField, apiPath := range cfg.Fields {
		value, ok := fields[ourField]
		if !ok || value == "" {
			continue
		}
		parts := strings.Split(apiPath, ".")
		current := payload
		for _, part := range parts[:len(parts)-1] {
			next, ok := current[part].(map[string]interface{})
			if !ok {
				next = make(map[string]interface{})
				current[part] = next
			}
			current = next
		}
		current[parts[len(parts)-1]] = value
	}
	for k, v := range cfg.Defaults {
		payload[k] = v
	}
	return payload
}

// extractTicket resolves the configured response path, then the common field
// names, then mints a synthetic id.
func (a *APIAdapter) extractTicket(responseData map[string]interface{}, cfg APIConfig) string {
	if cfg.ResponseTicketField != "" {
		if v, ok := lookupPath(responseData, cfg.ResponseTicketField); ok {
			return stringify(v)
		}
	}
	for _, field := range commonTicketFields {
		if v, ok := responseData[field]; ok && v != nil {
			return stringify(v)
		}
	}
	return fmt.Sprintf("API-%d", a.now().UnixMilli())
}

func lookupPath(data map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = data
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; ticket ids are integral.
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
