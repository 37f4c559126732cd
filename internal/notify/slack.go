// Package notify alerts operators about requests that need human follow-up.
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/onecall/internal/models"
	"github.com/zulandar/onecall/internal/submission"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackNotifier posts channel-exhaustion alerts to an operator channel.
type SlackNotifier struct {
	client    slackClient
	channelID string
}

// NewSlackNotifier creates a notifier posting to the given channel.
func NewSlackNotifier(botToken, channelID string) (*SlackNotifier, error) {
	if botToken == "" {
		return nil, fmt.Errorf("notify: slack bot token is required")
	}
	if channelID == "" {
		return nil, fmt.Errorf("notify: slack channel is required")
	}
	return &SlackNotifier{
		client:    slackapi.New(botToken),
		channelID: channelID,
	}, nil
}

// ChannelsExhausted implements submission.Notifier. Delivery failures are
// logged, never propagated; alerting must not affect the submission path.
func (n *SlackNotifier) ChannelsExhausted(ctx context.Context, req *models.Request, district *models.District, attempts []submission.AttemptFailure) {
	fields := []slackapi.AttachmentField{
		{Title: "Request", Value: req.ID, Short: true},
		{Title: "District", Value: district.Name, Short: true},
		{Title: "Location", Value: fmt.Sprintf("%s, %s, %s", req.Street, req.City, req.State), Short: false},
	}
	var lines []string
	for _, a := range attempts {
		lines = append(lines, fmt.Sprintf("• %s: %s", a.Method, a.Err))
	}

	attachment := slackapi.Attachment{
		Color:  "#d00000",
		Title:  "Locate request failed on every channel",
		Text:   strings.Join(lines, "\n"),
		Fields: fields,
	}
	_, _, err := n.client.PostMessage(n.channelID,
		slackapi.MsgOptionText(fmt.Sprintf("Request %s to %s needs manual submission", req.ID, district.ID), false),
		slackapi.MsgOptionAttachments(attachment),
	)
	if err != nil {
		log.Printf("notify: slack post failed: %v", err)
	}
}
