package line

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

const lineAPIURL = "https://api.line.me/v2/bot/message/push"

// Client handles LINE notifications
type Client struct {
	channelToken string
	userID       string
	bookingURL   string
	endpoint     string
	http         *resty.Client
	log          zerolog.Logger
}

// NewClient creates a new LINE client. bookingURL is linked from every message.
func NewClient(channelToken, userID, bookingURL string, log zerolog.Logger) *Client {
	return &Client{
		channelToken: channelToken,
		userID:       userID,
		bookingURL:   bookingURL,
		endpoint:     lineAPIURL,
		http:         resty.New().SetTimeout(20 * time.Second),
		log:          log,
	}
}

// WithEndpoint points the client at another push endpoint
func (c *Client) WithEndpoint(endpoint string) *Client {
	c.endpoint = endpoint
	return c
}

// Message represents a LINE message
type Message struct {
	To       string        `json:"to"`
	Messages []LineContent `json:"messages"`
}

// LineContent represents the content of a LINE message
type LineContent struct {
	Type     string      `json:"type"`
	Text     string      `json:"text,omitempty"`
	AltText  string      `json:"altText,omitempty"`
	Contents interface{} `json:"contents,omitempty"`
}

// Day is one bookable day of a notification
type Day struct {
	Date  string
	Times []string
}

// NotifyEarliest sends a notification about the first bookable day and the earlier
// days that turned out to be bookable too, in date order
func (c *Client) NotifyEarliest(ctx context.Context, first Day, earlier []Day) error {
	days := append(append([]Day{}, earlier...), first)
	payload := Message{
		To:       c.userID,
		Messages: []LineContent{c.createFlexMessage(days)},
	}
	return c.sendMessage(ctx, payload)
}

func (c *Client) sendMessage(ctx context.Context, payload Message) error {
	if c.channelToken == "" || c.userID == "" {
		return fmt.Errorf("LINE configuration is incomplete")
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(c.channelToken).
		SetBody(payload).
		Post(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	if res.StatusCode() != 200 {
		return fmt.Errorf("message failed with status: %d", res.StatusCode())
	}

	c.log.Info().Msg("📱 Notification sent")
	return nil
}

// component is the subset of the LINE flex schema the notification uses
type component struct {
	Type     string      `json:"type"`
	Layout   string      `json:"layout,omitempty"`
	Text     string      `json:"text,omitempty"`
	Size     string      `json:"size,omitempty"`
	Weight   string      `json:"weight,omitempty"`
	Color    string      `json:"color,omitempty"`
	Margin   string      `json:"margin,omitempty"`
	Spacing  string      `json:"spacing,omitempty"`
	Style    string      `json:"style,omitempty"`
	Wrap     bool        `json:"wrap,omitempty"`
	Action   *uriAction  `json:"action,omitempty"`
	Contents []component `json:"contents,omitempty"`
}

type uriAction struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	URI   string `json:"uri"`
}

type bubble struct {
	Type   string    `json:"type"`
	Header component `json:"header"`
	Body   component `json:"body"`
}

const green = "#1DB446"

func vbox(spacing string, contents ...component) component {
	return component{Type: "box", Layout: "vertical", Spacing: spacing, Contents: contents}
}

func dayBox(day Day) component {
	times := "-"
	if len(day.Times) > 0 {
		times = strings.Join(day.Times, ", ")
	}
	return vbox("",
		vbox("sm",
			component{Type: "text", Text: "📅 " + day.Date, Size: "md", Weight: "bold", Color: green},
			component{Type: "text", Text: "🕘 " + times, Size: "sm", Color: "#666666", Margin: "sm", Wrap: true},
		),
		component{Type: "separator", Margin: "md"},
	)
}

func (c *Client) createFlexMessage(days []Day) LineContent {
	boxes := make([]component, 0, len(days)+1)
	for _, day := range days {
		boxes = append(boxes, dayBox(day))
	}

	book := vbox("", component{
		Type:   "button",
		Style:  "primary",
		Color:  green,
		Action: &uriAction{Type: "uri", Label: "Termin buchen", URI: c.bookingURL},
	})
	book.Margin = "md"
	boxes = append(boxes, book)

	return LineContent{
		Type:    "flex",
		AltText: fmt.Sprintf("Freier Termin ab %s (%d Tage)", days[0].Date, len(days)),
		Contents: bubble{
			Type:   "bubble",
			Header: vbox("", component{Type: "text", Text: "🎉 Termin gefunden!", Size: "xl", Weight: "bold", Color: green}),
			Body:   vbox("md", boxes...),
		},
	}
}
