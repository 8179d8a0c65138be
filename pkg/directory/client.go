package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"gorm.io/gorm"

	"github.com/LingByte/LingBridge/internal/models"
	"github.com/LingByte/LingBridge/pkg/utils"
)

// Client posts call summaries into a user directory service. Each user gets a
// dedicated channel, found or created on first use and cached in the database
// plus the process LRU.
type Client struct {
	baseURL     string
	apiKey      string
	channelBase string
	db          *gorm.DB
}

func NewClient(baseURL, apiKey, channelBase string, db *gorm.DB) *Client {
	if channelBase == "" {
		channelBase = "phone-calls"
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		channelBase: channelBase,
		db:          db,
	}
}

// Enabled reports whether a directory endpoint is configured.
func (c *Client) Enabled() bool {
	return c.baseURL != ""
}

// CallAlert is the summary posted when a call ends.
type CallAlert struct {
	Direction  string
	FromNumber string
	ToNumber   string
	Outcome    string
	Duration   time.Duration
	Transcript string
}

type channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SendCallAlert posts the alert to the user's channel. Callers treat this as
// fire and forget; a failure only loses the notification, never the call log.
func (c *Client) SendCallAlert(ctx context.Context, userID string, alert CallAlert) error {
	if !c.Enabled() {
		return nil
	}
	if userID == "" {
		userID = "shared"
	}

	ch, err := c.ensureChannel(ctx, userID)
	if err != nil {
		return err
	}

	content := formatAlert(alert)
	err = requests.URL(fmt.Sprintf("%s/api/v1/channels/%s/messages/post", c.baseURL, ch.ID)).
		Bearer(c.apiKey).
		BodyJSON(map[string]string{"content": content}).
		Fetch(ctx)
	if err != nil {
		return fmt.Errorf("post call alert: %w", err)
	}
	return nil
}

// ensureChannel resolves the user's alert channel: LRU, then database, then
// the directory API, creating the channel if nobody has.
func (c *Client) ensureChannel(ctx context.Context, userID string) (*channel, error) {
	cacheKey := "directory:channel:" + userID
	if v, ok := utils.CacheGet(cacheKey); ok {
		if ch, ok := v.(*channel); ok {
			return ch, nil
		}
	}

	if c.db != nil {
		if uc, err := models.GetUserChannel(c.db, userID); err == nil {
			ch := &channel{ID: uc.ChannelID, Name: uc.ChannelName}
			utils.CacheSet(cacheKey, ch)
			return ch, nil
		}
	}

	name := fmt.Sprintf("%s-%s", c.channelBase, userID)

	var all []channel
	err := requests.URL(c.baseURL + "/api/v1/channels/").
		Bearer(c.apiKey).
		ToJSON(&all).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	var found *channel
	for i := range all {
		if all[i].Name == name {
			found = &all[i]
			break
		}
	}

	if found == nil {
		var created channel
		err := requests.URL(c.baseURL + "/api/v1/channels/create").
			Bearer(c.apiKey).
			BodyJSON(map[string]string{
				"name":        name,
				"description": "Phone call summaries",
			}).
			ToJSON(&created).
			Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("create channel %s: %w", name, err)
		}
		if created.ID == "" {
			return nil, errors.New("create channel: directory returned no id")
		}
		found = &created
	}

	if c.db != nil {
		_ = models.SaveUserChannel(c.db, &models.UserChannel{
			UserID:      userID,
			ChannelID:   found.ID,
			ChannelName: found.Name,
		})
	}
	utils.CacheSet(cacheKey, found)
	return found, nil
}

func formatAlert(alert CallAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Call %s** (%s)\n", alert.Outcome, alert.Direction)
	fmt.Fprintf(&b, "From: %s\nTo: %s\n", alert.FromNumber, alert.ToNumber)
	fmt.Fprintf(&b, "Duration: %s\n", alert.Duration.Round(time.Second))
	if alert.Transcript != "" {
		fmt.Fprintf(&b, "\n```\n%s\n```", alert.Transcript)
	}
	return b.String()
}
