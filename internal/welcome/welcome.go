// Package welcome sends the first community message to a user who finished
// the quiz: a summary of the answers plus links to the community sections.
package welcome

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/pkg/vk"
)

var (
	// ErrInvalidRequest is returned when user or group id is missing.
	ErrInvalidRequest = errors.New("user_id and group_id are required")
	// ErrNotAllowed is returned when the user has not allowed messages from
	// the community.
	ErrNotAllowed = errors.New("user has not allowed messages from the community")
)

// Request asks for a welcome message.
type Request struct {
	UserID  model.FlexString `json:"user_id"`
	GroupID model.FlexString `json:"group_id"`
	Answers model.Answers    `json:"answers,omitempty"`
}

// Result describes a sent message.
type Result struct {
	MessageID int64  `json:"messageId"`
	Text      string `json:"text"`
}

// Config holds the message template.
type Config struct {
	Header       string
	Labels       []model.Label
	ProjectsURL  string
	ReviewsURL   string
	ErrorsURL    string
	ButtonLabels [3]string
}

// DefaultLabels is the order of the summary lines.
func DefaultLabels() []model.Label {
	return []model.Label{
		{Key: "style", Title: "Style"},
		{Key: "layout", Title: "Layout"},
		{Key: "area", Title: "Area"},
		{Key: "deadline", Title: "Deadline"},
		{Key: "budget", Title: "Budget"},
		{Key: "gift", Title: "Gift"},
		{Key: "method", Title: "Contact method"},
		{Key: "name", Title: "Name"},
		{Key: "phone_e164", Title: "Phone"},
	}
}

// Service composes and sends welcome messages.
type Service struct {
	client vk.Client
	cfg    Config
	now    func() time.Time
}

// New creates a Service, filling unset template parts with defaults.
func New(client vk.Client, cfg Config) *Service {
	if cfg.Header == "" {
		cfg.Header = "Thank you! We received your request."
	}
	if len(cfg.Labels) == 0 {
		cfg.Labels = DefaultLabels()
	}
	defaults := [3]string{"Our projects", "Reviews", "Common mistakes"}
	for i := range cfg.ButtonLabels {
		if cfg.ButtonLabels[i] == "" {
			cfg.ButtonLabels[i] = defaults[i]
		}
	}
	return &Service{client: client, cfg: cfg, now: time.Now}
}

// Send checks the messaging permission and sends the welcome message. A
// failed permission check is ignored; an explicit refusal returns
// ErrNotAllowed.
func (s *Service) Send(ctx context.Context, req Request) (*Result, error) {
	userID, groupID, err := parseIDs(req)
	if err != nil {
		return nil, err
	}

	allowed, err := s.client.IsMessagesFromGroupAllowed(ctx, userID, groupID)
	switch {
	case err != nil:
		zap.L().Warn("welcome: permission check failed, sending anyway",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	case !allowed:
		return nil, ErrNotAllowed
	}

	text := s.Compose(req.Answers)
	id, err := s.client.SendMessage(ctx, vk.Message{
		UserID:   userID,
		RandomID: s.now().UnixMilli(),
		Text:     text,
		Keyboard: s.Keyboard(groupID),
	})
	if err != nil {
		return nil, eris.Wrap(err, "welcome: send message")
	}

	zap.L().Info("welcome: message sent", zap.Int64("user_id", userID), zap.Int64("message_id", id))
	return &Result{MessageID: id, Text: text}, nil
}

// Compose renders the header followed by one line per answered label.
func (s *Service) Compose(answers model.Answers) string {
	lines := []string{s.cfg.Header}
	for _, l := range s.cfg.Labels {
		if v := strings.TrimSpace(answers[l.Key]); v != "" {
			lines = append(lines, l.Title+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}

// Keyboard returns the inline keyboard with the three section links. Unset
// links point at the community page.
func (s *Service) Keyboard(groupID int64) *vk.Keyboard {
	base := "https://vk.com/public" + strconv.FormatInt(groupID, 10)
	link := func(u string) string {
		if u == "" {
			return base
		}
		return u
	}
	return &vk.Keyboard{
		Inline: true,
		Buttons: [][]vk.Button{{
			vk.LinkButton(s.cfg.ButtonLabels[0], link(s.cfg.ProjectsURL)),
			vk.LinkButton(s.cfg.ButtonLabels[1], link(s.cfg.ReviewsURL)),
			vk.LinkButton(s.cfg.ButtonLabels[2], link(s.cfg.ErrorsURL)),
		}},
	}
}

func parseIDs(req Request) (int64, int64, error) {
	userID, err := parseID(req.UserID)
	if err != nil {
		return 0, 0, err
	}
	groupID, err := parseID(req.GroupID)
	if err != nil {
		return 0, 0, err
	}
	return userID, groupID, nil
}

func parseID(v model.FlexString) (int64, error) {
	s := strings.TrimSpace(v.String())
	if s == "" {
		return 0, ErrInvalidRequest
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Wrapf(ErrInvalidRequest, "welcome: bad id %q", s)
	}
	return id, nil
}
