package leadsync

import (
	"strings"

	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/phone"
)

// DefaultAnswerLabels is the summary order of the quiz answers.
func DefaultAnswerLabels() []model.Label {
	return []model.Label{
		{Key: "style", Title: "Style"},
		{Key: "layout", Title: "Layout"},
		{Key: "area", Title: "Area"},
		{Key: "deadline", Title: "Deadline"},
		{Key: "budget", Title: "Budget"},
		{Key: "gift", Title: "Gift"},
		{Key: "method", Title: "Contact method"},
	}
}

// DealConfig holds the deal defaults and routing ids. Zero routing ids are
// left out of the deal.
type DealConfig struct {
	TitlePrefix       string
	SourceID          string
	SourceDescription string
	AssignedByID      int
	CategoryID        int
	StageID           string
	AnswerLabels      []model.Label
}

// DealBuilder assembles deals from submissions.
type DealBuilder struct {
	cfg DealConfig
}

// NewDealBuilder creates a builder, filling unset title prefix, source and
// labels with defaults.
func NewDealBuilder(cfg DealConfig) *DealBuilder {
	if strings.TrimSpace(cfg.TitlePrefix) == "" {
		cfg.TitlePrefix = "New lead from"
	}
	if cfg.SourceID == "" {
		cfg.SourceID = "WEB"
	}
	if len(cfg.AnswerLabels) == 0 {
		cfg.AnswerLabels = DefaultAnswerLabels()
	}
	return &DealBuilder{cfg: cfg}
}

// Build assembles the deal. Custom fields are merged last and win over any
// standard field of the same name.
func (b *DealBuilder) Build(sub model.Submission, p phone.Phone, contactID string, custom map[string]string) model.Deal {
	return model.Deal{
		Title:             b.Title(sub, p),
		ContactID:         contactID,
		Comments:          b.Summary(sub, p),
		SourceID:          b.cfg.SourceID,
		SourceDescription: b.cfg.SourceDescription,
		UTMSource:         strings.TrimSpace(sub.UTM.Source),
		UTMCampaign:       strings.TrimSpace(sub.UTM.Campaign),
		AssignedByID:      b.cfg.AssignedByID,
		CategoryID:        b.cfg.CategoryID,
		StageID:           b.cfg.StageID,
		CustomFields:      custom,
	}
}

// Title names the deal after the submitter, or the phone when the name is
// blank.
func (b *DealBuilder) Title(sub model.Submission, p phone.Phone) string {
	who := sub.DisplayName()
	if who == "" {
		who = p.String()
	}
	if who == "" {
		who = sub.RawPhone()
	}
	if who == "" {
		return b.cfg.TitlePrefix
	}
	return b.cfg.TitlePrefix + " " + who
}

// Summary renders one "Caption: value" line per populated value: identity
// first, then the answers in label order, then campaign and platform data.
func (b *DealBuilder) Summary(sub model.Submission, p phone.Phone) string {
	var lines []string
	add := func(title, value string) {
		if value = strings.TrimSpace(value); value != "" {
			lines = append(lines, title+": "+value)
		}
	}

	add("Name", sub.DisplayName())
	if p.IsEmpty() {
		add("Phone", sub.RawPhone())
	} else {
		add("Phone", p.String())
	}

	for _, l := range b.cfg.AnswerLabels {
		add(l.Title, sub.Answers[l.Key])
	}

	add("UTM source", sub.UTM.Source)
	add("UTM campaign", sub.UTM.Campaign)
	add("Messaging user ID", sub.MessagingUserID.String())

	return strings.Join(lines, "\n")
}
