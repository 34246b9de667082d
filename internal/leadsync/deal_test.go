package leadsync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadsync/internal/model"
	"github.com/sells-group/leadsync/internal/phone"
)

func TestDealBuilder_Build(t *testing.T) {
	b := NewDealBuilder(DealConfig{AssignedByID: 7, StageID: "C2:NEW"})
	sub := model.Submission{
		Name:  "Ivan",
		Phone: "89991234567",
		Answers: model.Answers{
			"budget": "Up to 1M",
			"style":  "Modern",
			"extra":  "ignored in summary",
		},
		UTM:             model.UTM{Source: "vk", Campaign: "spring"},
		MessagingUserID: "123456",
	}

	deal := b.Build(sub, phone.Normalize(sub.Phone), "17", map[string]string{"UF_CRM_1": "17", "SOURCE_ID": "QUIZ"})

	assert.Equal(t, "New lead from Ivan", deal.Title)
	assert.Equal(t, "17", deal.ContactID)
	assert.Equal(t, "WEB", deal.SourceID)
	assert.Equal(t, "vk", deal.UTMSource)
	assert.Equal(t, "spring", deal.UTMCampaign)
	assert.Equal(t, "Name: Ivan\n"+
		"Phone: +79991234567\n"+
		"Style: Modern\n"+
		"Budget: Up to 1M\n"+
		"UTM source: vk\n"+
		"UTM campaign: spring\n"+
		"Messaging user ID: 123456", deal.Comments)

	fields := deal.Fields()
	assert.Equal(t, "7", fields[model.DealFieldAssignedByID])
	assert.Equal(t, "C2:NEW", fields[model.DealFieldStageID])
	assert.NotContains(t, fields, model.DealFieldCategoryID)
	assert.Equal(t, "QUIZ", fields[model.DealFieldSourceID], "custom fields are merged last")
	assert.Equal(t, "17", fields["UF_CRM_1"])
}

func TestDealBuilder_Title(t *testing.T) {
	b := NewDealBuilder(DealConfig{TitlePrefix: "Quiz lead:"})

	assert.Equal(t, "Quiz lead: Anna", b.Title(model.Submission{Name: " Anna "}, "+79991234567"))
	assert.Equal(t, "Quiz lead: +79991234567", b.Title(model.Submission{}, "+79991234567"))
	assert.Equal(t, "Quiz lead: abc", b.Title(model.Submission{Phone: "abc"}, ""))
	assert.Equal(t, "Quiz lead:", b.Title(model.Submission{}, ""))
}

func TestDealBuilder_CustomLabels(t *testing.T) {
	b := NewDealBuilder(DealConfig{AnswerLabels: []model.Label{{Key: "area", Title: "Square meters"}}})
	sub := model.Submission{Answers: model.Answers{"area": "60", "style": "Loft"}}

	assert.Equal(t, "Phone: +79991234567\nSquare meters: 60", b.Summary(sub, "+79991234567"))
}

func TestDealBuilder_Defaults(t *testing.T) {
	b := NewDealBuilder(DealConfig{})
	assert.Equal(t, "New lead from", b.cfg.TitlePrefix)
	assert.Equal(t, "WEB", b.cfg.SourceID)
	assert.Equal(t, DefaultAnswerLabels(), b.cfg.AnswerLabels)
}
