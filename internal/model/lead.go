package model

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Submission is one inbound lead-form event: who submitted it, the quiz
// answers, and campaign metadata. It is decoded once per request and never
// mutated afterwards.
type Submission struct {
	Name            string     `json:"name"`
	Phone           string     `json:"phone"`
	Answers         Answers    `json:"answers,omitempty"`
	UTM             UTM        `json:"utm,omitempty"`
	MessagingUserID FlexString `json:"messagingUserId,omitempty"`
}

// UTM holds the campaign tags that came with the submission.
type UTM struct {
	Source   string `json:"utm_source,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
}

// phoneAnswerKeys are the answer keys that may carry the phone when the
// top-level field is absent.
var phoneAnswerKeys = []string{"phone", "phone_e164"}

// RawPhone returns the submitted phone, falling back to a phone-like answer.
func (s Submission) RawPhone() string {
	if p := strings.TrimSpace(s.Phone); p != "" {
		return p
	}
	for _, k := range phoneAnswerKeys {
		if p := strings.TrimSpace(s.Answers[k]); p != "" {
			return p
		}
	}
	return ""
}

// DisplayName returns the trimmed submitter name.
func (s Submission) DisplayName() string {
	return strings.TrimSpace(s.Name)
}

// Answers maps quiz answer keys to their values. Non-string JSON scalars are
// accepted and converted to their textual form; nulls are dropped.
type Answers map[string]string

// UnmarshalJSON decodes an answers object leniently.
func (a *Answers) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "answers: decode")
	}
	out := make(Answers, len(raw))
	for k, v := range raw {
		s, ok, err := scalarString(v)
		if err != nil {
			return eris.Wrapf(err, "answers: decode %q", k)
		}
		if ok {
			out[k] = s
		}
	}
	*a = out
	return nil
}

// FlexString is a string that also accepts a JSON number, used for ids that
// clients send either way.
type FlexString string

// UnmarshalJSON accepts a string, a number, or null.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	s, _, err := scalarString(data)
	if err != nil {
		return eris.Wrap(err, "flex string: decode")
	}
	*f = FlexString(s)
	return nil
}

// String returns the underlying value.
func (f FlexString) String() string {
	return string(f)
}

// scalarString renders a JSON scalar as text. ok is false for null.
func scalarString(data json.RawMessage) (string, bool, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", false, err
	}
	switch t := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return t, true, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true, nil
	case bool:
		return strconv.FormatBool(t), true, nil
	default:
		return string(data), true, nil
	}
}

// Contact is a CRM contact as seen by the sync engine.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Label pairs an answer key with the caption shown for it in summaries.
type Label struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Title string `yaml:"title" mapstructure:"title"`
}
