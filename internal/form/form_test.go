package form

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validSubmission() Submission {
	return Submission{
		Name:    "John Doe",
		Email:   "john@example.com",
		Message: "I am interested in solar panels for my home.",
	}
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	assert.Empty(t, Validate(validSubmission()))
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		bad  bool
	}{
		{"empty", "", true},
		{"single rune", "J", true},
		{"whitespace padding only", "  J  ", true},
		{"two runes", "Jo", false},
		{"padded but long enough", "  Jo  ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSubmission()
			s.Name = tt.in
			errs := Validate(s)
			if tt.bad {
				assert.Equal(t, MsgNameTooShort, errs["name"])
			} else {
				assert.NotContains(t, errs, "name")
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	bad := []string{"", "plain", "a@b", "a b@c.d", "a@b c.d", "@b.c", "a@.", "a@b."}
	for _, in := range bad {
		s := validSubmission()
		s.Email = in
		assert.Equal(t, MsgEmailInvalid, Validate(s)["email"], "email %q", in)
	}

	good := []string{"a@b.c", "john.doe@example.co.uk", "x+tag@sub.domain.io"}
	for _, in := range good {
		s := validSubmission()
		s.Email = in
		assert.NotContains(t, Validate(s), "email", "email %q", in)
	}
}

func TestValidateMessage(t *testing.T) {
	s := validSubmission()
	s.Message = "too short"
	assert.Equal(t, MsgMessageTooShort, Validate(s)["message"])

	s.Message = "   padded    "
	assert.Equal(t, MsgMessageTooShort, Validate(s)["message"])

	s.Message = "exactly10!"
	assert.NotContains(t, Validate(s), "message")
}

func TestValidateReportsAllFailures(t *testing.T) {
	errs := Validate(Submission{Name: "J", Email: "nope", Message: "short"})
	assert.Len(t, errs, 3)
	assert.Equal(t, MsgNameTooShort, errs["name"])
	assert.Equal(t, MsgEmailInvalid, errs["email"])
	assert.Equal(t, MsgMessageTooShort, errs["message"])
}

func TestValidateIgnoresOptionalFields(t *testing.T) {
	s := validSubmission()
	s.Phone = "not-a-phone-number"
	s.Company = ""
	s.ProjectType = "something-not-in-the-list"
	assert.Empty(t, Validate(s))
}

func TestIsBot(t *testing.T) {
	s := validSubmission()
	assert.False(t, s.IsBot())

	s.BotField = "http://spam.example"
	assert.True(t, s.IsBot())
}

func TestNormalize(t *testing.T) {
	got := Normalize(Submission{
		Name:        "  Jane Roe ",
		Email:       " Jane@Example.COM ",
		Phone:       " 555-0100 ",
		Company:     " Acme ",
		ProjectType: " residential ",
		Message:     "  Quote for a rooftop array please.  ",
	})

	assert.Equal(t, "Jane Roe", got.Name)
	assert.Equal(t, "jane@example.com", got.Email)
	assert.Equal(t, "555-0100", got.Phone)
	assert.Equal(t, "Acme", got.Company)
	assert.Equal(t, "residential", got.ProjectType)
	assert.Equal(t, "Quote for a rooftop array please.", got.Message)
}
