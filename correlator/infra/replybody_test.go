package infra

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"click-reply-correlator/correlator/domain"
)

func TestHTMLRenderer_ListsRemainingChoices(t *testing.T) {
	r := NewHTMLRenderer("https://links.example/")

	body, err := r.Render(domain.SettleLoan, "a@x.com")
	require.NoError(t, err)

	assert.Contains(t, body, "You want settlement")
	assert.Contains(t, body, "Choose next:")
	assert.Contains(t, body, `href="https://links.example/close?email=a%40x.com"`)
	assert.Contains(t, body, `href="https://links.example/never?email=a%40x.com"`)
	assert.Contains(t, body, `href="https://links.example/time?email=a%40x.com"`)
	assert.NotContains(t, body, "/settle?")
	assert.NotContains(t, body, domain.SettleLoan.Label())

	// ordem dos botões segue AllChoices
	iClose := strings.Index(body, domain.CloseLoan.Label())
	iNever := strings.Index(body, domain.NeverPay.Label())
	iTime := strings.Index(body, domain.NeedMoreTime.Label())
	assert.True(t, iClose < iNever && iNever < iTime)
}

func TestHTMLRenderer_DefaultBaseAndNoRecipient(t *testing.T) {
	r := NewHTMLRenderer("")

	body, err := r.Render(domain.CloseLoan, "")
	require.NoError(t, err)
	assert.Contains(t, body, `href="`+DefaultLinkBaseURL+`/settle"`)
	assert.NotContains(t, body, "?email=")
}
