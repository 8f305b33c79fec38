package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvalContext() map[string]any {
	return map[string]any{
		"user_name":        "Clara",
		"show_title":       "Tini en vivo",
		"show_artist":      "Tini",
		"show_venue":       "Luna Park",
		"show_date":        "15/09/2026",
		"discount_details": "2x1 en la boletería",
		"discount_code":    "DESC-TINI26-AB12CD34",
		"expiry_date":      "15/09/2026",
	}
}

func TestRenderApproval(t *testing.T) {
	r := NewRenderer()

	subject, body, err := r.Render(TemplateApproval, approvalContext())
	require.NoError(t, err)

	assert.Contains(t, subject, "Tini en vivo")
	assert.Contains(t, body, "Clara")
	assert.Contains(t, body, "DESC-TINI26-AB12CD34")
	assert.Contains(t, body, "Luna Park")
	assert.NotContains(t, body, "{{")
}

func TestRenderFailsOnMissingVariable(t *testing.T) {
	r := NewRenderer()
	ctx := approvalContext()
	delete(ctx, "discount_code")

	_, _, err := r.Render(TemplateApproval, ctx)
	require.ErrorIs(t, err, ErrUnresolvedVar)
	assert.Contains(t, err.Error(), "discount_code")
}

func TestRenderFailsOnNilBinding(t *testing.T) {
	r := NewRenderer()
	ctx := approvalContext()
	ctx["discount_details"] = nil

	_, _, err := r.Render(TemplateApproval, ctx)
	require.ErrorIs(t, err, ErrUnresolvedVar)
}

func TestRenderUnknownTemplate(t *testing.T) {
	r := NewRenderer()

	_, _, err := r.Render("no_such_template", nil)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestRejectionTemplatesExistForAllReasons(t *testing.T) {
	reasons := []string{
		"user_not_found",
		"subscription_inactive",
		"payment_overdue",
		"duplicate_recent_request",
		"show_not_found",
		"quota_exhausted",
	}
	for _, reason := range reasons {
		_, ok := Lookup(TemplateRejection + reason)
		assert.True(t, ok, "missing rejection template for %s", reason)
	}
}

func TestVarsListsDistinctPlaceholders(t *testing.T) {
	vars, err := Vars(TemplateClarification)
	require.NoError(t, err)
	assert.Equal(t, []string{"user_name", "show_query", "candidates"}, vars)
}
