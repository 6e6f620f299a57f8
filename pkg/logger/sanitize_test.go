package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizedEmail(t *testing.T) {
	assert.Equal(t, "a****@*******.com", SanitizedEmail("admin@example.com"))
	assert.Equal(t, "a@*******.com", SanitizedEmail("a@example.com"))
	assert.Equal(t, "[invalid-email]", SanitizedEmail("not-an-email"))
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("key=webhook-secret&to=2125550100"))
	assert.True(t, SanitizeQueryString("password=hunter2"))
	assert.False(t, SanitizeQueryString("to=2125550100&from=3105550199&msg=hi&id=1"))
}
