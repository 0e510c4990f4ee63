package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildOrderUpdateBody(t *testing.T) {
	body := BuildOrderUpdateBody("order-123", "Your payment was received.")

	assert.Contains(t, body, "order-123")
	assert.Contains(t, body, "Your payment was received.")
}

func TestBuildOrderUpdateBody_EscapesInput(t *testing.T) {
	body := BuildOrderUpdateBody("<id>", "<script>alert(1)</script>")

	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.Contains(t, body, "&lt;id&gt;")
}
