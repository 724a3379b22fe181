package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyForKnownCategories(t *testing.T) {
	assert.Equal(t, 300*time.Second, PolicyFor("ocr").AttemptTimeout)
	assert.Equal(t, 120*time.Second, PolicyFor("extraction").AttemptTimeout)
	assert.Equal(t, 120*time.Second, PolicyFor("ekyc").AttemptTimeout)
}

func TestPolicyForUnknownCategoryUsesDefault(t *testing.T) {
	p := PolicyFor("signing")
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 60*time.Second, p.AttemptTimeout)
	assert.Equal(t, 2*time.Second, p.InitialBackoff)

	assert.Equal(t, PolicyFor(""), p)
}

func TestBackoffDoublesPerAttempt(t *testing.T) {
	p := Policy{MaxAttempts: 4, InitialBackoff: 2 * time.Second}

	assert.Equal(t, 2*time.Second, p.BackoffFor(2))
	assert.Equal(t, 4*time.Second, p.BackoffFor(3))
	assert.Equal(t, 8*time.Second, p.BackoffFor(4))
}
