package idempotency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateKeyIsStable(t *testing.T) {
	g := NewGenerator()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	a := g.GenerateKey(ScopeInvoiceRun, map[string]interface{}{"account_id": "acc_1", "target_date": day})
	b := g.GenerateKey(ScopeInvoiceRun, map[string]interface{}{"target_date": day.In(time.FixedZone("x", 3600)), "account_id": "acc_1"})
	c := g.GenerateKey(ScopeInvoiceRun, map[string]interface{}{"account_id": "acc_1", "target_date": day.AddDate(0, 0, 1)})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, g.ValidateKey(ScopeInvoiceRun, map[string]interface{}{"account_id": "acc_1", "target_date": day}, a))
}
