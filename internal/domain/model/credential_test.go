package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
)

func TestTenantKey(t *testing.T) {
	assert.Equal(t, "app1:ws1", model.TenantKey("app1", "ws1"))
	assert.NotEqual(t, model.TenantKey("a:b", "c"), model.TenantKey("a", "b:c"))
	assert.NotEqual(t, model.TenantKey("a%3Ab", "c"), model.TenantKey("a:b", "c"))
	assert.Equal(t, "a%3Ab:c", model.TenantKey("a:b", "c"))
}
