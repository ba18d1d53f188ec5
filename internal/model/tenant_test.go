package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTenantStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    TenantStatus
		to      TenantStatus
		allowed bool
	}{
		{"provisioning to active", TenantProvisioning, TenantActive, true},
		{"provisioning to deleted", TenantProvisioning, TenantDeleted, true},
		{"provisioning to suspended", TenantProvisioning, TenantSuspended, false},
		{"active to suspended", TenantActive, TenantSuspended, true},
		{"active to deleted", TenantActive, TenantDeleted, true},
		{"active to provisioning", TenantActive, TenantProvisioning, false},
		{"suspended to active", TenantSuspended, TenantActive, true},
		{"suspended to deleted", TenantSuspended, TenantDeleted, true},
		{"deleted is terminal", TenantDeleted, TenantActive, false},
		{"deleted to deleted", TenantDeleted, TenantDeleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestValidateRoutingKey(t *testing.T) {
	assert.NoError(t, ValidateRoutingKey("acme"))
	assert.NoError(t, ValidateRoutingKey("acme-corp-2"))
	assert.NoError(t, ValidateRoutingKey("a"))

	assert.Error(t, ValidateRoutingKey(""))
	assert.Error(t, ValidateRoutingKey("Acme"))
	assert.Error(t, ValidateRoutingKey("-acme"))
	assert.Error(t, ValidateRoutingKey("acme-"))
	assert.Error(t, ValidateRoutingKey("acme corp"))
	assert.Error(t, ValidateRoutingKey("acme_corp"))
}

func TestStoreNameForRoutingKey(t *testing.T) {
	assert.Equal(t, "tenant_acme", StoreNameForRoutingKey("acme"))
}
