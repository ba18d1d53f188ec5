package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleOrdering(t *testing.T) {
	assert.True(t, RoleSuperadmin.AtLeast(RoleSuperadmin))
	assert.True(t, RoleSuperadmin.AtLeast(RoleTenantAdmin))
	assert.True(t, RoleSuperadmin.AtLeast(RoleMember))

	assert.False(t, RoleTenantAdmin.AtLeast(RoleSuperadmin))
	assert.True(t, RoleTenantAdmin.AtLeast(RoleTenantAdmin))
	assert.True(t, RoleTenantAdmin.AtLeast(RoleMember))

	assert.False(t, RoleMember.AtLeast(RoleSuperadmin))
	assert.False(t, RoleMember.AtLeast(RoleTenantAdmin))
	assert.True(t, RoleMember.AtLeast(RoleMember))
}

func TestUnknownRoleNeverSuffices(t *testing.T) {
	unknown := Role("auditor")
	assert.False(t, unknown.Valid())
	assert.False(t, unknown.AtLeast(RoleMember))
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("tenant_admin")
	require.NoError(t, err)
	assert.Equal(t, RoleTenantAdmin, role)

	_, err = ParseRole("root")
	assert.Error(t, err)

	_, err = ParseRole("")
	assert.Error(t, err)
}
