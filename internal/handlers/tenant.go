package handlers

import (
	"context"
	"net/http"

	"brianhub/internal/tenant"
)

// tenantFromRequest снимает скоуп арендатора с заголовков. Дефолтов нет:
// пустой org_id дальше превратится в TENANT_REQUIRED.
func tenantFromRequest(r *http.Request) (tenant.Context, context.Context) {
	tc := tenant.Context{
		OrgID:       r.Header.Get("X-Org-Id"),
		WorkspaceID: r.Header.Get("X-Workspace-Id"),
		ClientID:    r.Header.Get("X-Client-Id"),
	}
	return tc, tenant.With(r.Context(), tc)
}
