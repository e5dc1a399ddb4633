// Package tenant - скоуп мультиарендных операций {orgId, workspaceId}.
package tenant

import (
	ctxpkg "context"
	"errors"
)

// ErrTenantRequired: скоуп никогда не подставляется по умолчанию, иначе
// данные утекут между арендаторами.
var ErrTenantRequired = errors.New("требуется org_id арендатора")

var ErrWorkspaceRequired = errors.New("требуется workspace_id")

type Context struct {
	OrgID       string
	WorkspaceID string
	// идентификатор клиентской установки, если мутация пришла через sync
	ClientID string
}

func (c Context) Require() error {
	if c.OrgID == "" {
		return ErrTenantRequired
	}
	return nil
}

func (c Context) RequireWorkspace() error {
	if err := c.Require(); err != nil {
		return err
	}
	if c.WorkspaceID == "" {
		return ErrWorkspaceRequired
	}
	return nil
}

type contextKey string

const tenantKey contextKey = "tenant"

func With(ctx ctxpkg.Context, tc Context) ctxpkg.Context {
	return ctxpkg.WithValue(ctx, tenantKey, tc)
}

func From(ctx ctxpkg.Context) (Context, bool) {
	tc, ok := ctx.Value(tenantKey).(Context)
	return tc, ok
}

func ClientID(ctx ctxpkg.Context) string {
	if tc, ok := From(ctx); ok {
		return tc.ClientID
	}
	return ""
}
