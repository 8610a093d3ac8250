package shared

// Back office permissions.
const (
	PermSegmentsView = "segments.view"
	PermSegmentsEdit = "segments.edit"

	PermProfitView = "profit.view"
	PermProfitEdit = "profit.edit"

	PermVouchersView   = "vouchers.view"
	PermVouchersCreate = "vouchers.create"

	PermRelationsView = "relations.view"
	PermRelationsEdit = "relations.edit"

	PermSettingsView = "settings.view"
	PermSettingsEdit = "settings.edit"

	PermLedgerView = "ledger.view"
	PermLedgerPost = "ledger.post"

	PermAuditView = "audit.view"
)

// BackofficeScopes lists every permission known to the back office.
func BackofficeScopes() []string {
	return []string{
		PermSegmentsView,
		PermSegmentsEdit,
		PermProfitView,
		PermProfitEdit,
		PermVouchersView,
		PermVouchersCreate,
		PermRelationsView,
		PermRelationsEdit,
		PermSettingsView,
		PermSettingsEdit,
		PermLedgerView,
		PermLedgerPost,
		PermAuditView,
	}
}
