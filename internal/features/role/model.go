package role

import (
	"time"

	"go-erp/pkg/validation"
)

// RoleID identifies a role (e.g. "manager", "accountant").
type RoleID string

// IDs converts raw role ids (JWT claims, user documents) into RoleIDs.
func IDs(raw []string) []RoleID {
	ids := make([]RoleID, 0, len(raw))
	for _, r := range raw {
		if r != "" {
			ids = append(ids, RoleID(r))
		}
	}
	return ids
}

// Module is a business area of the dashboard that permissions are granted on.
type Module string

const (
	ModuleAccounts      Module = "accounts"
	ModuleParts         Module = "parts"
	ModuleInventory     Module = "inventory"
	ModulePurchase      Module = "purchase"
	ModuleSales         Module = "sales"
	ModuleAdjustments   Module = "adjustments"
	ModuleCustomers     Module = "customers"
	ModuleSuppliers     Module = "suppliers"
	ModuleReports       Module = "reports"
	ModuleUsers         Module = "users"
	ModuleRoles         Module = "roles"
	ModuleApprovalFlows Module = "approval_flows"
	ModuleApprovals     Module = "approvals"
	ModuleSettings      Module = "settings"
)

var modules = map[Module]struct{}{
	ModuleAccounts: {}, ModuleParts: {}, ModuleInventory: {}, ModulePurchase: {},
	ModuleSales: {}, ModuleAdjustments: {}, ModuleCustomers: {}, ModuleSuppliers: {},
	ModuleReports: {}, ModuleUsers: {}, ModuleRoles: {}, ModuleApprovalFlows: {},
	ModuleApprovals: {}, ModuleSettings: {},
}

func (m Module) Valid() bool {
	_, ok := modules[m]
	return ok
}

// Modules lists every known module.
func Modules() []Module {
	return []Module{
		ModuleAccounts, ModuleParts, ModuleInventory, ModulePurchase, ModuleSales,
		ModuleAdjustments, ModuleCustomers, ModuleSuppliers, ModuleReports, ModuleUsers,
		ModuleRoles, ModuleApprovalFlows, ModuleApprovals, ModuleSettings,
	}
}

// Action is an operation a role may be granted on a module.
type Action string

const (
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionEdit    Action = "edit"
	ActionDelete  Action = "delete"
	ActionExport  Action = "export"
	ActionApprove Action = "approve"
)

func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport, ActionApprove:
		return true
	}
	return false
}

// Actions lists every known action.
func Actions() []Action {
	return []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport, ActionApprove}
}

func init() {
	validation.RegisterEnum("erp_module", func(s string) bool { return Module(s).Valid() })
	validation.RegisterEnum("erp_action", func(s string) bool { return Action(s).Valid() })
}

// Grant is a single (module, action) permission.
type Grant struct {
	Module Module `json:"module" bson:"module" validate:"erp_module"`
	Action Action `json:"action" bson:"action" validate:"erp_action"`
}

// Role holds an ordered set of grants.
type Role struct {
	ID          RoleID    `json:"id" bson:"_id" validate:"required,slug"`
	Name        string    `json:"name" bson:"name" validate:"required"`
	Description string    `json:"description" bson:"description"`
	Permissions []Grant   `json:"permissions" bson:"permissions" validate:"dive"`
	IsSystem    bool      `json:"is_system" bson:"is_system"` // Prevent deletion of system roles
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// normalize drops duplicate grants while keeping first-seen order.
func (r *Role) normalize() {
	seen := make(map[Grant]struct{}, len(r.Permissions))
	out := r.Permissions[:0]
	for _, g := range r.Permissions {
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	r.Permissions = out
}
