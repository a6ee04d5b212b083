package role

// DefaultRoles are seeded into an empty role store at startup.
func DefaultRoles() []Role {
	all := make([]Grant, 0, len(Modules())*len(Actions()))
	for _, m := range Modules() {
		for _, a := range Actions() {
			all = append(all, Grant{Module: m, Action: a})
		}
	}

	return []Role{
		{
			ID:          "admin",
			Name:        "Administrator",
			Description: "Full access to every module",
			Permissions: all,
			IsSystem:    true,
		},
		{
			ID:          "manager",
			Name:        "Manager",
			Description: "Runs purchasing and sales, reviews approvals",
			Permissions: grants(
				[]Module{ModulePurchase, ModuleSales, ModuleInventory, ModuleParts, ModuleCustomers, ModuleSuppliers},
				ActionView, ActionCreate, ActionEdit,
			).with(ModuleApprovals, ActionView, ActionApprove).
				with(ModuleReports, ActionView, ActionExport),
		},
		{
			ID:          "accountant",
			Name:        "Accountant",
			Description: "Books and approves financial documents",
			Permissions: grants(
				[]Module{ModuleAccounts, ModuleAdjustments},
				ActionView, ActionCreate, ActionEdit,
			).with(ModulePurchase, ActionView).
				with(ModuleSales, ActionView).
				with(ModuleApprovals, ActionView, ActionApprove, ActionExport).
				with(ModuleReports, ActionView, ActionExport),
		},
		{
			ID:          "staff",
			Name:        "Staff",
			Description: "Day-to-day data entry",
			Permissions: grants(
				[]Module{ModuleParts, ModuleInventory, ModulePurchase, ModuleSales},
				ActionView, ActionCreate,
			),
		},
	}
}

type grantList []Grant

func grants(modules []Module, actions ...Action) grantList {
	out := make(grantList, 0, len(modules)*len(actions))
	for _, m := range modules {
		for _, a := range actions {
			out = append(out, Grant{Module: m, Action: a})
		}
	}
	return out
}

func (g grantList) with(m Module, actions ...Action) grantList {
	for _, a := range actions {
		g = append(g, Grant{Module: m, Action: a})
	}
	return g
}
