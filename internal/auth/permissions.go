package auth

// PermissionName builds the canonical "resource.action" key.
func PermissionName(resource, action string) string {
	return resource + "." + action
}

// Built-in role names. These ship as system roles and cannot be edited.
const (
	RoleSuperAdmin     = "super_admin"
	RoleAdmin          = "admin"
	RoleProductManager = "product_manager"
	RoleContentEditor  = "content_editor"
	RoleViewer         = "viewer"
)

// DefaultRoleName is assigned to self-registered accounts.
const DefaultRoleName = RoleViewer

// BuiltinPermissions is the static permission catalog. Permissions have no
// runtime CRUD; the catalog is ensured at startup and by the seed files.
var BuiltinPermissions = []Permission{
	{Name: "users.create", Resource: "users", Action: "create", Description: "Create new users"},
	{Name: "users.read", Resource: "users", Action: "read", Description: "View users"},
	{Name: "users.update", Resource: "users", Action: "update", Description: "Update users"},
	{Name: "users.delete", Resource: "users", Action: "delete", Description: "Delete users"},
	{Name: "users.approve", Resource: "users", Action: "approve", Description: "Approve user registrations"},

	{Name: "products.create", Resource: "products", Action: "create", Description: "Create products"},
	{Name: "products.read", Resource: "products", Action: "read", Description: "View products"},
	{Name: "products.update", Resource: "products", Action: "update", Description: "Update products"},
	{Name: "products.delete", Resource: "products", Action: "delete", Description: "Delete products"},

	{Name: "categories.create", Resource: "categories", Action: "create", Description: "Create categories"},
	{Name: "categories.read", Resource: "categories", Action: "read", Description: "View categories"},
	{Name: "categories.update", Resource: "categories", Action: "update", Description: "Update categories"},
	{Name: "categories.delete", Resource: "categories", Action: "delete", Description: "Delete categories"},

	{Name: "settings.read", Resource: "settings", Action: "read", Description: "View website settings"},
	{Name: "settings.update", Resource: "settings", Action: "update", Description: "Update website settings"},

	{Name: "dashboard.read", Resource: "dashboard", Action: "read", Description: "View dashboard"},
	{Name: "reports.read", Resource: "reports", Action: "read", Description: "View reports"},
	{Name: "reports.export", Resource: "reports", Action: "export", Description: "Export reports"},

	{Name: "audit.read", Resource: "audit", Action: "read", Description: "View audit logs"},
}
