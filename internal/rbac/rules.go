package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
		"course:join",
		"lesson:view",
		"material:submit",
		"progress:view-own",
		"user:change_password",
	},
	"teacher": {
		"course:create",
		"course:delete_own",
		"lesson:create",
		"lesson:view",
		"material:create",
		"quiz:create",
		"quiz:view",
		"quiz:view-keys",
		"attempt:view-all",
		"attempt:grade",
		"progress:view-all",
		"users:bulk_upsert",
		"users:list",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
