package access

import "github.com/kursadbilgin/carecircle-dispatch/internal/domain"

// FilterDataByPermissions projects data onto what permissions allow. Fields mapped to a
// category are kept only when that category's bit is set; unmapped fields pass through.
func FilterDataByPermissions(
	data map[string]any,
	permissions domain.PermissionSet,
	fieldCategories map[string]domain.DataCategory,
) map[string]any {
	filtered := make(map[string]any, len(data))
	for field, value := range data {
		category, mapped := fieldCategories[field]
		if mapped && !permissions.AllowsCategory(category) {
			continue
		}
		filtered[field] = value
	}
	return filtered
}
