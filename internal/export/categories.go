package export

import "sort"

// Category holds the accounting defaults for a spending category
type Category struct {
	AccountCode string
	Description string
}

var categories = map[string]Category{
	"groceries":     {AccountCode: "410", Description: "Office supplies and consumables"},
	"dining":        {AccountCode: "421", Description: "Business meals and entertainment"},
	"gas":           {AccountCode: "413", Description: "Motor vehicle fuel and expenses"},
	"healthcare":    {AccountCode: "411", Description: "Medical and healthcare expenses"},
	"shopping":      {AccountCode: "426", Description: "General business purchases"},
	"electronics":   {AccountCode: "426", Description: "Technology and equipment purchases"},
	"home":          {AccountCode: "424", Description: "Office repairs and maintenance"},
	"clothing":      {AccountCode: "426", Description: "Business attire and uniforms"},
	"utilities":     {AccountCode: "430", Description: "Utility bills and services"},
	"entertainment": {AccountCode: "421", Description: "Entertainment and events"},
	"travel":        {AccountCode: "420", Description: "Business travel and accommodation"},
}

// DefaultCategory applies to any category not in the table
var DefaultCategory = Category{AccountCode: "426", Description: "Business expense"}

// LookupCategory returns the defaults for a category name. Names are matched
// exactly; unknown names get DefaultCategory.
func LookupCategory(name string) Category {
	if c, ok := categories[name]; ok {
		return c
	}
	return DefaultCategory
}

// Categories returns the known category names, sorted
func Categories() []string {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
