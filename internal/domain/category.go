package domain

import (
	"sort"
	"strings"
)

// Group is a coarse behavioral bucket a spending category belongs to.
type Group string

const (
	GroupEssential     Group = "essential"
	GroupEntertainment Group = "entertainment"
	GroupInvestment    Group = "investment"
	GroupOther         Group = "other"
)

// The canonical category taxonomy. Codes 0..15 are the observed range; any
// unknown code resolves to DefaultCategoryName / GroupOther.
const DefaultCategoryName = "Other"

type categoryInfo struct {
	key   string
	name  string
	group Group
}

var categories = map[int]categoryInfo{
	0:  {"eating", "Eating out", GroupEssential},
	1:  {"transport", "Transport", GroupEssential},
	2:  {"rent_house", "Rent & Housing", GroupEssential},
	3:  {"utilities", "Utilities", GroupEssential},
	4:  {"fun_play", "Entertainment", GroupEntertainment},
	5:  {"shopping", "Shopping", GroupEntertainment},
	6:  {"travel", "Travel", GroupEntertainment},
	7:  {"online_services", "Online services", GroupEntertainment},
	8:  {"salary", "Salary", GroupInvestment},
	9:  {"invest", "Investment", GroupInvestment},
	10: {"other_income", "Other income", GroupInvestment},
	11: {"education", "Education", GroupOther},
	12: {"physical_examination", "Healthcare", GroupOther},
	13: {"insurance", "Insurance", GroupOther},
	14: {"gifts_donations", "Gifts & Donations", GroupOther},
	15: {"necessary_spending", "Groceries & Essentials", GroupEssential},
}

// incomeCodes is the set of category codes carrying income semantics. A
// positive amount in any other category is still treated as an expense by the
// clustering engine (see Transaction.IsExpense).
var incomeCodes = map[int]bool{8: true, 9: true, 10: true}

// recurringBillKeys are categories of expected recurring payments (rent and
// utility bills). Early-month transactions in these categories are
// whitelisted by the anomaly engine.
var recurringBillKeys = map[string]bool{
	"rent_house":       true,
	"utilities":        true,
	"electricity_bill": true,
	"water_money":      true,
	"gas_money":        true,
	"internet_money":   true,
}

// nameAliases maps normalized free-text category names onto canonical keys.
var nameAliases = map[string]string{
	"eating":               "eating",
	"eating out":           "eating",
	"food":                 "eating",
	"move":                 "transport",
	"transport":            "transport",
	"rent house":           "rent_house",
	"rent":                 "rent_house",
	"housing":              "rent_house",
	"water money":          "water_money",
	"electricity bill":     "electricity_bill",
	"gas money":            "gas_money",
	"internet money":       "internet_money",
	"utilities":            "utilities",
	"telephone fee":        "utilities",
	"tv money":             "utilities",
	"fun play":             "fun_play",
	"entertainment":        "fun_play",
	"shopping":             "shopping",
	"travel":               "travel",
	"online services":      "online_services",
	"salary":               "salary",
	"invest":               "invest",
	"investment":           "invest",
	"saving":               "invest",
	"other income":         "other_income",
	"revenue":              "other_income",
	"education":            "education",
	"physical examination": "physical_examination",
	"healthcare":           "physical_examination",
	"insurance":            "insurance",
	"gifts donations":      "gifts_donations",
	"charity":              "gifts_donations",
	"necessary spending":   "necessary_spending",
	"groceries":            "necessary_spending",
}

var keyGroups = map[string]Group{}

// orderedAliases holds the alias names in substring-match priority: longest
// first (most specific), ties alphabetical. A fixed order keeps resolution
// stable when a name contains several alias substrings.
var orderedAliases []string

func init() {
	for _, info := range categories {
		keyGroups[info.key] = info.group
	}
	// Alias keys that have no code of their own still resolve to a group.
	keyGroups["electricity_bill"] = GroupEssential
	keyGroups["water_money"] = GroupEssential
	keyGroups["gas_money"] = GroupEssential
	keyGroups["internet_money"] = GroupEssential

	for alias := range nameAliases {
		orderedAliases = append(orderedAliases, alias)
	}
	sort.Slice(orderedAliases, func(i, j int) bool {
		if len(orderedAliases[i]) != len(orderedAliases[j]) {
			return len(orderedAliases[i]) > len(orderedAliases[j])
		}
		return orderedAliases[i] < orderedAliases[j]
	})
}

func normalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

// resolveKey resolves a free-text category name to a canonical key using an
// ordered list of strategies: exact alias, normalized alias, then substring
// match over the longest-first alias order. The empty string means no match.
func resolveKey(name string) string {
	if name == "" {
		return ""
	}
	if key, ok := nameAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return key
	}
	norm := normalizeName(name)
	if key, ok := nameAliases[norm]; ok {
		return key
	}
	for _, alias := range orderedAliases {
		if len(alias) > 3 && strings.Contains(norm, alias) {
			return nameAliases[alias]
		}
	}
	return ""
}

// CategoryDisplayName resolves a display name for a transaction. The supplied
// name takes precedence over the code mapping; unknown names are echoed back
// in title-ish form, unknown codes fall back to DefaultCategoryName.
func CategoryDisplayName(code int, name string) string {
	if key := resolveKey(name); key != "" {
		for _, info := range categories {
			if info.key == key {
				return info.name
			}
		}
	}
	if norm := normalizeName(name); norm != "" {
		return strings.ToUpper(norm[:1]) + norm[1:]
	}
	if info, ok := categories[code]; ok {
		return info.name
	}
	return DefaultCategoryName
}

// GroupFor resolves the category group for a transaction. The name is
// consulted first, then the code; the final fallback is GroupOther.
func GroupFor(code int, name string) Group {
	if key := resolveKey(name); key != "" {
		if g, ok := keyGroups[key]; ok {
			return g
		}
	}
	if info, ok := categories[code]; ok {
		return info.group
	}
	return GroupOther
}

// IncomeCategory reports whether the code belongs to the income set.
func IncomeCategory(code int) bool {
	return incomeCodes[code]
}

// RecurringBill reports whether the transaction's category is a recognized
// recurring-bill category (rent, utilities). Name takes precedence over code.
func RecurringBill(code int, name string) bool {
	if key := resolveKey(name); key != "" {
		if recurringBillKeys[key] {
			return true
		}
	}
	if info, ok := categories[code]; ok {
		return recurringBillKeys[info.key]
	}
	return false
}
