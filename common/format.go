package common

import (
	"fmt"
	"sort"
	"strings"
)

// FormatSummary formats directory results grouped by category
func FormatSummary(title string, results []*DirectoryResult) string {
	if len(results) == 0 {
		return "No directories inspected"
	}

	var result strings.Builder
	result.WriteString(title)
	result.WriteString("\n")

	categories := CategorizeResults(results)
	names := make([]string, 0, len(categories))
	for category := range categories {
		names = append(names, category)
	}
	sort.Strings(names)

	for _, category := range names {
		var emoji string
		switch category {
		case CategoryHeaders:
			emoji = "🏗️"
		case CategoryTables:
			emoji = "📦"
		case CategoryResources:
			emoji = "🗂️"
		default:
			emoji = "🛠️"
		}

		result.WriteString(fmt.Sprintf("%s %s:\n", emoji, category))
		for _, r := range categories[category] {
			prefix := "   ✓ "
			if r.Failed() {
				prefix = "   " + SymbolWarn + " "
			} else if !r.Present {
				prefix = "   - "
			}
			result.WriteString(fmt.Sprintf("%s%s: %s\n", prefix, r.Name, r))
		}
	}

	return strings.TrimSuffix(result.String(), "\n")
}

// CategorizeResults groups results by their category, keeping input order
func CategorizeResults(results []*DirectoryResult) map[string][]*DirectoryResult {
	categories := make(map[string][]*DirectoryResult)
	for _, r := range results {
		category := r.Category
		if category == "" {
			category = "OTHER"
		}
		categories[category] = append(categories[category], r)
	}
	return categories
}

// CountFailed returns how many results stopped on an error
func CountFailed(results []*DirectoryResult) int {
	n := 0
	for _, r := range results {
		if r.Failed() {
			n++
		}
	}
	return n
}

func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// FormatPermissions renders section permissions as "RWX" with dashes
func FormatPermissions(executable, readable, writable bool) string {
	perm := []byte("---")
	if readable {
		perm[0] = 'R'
	}
	if writable {
		perm[1] = 'W'
	}
	if executable {
		perm[2] = 'X'
	}
	return string(perm)
}

func TruncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
