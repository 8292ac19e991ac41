package common

const (
	SymbolCheck = "✅"
	SymbolCross = "❌"
	SymbolWarn  = "⚠️"
	SymbolInfo  = "ℹ️"
)

// Directory categories used to group results in summaries.
const (
	CategoryHeaders   = "HEADERS"
	CategoryTables    = "TABLES"
	CategoryResources = "RESOURCES"
)
