// Package analysis provides the passes run over an ingested listing
// before classification: literal-pool filtering, symbol demangling and
// patch statistics.
package analysis

// Constants for analysis operations
const (
	// MinLiteralTokens is the shortest ldr line carrying a literal
	// annotation: address, word, mnemonic, register and "; addr <sym>"
	MinLiteralTokens = 5

	// TopSymbols is the number of symbols listed in the statistics
	TopSymbols = 10

	// MaxSymbolWidth truncates demangled names in the statistics table
	MaxSymbolWidth = 48
)
