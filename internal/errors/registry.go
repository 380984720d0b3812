package errors

import "sort"

// Template defines a registered error type.
type Template struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// ============================================
	// Configuration Errors (E100-E199)
	// ============================================

	"E101": {
		Category:   CategoryConfig,
		Message:    "Configuration file not found",
		Detail:     "No fundsavy.json, fundsavy.yaml, fundsavy.yml or fundsavy.toml was found in the directory.",
		Suggestion: "Create fundsavy.json or pass --config with the path to your configuration file",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "The configuration file could not be parsed.",
	},
	"E103": {
		Category:   CategoryConfig,
		Message:    "Unsupported configuration format",
		Detail:     "Configuration files must end in .json, .yaml, .yml or .toml.",
		Suggestion: "Rename the file with one of the supported extensions",
	},
	"E104": {
		Category:   CategoryConfig,
		Message:    "Invalid groups source",
		Detail:     "The groups source must be an http(s) URL, an s3://bucket/prefix location, or empty to serve the local database.",
		Suggestion: "Set groups.source to e.g. \"http://localhost:3000\" or \"s3://my-bucket/groups\"",
	},
	"E105": {
		Category: CategoryConfig,
		Message:  "Invalid duration",
		Detail:   "Durations must be positive.",
	},
	"E106": {
		Category:   CategoryConfig,
		Message:    "Incomplete Google sign-in configuration",
		Detail:     "Google sign-in needs a client ID, client secret and redirect URL.",
		Suggestion: "Set auth.google.clientId, auth.google.clientSecret and auth.google.redirectUrl, or remove auth.google",
	},
	"E107": {
		Category: CategoryConfig,
		Message:  "Invalid server address",
		Detail:   "The server address must be host:port.",
	},
	"E108": {
		Category: CategoryConfig,
		Message:  "Invalid log level",
		Detail:   "The log level must be one of debug, info, warn or error.",
	},

	// ============================================
	// Retrieval Errors (E200-E299)
	// ============================================

	"E201": {
		Category: CategoryRetrieval,
		Message:  "Group retrieval failed",
		Detail:   "The group could not be loaded from the configured source.",
	},
	"E202": {
		Category:   CategoryRetrieval,
		Message:    "Groups database could not be loaded",
		Detail:     "The local groups database must be a JSON object with a \"groups\" array.",
		Suggestion: "Check groups.db, or create it with {\"groups\": []}",
	},
	"E203": {
		Category: CategoryRetrieval,
		Message:  "Group source unreachable",
		Detail:   "A retriever for the configured groups source could not be created.",
	},

	// ============================================
	// Auth Errors (E300-E399)
	// ============================================

	"E301": {
		Category: CategoryAuth,
		Message:  "Sign-in failed",
		Detail:   "The server rejected the credentials.",
	},
	"E302": {
		Category: CategoryAuth,
		Message:  "Invalid sign-in form",
		Detail:   "One or more fields did not pass validation.",
	},
	"E303": {
		Category: CategoryAuth,
		Message:  "Server error during sign-in",
	},
}

// Codes returns all registered error codes in order.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for code.
func GetTemplate(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
