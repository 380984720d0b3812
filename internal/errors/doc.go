// Package errors provides coded errors for fundsavy's configuration,
// retrieval and auth failures.
//
// Codes are grouped by range:
//
//	E100-E199  configuration
//	E200-E299  group retrieval
//	E300-E399  authentication
//
// Create errors from the registry and decorate them:
//
//	err := errors.New("E104").WithDetail(fmt.Sprintf("unsupported scheme %q", u.Scheme))
//
// The CLI prints them with Fprint, which uses Format for coded errors.
package errors
