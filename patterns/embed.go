// Package patterns provides embedded default recognizer definitions.
// The YAML file in this directory uses the Presidio-compatible recognizer
// format with veil extensions (validate, sensitivity).
package patterns

import _ "embed"

//go:embed pii_default.yaml
var piiDefaultYAML []byte

// PIIDefaultYAML returns the embedded default PII recognizer definitions.
func PIIDefaultYAML() []byte { return piiDefaultYAML }
