package ir

// Version constants for the document format and engine.
const (
	// FormatVersion is the serialized document format version.
	FormatVersion = "1"

	// EngineVersion is the docreduce engine version.
	EngineVersion = "0.1.0"
)
