package types

// Version is the canonical mk0link version.
// The CLI, wire codec and log table tooling share this version.
const Version = "0.3.0"

// WireVersion identifies the device link schema understood by this build.
// It changes only when field numbers or framing change.
const WireVersion = "mk0.1"
