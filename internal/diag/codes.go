package diag

// Error code constants, organized by phase, following spec §4.3 and §7.

const (
	// Textual I/O failure modes (§4.3)
	ILBadVersion          = "IL001"
	ILUnknownOpcode       = "IL002"
	ILTypeMismatch        = "IL003"
	ILArityMismatch       = "IL004"
	ILUndefinedLabel      = "IL005"
	ILUndefinedSymbol     = "IL006"
	ILDuplicateDefinition = "IL007"
	ILMalformedLiteral    = "IL008"

	// Verifier failure modes (§4.5)
	VfyStructure        = "VFY001" // missing/misplaced terminator, empty function
	VfyDominance        = "VFY002" // use not dominated by its definition
	VfyBlockParam       = "VFY003" // branch arg arity/type mismatch with target params
	VfyEHShape          = "VFY004" // eh.entry / resume.* misuse
	VfyCallContract     = "VFY005" // call arity/type mismatch with callee signature
	VfyUndefinedSymbol  = ILUndefinedSymbol
	VfyUndefinedLabel   = ILUndefinedLabel
	VfyTypeMismatch     = ILTypeMismatch
	VfyArityMismatch    = ILArityMismatch

	// Optimization pass failure modes (§4.10)
	PassInvariantViolation = "PASS001"

	// Multi-module linking failure modes (§4 SUPPLEMENTED FEATURES)
	LinkDuplicateSymbol   = "LINK001" // same name defined in more than one unit
	LinkSignatureConflict = "LINK002" // same extern name, incompatible signatures

	// Driver (cmd/vi) failure modes, ahead of parsing
	DriverNoInputs        = "DRV001" // no input files given on the command line
	DriverInputUnreadable = "DRV002" // an input path could not be read
)

var errorPhase = map[string]string{
	ILBadVersion:           "parse",
	ILUnknownOpcode:        "parse",
	ILTypeMismatch:         "parse",
	ILArityMismatch:        "parse",
	ILUndefinedLabel:       "parse",
	ILUndefinedSymbol:      "parse",
	ILDuplicateDefinition:  "parse",
	ILMalformedLiteral:     "parse",
	VfyStructure:           "verify",
	VfyDominance:           "verify",
	VfyBlockParam:          "verify",
	VfyEHShape:             "verify",
	VfyCallContract:        "verify",
	PassInvariantViolation: "pass",
	LinkDuplicateSymbol:    "link",
	LinkSignatureConflict:  "link",
	DriverNoInputs:         "driver",
	DriverInputUnreadable:  "driver",
}

// PhaseOf returns the phase a code belongs to, or "" if unknown.
func PhaseOf(code string) string {
	return errorPhase[code]
}

// Trap kinds (§4.8, §7). These double as diag.Report codes for VM traps —
// the VM phase is always "vm".
const (
	TrapDivideByZero     = "DivideByZero"
	TrapOverflow         = "Overflow"
	TrapInvalidCast      = "InvalidCast"
	TrapNullPointer      = "NullPointer"
	TrapMisaligned       = "Misaligned"
	TrapBadIndex         = "BadIndex"
	TrapStackOverflow    = "StackOverflow"
	TrapOutOfMemory      = "OutOfMemory"
	TrapUser             = "User"
	TrapInvalidOperation = "InvalidOperation"
	TrapUnknownOpcode    = "UnknownOpcode"
)
