package payroll

// EngineVersion is stamped onto every run and version snapshot so that
// a committed record names the code that produced it.
const EngineVersion = "0.1.0"
