package version

// Current is the released version of the digest tools, without a "v" prefix.
const Current = "0.3.0"
