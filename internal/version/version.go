package version

// Version is the current version of pgsync.
// Can be overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "0.4.0"

// Name is the application name.
const Name = "pgsync"

// Description is a short description of the application.
const Description = "PostgreSQL schema and table data synchronization"
