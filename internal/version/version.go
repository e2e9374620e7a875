package version

// Version is the server version string.
const Version = "0.1.0"
