package restrict

// defaultRoDirs lists paths every transfer needs read access to regardless
// of which module/path the user requested: user and group lookup, and the
// files the Go resolver itself touches for DNS.
var defaultRoDirs = []string{
	"/etc",
}
