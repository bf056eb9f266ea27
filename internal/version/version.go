// ABOUTME: Product and version constants
// ABOUTME: Shared by the hello handshake, mDNS records and HTTP user agents
package version

const (
	Version      = "0.3.0"
	Product      = "Blindtest"
	Manufacturer = "blindtest"
)

// UserAgent identifies HTTP requests made by the client
func UserAgent() string {
	return Product + "/" + Version
}
