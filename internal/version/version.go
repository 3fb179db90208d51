// ABOUTME: Version information for netclock
// ABOUTME: Product identity reported by the CLI and the /health endpoint
package version

const (
	// Product is the product name
	Product = "netclock"

	// Manufacturer identifies the maintainer
	Manufacturer = "Resonate Protocol"

	// Version is the release version
	Version = "0.3.0"
)

// String returns "product version"
func String() string {
	return Product + " " + Version
}
