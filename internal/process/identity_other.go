//go:build !windows

package process

func newWindowsIdentityResolver() IdentityResolver {
	return unsupportedIdentityResolver{goos: "windows"}
}
