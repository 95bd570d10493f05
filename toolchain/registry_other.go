//go:build !windows

package toolchain

// registryLLVMDir is only meaningful on Windows.
func registryLLVMDir() (string, bool) {
	return "", false
}
