//go:build windows

package toolchain

import "golang.org/x/sys/windows/registry"

// registryLLVMDir returns the installation directory the LLVM installer
// records under HKLM.
func registryLLVMDir() (string, bool) {
	for _, keyPath := range []string{`SOFTWARE\LLVM\LLVM`, `SOFTWARE\WOW6432Node\LLVM\LLVM`} {
		k, err := registry.OpenKey(registry.LOCAL_MACHINE, keyPath, registry.QUERY_VALUE)
		if err != nil {
			continue
		}

		dir, _, err := k.GetStringValue("")
		k.Close()

		if err == nil && dir != "" {
			return dir, true
		}
	}

	return "", false
}
