// Package testutil holds helpers shared by tests that need a real kernel.
package testutil

import (
	"os"
	"testing"
)

// VMEnv gates tests that change host networking.
const VMEnv = "REPEATER_VM_TEST"

// RequireVM skips the test unless VMEnv is set. Tests behind it create
// links, toggle sysctls and install nftables tables, so they only run in a
// disposable VM as root.
func RequireVM(t *testing.T) {
	t.Helper()
	if os.Getenv(VMEnv) == "" {
		t.Skip("Skipping test: requires " + VMEnv + " environment")
	}
	if os.Geteuid() != 0 {
		t.Skip("Skipping test: requires root")
	}
}
