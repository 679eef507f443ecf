package domain

import (
	"testing"

	"interactiondb/testutil"
)

// The domain layer must stay free of adapters so every store implementation
// can depend on it.
func TestDomainDoesNotImportAdapters(t *testing.T) {
	forbidden := testutil.AnyOf(testutil.InternalImportForbidden, testutil.StorageDriverForbidden)
	for _, dir := range []string{".", "formula", "urn"} {
		testutil.AssertNoDirectImports(t, dir, forbidden, "domain must not depend on adapters")
	}
}
