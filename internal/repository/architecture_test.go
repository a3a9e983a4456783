package repository

import (
	"classroom/testutil"
	"testing"
)

func TestRepositoryReachesStorageThroughDomainOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden, "repositories talk to domain.PersistentStore")
}
