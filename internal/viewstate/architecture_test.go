package viewstate

import (
	"classroom/testutil"
	"testing"
)

func TestViewStateStaysOffBackends(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden, "view state consumes repository streams only")
	testutil.AssertNoTransitiveDependency(t, ".", testutil.InfraImportForbidden, "view state consumes repository streams only")
}
