package models

import "github.com/fjacquet/cpmgmt/internal/testutil"

// Shared test constants aliased from testutil
const (
	testErrorValidateUnexpected      = testutil.TestErrorValidateUnexpected
	testErrorExpectedError           = testutil.TestErrorExpectedError
	testErrorExpectedErrorContaining = testutil.TestErrorExpectedErrorContaining

	testServerMgmt   = testutil.TestServerMgmt
	testOTELEndpoint = testutil.TestOTELEndpoint
	testInvalidPort  = testutil.TestInvalidPort
	testPort443      = testutil.TestPort443
)
