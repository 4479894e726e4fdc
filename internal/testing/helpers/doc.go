// Package helpers provides test utility functions for the model factory.
//
// # Logging Helpers
//
// Route structured logs into the test output:
//
//	logger := helpers.NewTestLogger(t)
//
// # Assertion Helpers
//
// Count persisted rows through the ORM:
//
//	helpers.AssertCount(t, db, "Department", 2, "company_id", company.Key())
//	helpers.AssertCountOn(t, db, "secondary", "User", 1)
//	helpers.AssertRelatedCount(t, db, department, "employees", 3)
//
// # Value Helpers
//
// Stores return integers in different widths; normalise before comparing:
//
//	assert.Equal(t, int64(5), helpers.Int64(t, customer.Get("satisfaction")))
package helpers
