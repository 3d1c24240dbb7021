// Package approval keeps durable, expiring grants that let high-risk
// actions skip interactive confirmation. State is rebuilt by replaying an
// append-only journal of grant and revoke records, in journal order, when a
// Store is opened; later writes by other processes are not observed until
// the store is reopened.
package approval
