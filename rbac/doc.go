// Package rbac resolves role and permission authorization: named roles
// with parent inheritance, (resource, action) permissions with wildcard
// matching, and a distinguished super role that bypasses all checks.
package rbac
