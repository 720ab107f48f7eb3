// Package secgroup defines the provider-neutral model of a firewall policy's
// CIDR ingress rules and the GroupClient contract implemented by each cloud
// provider adapter.
//
// A Target names one reconciliation unit (a region and a group identifier).
// Mutating calls return a tagged Result rather than an error so callers can
// tell an expected dry-run outcome apart from a real provider failure without
// inspecting error strings.
package secgroup
