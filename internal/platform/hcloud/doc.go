// Package hcloud manages Hetzner Cloud firewalls as security groups.
//
// A firewall is addressed by the target "hcloud:<name-or-id>". Every source
// IP of an inbound rule is reported as one ingress rule, so the reconciler
// can keep or drop addresses the same way it does for EC2 ranges.
//
// # Authorizing
//
// Hetzner rules are per protocol, so an all-protocols grant becomes three
// inbound rules (TCP and UDP on any port, plus ICMP) sharing one
// description. A CIDR is added to the existing rules with that description
// when they exist.
//
// # Dry runs
//
// The Hetzner API has no dry-run mode. Dry-run calls read the firewall and
// report what the change would do without calling set_rules.
//
// # Retries
//
// set_rules is retried with exponential backoff while the firewall is
// locked by a running action or the API is rate limiting. Other errors
// are returned immediately.
package hcloud
