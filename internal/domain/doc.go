// Package domain contains the shared entities of the campaign delivery
// engine: campaigns and their A/B variants, recipients, engagement events,
// provider suppression entries, and re-engagement outcomes.
//
// Types here carry no behavior beyond simple predicates. Business logic
// lives in the service packages (campaign, sequence, events, delivery).
package domain
