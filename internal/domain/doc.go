// Package domain models parametric business-interruption insurance for power
// outages: policies pay out automatically when an outage at the insured
// location exceeds the policy's duration threshold, with no manual claims
// adjusting.
//
// # Pipeline Shape
//
// Outage and weather data lands in the ledger store from an upstream feed.
// The pipeline stages (outage monitor, threshold evaluator, payout processor)
// communicate only through published events with at-least-once delivery, so
// every stage may run more than once for the same logical event.
//
// # ID Generation
//
// Claim and payout IDs are deterministic SHA-256 hashes of their parent
// entity IDs (policy|outage for claims, claim for payouts). This makes every
// create a conditional insert (ON CONFLICT DO NOTHING) and every redelivery
// a no-op past the first, without distributed coordination. See [ClaimID]
// and [PayoutID]. Outage event IDs are owned by the feed and carried through
// unchanged.
//
// # Money
//
// All monetary amounts (hourly rates, payout caps, computed payouts) are
// [decimal.Decimal], rounded to cents only at the end of the payout
// calculation. Payouts are never recomputed downstream: the payout processor
// settles exactly the amount recorded on the claim.
//
// # Status Transitions
//
// Claim and payout statuses are monotonic:
//
//	claim:  filed → validating → approved | denied → paid
//	payout: pending → processing → completed | failed
//
// [ClaimStatus.CanTransition] and [PayoutStatus.CanTransition] encode the
// allowed moves; persistence-layer updates must refuse backward transitions.
//
// # Weather Severity
//
// Outage payouts scale with weather severity at the outage location,
// evaluated from the most recent observation's peak wind (max of sustained
// speed and gust) and the severe-alert flag:
//
//	severe (1.5×): alert active and (category severe/hurricane or wind > 55 mph)
//	high   (1.2×): alert active or wind > 40 mph
//	medium (1.1×): wind > 25 mph
//	low    (1.0×): otherwise, or no observation available
package domain
