// Package campaign implements the campaign controller: the lifecycle state
// machine that binds a template and a targeting set, freezes the targeting
// snapshot on first launch, and starts or stops delivery.
//
// Every state change goes through domain.CampaignStatus.CanTransitionTo and
// is persisted with a compare-and-swap on the previous status, under a
// per-campaign lock. Delivery is fire-and-forget through the Dispatcher
// interface; the controller never waits for sends to finish.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package campaign
