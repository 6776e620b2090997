// Package analytics implements the read-side aggregator that turns recorded
// engagement events into campaign rates and department risk levels.
//
// Every view is recomputed from the current event set on each call; there
// is no running state, so results are independent of event arrival order.
package analytics
