// Package domain holds the value types shared by the services, repositories
// and HTTP layer: recipients and groups, templates, campaigns with their
// frozen targeting snapshots, engagement events and the derived analytics
// views.
//
// Nothing here imports another internal package or touches I/O. Methods are
// limited to pure checks such as status transitions and event ordering.
package domain
