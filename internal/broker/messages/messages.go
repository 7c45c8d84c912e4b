package messages

// Default topics; deployments can override them in config.
const (
	TopicOrderStatusChanged = "order.status_changed"
	TopicRouteResolved      = "order.route_resolved"
)
