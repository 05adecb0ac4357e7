package request

// Class is the routing bucket a request falls into.
type Class string

const (
	ClassStatic      Class = "static"
	ClassAPI         Class = "api"
	ClassEducational Class = "educational"
	ClassDynamic     Class = "dynamic"
)

// Strategy names the caching strategy applied to a class.
type Strategy string

const (
	StrategyCacheFirst           Strategy = "cache-first"
	StrategyNetworkFirst         Strategy = "network-first"
	StrategyStaleWhileRevalidate Strategy = "stale-while-revalidate"
	StrategyNetworkFirstBounded  Strategy = "network-first-bounded"
)

// Strategy returns the strategy applied to requests of class c.
func (c Class) Strategy() Strategy {
	switch c {
	case ClassStatic:
		return StrategyCacheFirst
	case ClassAPI:
		return StrategyNetworkFirst
	case ClassEducational:
		return StrategyStaleWhileRevalidate
	default:
		return StrategyNetworkFirstBounded
	}
}

// Source tells where a dispatched response came from.
type Source string

const (
	SourceCache       Source = "cache"
	SourceNetwork     Source = "network"
	SourceOffline     Source = "offline"
	SourcePassThrough Source = "passthrough"
)
