// Package geo provides planar geometry helpers shared by the analysis
// packages: containment tests, convex hulls, bounding boxes and a kd-tree
// point index. All coordinates are assumed to be in one projected frame.
package geo

// SpeedToMetersPerMinute converts a walking speed in km/h to meters per minute.
func SpeedToMetersPerMinute(kmph float64) float64 {
	return kmph * 1000 / 60
}
